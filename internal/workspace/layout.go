// Package workspace pins the on-disk layout of a managed workspace and loads
// the registration config. All paths are slash-separated and relative to the
// workspace root; Layout converts them to filesystem paths.
package workspace

import "path/filepath"

// Well-known workspace-relative paths.
const (
	CanonRel   = ".canon"
	LedgerRel  = ".ledger"
	ReportsRel = ".reports"
	SystemRel  = ".canon/system"

	RegistryRel       = ".ledger/registry.json"
	RegisterConfigRel = ".ledger/register_config.json"

	IndexRel             = ".canon/index.md"
	NextAgentBootRel     = ".canon/next_agent_boot.md"
	ResumeProtocolRel    = ".canon/resume_protocol.md"
	LayoutPolicyRel      = ".canon/layout_policy.md"
	CredentialsPolicyRel = ".canon/credentials_policy.md"

	RunManifestRel         = ".canon/run_manifest.json"
	LifecycleContractRel   = ".canon/lifecycle_contract.md"
	LifecycleIndexRel      = ".canon/lifecycle_index.json"
	ReconstructionCheckRel = ".canon/reconstruction_check.json"
	ClaimsMatrixRel        = ".canon/claims_matrix.json"
	EvidenceIndexRel       = ".canon/evidence_index.json"
	CurrentPointerRel      = ".canon/system/CURRENT"
)

// ToolsExcludeGlob is the default discovery exclusion.
const ToolsExcludeGlob = ".canon/tools/**"

// Layout resolves workspace-relative paths against a root directory.
type Layout struct {
	Root string
}

// NewLayout returns a Layout rooted at dir.
func NewLayout(dir string) Layout {
	return Layout{Root: filepath.Clean(dir)}
}

// Abs converts a slash-separated workspace-relative path to a filesystem path.
func (l Layout) Abs(rel string) string {
	return filepath.Join(l.Root, filepath.FromSlash(rel))
}

// Rel converts a filesystem path under the root to slash-separated
// workspace-relative form.
func (l Layout) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(l.Root, abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// RequiredPaths lists every path a complete workspace must contain. The
// layout-completeness gate reports any of these that are missing.
func RequiredPaths() []string {
	return []string{
		IndexRel,
		NextAgentBootRel,
		ResumeProtocolRel,
		LayoutPolicyRel,
		CredentialsPolicyRel,
		LifecycleContractRel,
		LifecycleIndexRel,
		ReconstructionCheckRel,
		ClaimsMatrixRel,
		EvidenceIndexRel,
		RunManifestRel,
		CurrentPointerRel,
		RegistryRel,
	}
}
