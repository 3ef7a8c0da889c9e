package gate

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"ratchet/internal/format"
	"ratchet/internal/guard"
	"ratchet/internal/workspace"
)

// RenderMarkdown renders the report for humans. The summary table carries
// one row per gate; the sections below carry the full verdicts.
func RenderMarkdown(r Report) string {
	var b strings.Builder

	b.WriteString("# Gates & contracts completeness report\n\n")
	fmt.Fprintf(&b, "**Generated:** %s\n", r.TimestampUTC)
	overall := "FAIL"
	if r.OverallPass {
		overall = "PASS"
	}
	fmt.Fprintf(&b, "**Overall:** %s\n\n", overall)

	b.WriteString("## Summary\n\n")
	tbl := format.NewTable(format.Markdown)
	tbl.Header("Check", "Status")
	tbl.Row("register", r.Summary.Register)
	tbl.Row("lifecycle guard allowed", passFail(r.Summary.LifecycleGuardAllowed))
	tbl.Row("canon layout complete", passFail(r.Summary.CanonLayoutComplete))
	b.WriteString(tbl.String())
	b.WriteString("\n")

	b.WriteString("\n## Registration\n\n")
	if r.Register.Error != "" {
		b.WriteString("```\n")
		b.WriteString(strings.TrimSpace(r.Register.Error))
		b.WriteString("\n```\n")
	} else {
		res := r.Register.Result
		fmt.Fprintf(&b, "- **artifacts:** %d\n", res.ArtifactCount)
		fmt.Fprintf(&b, "- **new decisions:** %d\n", len(res.NewDecisionIDs))
		for _, id := range res.NewDecisionIDs {
			fmt.Fprintf(&b, "  - `%s`\n", id)
		}
		if len(res.Skipped) > 0 {
			fmt.Fprintf(&b, "- **skipped:** %d\n", len(res.Skipped))
			for _, s := range res.Skipped {
				fmt.Fprintf(&b, "  - %s: %s\n", s.Path, s.Reason)
			}
		}
	}

	b.WriteString("\n## Lifecycle guard\n\n")
	fmt.Fprintf(&b, "- **allowed:** %t\n", r.LifecycleGuard.Allowed)
	fmt.Fprintf(&b, "- **lifecycle_id:** %s\n", r.LifecycleGuard.LifecycleID)
	b.WriteString("\n### Per-check\n\n")
	for _, name := range guard.CheckOrder {
		ok, present := r.LifecycleGuard.Checks[name]
		if !present {
			continue
		}
		fmt.Fprintf(&b, "- `%s`: %s\n", name, passFail(ok))
	}
	writeViolations(&b, "Abort reasons", r.LifecycleGuard.Reasons)
	writeViolations(&b, "UNSET violations", r.LifecycleGuard.UnsetViolations)
	writeViolations(&b, "Supported-claim violations", r.LifecycleGuard.SupportedClaimViolations)
	writeViolations(&b, "Evidence hash violations", r.LifecycleGuard.EvidenceHashViolations)

	b.WriteString("\n## Canon layout\n\n")
	fmt.Fprintf(&b, "**Complete:** %t\n", r.CanonLayout.OK)
	if len(r.CanonLayout.Missing) > 0 {
		b.WriteString("\nMissing:\n")
		for _, m := range r.CanonLayout.Missing {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}

	return b.String()
}

func writeViolations(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n### %s\n\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}

// WriteReport renders the report and writes it under the workspace reports
// directory as completeness_<UTC timestamp>.md. It returns the
// workspace-relative path of the written file.
func WriteReport(layout workspace.Layout, r Report) (string, error) {
	dir := layout.Abs(workspace.ReportsRel)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}
	ts, err := time.Parse(time.RFC3339, r.TimestampUTC)
	if err != nil {
		ts = time.Now().UTC()
	}
	name := fmt.Sprintf("completeness_%s.md", ts.Format("20060102_150405"))
	if err := os.WriteFile(filepath.Join(dir, name), []byte(RenderMarkdown(r)), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path.Join(workspace.ReportsRel, name), nil
}
