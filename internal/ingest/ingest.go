// Package ingest runs the registration pass: collect canon artifacts, parse
// them into ledger records, and upsert them into the registry under the
// advisory lock.
package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"ratchet/internal/artifact"
	"ratchet/internal/canon"
	"ratchet/internal/collect"
	"ratchet/internal/logging"
	"ratchet/internal/registry"
	"ratchet/internal/workspace"
)

// Options control a registration pass.
type Options struct {
	// DryRun computes registrations without writing the registry.
	DryRun bool
	// ConfigPath is the workspace-relative register config location.
	// Empty means the default location.
	ConfigPath string
}

// Skipped names an artifact the pass could not parse and why.
type Skipped struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Result summarizes a registration pass.
type Result struct {
	ArtifactCount  int       `json:"artifact_count"`
	ConfigPath     string    `json:"config_path"`
	DryRun         bool      `json:"dry_run"`
	NewDecisionIDs []string  `json:"new_decision_ids"`
	Skipped        []Skipped `json:"skipped,omitempty"`
}

// Run executes one registration pass over the workspace. Parse failures are
// isolated per artifact: the file is skipped and reported while the batch
// continues. Collection or registry failures abort the pass.
func Run(layout workspace.Layout, opts Options) (Result, error) {
	log := logging.New("ingest")

	if _, err := os.Stat(layout.Abs(workspace.CanonRel)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{}, fmt.Errorf("%s directory not found", workspace.CanonRel)
		}
		return Result{}, fmt.Errorf("stat %s: %w", workspace.CanonRel, err)
	}

	configRel := opts.ConfigPath
	if configRel == "" {
		configRel = workspace.RegisterConfigRel
	}
	cfg, err := workspace.LoadConfig(layout.Abs(configRel))
	if err != nil {
		return Result{}, err
	}

	defaults, err := readDefaults(layout)
	if err != nil {
		return Result{}, err
	}

	paths, err := collect.Paths(layout, cfg)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		ArtifactCount:  len(paths),
		ConfigPath:     configRel,
		DryRun:         opts.DryRun,
		NewDecisionIDs: []string{},
	}

	var records []artifact.Record
	for _, rel := range paths {
		rec, err := artifact.ParseFile(layout.Root, rel, defaults)
		if err != nil {
			log.Warn("skipping artifact", "path", rel, "error", err)
			res.Skipped = append(res.Skipped, Skipped{Path: rel, Reason: err.Error()})
			continue
		}
		records = append(records, rec)
	}

	registryPath := layout.Abs(workspace.RegistryRel)
	if opts.DryRun {
		reg, err := registry.Load(registryPath)
		if err != nil {
			return Result{}, err
		}
		created, err := reg.Upsert(records)
		if err != nil {
			return Result{}, err
		}
		res.NewDecisionIDs = append(res.NewDecisionIDs, created...)
		return res, nil
	}

	err = registry.WithLock(registryPath, func() error {
		reg, err := registry.Load(registryPath)
		if err != nil {
			return err
		}
		created, err := reg.Upsert(records)
		if err != nil {
			return err
		}
		if err := reg.Persist(registryPath); err != nil {
			return err
		}
		res.NewDecisionIDs = append(res.NewDecisionIDs, created...)
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	log.Info("registration pass complete",
		"artifacts", res.ArtifactCount,
		"created", len(res.NewDecisionIDs),
		"skipped", len(res.Skipped))
	return res, nil
}

// readDefaults pulls registration defaults from the run manifest. A missing
// manifest yields empty defaults and scope resolution falls back to the
// unknown sentinel.
func readDefaults(layout workspace.Layout) (artifact.Defaults, error) {
	manifest, err := canon.LoadRunManifest(layout.Abs(workspace.RunManifestRel))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return artifact.Defaults{}, nil
		}
		return artifact.Defaults{}, err
	}
	return manifest.Defaults(), nil
}
