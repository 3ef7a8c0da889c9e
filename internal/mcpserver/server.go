// Package mcpserver exposes the registration pass, the lifecycle guard, and
// the gates orchestrator as MCP tools over stdio, so orchestration agents
// can evaluate a workspace without shelling out to the CLI.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"ratchet/internal/gate"
	"ratchet/internal/guard"
	"ratchet/internal/ingest"
	"ratchet/internal/logging"
	"ratchet/internal/workspace"
)

// Server wraps the MCP SDK server bound to one workspace.
type Server struct {
	MCPServer *sdkmcp.Server
	Layout    workspace.Layout

	log *slog.Logger
}

// NewServer creates a ratchet MCP server with the workspace tools registered.
func NewServer(layout workspace.Layout, version string) *Server {
	s := &Server{
		MCPServer: sdkmcp.NewServer(
			&sdkmcp.Implementation{Name: "ratchet", Version: version},
			nil,
		),
		Layout: layout,
		log:    logging.New("mcpserver"),
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "register_artifacts",
		Description: "Run a registration pass: collect canon artifacts, hash them, and upsert the decision ledger. Set dry_run to preview without writing.",
	}, s.handleRegisterArtifacts)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "evaluate_guard",
		Description: "Evaluate the lifecycle resume gates and return the per-check verdict with abort reasons.",
	}, s.handleEvaluateGuard)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "evaluate_gates",
		Description: "Run registration, the lifecycle guard, and the canon layout scan; return the full completeness report.",
	}, s.handleEvaluateGates)
}

// --- Tool input/output types ---

type registerArtifactsInput struct {
	DryRun bool   `json:"dry_run,omitempty" jsonschema:"compute registrations without writing the registry"`
	Config string `json:"config,omitempty" jsonschema:"workspace-relative register config path (default .ledger/register_config.json)"`
}

type evaluateGuardInput struct {
	ExpectedLifecycleID string `json:"expected_lifecycle_id,omitempty" jsonschema:"deny unless the contract lifecycle_id matches"`
}

type evaluateGatesInput struct {
	ExpectedLifecycleID string `json:"expected_lifecycle_id,omitempty" jsonschema:"deny unless the contract lifecycle_id matches"`
	WriteReport         bool   `json:"write_report,omitempty" jsonschema:"also write the Markdown report under .reports"`
}

type evaluateGatesOutput struct {
	ExitCode   int         `json:"exit_code"`
	Report     gate.Report `json:"report"`
	ReportPath string      `json:"report_path,omitempty"`
}

// --- Tool handlers ---

func (s *Server) handleRegisterArtifacts(_ context.Context, _ *sdkmcp.CallToolRequest, input registerArtifactsInput) (*sdkmcp.CallToolResult, ingest.Result, error) {
	res, err := ingest.Run(s.Layout, ingest.Options{DryRun: input.DryRun, ConfigPath: input.Config})
	if err != nil {
		return nil, ingest.Result{}, fmt.Errorf("register_artifacts: %w", err)
	}
	s.log.Info("register_artifacts",
		"dry_run", res.DryRun,
		"artifacts", res.ArtifactCount,
		"created", len(res.NewDecisionIDs))
	return nil, res, nil
}

func (s *Server) handleEvaluateGuard(_ context.Context, _ *sdkmcp.CallToolRequest, input evaluateGuardInput) (*sdkmcp.CallToolResult, guard.Result, error) {
	opts := guard.Options{}
	if input.ExpectedLifecycleID != "" {
		opts.ExpectedLifecycleID = &input.ExpectedLifecycleID
	}
	res, err := guard.Evaluate(s.Layout, opts)
	if err != nil {
		return nil, guard.Result{}, fmt.Errorf("evaluate_guard: %w", err)
	}
	s.log.Info("evaluate_guard", "allowed", res.Allowed, "lifecycle_id", res.LifecycleID)
	return nil, res, nil
}

func (s *Server) handleEvaluateGates(ctx context.Context, _ *sdkmcp.CallToolRequest, input evaluateGatesInput) (*sdkmcp.CallToolResult, evaluateGatesOutput, error) {
	opts := gate.Options{}
	if input.ExpectedLifecycleID != "" {
		opts.ExpectedLifecycleID = &input.ExpectedLifecycleID
	}
	report := gate.Run(ctx, s.Layout, opts)
	out := evaluateGatesOutput{ExitCode: gate.ExitCode(report), Report: report}
	if input.WriteReport {
		rel, err := gate.WriteReport(s.Layout, report)
		if err != nil {
			return nil, evaluateGatesOutput{}, fmt.Errorf("evaluate_gates: %w", err)
		}
		out.ReportPath = rel
	}
	s.log.Info("evaluate_gates", "overall_pass", report.OverallPass, "exit_code", out.ExitCode)
	return nil, out, nil
}
