package gate

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const gitTimeout = 5 * time.Second

// Block renders the single orchestration response block automation scrapes
// after a gates run: commit, report path, overall verdict, timestamp.
// reportRel is the workspace-relative report path, empty when none was
// written.
func Block(ctx context.Context, root string, r Report, reportRel string) string {
	overall := passFail(r.OverallPass)
	return fmt.Sprintf("--- ratchet_eval ---\ncommit: %s\nreport: %s\noverall: %s\nat: %s\n---",
		gitHead(ctx, root), reportRel, overall, r.TimestampUTC)
}

// gitHead returns the HEAD commit hash of the repository at dir, or
// "unknown" when dir is not a repository or git is unavailable.
func gitHead(ctx context.Context, dir string) string {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "unknown"
	}
	head := strings.TrimSpace(string(out))
	if head == "" {
		return "unknown"
	}
	return head
}
