package agent

import (
	"context"
	"os/exec"
	"strings"
)

const maxCapturedOutput = 10000

// CommandExecutor executes remediation commands on the host.
type CommandExecutor interface {
	Execute(ctx context.Context, command string) (output string, err error)
}

// ShellExecutor runs commands through the system shell.
type ShellExecutor struct{}

// Execute runs the command and returns its combined output. The error
// is non-nil on a non-zero exit; partial output is still returned.
func (ShellExecutor) Execute(ctx context.Context, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	out, err := cmd.CombinedOutput()
	return truncateOutput(string(out)), err
}

func truncateOutput(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxCapturedOutput {
		return s
	}
	return s[:maxCapturedOutput] + "..."
}
