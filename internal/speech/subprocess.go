package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Command describes one engine subprocess invocation.
type Command struct {
	// Name is the executable name or path.
	Name string

	// Args are the command line arguments.
	Args []string

	// Stdin is written to the process before it starts reading.
	Stdin string

	// Env entries are appended to the current environment.
	Env []string

	// Logger receives debug output. When nil the logger stored in the
	// context by log.WithContext is used, then the default logger.
	Logger *log.Logger
}

// Run executes the command and returns its stdout. Stdin is set up before
// the process starts. On failure the error carries the trimmed stderr.
func (c Command) Run(ctx context.Context) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger := c.Logger
	if logger == nil {
		logger = log.FromContext(ctx)
	}

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	base := filepath.Base(c.Name)
	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Debug("Subprocess aborted", "command", base, "duration", duration, "error", ctxErr)
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s timed out after %v", base, duration.Round(time.Millisecond))
		}
		return nil, fmt.Errorf("%s cancelled: %w", base, ctxErr)
	}

	if err != nil {
		logger.Debug("Subprocess failed", "command", base, "duration", duration, "error", err)
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s failed: %w: %s", base, err, msg)
		}
		return nil, fmt.Errorf("%s failed: %w", base, err)
	}

	logger.Debug("Subprocess executed", "command", base, "duration", duration)
	return stdout.Bytes(), nil
}

// LookPath returns the first of the candidate executables found in PATH.
func LookPath(candidates ...string) (string, error) {
	var firstErr error
	for _, name := range candidates {
		if name == "" {
			continue
		}
		path, err := exec.LookPath(name)
		if err == nil {
			return path, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = errors.New("no candidates given")
	}
	return "", NewError(ErrorCodeEngineUnavailable,
		fmt.Sprintf("none of %v found in PATH", candidates), firstErr)
}
