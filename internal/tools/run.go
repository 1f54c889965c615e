package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/lvcoi/ytdl-batch/internal/ui"
)

// ErrOutputMissing marks a tool that reported success but left no output
// file behind.
var ErrOutputMissing = errors.New("expected output file not found")

// ExternalToolFailure is a nonzero exit (or timeout) of an external program.
type ExternalToolFailure struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExternalToolFailure) Error() string {
	detail := strings.TrimSpace(e.Stderr)
	if i := strings.LastIndexByte(detail, '\n'); i >= 0 {
		detail = strings.TrimSpace(detail[i+1:])
	}
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}
	if e.ExitCode > 0 {
		return fmt.Sprintf("%s exited with status %d: %s", e.Tool, e.ExitCode, detail)
	}
	return fmt.Sprintf("%s failed: %s", e.Tool, detail)
}

func (e *ExternalToolFailure) Unwrap() error {
	return e.Err
}

// Output is what a finished command wrote.
type Output struct {
	Stdout []byte
	Stderr []byte
}

// Runner runs external commands. Tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

// ExecRunner runs commands with os/exec and echoes them at debug level.
type ExecRunner struct {
	Printer *ui.Printer
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	r.Printer.Command(name, args)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return out, nil
	}

	failure := &ExternalToolFailure{
		Tool:   filepath.Base(name),
		Stderr: stderr.String(),
		Err:    err,
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		failure.Err = ctxErr
	} else {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			failure.ExitCode = exitErr.ExitCode()
		}
	}
	return out, failure
}
