package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Engine runs an analysis over an input.
type Engine interface {
	Run(ctx context.Context, in *Input) (*Results, error)
}

// ExecEngine runs an external binary that reads the input as JSON on stdin
// and writes results as JSON on stdout.
type ExecEngine struct {
	Path   string
	Args   []string
	Env    []string
	Logger *slog.Logger
}

var _ Engine = (*ExecEngine)(nil)

// NewExecEngine constructs an engine for the binary at path.
func NewExecEngine(path string, args ...string) *ExecEngine {
	return &ExecEngine{Path: path, Args: args}
}

// Run executes the binary until it exits or ctx is done. The results must
// carry the input's run id.
func (e *ExecEngine) Run(ctx context.Context, in *Input) (*Results, error) {
	if in == nil {
		return nil, errors.New("analysis engine: nil input")
	}
	var stdin, stdout, stderr bytes.Buffer
	if err := in.Encode(&stdin); err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, e.Path, e.Args...)
	if len(e.Env) > 0 {
		cmd.Env = e.Env
	}
	cmd.Stdin = &stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	if e.Logger != nil {
		e.Logger.Debug("analysis engine finished", "path", e.Path, "run_id", in.RunID,
			"duration", time.Since(started), "error", err)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("analysis engine %s: %w", e.Path, ctxErr)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("analysis engine %s: %w: %s", e.Path, err, msg)
		}
		return nil, fmt.Errorf("analysis engine %s: %w", e.Path, err)
	}
	res, err := Ingest(&stdout)
	if err != nil {
		return nil, err
	}
	if res.RunID != in.RunID {
		return nil, fmt.Errorf("analysis engine %s: results for run %q, want %q", e.Path, res.RunID, in.RunID)
	}
	return res, nil
}
