package radosgw

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"os/exec"
	"strings"
)

// Runner executes cluster admin commands. The canonical implementation runs
// real processes; tests substitute canned output.
type Runner interface {
	// Run executes the command and returns everything it wrote to stdout.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// RunInput executes the command with its stdin connected to input.
	RunInput(ctx context.Context, input io.Reader, name string, args ...string) ([]byte, error)

	// Stream executes the command and yields its stdout line by line as it
	// is produced. A command that exits non-zero yields one final error
	// after its output.
	Stream(ctx context.Context, name string, args ...string) iter.Seq2[string, error]
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

var _ Runner = ExecRunner{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return runCmd(ctx, nil, name, args...)
}

func (ExecRunner) RunInput(ctx context.Context, input io.Reader, name string, args ...string) ([]byte, error) {
	return runCmd(ctx, input, name, args...)
}

func runCmd(ctx context.Context, input io.Reader, name string, args ...string) ([]byte, error) {
	log.Debugw("running command", "cmd", name, "args", args)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = input
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, commandError(name, args, &stderr, err)
	}
	return stdout.Bytes(), nil
}

func (ExecRunner) Stream(ctx context.Context, name string, args ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		log.Debugw("streaming command", "cmd", name, "args", args)

		cmd := exec.CommandContext(ctx, name, args...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		stdout, err := cmd.StdoutPipe()
		if err != nil {
			yield("", fmt.Errorf("piping %s: %w", name, err))
			return
		}
		if err := cmd.Start(); err != nil {
			yield("", fmt.Errorf("starting %s: %w", name, err))
			return
		}

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			if !yield(scanner.Text(), nil) {
				_ = cmd.Process.Kill()
				_ = cmd.Wait()
				return
			}
		}

		scanErr := scanner.Err()
		waitErr := cmd.Wait()
		switch {
		case ctx.Err() != nil:
			yield("", ctx.Err())
		case scanErr != nil:
			yield("", fmt.Errorf("reading %s output: %w", name, scanErr))
		case waitErr != nil:
			yield("", commandError(name, args, &stderr, waitErr))
		}
	}
}

// commandError folds the interesting part of stderr into the error so log
// lines carry the cluster's own words.
func commandError(name string, args []string, stderr *bytes.Buffer, err error) error {
	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
}

// transientPatterns are error fragments that indicate a retryable cluster
// condition rather than a permanent failure.
var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"timed out",
	"temporarily unavailable",
}

func transient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
