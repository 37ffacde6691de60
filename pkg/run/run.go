// Package run wraps external tool invocation behind a small interface so
// that timeout, kill and output-streaming behaviour can be exercised in
// tests without spawning real processes.
package run

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/reelhq/reel/pkg/logger"
)

var log = logger.Get("Run")

// tailLines is the number of trailing output lines retained on the
// ExitResult for error reporting.
const tailLines = 24

type (
	// LineCallback is invoked for every line of combined stdout/stderr
	// output produced by the running command. Callbacks are invoked from
	// the reading loop and must be cheap.
	LineCallback func(line string)

	// ExitResult describes a command which ran to completion (successfully
	// or not). A command which could not be started, or which was killed
	// by context cancellation, yields an error instead.
	ExitResult struct {
		Code int
		tail []string
	}

	Runner interface {
		Run(ctx context.Context, name string, args []string, onLine LineCallback) (*ExitResult, error)
	}

	execRunner struct{}
)

func NewRunner() Runner { return &execRunner{} }

// NewExitResult constructs an ExitResult directly; primarily useful for
// fake runners in tests.
func NewExitResult(code int, tail ...string) *ExitResult {
	return &ExitResult{Code: code, tail: tail}
}

// Tail returns the retained trailing output of the command, joined by
// newlines. Useful when surfacing tool errors to the operator.
func (res *ExitResult) Tail() string {
	return strings.Join(res.tail, "\n")
}

func (r *execRunner) Run(ctx context.Context, name string, args []string, onLine LineCallback) (*ExitResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = time.Second * 5

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	log.Debugf("Running command %s with args %v\n", name, args)
	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, err
	}

	tail := make([]string, 0, tailLines)
	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if len(tail) == tailLines {
				tail = append(tail[1:], line)
			} else {
				tail = append(tail, line)
			}

			if onLine != nil {
				onLine(line)
			}
		}
	}()

	waitErr := cmd.Wait()
	pw.Close()
	<-scanDone

	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Warnf("Command %s was killed: %s\n", name, ctxErr.Error())
		return nil, ctxErr
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return &ExitResult{Code: exitErr.ExitCode(), tail: tail}, nil
		}

		return nil, waitErr
	}

	return &ExitResult{Code: 0, tail: tail}, nil
}
