//go:build linux || darwin

package runner

import (
	"context"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/creack/pty"
)

func runWithPTY(ctx context.Context, opts Options, transcript io.Writer, stream io.Writer) (int, []Event, error) {
	cmd := exec.CommandContext(ctx, opts.Tool, opts.Args...)
	cmd.Dir = opts.WorkDir
	cmd.Env = toolEnv(opts.Env)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return -1, []Event{
			newEvent("tool_error", "failed to start tool with pty", map[string]any{
				"error": err.Error(),
			}),
		}, err
	}
	defer func() {
		_ = ptmx.Close()
	}()

	events := []Event{
		newEvent("tool_started", "tool started via pty mode", map[string]any{
			"tool": opts.Tool,
			"args": strings.Join(opts.Args, " "),
			"mode": "pty",
		}),
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		writer := stream
		if opts.CaptureTranscript {
			writer = io.MultiWriter(writer, transcript)
		}
		_, _ = io.Copy(writer, ptmx)
	}()

	waitErr := cmd.Wait()
	code := exitCode(cmd, waitErr)
	_ = ptmx.Close()

	select {
	case <-readerDone:
	case <-time.After(400 * time.Millisecond):
	}

	events = append(events, newEvent("tool_ended", "tool process exited", map[string]any{
		"exit_code": code,
	}))
	return code, events, waitErr
}
