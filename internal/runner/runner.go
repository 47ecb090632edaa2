// Package runner executes the external training/inference tool as a
// subprocess, preferring a PTY so the tool's progress output renders the way
// it would in a terminal.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

var errPTYUnsupported = errors.New("pty execution is not supported on this platform")

type Event struct {
	Type    string         `json:"type"`
	At      string         `json:"at"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

type Result struct {
	ExitCode            int
	StartedAt           time.Time
	EndedAt             time.Time
	Duration            time.Duration
	Err                 error
	Events              []Event
	Transcript          string
	TranscriptTruncated bool
}

type Options struct {
	Tool               string
	Args               []string
	WorkDir            string
	Env                []string
	UsePTY             bool
	CaptureTranscript  bool
	MaxTranscriptBytes int
	OutputWriter       io.Writer
	OnOutput           func(string)
	OnEvent            func(Event)
}

func Run(ctx context.Context, opts Options) Result {
	start := time.Now().UTC()
	result := Result{
		ExitCode:  -1,
		StartedAt: start,
	}

	tool := strings.TrimSpace(opts.Tool)
	if tool == "" {
		result.Err = fmt.Errorf("tool command is required")
		event := newEvent("tool_error", "tool command is empty", nil)
		result.Events = append(result.Events, event)
		dispatchEvent(opts.OnEvent, event)
		return finish(result)
	}
	if opts.MaxTranscriptBytes <= 0 {
		opts.MaxTranscriptBytes = 200000
	}
	if opts.OutputWriter == nil {
		opts.OutputWriter = io.Discard
	}

	transcript := newCappedBuffer(opts.MaxTranscriptBytes)
	stream := newChunkWriter(opts.OutputWriter, opts.OnOutput)

	if opts.UsePTY {
		code, ptyEvents, err := runWithPTY(ctx, opts, transcript, stream)
		result.Events = append(result.Events, ptyEvents...)
		dispatchEvents(opts.OnEvent, ptyEvents)
		if err == nil || !errors.Is(err, errPTYUnsupported) {
			result.ExitCode = code
			result.Err = err
			result.Transcript = transcript.String()
			result.TranscriptTruncated = transcript.Truncated()
			return finish(result)
		}
		fallbackEvent := newEvent("tool_warn", "pty unavailable, running with piped output", map[string]any{
			"error": err.Error(),
		})
		result.Events = append(result.Events, fallbackEvent)
		dispatchEvent(opts.OnEvent, fallbackEvent)
	}

	code, pipedEvents, err := runPiped(ctx, opts, transcript, stream)
	result.Events = append(result.Events, pipedEvents...)
	dispatchEvents(opts.OnEvent, pipedEvents)
	result.ExitCode = code
	result.Err = err
	result.Transcript = transcript.String()
	result.TranscriptTruncated = transcript.Truncated()
	return finish(result)
}

func finish(result Result) Result {
	result.EndedAt = time.Now().UTC()
	result.Duration = result.EndedAt.Sub(result.StartedAt)
	return result
}

func runPiped(ctx context.Context, opts Options, transcript io.Writer, stream io.Writer) (int, []Event, error) {
	cmd := exec.CommandContext(ctx, opts.Tool, opts.Args...)
	cmd.Dir = opts.WorkDir
	cmd.Env = toolEnv(opts.Env)
	out := stream
	if opts.CaptureTranscript {
		out = io.MultiWriter(stream, transcript)
	}
	cmd.Stdout = out
	cmd.Stderr = out

	events := []Event{
		newEvent("tool_started", "tool started with piped output", map[string]any{
			"tool": opts.Tool,
			"args": strings.Join(opts.Args, " "),
			"mode": "piped",
		}),
	}

	if err := cmd.Start(); err != nil {
		events = append(events, newEvent("tool_error", "tool failed to start", map[string]any{"error": err.Error()}))
		return -1, events, err
	}

	err := cmd.Wait()
	code := exitCode(cmd, err)
	events = append(events, newEvent("tool_ended", "tool process exited", map[string]any{
		"exit_code": code,
	}))
	return code, events, err
}

func toolEnv(extra []string) []string {
	if len(extra) == 0 {
		return nil
	}
	return append(os.Environ(), extra...)
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd != nil && cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if err != nil && strings.Contains(err.Error(), "executable file not found") {
		return 127
	}
	if err != nil && errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func newEvent(eventType, message string, data map[string]any) Event {
	cloned := map[string]any(nil)
	if data != nil {
		cloned = maps.Clone(data)
	}
	return Event{
		Type:    eventType,
		At:      time.Now().UTC().Format(time.RFC3339Nano),
		Message: message,
		Data:    cloned,
	}
}

func dispatchEvents(handler func(Event), events []Event) {
	for _, event := range events {
		dispatchEvent(handler, event)
	}
}

func dispatchEvent(handler func(Event), event Event) {
	if handler != nil {
		handler(event)
	}
}

func newChunkWriter(base io.Writer, handler func(string)) io.Writer {
	if base == nil && handler == nil {
		return io.Discard
	}
	if base == nil {
		base = io.Discard
	}
	if handler == nil {
		return base
	}
	return io.MultiWriter(base, chunkCallbackWriter(handler))
}

type chunkCallbackWriter func(string)

func (c chunkCallbackWriter) Write(p []byte) (int, error) {
	if c != nil && len(p) > 0 {
		c(string(p))
	}
	return len(p), nil
}

type cappedBuffer struct {
	max       int
	buf       bytes.Buffer
	truncated bool
	mu        sync.Mutex
}

func newCappedBuffer(max int) *cappedBuffer {
	if max <= 0 {
		max = 200000
	}
	return &cappedBuffer{max: max}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := c.max - c.buf.Len()
	if remaining <= 0 {
		c.truncated = true
		return len(p), nil
	}
	if len(p) <= remaining {
		_, _ = c.buf.Write(p)
		return len(p), nil
	}
	_, _ = c.buf.Write(p[:remaining])
	c.truncated = true
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func (c *cappedBuffer) Truncated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.truncated
}
