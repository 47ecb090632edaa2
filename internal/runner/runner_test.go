package runner

import (
	"context"
	"strings"
	"testing"
)

func TestRunCapturesTranscriptAndExitCode(t *testing.T) {
	result := Run(context.Background(), Options{
		Tool:              "sh",
		Args:              []string{"-c", "echo epoch 1/1 done"},
		CaptureTranscript: true,
	})
	if result.Err != nil {
		t.Fatalf("run: %v", result.Err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("exit code %d, want 0", result.ExitCode)
	}
	if !strings.Contains(result.Transcript, "epoch 1/1 done") {
		t.Fatalf("transcript missing tool output: %q", result.Transcript)
	}
	if len(result.Events) < 2 {
		t.Fatalf("expected start and end events, got %v", result.Events)
	}
	if result.Events[0].Type != "tool_started" || result.Events[len(result.Events)-1].Type != "tool_ended" {
		t.Fatalf("unexpected event sequence %v", result.Events)
	}
}

func TestRunReportsNonZeroExit(t *testing.T) {
	result := Run(context.Background(), Options{
		Tool: "sh",
		Args: []string{"-c", "exit 3"},
	})
	if result.ExitCode != 3 {
		t.Fatalf("exit code %d, want 3", result.ExitCode)
	}
}

func TestRunMissingTool(t *testing.T) {
	result := Run(context.Background(), Options{
		Tool: "definitely-not-a-real-trainer-binary",
	})
	if result.Err == nil {
		t.Fatalf("expected error for missing tool")
	}
	if result.ExitCode != 127 {
		t.Fatalf("exit code %d, want 127", result.ExitCode)
	}
}

func TestRunEmptyTool(t *testing.T) {
	result := Run(context.Background(), Options{})
	if result.Err == nil {
		t.Fatalf("expected error for empty tool command")
	}
}

func TestRunTruncatesTranscript(t *testing.T) {
	result := Run(context.Background(), Options{
		Tool:               "sh",
		Args:               []string{"-c", "for i in $(seq 1 200); do echo batch $i; done"},
		CaptureTranscript:  true,
		MaxTranscriptBytes: 64,
	})
	if !result.TranscriptTruncated {
		t.Fatalf("expected truncated transcript")
	}
	if len(result.Transcript) > 64 {
		t.Fatalf("transcript exceeds cap: %d bytes", len(result.Transcript))
	}
}

func TestRunStreamsChunksToCallback(t *testing.T) {
	var chunks []string
	Run(context.Background(), Options{
		Tool:     "sh",
		Args:     []string{"-c", "echo progress"},
		OnOutput: func(chunk string) { chunks = append(chunks, chunk) },
	})
	joined := strings.Join(chunks, "")
	if !strings.Contains(joined, "progress") {
		t.Fatalf("output callback missed tool output: %q", joined)
	}
}
