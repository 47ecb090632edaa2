package ui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prernadh/yolo-model-tuner-runner/internal/domain"
	"github.com/prernadh/yolo-model-tuner-runner/internal/exec"
)

var sampleTargets = []exec.Target{
	{Name: "local", Delegated: false},
	{Name: "gpu-pool", Delegated: true},
}

func TestOverlaySelectResolvesChoose(t *testing.T) {
	overlay := newTargetOverlay()

	done := make(chan struct{})
	var chosen exec.Target
	var chooseErr error
	go func() {
		defer close(done)
		chosen, chooseErr = overlay.Choose(context.Background(), sampleTargets)
	}()

	waitVisible(t, overlay)
	if overlay.OptionCount() != 2 {
		t.Fatalf("OptionCount() = %d, want 2", overlay.OptionCount())
	}

	overlay.moveCursor(1)
	overlay.selectCurrent()
	<-done

	if chooseErr != nil {
		t.Fatalf("Choose returned error: %v", chooseErr)
	}
	if chosen.Name != "gpu-pool" || !chosen.Delegated {
		t.Fatalf("Choose returned %+v, want gpu-pool", chosen)
	}
	if overlay.Visible() {
		t.Fatalf("overlay still visible after selection")
	}
}

func TestOverlayDismissUnblocksChooseWithError(t *testing.T) {
	overlay := newTargetOverlay()

	done := make(chan struct{})
	var chooseErr error
	go func() {
		defer close(done)
		_, chooseErr = overlay.Choose(context.Background(), sampleTargets)
	}()

	waitVisible(t, overlay)
	overlay.Dismiss()
	<-done

	var appErr *domain.AppError
	if !errors.As(chooseErr, &appErr) || appErr.Code != domain.CodeFailedPrecondition {
		t.Fatalf("Choose after Dismiss returned %v, want failed_precondition", chooseErr)
	}
	if overlay.Visible() {
		t.Fatalf("overlay still visible after dismiss")
	}
}

func TestOverlayChooseHonorsContext(t *testing.T) {
	overlay := newTargetOverlay()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	var chooseErr error
	go func() {
		defer close(done)
		_, chooseErr = overlay.Choose(ctx, sampleTargets)
	}()

	waitVisible(t, overlay)
	cancel()
	<-done

	if !errors.Is(chooseErr, context.Canceled) {
		t.Fatalf("Choose returned %v, want context.Canceled", chooseErr)
	}
}

func TestOverlayCursorStaysInBounds(t *testing.T) {
	overlay := newTargetOverlay()
	go func() {
		_, _ = overlay.Choose(context.Background(), sampleTargets)
	}()
	waitVisible(t, overlay)

	overlay.moveCursor(-1)
	if _, _, cursor := overlay.snapshot(); cursor != 0 {
		t.Fatalf("cursor moved below zero: %d", cursor)
	}
	overlay.moveCursor(1)
	overlay.moveCursor(1)
	if _, _, cursor := overlay.snapshot(); cursor != 1 {
		t.Fatalf("cursor moved past last option: %d", cursor)
	}
	overlay.Dismiss()
}

func TestRenderBar(t *testing.T) {
	full := renderBar(1.0, 10)
	if full != strings.Repeat("█", 10) {
		t.Fatalf("full bar = %q", full)
	}
	empty := renderBar(0, 10)
	if empty != strings.Repeat("░", 10) {
		t.Fatalf("empty bar = %q", empty)
	}
	// A non-zero share always paints at least one cell.
	sliver := renderBar(0.001, 10)
	if !strings.HasPrefix(sliver, "█") {
		t.Fatalf("sliver bar = %q, want a leading filled cell", sliver)
	}
}

func waitVisible(t *testing.T, overlay *targetOverlay) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if overlay.Visible() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("overlay never became visible")
}
