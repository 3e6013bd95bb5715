package ingest

import (
	"context"
	"testing"

	"hitmeter/internal/model"
)

func TestHitFromLineText(t *testing.T) {
	hit, ok := hitFromLine("hit 42 trip alice", "udp", nil)
	if !ok {
		t.Fatalf("expected hit")
	}
	if hit.Timestamp != 42 || hit.Group != "trip" || hit.User != "alice" || hit.Source != "udp" {
		t.Fatalf("hit=%+v", hit)
	}
}

func TestHitFromLineJSON(t *testing.T) {
	hit, ok := hitFromLine(`{"ts":7,"group":"pay"}`, "kafka", nil)
	if !ok {
		t.Fatalf("expected hit")
	}
	if hit.Timestamp != 7 || hit.Group != "pay" || hit.User != "" {
		t.Fatalf("hit=%+v", hit)
	}
}

func TestHitFromLineRejectsQueriesAndGarbage(t *testing.T) {
	if _, ok := hitFromLine("total 7", "udp", nil); ok {
		t.Fatalf("query verb should be rejected on record-only sources")
	}
	if _, ok := hitFromLine("bogus 7", "udp", nil); ok {
		t.Fatalf("unknown verb should be rejected")
	}
	if _, ok := hitFromLine("   ", "udp", nil); ok {
		t.Fatalf("blank line should be ignored")
	}
}

func TestSendNonBlockingDropsWhenFull(t *testing.T) {
	out := make(chan model.Hit, 1)
	ctx := context.Background()
	if !SendNonBlocking(ctx, out, model.Hit{Group: "a"}, nil) {
		t.Fatalf("first send should succeed")
	}
	if SendNonBlocking(ctx, out, model.Hit{Group: "b"}, nil) {
		t.Fatalf("second send should drop, channel is full")
	}
	got := <-out
	if got.Group != "a" {
		t.Fatalf("got=%+v", got)
	}
}
