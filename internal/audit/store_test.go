package audit

import (
	"testing"
	"time"

	"hitmeter/internal/model"
)

func TestRingKeepsNewest(t *testing.T) {
	s := NewStore(3)
	for i := int64(1); i <= 5; i++ {
		s.Add(model.Hit{Timestamp: i, Group: "g"})
	}
	entries := s.List(0)
	if len(entries) != 3 {
		t.Fatalf("len=%d, want 3", len(entries))
	}
	if entries[0].Hit.Timestamp != 3 || entries[2].Hit.Timestamp != 5 {
		t.Fatalf("ring kept wrong entries: %+v", entries)
	}
}

func TestListLimit(t *testing.T) {
	s := NewStore(10)
	for i := int64(1); i <= 4; i++ {
		s.Add(model.Hit{Timestamp: i, Group: "g"})
	}
	entries := s.List(2)
	if len(entries) != 2 {
		t.Fatalf("len=%d, want 2", len(entries))
	}
	if entries[1].Hit.Timestamp != 4 {
		t.Fatalf("limit should keep the newest: %+v", entries)
	}
}

func TestSince(t *testing.T) {
	s := NewStore(10)
	s.Add(model.Hit{Timestamp: 1, Group: "g"})
	time.Sleep(2 * time.Millisecond)
	cut := time.Now().UTC()
	s.Add(model.Hit{Timestamp: 2, Group: "g"})

	entries := s.Since(cut)
	if len(entries) != 1 || entries[0].Hit.Timestamp != 2 {
		t.Fatalf("since=%+v", entries)
	}
}
