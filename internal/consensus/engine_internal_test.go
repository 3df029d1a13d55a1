package consensus

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestSealReleasesSessionLock(t *testing.T) {
	e := New(NewMemoryStore(), Params{
		SigmaVar:         0.25,
		MinVotes:         3,
		DefaultThreshold: 0.70,
	}, slog.New(slog.NewTextHandler(io.Discard, nil))).(*engine)

	ctx := context.Background()
	sessions := 10

	for i := 0; i < sessions; i++ {
		id := fmt.Sprintf("claim-%d", i)
		if _, err := e.Open(ctx, id, "legal"); err != nil {
			t.Fatalf("open %s: %v", id, err)
		}

		vote := Vote{
			ModelID:    "m1",
			Verdict:    VerdictVerified,
			Confidence: 0.9,
			Coherence:  0.9,
			Weight:     1.0,
			ReceivedAt: time.Now().UTC(),
		}
		if _, err := e.SubmitVote(ctx, id, vote); err != nil {
			t.Fatalf("vote %s: %v", id, err)
		}
	}

	e.mu.Lock()
	open := len(e.locks)
	e.mu.Unlock()
	if open != sessions {
		t.Fatalf("open session locks: got %d, want %d", open, sessions)
	}

	for i := 0; i < sessions; i++ {
		id := fmt.Sprintf("claim-%d", i)
		if _, err := e.Seal(ctx, id); err != nil {
			t.Fatalf("seal %s: %v", id, err)
		}
	}

	e.mu.Lock()
	remaining := len(e.locks)
	e.mu.Unlock()
	if remaining != 0 {
		t.Errorf("session locks after seal: got %d, want 0", remaining)
	}

	// Sealed sessions still answer reads and refuse votes.
	if _, err := e.Snapshot(ctx, "claim-0"); err != nil {
		t.Errorf("snapshot after seal: %v", err)
	}
	if _, err := e.SubmitVote(ctx, "claim-0", Vote{
		ModelID: "m2", Verdict: VerdictVerified, Confidence: 0.8, Coherence: 0.8, Weight: 1,
	}); err != ErrSessionSealed {
		t.Errorf("vote after seal: got %v, want ErrSessionSealed", err)
	}
}
