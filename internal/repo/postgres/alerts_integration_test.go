//go:build integration

package postgres

// go test -tags=integration ./internal/repo/postgres -run AlertsCRUD -count=1

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestAlertsCRUD(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	label := fmt.Sprintf("T1-%d", time.Now().UnixNano())

	// none yet
	rec, err := store.Get(ctx, label)
	if err != nil || rec != nil {
		t.Fatalf("expected nil, got %+v err=%v", rec, err)
	}

	// set (no sent time)
	if err := store.Set(ctx, label, false, time.Time{}); err != nil {
		t.Fatalf("set: %v", err)
	}
	rec, err = store.Get(ctx, label)
	if err != nil || rec == nil || rec.LastSentAt != nil || rec.LastState != false {
		t.Fatalf("unexpected: %+v err=%v", rec, err)
	}

	// set with sent time
	now := time.Now()
	if err := store.Set(ctx, label, true, now); err != nil {
		t.Fatalf("set2: %v", err)
	}
	rec, err = store.Get(ctx, label)
	if err != nil || rec == nil || rec.LastSentAt == nil || rec.LastState != true {
		t.Fatalf("unexpected2: %+v err=%v", rec, err)
	}
}
