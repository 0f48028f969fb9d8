package baseline

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/domain"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/repo"
	"github.com/rs/zerolog"
)

type fakeKV struct {
	data map[string][]byte
	sets int
}

func newFakeKV() *fakeKV { return &fakeKV{data: map[string][]byte{}} }

func (f *fakeKV) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := f.data[key]
	if !ok { return nil, repo.ErrNotFound }
	return v, nil
}
func (f *fakeKV) Set(_ context.Context, key string, value []byte) error {
	f.sets++
	f.data[key] = append([]byte(nil), value...)
	return nil
}
func (f *fakeKV) Delete(_ context.Context, key string) error { delete(f.data, key); return nil }

func testStore(kv KV) *Store {
	s := NewStore(kv, zerolog.Nop())
	return s.WithClock(func() time.Time { return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) })
}

func items(n int) []domain.WorkItem {
	out := make([]domain.WorkItem, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.WorkItem{Key: fmt.Sprintf("T-%d", i+1), Status: "To Do", OriginalEstimateHours: 5})
	}
	return out
}

func TestGetOrCreate_LazyCreationExcludesDoneItems(t *testing.T) {
	kv := newFakeKV()
	s := testStore(kv)
	current := append(items(3), domain.WorkItem{Key: "T-99", Status: "Done", OriginalEstimateHours: 8})

	b, created, err := s.GetOrCreate(context.Background(), 7, current)
	if err != nil { t.Fatal(err) }
	if !created { t.Fatalf("expected creation on first observation") }
	if len(b.Entries) != 3 {
		t.Fatalf("done item should be excluded, got %d entries", len(b.Entries))
	}
	for _, e := range b.Entries {
		if e.Key == "T-99" { t.Fatalf("done item leaked into baseline") }
	}
}

func TestGetOrCreate_NeverSilentlyOverwrites(t *testing.T) {
	kv := newFakeKV()
	s := testStore(kv)
	ctx := context.Background()

	first, _, err := s.GetOrCreate(ctx, 7, items(12))
	if err != nil { t.Fatal(err) }
	stored := append([]byte(nil), kv.data["baseline:sprint:7"]...)

	// Second call with a different item set must return the stored snapshot
	// unchanged and write nothing.
	second, created, err := s.GetOrCreate(ctx, 7, items(20))
	if err != nil { t.Fatal(err) }
	if created { t.Fatalf("existing baseline must not be recreated") }
	if len(second.Entries) != len(first.Entries) {
		t.Fatalf("baseline mutated: %d vs %d entries", len(second.Entries), len(first.Entries))
	}
	if !bytes.Equal(stored, kv.data["baseline:sprint:7"]) {
		t.Fatalf("stored bytes changed on non-reset call")
	}
	if kv.sets != 1 { t.Fatalf("expected exactly one write, got %d", kv.sets) }
}

func TestRepairIfCorrupted_HealthyBaselineUntouched(t *testing.T) {
	// 20 entries vs 23 active: 20 >= 23*0.3, not corrupted.
	kv := newFakeKV()
	s := testStore(kv)
	ctx := context.Background()
	b, _, err := s.GetOrCreate(ctx, 7, items(20))
	if err != nil { t.Fatal(err) }

	got, repaired, err := s.RepairIfCorrupted(ctx, b, items(23))
	if err != nil { t.Fatal(err) }
	if repaired { t.Fatalf("healthy baseline repaired") }
	if len(got.Entries) != 20 { t.Fatalf("baseline changed: %d entries", len(got.Entries)) }
}

func TestRepairIfCorrupted_TripsOnBothConditions(t *testing.T) {
	// 4 entries vs 30 active: 4 < 9 and 4 < 10 → regenerate.
	kv := newFakeKV()
	s := testStore(kv)
	ctx := context.Background()
	b, _, err := s.GetOrCreate(ctx, 7, items(4))
	if err != nil { t.Fatal(err) }

	got, repaired, err := s.RepairIfCorrupted(ctx, b, items(30))
	if err != nil { t.Fatal(err) }
	if !repaired { t.Fatalf("expected corruption repair") }
	if len(got.Entries) != 30 { t.Fatalf("expected regenerated baseline, got %d entries", len(got.Entries)) }
}

func TestRepairIfCorrupted_FloorAloneDoesNotTrip(t *testing.T) {
	// 8 entries vs 20 active: 8 < 10 but 8 >= 6 (ratio holds) → keep.
	kv := newFakeKV()
	s := testStore(kv)
	ctx := context.Background()
	b, _, err := s.GetOrCreate(ctx, 7, items(8))
	if err != nil { t.Fatal(err) }

	_, repaired, err := s.RepairIfCorrupted(ctx, b, items(20))
	if err != nil { t.Fatal(err) }
	if repaired { t.Fatalf("ratio condition holds, must not repair") }
}

func TestReset_UnconditionallyRecreates(t *testing.T) {
	kv := newFakeKV()
	s := testStore(kv)
	ctx := context.Background()
	if _, _, err := s.GetOrCreate(ctx, 7, items(12)); err != nil { t.Fatal(err) }

	b, err := s.Reset(ctx, 7, items(3))
	if err != nil { t.Fatal(err) }
	if len(b.Entries) != 3 { t.Fatalf("reset should rebuild from current items, got %d", len(b.Entries)) }

	reread, err := s.Get(ctx, 7)
	if err != nil { t.Fatal(err) }
	if len(reread.Entries) != 3 { t.Fatalf("reset not persisted") }
}

func TestGet_UnreadableSnapshotSelfHeals(t *testing.T) {
	kv := newFakeKV()
	kv.data["baseline:sprint:7"] = []byte("{not json")
	s := testStore(kv)

	_, err := s.Get(context.Background(), 7)
	if err != repo.ErrNotFound {
		t.Fatalf("expected ErrNotFound after discarding garbage, got %v", err)
	}
	if _, ok := kv.data["baseline:sprint:7"]; ok {
		t.Fatalf("garbage snapshot should have been deleted")
	}
}
