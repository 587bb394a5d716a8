package embedjob

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quillback/quillback/internal/storage"
	"github.com/quillback/quillback/internal/vectorindex"
)

const testVersion = "nomic-embed-text"

type fakeEmbedder struct {
	calls  atomic.Int64
	block  chan struct{} // when non-nil, Embed waits for a receive
	failOn string        // content that triggers an error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failOn != "" && text == f.failOn {
		return nil, errors.New("model exploded")
	}
	f.calls.Add(1)
	return []float32{float32(len(text)), 1}, nil
}

func testEntries(n int) []storage.Entry {
	entries := make([]storage.Entry, n)
	for i := range entries {
		entries[i] = storage.Entry{
			ID:      int64(i + 1),
			Content: fmt.Sprintf("entry number %d", i+1),
		}
	}
	return entries
}

// waitIdle polls until the job leaves Processing or the deadline passes.
func waitIdle(t *testing.T, m *Manager) Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap := m.Status()
		if snap.Status != StatusProcessing {
			return snap
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("job did not finish in time")
	return Snapshot{}
}

func TestStart_EmbedsAllEntries(t *testing.T) {
	ix := vectorindex.New(testVersion)
	emb := &fakeEmbedder{}
	m := NewManager(emb, ix, 2)

	jobID, err := m.Start(testEntries(5))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if jobID == "" {
		t.Fatal("Start returned empty job id")
	}

	snap := waitIdle(t, m)
	if snap.Status != StatusIdle {
		t.Fatalf("Status = %s, want idle (error: %s)", snap.Status, snap.Error)
	}
	if snap.Completed != 5 || snap.Total != 5 {
		t.Errorf("completed/total = %d/%d, want 5/5", snap.Completed, snap.Total)
	}
	if ix.Count() != 5 {
		t.Errorf("index count = %d, want 5", ix.Count())
	}
}

func TestStart_SecondRunIsIdempotent(t *testing.T) {
	ix := vectorindex.New(testVersion)
	emb := &fakeEmbedder{}
	m := NewManager(emb, ix, 2)

	if _, err := m.Start(testEntries(3)); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	waitIdle(t, m)
	firstCalls := emb.calls.Load()

	if _, err := m.Start(testEntries(3)); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	snap := waitIdle(t, m)

	if snap.Total != 0 {
		t.Errorf("second run Total = %d, want 0", snap.Total)
	}
	if emb.calls.Load() != firstCalls {
		t.Errorf("second run embedded %d extra entries, want 0", emb.calls.Load()-firstCalls)
	}
}

func TestStart_RejectsWhileProcessing(t *testing.T) {
	ix := vectorindex.New(testVersion)
	emb := &fakeEmbedder{block: make(chan struct{})}
	m := NewManager(emb, ix, 1)

	if _, err := m.Start(testEntries(3)); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	before := m.Status()
	_, err := m.Start(testEntries(3))
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start err = %v, want ErrAlreadyRunning", err)
	}
	after := m.Status()
	if after.Total != before.Total {
		t.Errorf("rejected Start changed Total: %d -> %d", before.Total, after.Total)
	}

	close(emb.block)
	waitIdle(t, m)
}

func TestStart_FailureRecordsErrorAndKeepsPartialRecords(t *testing.T) {
	ix := vectorindex.New(testVersion)
	// Serial execution so entries before the failing one complete.
	emb := &fakeEmbedder{failOn: "entry number 3"}
	m := NewManager(emb, ix, 1)

	if _, err := m.Start(testEntries(4)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := waitIdle(t, m)

	if snap.Status != StatusFailed {
		t.Fatalf("Status = %s, want failed", snap.Status)
	}
	if snap.Error == "" {
		t.Error("Error not recorded on failure")
	}
	if ix.Count() == 0 {
		t.Error("partial records were not kept")
	}
	if snap.Completed > snap.Total {
		t.Errorf("completed %d > total %d", snap.Completed, snap.Total)
	}
}

func TestStart_ResumeAfterFailureSkipsEmbedded(t *testing.T) {
	ix := vectorindex.New(testVersion)
	emb := &fakeEmbedder{failOn: "entry number 3"}
	m := NewManager(emb, ix, 1)

	m.Start(testEntries(4))
	waitIdle(t, m)
	embedded := ix.Count()

	// Clear the failure and retry: only the remainder is re-attempted.
	emb.failOn = ""
	if _, err := m.Start(testEntries(4)); err != nil {
		t.Fatalf("resume Start: %v", err)
	}
	snap := waitIdle(t, m)

	if snap.Status != StatusIdle {
		t.Fatalf("Status = %s, want idle", snap.Status)
	}
	if snap.Total != 4-embedded {
		t.Errorf("resume Total = %d, want %d", snap.Total, 4-embedded)
	}
	if ix.Count() != 4 {
		t.Errorf("index count = %d, want 4", ix.Count())
	}
}

func TestStatus_ProgressIsMonotonic(t *testing.T) {
	ix := vectorindex.New(testVersion)
	emb := &fakeEmbedder{}
	m := NewManager(emb, ix, 2)

	if _, err := m.Start(testEntries(50)); err != nil {
		t.Fatalf("Start: %v", err)
	}

	last := 0
	for {
		snap := m.Status()
		if snap.Completed < last {
			t.Fatalf("completed decreased: %d -> %d", last, snap.Completed)
		}
		if snap.Completed > snap.Total {
			t.Fatalf("completed %d > total %d", snap.Completed, snap.Total)
		}
		last = snap.Completed
		if snap.Status != StatusProcessing {
			break
		}
	}
}

func TestStart_ModelVersionChangeReembedsAll(t *testing.T) {
	oldIndex := vectorindex.New("old-model")
	emb := &fakeEmbedder{}
	m := NewManager(emb, oldIndex, 2)
	m.Start(testEntries(3))
	waitIdle(t, m)

	// New session with a new model version: every entry counts as missing.
	newIndex := vectorindex.New(testVersion)
	m2 := NewManager(emb, newIndex, 2)
	m2.Start(testEntries(3))
	snap := waitIdle(t, m2)

	if snap.Total != 3 {
		t.Errorf("Total after version change = %d, want 3", snap.Total)
	}
}
