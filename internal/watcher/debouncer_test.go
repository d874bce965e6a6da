package watcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(path string, op Operation) FileEvent {
	return FileEvent{Path: path, Operation: op, Timestamp: time.Now()}
}

func collectBatch(t *testing.T, d *Debouncer) []FileEvent {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced batch")
		return nil
	}
}

func TestDebouncerEmitsAfterQuietPeriod(t *testing.T) {
	d := NewDebouncer(20*time.Millisecond, 4)
	defer d.Stop()

	d.Add(event("a.txt", OpCreate))
	d.Add(event("b.txt", OpModify))

	batch := collectBatch(t, d)
	assert.Len(t, batch, 2)
}

func TestDebouncerCoalescesSamePath(t *testing.T) {
	d := NewDebouncer(20*time.Millisecond, 4)
	defer d.Stop()

	d.Add(event("doc.txt", OpModify))
	d.Add(event("doc.txt", OpModify))
	d.Add(event("doc.txt", OpModify))

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpModify, batch[0].Operation)
}

func TestDebouncerMergeRules(t *testing.T) {
	tests := []struct {
		name string
		ops  []Operation
		want Operation
	}{
		{"create then modify stays create", []Operation{OpCreate, OpModify}, OpCreate},
		{"modify then delete becomes delete", []Operation{OpModify, OpDelete}, OpDelete},
		{"delete then create becomes modify", []Operation{OpDelete, OpCreate}, OpModify},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDebouncer(20*time.Millisecond, 4)
			defer d.Stop()

			for _, op := range tt.ops {
				d.Add(event("doc.txt", op))
			}

			batch := collectBatch(t, d)
			require.Len(t, batch, 1)
			assert.Equal(t, tt.want, batch[0].Operation)
		})
	}
}

func TestDebouncerCreateDeleteCancelsOut(t *testing.T) {
	d := NewDebouncer(20*time.Millisecond, 4)
	defer d.Stop()

	d.Add(event("ghost.txt", OpCreate))
	d.Add(event("ghost.txt", OpDelete))
	d.Add(event("real.txt", OpCreate))

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, "real.txt", batch[0].Path)
}

func TestDebouncerStopIsIdempotent(t *testing.T) {
	d := NewDebouncer(20*time.Millisecond, 4)
	d.Stop()
	d.Stop()

	// Adds after stop are discarded without panicking
	d.Add(event("late.txt", OpCreate))

	_, ok := <-d.Output()
	assert.False(t, ok)
}

func TestRunnerSerializesBuilds(t *testing.T) {
	w := &FolderWatcher{debouncer: NewDebouncer(10*time.Millisecond, 8)}

	var running atomic.Int32
	var builds atomic.Int32
	var overlapped atomic.Bool

	runner := NewRunner(w, func(ctx context.Context) error {
		if running.Add(1) > 1 {
			overlapped.Store(true)
		}
		defer running.Add(-1)
		time.Sleep(30 * time.Millisecond)
		builds.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	// First batch triggers a build; changes during it queue the next
	w.debouncer.Add(event("a.txt", OpCreate))
	time.Sleep(25 * time.Millisecond)
	w.debouncer.Add(event("b.txt", OpCreate))

	require.Eventually(t, func() bool {
		return builds.Load() == 2
	}, 3*time.Second, 10*time.Millisecond)
	assert.False(t, overlapped.Load())

	cancel()
	err := <-done
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunnerContinuesAfterBuildFailure(t *testing.T) {
	w := &FolderWatcher{debouncer: NewDebouncer(10*time.Millisecond, 8)}

	var builds atomic.Int32
	runner := NewRunner(w, func(ctx context.Context) error {
		if builds.Add(1) == 1 {
			return errors.New("provider hiccup")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = runner.Run(ctx) }()

	w.debouncer.Add(event("a.txt", OpCreate))
	require.Eventually(t, func() bool { return builds.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	w.debouncer.Add(event("b.txt", OpModify))
	require.Eventually(t, func() bool { return builds.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}
