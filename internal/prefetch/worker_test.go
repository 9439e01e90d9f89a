package prefetch

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/knowledge-bonsai/bonsai/internal/bonsai"
	"github.com/knowledge-bonsai/bonsai/internal/storage"
	"github.com/knowledge-bonsai/bonsai/internal/tree"
)

type mockNodes struct {
	mu        sync.Mutex
	uncached  []string
	listErr   error
	failNode  string
	generated []string
	inFlight  atomic.Int32
	maxFlight atomic.Int32

	// cancelOn cancels the worker's context while generating that node.
	cancelOn string
	cancel   context.CancelFunc
}

func (m *mockNodes) UncachedNodes(_ context.Context, treeID string, t tree.NodeType) ([]string, error) {
	if t != tree.TypeTrunk {
		return nil, errors.New("unexpected node type " + string(t))
	}
	return m.uncached, m.listErr
}

func (m *mockNodes) NodeContent(_ context.Context, treeID, nodeID string) (*bonsai.NodeContent, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxFlight.Load()
		if n <= cur || m.maxFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	if nodeID == m.cancelOn {
		m.cancel()
		return nil, context.Canceled
	}
	if nodeID == m.failNode {
		return nil, errors.New("model unavailable")
	}
	m.mu.Lock()
	m.generated = append(m.generated, nodeID)
	m.mu.Unlock()
	return &bonsai.NodeContent{NodeID: nodeID, Content: "x"}, nil
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func enqueue(t *testing.T, store *storage.Store, payload any) string {
	t.Helper()
	b, _ := json.Marshal(payload)
	id, err := store.EnqueueJob(context.Background(), storage.Job{Type: bonsai.JobNodePrefetch, PayloadJSON: string(b)})
	if err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	return id
}

func TestRunOnce_NoJob(t *testing.T) {
	w := NewWorker(openTestStore(t), &mockNodes{}, 0, 2)
	done, err := w.RunOnce(context.Background())
	if err != nil || done {
		t.Fatalf("RunOnce = %v, %v; want false, nil", done, err)
	}
}

func TestRunOnce_GeneratesTrunks(t *testing.T) {
	store := openTestStore(t)
	nodes := &mockNodes{uncached: []string{"t1", "t2", "t3", "t4", "t5"}}
	jobID := enqueue(t, store, bonsai.PrefetchPayload{TreeID: "tree-1"})

	w := NewWorker(store, nodes, 0, 2)
	done, err := w.RunOnce(context.Background())
	if err != nil || !done {
		t.Fatalf("RunOnce = %v, %v", done, err)
	}

	sort.Strings(nodes.generated)
	if len(nodes.generated) != 5 || nodes.generated[0] != "t1" || nodes.generated[4] != "t5" {
		t.Errorf("generated = %v", nodes.generated)
	}
	if got := nodes.maxFlight.Load(); got > 2 {
		t.Errorf("max concurrent = %d, want <= 2", got)
	}

	job, err := store.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != "completed" {
		t.Errorf("status = %q, want completed", job.Status)
	}
}

func TestRunOnce_FailureRetries(t *testing.T) {
	store := openTestStore(t)
	nodes := &mockNodes{uncached: []string{"t1", "t2"}, failNode: "t2"}
	jobID := enqueue(t, store, bonsai.PrefetchPayload{TreeID: "tree-1"})

	w := NewWorker(store, nodes, 0, 1)
	done, err := w.RunOnce(context.Background())
	if err != nil || !done {
		t.Fatalf("RunOnce = %v, %v", done, err)
	}

	job, err := store.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != "pending" || job.Attempts != 1 {
		t.Errorf("job = %+v, want pending with 1 attempt", job)
	}
	if job.LastError == "" {
		t.Error("last error not recorded")
	}
}

func TestRunOnce_CancelledMidJob(t *testing.T) {
	store := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	nodes := &mockNodes{uncached: []string{"t1"}, cancelOn: "t1", cancel: cancel}
	jobID := enqueue(t, store, bonsai.PrefetchPayload{TreeID: "tree-1"})

	w := NewWorker(store, nodes, 0, 1)
	done, err := w.RunOnce(ctx)
	if err != nil || !done {
		t.Fatalf("RunOnce = %v, %v", done, err)
	}

	job, err := store.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != "pending" || job.Attempts != 1 {
		t.Errorf("job = %+v, want pending with 1 attempt", job)
	}
}

func TestRunOnce_BadPayload(t *testing.T) {
	store := openTestStore(t)
	jobID := enqueue(t, store, map[string]string{"other": "x"})

	w := NewWorker(store, &mockNodes{}, 0, 1)
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	job, _ := store.GetJob(context.Background(), jobID)
	if job.Status != "pending" || job.Attempts != 1 {
		t.Errorf("job = %+v", job)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	nodes := &mockNodes{uncached: []string{"t1"}}
	enqueue(t, store, bonsai.PrefetchPayload{TreeID: "tree-1"})

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(store, nodes, 10*time.Millisecond, 1)
	stopped := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(stopped)
	}()

	deadline := time.After(2 * time.Second)
	for {
		nodes.mu.Lock()
		n := len(nodes.generated)
		nodes.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("job not processed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
