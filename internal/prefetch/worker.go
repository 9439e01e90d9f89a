// Package prefetch generates node prose in the background so that the
// first click on a node does not wait for the model.
package prefetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/knowledge-bonsai/bonsai/internal/bonsai"
	"github.com/knowledge-bonsai/bonsai/internal/storage"
	"github.com/knowledge-bonsai/bonsai/internal/tree"
)

// JobQueue abstracts the job queue operations.
type JobQueue interface {
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
}

// NodeService is the part of the application service the worker drives.
type NodeService interface {
	UncachedNodes(ctx context.Context, treeID string, t tree.NodeType) ([]string, error)
	NodeContent(ctx context.Context, treeID, nodeID string) (*bonsai.NodeContent, error)
}

// Worker processes node_content_prefetch jobs.
type Worker struct {
	queue       JobQueue
	nodes       NodeService
	poll        time.Duration
	concurrency int
	logger      *slog.Logger
}

// NewWorker creates a Worker. pollInterval <= 0 defaults to 500ms and
// concurrency < 1 to 1.
func NewWorker(queue JobQueue, nodes NodeService, pollInterval time.Duration, concurrency int) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		queue:       queue,
		nodes:       nodes,
		poll:        pollInterval,
		concurrency: concurrency,
		logger:      slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("prefetch iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job. It reports whether a job was
// claimed, whatever its outcome.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.queue.ClaimNextJob(ctx, []string{bonsai.JobNodePrefetch})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	// The job is ours once claimed; record its outcome even if ctx is
	// cancelled underneath it, or it stays running forever.
	storeCtx := context.WithoutCancel(ctx)

	if err := w.process(ctx, job); err != nil {
		w.logger.Warn("prefetch job failed", "job_id", job.ID, "attempt", job.Attempts+1, "error", err)
		if failErr := w.queue.FailJob(storeCtx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.queue.CompleteJob(storeCtx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) process(ctx context.Context, job *storage.Job) error {
	var payload bonsai.PrefetchPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.TreeID == "" {
		return errors.New("payload has no tree_id")
	}

	ids, err := w.nodes.UncachedNodes(ctx, payload.TreeID, tree.TypeTrunk)
	if err != nil {
		return fmt.Errorf("listing trunk nodes: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := w.nodes.NodeContent(gctx, payload.TreeID, id); err != nil {
				return fmt.Errorf("node %s: %w", id, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w.logger.Info("prefetched node content", "tree_id", payload.TreeID, "nodes", len(ids))
	return nil
}
