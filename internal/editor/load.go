package editor

import (
	"context"

	"github.com/conneroisu/codecraft/internal/notify"
	"github.com/conneroisu/codecraft/internal/projects"
)

// LoadResult is the outcome of a background load.
type LoadResult struct {
	Seq     uint64                 `json:"seq"`
	Project projects.StoredProject `json:"project"`
	// Applied is false when the load failed, was superseded by a newer
	// load, or resolved after the session closed.
	Applied bool  `json:"applied"`
	Err     error `json:"-"`
}

// LoadTicket tracks one background load.
type LoadTicket struct {
	Seq  uint64
	done chan struct{}
	res  LoadResult
}

// Done is closed when the load has resolved.
func (t *LoadTicket) Done() <-chan struct{} { return t.done }

// Wait blocks until the load resolves or ctx ends.
func (t *LoadTicket) Wait(ctx context.Context) (LoadResult, error) {
	select {
	case <-t.done:
		return t.res, nil
	case <-ctx.Done():
		return LoadResult{Seq: t.Seq}, ctx.Err()
	}
}

// Load fetches a project in the background and replaces the buffers with it
// if no newer load was issued meanwhile and the session is still open. The
// fetch uses a context detached from ctx's cancellation so closing the view
// does not abort the backend call.
func (s *Session) Load(ctx context.Context, projectID string) *LoadTicket {
	seq, err := s.supersede()
	ticket := &LoadTicket{Seq: seq, done: make(chan struct{})}
	if err != nil {
		ticket.res = LoadResult{Seq: seq, Err: err}
		close(ticket.done)
		return ticket
	}

	fetchCtx := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer close(ticket.done)
		p, err := s.adapter.Get(fetchCtx, projectID)
		ticket.res = s.resolveLoad(fetchCtx, seq, projectID, p, err)
	}()
	return ticket
}

func (s *Session) resolveLoad(ctx context.Context, seq uint64, projectID string, p projects.StoredProject, err error) LoadResult {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	stale := s.closed || seq != s.loadSeq
	s.mu.Unlock()

	res := LoadResult{Seq: seq, Project: p, Err: err}
	if stale {
		s.logger.Debug(ctx, "Discarding superseded load", "project", projectID, "seq", seq)
		return res
	}
	if err != nil {
		s.logger.Error(ctx, err, "Project load failed", "project", projectID)
		s.notifier.Notify(ctx, notify.Error(notify.MsgLoadFailed))
		return res
	}

	s.mu.Lock()
	s.current = &p
	s.mu.Unlock()
	s.set.Load(projects.ToBuffers(p))
	res.Applied = true
	return res
}
