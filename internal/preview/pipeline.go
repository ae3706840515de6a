package preview

import (
	"context"
	"sync"

	"github.com/conneroisu/codecraft/internal/buffers"
	"github.com/conneroisu/codecraft/internal/logging"
	"github.com/conneroisu/codecraft/internal/sandbox"
)

// Surface receives composed documents.
type Surface interface {
	Render(doc string) sandbox.Frame
}

// Pipeline recomposes the preview on every buffer mutation and hands the
// result to the surface before the mutating call returns.
type Pipeline struct {
	set     *buffers.Set
	surface Surface
	logger  logging.Logger

	mu       sync.Mutex
	cancel   func()
	last     sandbox.Frame
	revision uint64
}

// NewPipeline renders the current buffers once and subscribes to changes.
func NewPipeline(set *buffers.Set, surface Surface, logger logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.Nop()
	}
	p := &Pipeline{
		set:     set,
		surface: surface,
		logger:  logger.WithComponent("preview"),
	}
	p.render(set.Snapshot())
	p.cancel = set.Subscribe(p.render)
	return p
}

func (p *Pipeline) render(snap buffers.Snapshot) {
	doc := ComposeSnapshot(snap)
	frame := p.surface.Render(doc)

	p.mu.Lock()
	p.last = frame
	p.revision = snap.Revision
	p.mu.Unlock()

	p.logger.Debug(context.Background(), "Preview recomposed",
		"revision", snap.Revision,
		"generation", frame.Generation,
		"bytes", len(doc))
}

// Last returns the most recent frame and the buffer revision it was built from.
func (p *Pipeline) Last() (sandbox.Frame, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.revision
}

// Close stops following the buffer set. It is safe to call more than once.
func (p *Pipeline) Close() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
