package preview

import (
	"testing"

	"github.com/conneroisu/codecraft/internal/buffers"
	"github.com/conneroisu/codecraft/internal/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPipeline(t *testing.T) (*buffers.Set, *sandbox.Sandbox, *Pipeline) {
	t.Helper()
	set := buffers.New()
	sb, err := sandbox.New(sandbox.DefaultPolicy())
	require.NoError(t, err)
	p := NewPipeline(set, sb, nil)
	t.Cleanup(p.Close)
	return set, sb, p
}

func TestPipeline_RendersInitialState(t *testing.T) {
	set, sb, p := newPipeline(t)

	frame, ok := sb.Current()
	require.True(t, ok)
	assert.Equal(t, uint64(1), frame.Generation)
	assert.Equal(t, ComposeSnapshot(set.Snapshot()), frame.Document)

	last, rev := p.Last()
	assert.Equal(t, frame, last)
	assert.Zero(t, rev)
}

func TestPipeline_RecomposesOnSameTurn(t *testing.T) {
	set, sb, p := newPipeline(t)

	require.NoError(t, set.Set(buffers.Markup, "<p>edited</p>"))

	frame, ok := sb.Current()
	require.True(t, ok)
	assert.Equal(t, uint64(2), frame.Generation)
	assert.Contains(t, frame.Document, "<p>edited</p>")

	set.LoadAll("<h2>Loaded</h2>", "h2{}", "go()")
	frame, _ = sb.Current()
	assert.Equal(t, uint64(3), frame.Generation, "one frame per load, not per buffer")
	assert.Equal(t, Compose("<h2>Loaded</h2>", "h2{}", "go()"), frame.Document)

	_, rev := p.Last()
	assert.Equal(t, set.Snapshot().Revision, rev)
}

func TestPipeline_ActiveChangeDoesNotRecompose(t *testing.T) {
	set, sb, _ := newPipeline(t)

	require.NoError(t, set.SetActive(buffers.Styles))
	assert.Equal(t, uint64(1), sb.Generation())
}

func TestPipeline_Close(t *testing.T) {
	set, sb, p := newPipeline(t)

	p.Close()
	p.Close()
	set.Reset()

	assert.Equal(t, uint64(1), sb.Generation())
}
