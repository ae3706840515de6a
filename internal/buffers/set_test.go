package buffers

import (
	"encoding/json"
	"sync"
	"testing"

	apperrors "github.com/conneroisu/codecraft/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"html", Markup, false},
		{"CSS", Styles, false},
		{"javascript", Script, false},
		{"js", Script, false},
		{" markup ", Markup, false},
		{"typescript", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.TypeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRole_TextRoundTrip(t *testing.T) {
	for _, r := range Roles {
		text, err := r.MarshalText()
		require.NoError(t, err)

		var back Role
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, r, back)
	}

	_, err := Role(7).MarshalText()
	assert.Error(t, err)
}

func TestNew_StartsWithWelcomeTemplate(t *testing.T) {
	set := New()
	snap := set.Snapshot()

	assert.Equal(t, Welcome(), snap.Contents)
	assert.Equal(t, Markup, snap.Active)
	assert.Zero(t, snap.Revision)
	assert.Contains(t, snap.Markup, WelcomeHeading)
}

func TestSet_ReplacesWholeBuffer(t *testing.T) {
	set := NewWith(Contents{Markup: "<p>a</p>", Styles: "p{}", Script: "1"})

	require.NoError(t, set.Set(Styles, "<<not css>>"))
	assert.Equal(t, "<<not css>>", set.Get(Styles))
	assert.Equal(t, "<p>a</p>", set.Get(Markup), "other buffers are untouched")
	assert.Equal(t, "1", set.Get(Script))
	assert.Equal(t, uint64(1), set.Snapshot().Revision)

	assert.Error(t, set.Set(Role(-1), "x"))
	assert.Equal(t, uint64(1), set.Snapshot().Revision, "invalid role does not mutate")
}

func TestSetActive(t *testing.T) {
	set := New()
	calls := 0
	set.Subscribe(func(Snapshot) { calls++ })

	require.NoError(t, set.SetActive(Script))
	assert.Equal(t, Script, set.Active())
	assert.Zero(t, calls, "changing the active buffer does not notify")

	assert.Error(t, set.SetActive(Role(3)))
	assert.Equal(t, Script, set.Active())
}

func TestLoadAll_RoundTrip(t *testing.T) {
	set := New()
	m, c, j := "<p>hi</p>", "p{color:red}", "console.log(1)"

	set.LoadAll(m, c, j)

	assert.Equal(t, m, set.Get(Markup))
	assert.Equal(t, c, set.Get(Styles))
	assert.Equal(t, j, set.Get(Script))
}

func TestReset_RestoresStarterTemplate(t *testing.T) {
	set := New()
	set.LoadAll("<p>project</p>", "p{}", "run()")
	require.NoError(t, set.Set(Markup, "edited"))

	snap := set.Reset()

	assert.Equal(t, Starter(), snap.Contents)
	assert.Equal(t, Starter(), set.Snapshot().Contents)
	assert.NotEqual(t, "<p>project</p>", set.Get(Markup))
	assert.Contains(t, set.Get(Markup), StarterHeading)
}

func TestSubscribe_NotifiesInOrderAndCancels(t *testing.T) {
	set := New()

	var seen []uint64
	var order []string
	cancelA := set.Subscribe(func(s Snapshot) {
		seen = append(seen, s.Revision)
		order = append(order, "a")
	})
	set.Subscribe(func(Snapshot) { order = append(order, "b") })

	require.NoError(t, set.Set(Markup, "x"))
	set.LoadAll("1", "2", "3")

	assert.Equal(t, []uint64{1, 2}, seen)
	assert.Equal(t, []string{"a", "b", "a", "b"}, order)

	cancelA()
	cancelA()
	set.Reset()
	assert.Equal(t, []uint64{1, 2}, seen)
	assert.Equal(t, []string{"a", "b", "a", "b", "b"}, order)
}

func TestSubscribe_ObserverCanReadSet(t *testing.T) {
	set := New()
	var read string
	set.Subscribe(func(Snapshot) { read = set.Get(Markup) })

	require.NoError(t, set.Set(Markup, "<em>x</em>"))
	assert.Equal(t, "<em>x</em>", read)
}

// Concurrent LoadAll calls must never produce a snapshot mixing fields of
// two different loads.
func TestLoadAll_NeverMixes(t *testing.T) {
	set := New()
	a := Contents{Markup: "A-markup", Styles: "A-styles", Script: "A-script"}
	b := Contents{Markup: "B-markup", Styles: "B-styles", Script: "B-script"}

	var mu sync.Mutex
	var mixed []Snapshot
	set.Subscribe(func(s Snapshot) {
		if s.Contents != a && s.Contents != b {
			mu.Lock()
			mixed = append(mixed, s)
			mu.Unlock()
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); set.Load(a) }()
		go func() { defer wg.Done(); set.Load(b) }()
	}
	wg.Wait()

	assert.Empty(t, mixed)
	final := set.Snapshot().Contents
	assert.True(t, final == a || final == b)
	assert.Equal(t, uint64(100), set.Snapshot().Revision)
}

func TestSnapshot_JSON(t *testing.T) {
	set := NewWith(Contents{Markup: "<p>hi</p>", Styles: "p{}", Script: ""})
	require.NoError(t, set.SetActive(Styles))

	data, err := json.Marshal(set.Snapshot())
	require.NoError(t, err)
	assert.JSONEq(t, `{"html":"<p>hi</p>","css":"p{}","javascript":"","active":"css","revision":0}`, string(data))
}
