//go:build property
// +build property

package buffers

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestSetProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Property: LoadAll followed by reads returns the inputs untransformed
	properties.Property("load round-trip", prop.ForAll(
		func(m, c, j string) bool {
			set := New()
			set.LoadAll(m, c, j)
			return set.Get(Markup) == m && set.Get(Styles) == c && set.Get(Script) == j
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.AnyString(),
	))

	// Property: Set touches exactly one buffer
	properties.Property("set isolates buffers", prop.ForAll(
		func(idx int, content string) bool {
			set := NewWith(Contents{Markup: "m", Styles: "s", Script: "j"})
			before := set.Snapshot().Contents
			role := Roles[idx]
			if err := set.Set(role, content); err != nil {
				return false
			}
			after := set.Snapshot().Contents
			return after == before.With(role, content)
		},
		gen.IntRange(0, 2),
		gen.AnyString(),
	))

	// Property: Reset always yields the starter template regardless of history
	properties.Property("reset restores starter", prop.ForAll(
		func(m, c, j string) bool {
			set := New()
			set.LoadAll(m, c, j)
			return set.Reset().Contents == Starter()
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
