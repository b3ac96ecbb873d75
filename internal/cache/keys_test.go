package cache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tripnest/tripnest/internal/cache"
)

func TestKeyIsDeterministic(t *testing.T) {
	t.Parallel()

	first := cache.Key("search:post", "kyoto temples", 1, 10)
	second := cache.Key("search:post", "kyoto temples", 1, 10)

	assert.Equal(t, first, second)
	assert.Len(t, first, len("search:post:")+32)
	assert.NotEqual(t, first, cache.Key("search:post", "kyoto temples", 2, 10))
	assert.NotEqual(t, first, cache.Key("search:user", "kyoto temples", 1, 10))
}

func TestKeyRoundsCoordinates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		a     cache.Coordinate
		b     cache.Coordinate
		equal bool
	}{
		{
			name:  "differences past four decimals collapse",
			a:     cache.Coordinate{Lat: 35.011636, Lng: 135.768029},
			b:     cache.Coordinate{Lat: 35.011641, Lng: 135.768031},
			equal: true,
		},
		{
			name:  "differences at four decimals stay distinct",
			a:     cache.Coordinate{Lat: 35.0116, Lng: 135.7680},
			b:     cache.Coordinate{Lat: 35.0117, Lng: 135.7680},
			equal: false,
		},
		{
			name:  "negative zero equals zero",
			a:     cache.Coordinate{Lat: -0.00001, Lng: 0},
			b:     cache.Coordinate{Lat: 0, Lng: 0},
			equal: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			keyA := cache.Key("route", "driving", tt.a)
			keyB := cache.Key("route", "driving", tt.b)
			assert.Equal(t, tt.equal, keyA == keyB)
		})
	}
}

func TestCanonical(t *testing.T) {
	t.Parallel()

	got := cache.Canonical("walk", []int64{3, 1, 2}, []string{"a", "b"}, 1.23456, true, nil)
	assert.Equal(t, "walk|3,1,2|a,b|1.2346|true|", got)

	assert.Equal(t, []int64{1, 2, 3}, cache.SortedIDs([]int64{3, 1, 2}))
}

func TestCanonicalEscapesSeparators(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `a\|b|c`, cache.Canonical("a|b", "c"))
	assert.Equal(t, `x\,y,z`, cache.Canonical([]string{"x,y", "z"}))

	tests := []struct {
		name string
		a, b []any
	}{
		{name: "pipe moves between parts", a: []any{"a|b", "c"}, b: []any{"a", "b|c"}},
		{name: "comma moves between items", a: []any{[]string{"a,b", "c"}}, b: []any{[]string{"a", "b,c"}}},
		{name: "backslash before separator", a: []any{`a\`, "b"}, b: []any{`a\|b`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.NotEqual(t, cache.Key("llm", tt.a...), cache.Key("llm", tt.b...))
		})
	}
}

func TestPlainKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "post:detail:42", cache.PlainKey("post:detail", int64(42)))
	assert.Equal(t, "feed:page:1:size:10", cache.PlainKey("feed", "page", 1, "size", 10))
	assert.Equal(t, "feed", cache.PlainKey("feed"))
}

func TestEscapePattern(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `feed:`, cache.EscapePattern("feed:"))
	assert.Equal(t, `a\*b\?c\[d\]e\\`, cache.EscapePattern(`a*b?c[d]e\`))
}
