package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameOf(t *testing.T) {
	name, ok := NameOf("AC.PA")
	require.True(t, ok)
	assert.Equal(t, "Accor", name)

	_, ok = NameOf("ZZZ.PA")
	assert.False(t, ok)
}

func TestTickersCoverUniverse(t *testing.T) {
	tickers := Tickers()
	assert.Len(t, tickers, len(Shares))

	seen := map[string]bool{}
	for _, s := range tickers {
		assert.False(t, seen[s], "duplicate ticker %s", s)
		seen[s] = true
	}
	assert.True(t, seen["MC.PA"])
}
