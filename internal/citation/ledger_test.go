package citation

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotentPerURL(t *testing.T) {
	l := NewLedger()
	now := time.Now()

	first := l.Register("https://example.com/a", "A", now)
	assert.Equal(t, "[※1]", first)

	again := l.Register("https://example.com/a", "A (retitled)", now.Add(time.Hour))
	assert.Equal(t, first, again)

	second := l.Register("https://example.com/b", "B", now)
	assert.Equal(t, "[※2]", second)

	assert.Equal(t, 2, l.Len())
	// First registration's title wins.
	assert.Equal(t, "A", l.All()[0].Title)
}

func TestAllIsSortedWithContiguousNumbers(t *testing.T) {
	l := NewLedger()
	now := time.Now()

	const n = 25
	for i := 0; i < n; i++ {
		l.Register(fmt.Sprintf("https://example.com/%d", i), fmt.Sprintf("title %d", i), now)
	}
	// Duplicates must not disturb the numbering.
	l.Register("https://example.com/0", "dup", now)
	l.Register("https://example.com/13", "dup", now)

	refs := l.All()
	require.Len(t, refs, n)
	for i, ref := range refs {
		assert.Equal(t, i+1, ref.Number, "reference numbers must be 1..N with no gaps")
	}
}

func TestMarkdownRendering(t *testing.T) {
	l := NewLedger()
	assert.Empty(t, l.Markdown(), "empty ledger renders nothing")

	accessed := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	l.Register("https://example.com/ev", "EV Adoption Stats", accessed)

	md := l.Markdown()
	assert.True(t, strings.HasPrefix(md, "\n## 参考文献\n"))
	assert.Contains(t, md, "※1. [EV Adoption Stats](https://example.com/ev) (Accessed: 2026-03-14 09:30:00)")
}
