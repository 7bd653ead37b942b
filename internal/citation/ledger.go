// Package citation assigns stable reference numbers to source URLs and
// renders the references section of a report.
package citation

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harukawa/deepresearch/internal/metrics"
)

// SourceReference is an external source used during research. Immutable once
// registered.
type SourceReference struct {
	URL        string
	Title      string
	AccessedAt time.Time
	Number     int
}

// Mark returns the inline citation mark for the reference, e.g. "[※3]".
func (r SourceReference) Mark() string {
	return fmt.Sprintf("[※%d]", r.Number)
}

// Ledger deduplicates source URLs and hands out monotonically increasing
// reference numbers. One ledger spans a whole research run, so pre-research
// and main collection share a numbering.
type Ledger struct {
	mu    sync.Mutex
	refs  []SourceReference
	byURL map[string]int // url -> index into refs
	next  int
}

// NewLedger returns an empty ledger; numbering starts at 1.
func NewLedger() *Ledger {
	return &Ledger{byURL: make(map[string]int), next: 1}
}

// Register records a source and returns its citation mark. Registering a URL
// that is already known returns the existing mark; the title and access time
// of the first registration win.
func (l *Ledger) Register(url, title string, accessedAt time.Time) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if idx, ok := l.byURL[url]; ok {
		return l.refs[idx].Mark()
	}

	ref := SourceReference{URL: url, Title: title, AccessedAt: accessedAt, Number: l.next}
	l.next++
	l.byURL[url] = len(l.refs)
	l.refs = append(l.refs, ref)
	metrics.CitationsRegistered.Inc()
	return ref.Mark()
}

// All returns every registered reference sorted ascending by reference
// number.
func (l *Ledger) All() []SourceReference {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]SourceReference, len(l.refs))
	copy(out, l.refs)
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Len reports the number of distinct sources registered.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.refs)
}

// Markdown renders the references section, or "" when nothing was
// registered.
func (l *Ledger) Markdown() string {
	refs := l.All()
	if len(refs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n## 参考文献\n\n")
	for _, ref := range refs {
		fmt.Fprintf(&b, "※%d. [%s](%s) (Accessed: %s)\n",
			ref.Number, ref.Title, ref.URL, ref.AccessedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
