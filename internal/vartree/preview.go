package vartree

import (
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
)

// previewMaxLen bounds rendered value previews. Debug adapters happily
// return multi-kilobyte string values; rows carry at most this many runes.
const previewMaxLen = 160

// PreviewCache memoizes rendered value previews across render ticks. The
// projection itself is recomputed on every visibility query, so the
// sanitize-and-truncate pass would otherwise run once per row per tick.
// Keys carry the pause generation: the same id can hold a different value
// after the debuggee stops again.
type PreviewCache struct {
	entries *lru.Cache[string, string]
}

func NewPreviewCache(size int) *PreviewCache {
	entries, err := lru.New[string, string](size)
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(err)
	}
	return &PreviewCache{entries: entries}
}

// Render returns the display preview for a node value, memoized per
// (generation, id).
func (p *PreviewCache) Render(gen uint64, id, value string) string {
	key := previewKey(gen, id)
	if cached, ok := p.entries.Get(key); ok {
		return cached
	}
	rendered := RenderPreview(value)
	p.entries.Add(key, rendered)
	return rendered
}

func previewKey(gen uint64, id string) string {
	var b strings.Builder
	b.Grow(len(id) + 12)
	for gen > 0 {
		b.WriteByte(byte('0' + gen%10))
		gen /= 10
	}
	b.WriteByte('/')
	b.WriteString(id)
	return b.String()
}

// RenderPreview collapses control characters and truncates to the preview
// budget with a trailing ellipsis.
func RenderPreview(value string) string {
	var b strings.Builder
	count := 0
	for _, r := range value {
		if count >= previewMaxLen {
			b.WriteString("…")
			break
		}
		if r == '\n' || r == '\t' || unicode.IsControl(r) {
			r = ' '
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}
