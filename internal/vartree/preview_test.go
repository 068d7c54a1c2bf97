package vartree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderPreview_SanitizesControlCharacters(t *testing.T) {
	got := RenderPreview("line1\nline2\tend\x07")
	assert.Equal(t, "line1 line2 end ", got)
}

func TestRenderPreview_TruncatesLongValues(t *testing.T) {
	long := strings.Repeat("x", previewMaxLen*2)
	got := RenderPreview(long)
	assert.Equal(t, strings.Repeat("x", previewMaxLen)+"…", got)

	exact := strings.Repeat("y", previewMaxLen)
	assert.Equal(t, exact, RenderPreview(exact))
}

func TestPreviewCache_KeyedByGeneration(t *testing.T) {
	p := NewPreviewCache(8)

	first := p.Render(1, "scope:Global/v", "old\nvalue")
	assert.Equal(t, "old value", first)

	// Same id, new pause generation, new underlying value: the stale
	// preview must not shadow it.
	second := p.Render(2, "scope:Global/v", "new\nvalue")
	assert.Equal(t, "new value", second)
}
