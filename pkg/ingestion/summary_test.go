package ingestion

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	t.Run("joins leading lines", func(t *testing.T) {
		text := "Jane Doe\n\n  Senior Platform Engineer  \n\nTen years of Go."
		assert.Equal(t, "Jane Doe Senior Platform Engineer Ten years of Go.", Summarize(text))
	})

	t.Run("empty text", func(t *testing.T) {
		assert.Equal(t, "", Summarize("\n\n  \n"))
	})

	t.Run("truncates at rune boundary", func(t *testing.T) {
		long := strings.Repeat("é", maxSummaryRunes+100)
		summary := Summarize(long)
		assert.Equal(t, maxSummaryRunes, utf8.RuneCountInString(summary))
		assert.True(t, utf8.ValidString(summary))
	})

	t.Run("short text untouched", func(t *testing.T) {
		assert.Equal(t, "brief", Summarize("brief"))
	})
}
