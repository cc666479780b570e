package llm

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestCapRunesNeverSplitsMultibyte(t *testing.T) {
	got, cut := capRunes(strings.Repeat("ñ", 10), 9)
	if !cut {
		t.Fatal("expected a cut")
	}
	if !utf8.ValidString(got) {
		t.Errorf("cut produced invalid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 9 {
		t.Errorf("expected 9 characters, got %d", n)
	}
}

func TestCapRunesCountsCharactersNotBytes(t *testing.T) {
	// 8000 'ñ' characters occupy 16000 bytes; the budget is characters.
	in := strings.Repeat("ñ", 8000)
	got, cut := capRunes(in, 8000)
	if cut {
		t.Error("8000 characters fit an 8000-character budget")
	}
	if got != in {
		t.Error("input altered without a cut")
	}
}

func TestCapRunesShortInputUnchanged(t *testing.T) {
	got, cut := capRunes("Artículo 27.", 8000)
	if cut || got != "Artículo 27." {
		t.Errorf("short input altered: %q (cut=%v)", got, cut)
	}
}

func TestEmbedderTruncate(t *testing.T) {
	e := NewGeminiEmbedder("", "gemini-embedding-001", 768, 9)
	got := e.truncate(strings.Repeat("ñ", 10))
	if !utf8.ValidString(got) {
		t.Errorf("truncation produced invalid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 9 {
		t.Errorf("expected 9 characters, got %d", n)
	}
}
