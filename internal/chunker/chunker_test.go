package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunk_EmptyInput(t *testing.T) {
	if got := Chunk("", DefaultOptions()); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestChunk_WhitespaceOnly(t *testing.T) {
	if got := Chunk("   \n\n   ", DefaultOptions()); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestChunk_DropsShortChunks(t *testing.T) {
	opts := Options{ChunkSize: 2000, MinSize: 100}
	got := Chunk("Short one.\n\nAnother tiny bit.", opts)
	if got != nil {
		t.Errorf("expected nil for text below min size, got %v", got)
	}
}

func TestChunk_MinLengthFloor(t *testing.T) {
	opts := Options{ChunkSize: 200, MinSize: 50}
	para := strings.Repeat("This is a filler sentence. ", 6) // ~162 chars
	text := para + "\n\n" + para + "\n\n" + para

	for _, c := range Chunk(text, opts) {
		if utf8.RuneCountInString(c) < opts.MinSize {
			t.Errorf("chunk below min size (%d chars): %q", utf8.RuneCountInString(c), c)
		}
	}
}

func TestChunk_MergesParagraphs(t *testing.T) {
	a := strings.Repeat("a", 80) + "."
	b := strings.Repeat("b", 80) + "."
	got := Chunk(a+"\n\n"+b, Options{ChunkSize: 200, MinSize: 50})
	if len(got) != 1 {
		t.Fatalf("expected 1 merged chunk, got %d", len(got))
	}
	if got[0] != a+"\n\n"+b {
		t.Errorf("merged chunk should join paragraphs with a blank line, got %q", got[0])
	}
}

func TestChunk_FlushesBeforeOversizedParagraph(t *testing.T) {
	a := strings.Repeat("a", 150) + "."
	b := strings.Repeat("b", 150) + "."
	c := strings.Repeat("c", 150) + "."
	got := Chunk(a+"\n\n"+b+"\n\n"+c, Options{ChunkSize: 200, MinSize: 50})
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %v", len(got), got)
	}
	for i, want := range []string{a, b, c} {
		if got[i] != want {
			t.Errorf("chunk %d = %q, want %q", i, got[i], want)
		}
	}
}

func TestChunk_SplitsOversizedParagraphBySentence(t *testing.T) {
	var sentences []string
	for i := 0; i < 30; i++ {
		sentences = append(sentences, "This is sentence number x.")
	}
	text := strings.Join(sentences, " ") // single paragraph, ~810 chars

	opts := Options{ChunkSize: 100, MinSize: 10}
	got := Chunk(text, opts)
	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}

	// No loss, no reordering: rejoining the chunks restores every sentence
	// in original order.
	joined := strings.Join(got, " ")
	if joined != text {
		t.Errorf("rejoined chunks differ from input:\n got %q\nwant %q", joined, text)
	}
}

func TestChunk_SentenceLongerThanTargetIsUnclipped(t *testing.T) {
	sentence := strings.Repeat("a", 300) // no terminator at all
	got := Chunk(sentence, Options{ChunkSize: 100, MinSize: 10})
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	if got[0] != sentence {
		t.Errorf("oversized sentence must not be truncated")
	}
}

func TestChunk_CountsCharactersNotBytes(t *testing.T) {
	// 150 Cyrillic characters are 300 bytes; with a 200-char target they
	// must still merge into one chunk.
	a := strings.Repeat("ж", 74) + "."
	b := strings.Repeat("ю", 74) + "."
	got := Chunk(a+"\n\n"+b, Options{ChunkSize: 200, MinSize: 50})
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
}

func TestChunk_ZeroOptionsUseDefaults(t *testing.T) {
	text := strings.Repeat("Something moderately long to keep. ", 5)
	got := Chunk(text, Options{})
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk with default options, got %d", len(got))
	}
}
