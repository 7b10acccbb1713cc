// Package chunker splits document text into retrieval-sized chunks.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize = 2000 // ~500 tokens for Ukrainian text
	DefaultMinSize   = 100  // drop fragments shorter than this
)

// Options configures chunking behavior. Sizes are in characters, not bytes.
type Options struct {
	ChunkSize int // soft ceiling checked before appending
	MinSize   int // chunks shorter than this are discarded
}

// DefaultOptions returns default chunking options.
func DefaultOptions() Options {
	return Options{
		ChunkSize: DefaultChunkSize,
		MinSize:   DefaultMinSize,
	}
}

var (
	paragraphSep = regexp.MustCompile(`\n\s*\n`)
	sentenceEnd  = regexp.MustCompile(`[.!?]\s+`)
)

// Chunk splits text into chunks along paragraph boundaries. Paragraphs that
// exceed the chunk size are split further at sentence boundaries. The size is
// a soft ceiling: a single sentence longer than it becomes its own chunk,
// unclipped. Empty or whitespace-only input yields no chunks.
func Chunk(text string, opts Options) []string {
	if opts.ChunkSize == 0 {
		opts = DefaultOptions()
	}

	var chunks []string
	var current string

	flush := func() {
		if current != "" {
			chunks = append(chunks, current)
			current = ""
		}
	}

	for _, para := range paragraphSep.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if runeLen(para) > opts.ChunkSize {
			for _, sentence := range splitSentences(para) {
				if runeLen(current)+runeLen(sentence)+2 <= opts.ChunkSize {
					current = strings.TrimSpace(current + " " + sentence)
				} else {
					flush()
					current = sentence
				}
			}
		} else {
			if runeLen(current)+runeLen(para)+2 <= opts.ChunkSize {
				current = strings.TrimSpace(current + "\n\n" + para)
			} else {
				flush()
				current = para
			}
		}
	}
	flush()

	kept := chunks[:0]
	for _, c := range chunks {
		if runeLen(c) >= opts.MinSize {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// splitSentences splits a paragraph at whitespace following '.', '!' or '?',
// keeping the terminator with its sentence.
func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, m := range sentenceEnd.FindAllStringIndex(text, -1) {
		out = append(out, text[last:m[0]+1])
		last = m[1]
	}
	if last < len(text) {
		out = append(out, text[last:])
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
