// Package chunk splits extracted page text into overlapping, semantically
// bounded segments suitable for independent retrieval.
package chunk

import (
	"regexp"
	"strings"
)

// Chunk is one bounded segment of a page, carrying the heading path that
// encloses it.
type Chunk struct {
	Content     string
	HeadingPath []string
	Index       int
}

type Config struct {
	MinSize int // merge paragraphs until at least this many characters
	MaxSize int // never exceed this many characters per chunk
	Overlap int // trailing characters carried into the next chunk
}

func DefaultConfig() Config {
	return Config{MinSize: 500, MaxSize: 800, Overlap: 120}
}

type Chunker struct {
	cfg Config
}

func New(cfg Config) *Chunker {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 800
	}
	if cfg.MinSize <= 0 || cfg.MinSize > cfg.MaxSize {
		cfg.MinSize = cfg.MaxSize * 5 / 8
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	if cfg.Overlap >= cfg.MinSize {
		cfg.Overlap = cfg.MinSize / 4
	}
	return &Chunker{cfg: cfg}
}

var headingLine = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// Split breaks markdown-ish text into chunks. Headings are structural
// boundaries: a chunk never spans two sections, and each chunk records the
// heading path in effect where it starts. Empty input yields zero chunks.
func (c *Chunker) Split(text string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var (
		chunks  []Chunk
		path    []string
		levels  []int
		buf     strings.Builder
		bufPath []string
		seedLen int
		overlap string
	)

	// seed starts a fresh buffer, carrying the previous chunk's trailing
	// overlap so cross-boundary context survives the split.
	seed := func() {
		bufPath = append([]string(nil), path...)
		seedLen = 0
		if overlap != "" {
			buf.WriteString(overlap)
			seedLen = buf.Len()
		}
	}

	flush := func() {
		content := strings.TrimSpace(buf.String())
		buf.Reset()
		seedLen = 0
		if content == "" {
			return
		}
		chunks = append(chunks, Chunk{Content: content, HeadingPath: bufPath})
		overlap = tailOverlap(content, c.cfg.Overlap)
	}

	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}

		if m := headingLine.FindStringSubmatch(block); m != nil && !strings.Contains(block, "\n") {
			// Section boundary: close the current chunk, no overlap across it.
			flush()
			overlap = ""
			level := len(m[1])
			for len(levels) > 0 && levels[len(levels)-1] >= level {
				levels = levels[:len(levels)-1]
				path = path[:len(path)-1]
			}
			levels = append(levels, level)
			path = append(append([]string(nil), path...), strings.TrimSpace(m[2]))
			continue
		}

		for _, piece := range c.splitParagraph(block) {
			if buf.Len() == 0 {
				seed()
			}
			// A buffer holding only the overlap seed always accepts the
			// next piece, even when the seed pushes it past the budget.
			if buf.Len() > seedLen && buf.Len()+len(piece)+2 > c.cfg.MaxSize {
				flush()
				seed()
			}
			if buf.Len() > 0 {
				if buf.Len() == seedLen && seedLen > 0 {
					buf.WriteString(" ")
				} else {
					buf.WriteString("\n\n")
				}
			}
			buf.WriteString(piece)
		}

		if buf.Len() >= c.cfg.MinSize {
			flush()
		}
	}
	flush()

	// A trailing fragment shorter than the minimum joins its predecessor when
	// they share a section and still fit together.
	if n := len(chunks); n >= 2 {
		last, prev := chunks[n-1], chunks[n-2]
		if len(last.Content) < c.cfg.MinSize/2 &&
			samePath(last.HeadingPath, prev.HeadingPath) &&
			len(prev.Content)+len(last.Content)+2 <= c.cfg.MaxSize+c.cfg.Overlap {
			chunks[n-2].Content = prev.Content + "\n\n" + last.Content
			chunks = chunks[:n-1]
		}
	}

	for i := range chunks {
		chunks[i].Index = i
	}
	return chunks
}

// splitParagraph returns the paragraph as-is when it fits, otherwise breaks it
// into sentence-bounded pieces no larger than MaxSize.
func (c *Chunker) splitParagraph(para string) []string {
	if len(para) <= c.cfg.MaxSize {
		return []string{para}
	}

	sentences := splitSentences(para)
	var pieces []string
	var cur strings.Builder
	for _, s := range sentences {
		if len(s) > c.cfg.MaxSize {
			if cur.Len() > 0 {
				pieces = append(pieces, strings.TrimSpace(cur.String()))
				cur.Reset()
			}
			pieces = append(pieces, splitWords(s, c.cfg.MaxSize)...)
			continue
		}
		if cur.Len()+len(s)+1 > c.cfg.MaxSize {
			pieces = append(pieces, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString(" ")
		}
		cur.WriteString(s)
	}
	if cur.Len() > 0 {
		pieces = append(pieces, strings.TrimSpace(cur.String()))
	}
	return pieces
}

var sentenceEnd = regexp.MustCompile(`(?s)[^.!?]*[.!?]+(?:\s+|$)`)

func splitSentences(text string) []string {
	matches := sentenceEnd.FindAllString(text, -1)
	if matches == nil {
		return []string{strings.TrimSpace(text)}
	}
	var out []string
	consumed := 0
	for _, m := range matches {
		consumed += len(m)
		if s := strings.TrimSpace(m); s != "" {
			out = append(out, s)
		}
	}
	if rest := strings.TrimSpace(text[consumed:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// splitWords is the last resort for sentence-less runs: split on word
// boundaries, hard-splitting only when a single word exceeds the budget.
func splitWords(text string, max int) []string {
	words := strings.Fields(text)
	var out []string
	var cur strings.Builder
	for _, w := range words {
		for len(w) > max {
			out = append(out, w[:max])
			w = w[max:]
		}
		if cur.Len()+len(w)+1 > max && cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString(" ")
		}
		cur.WriteString(w)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// tailOverlap returns the last n characters of content, trimmed forward to a
// word boundary so the carried text never starts mid-word.
func tailOverlap(content string, n int) string {
	if n <= 0 || len(content) <= n {
		return ""
	}
	tail := content[len(content)-n:]
	if i := strings.IndexAny(tail, " \n"); i >= 0 {
		tail = tail[i+1:]
	}
	return strings.TrimSpace(tail)
}

func samePath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
