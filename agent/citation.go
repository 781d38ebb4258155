package agent

import (
	"log/slog"
	"strings"

	"bookrag/types"
)

const maxExcerptChars = 300

// CitationAgent maps an answer back to the chunks that were supplied to the
// generator. Every non-not-found answer carries at least one citation.
type CitationAgent struct {
	logger *slog.Logger
}

func NewCitationAgent() *CitationAgent {
	return &CitationAgent{logger: slog.Default()}
}

// Resolve builds citations from the supplied chunks, ordered by score
// descending (the retrieval order), deduplicated per page section. The fixed
// not-found answer gets no citations.
func (c *CitationAgent) Resolve(answer string, chunks []types.ScoredChunk) []types.SourceCitation {
	if answer == NotFoundAnswer || len(chunks) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(chunks))
	citations := make([]types.SourceCitation, 0, len(chunks))
	for _, sc := range chunks {
		key := sc.Chunk.SourceURL + "#" + strings.Join(sc.Chunk.HeadingPath, "/")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		citations = append(citations, types.SourceCitation{
			SourceURL:      sc.Chunk.SourceURL,
			SourceTitle:    sc.Chunk.SourceTitle,
			Excerpt:        truncateExcerpt(sc.Chunk.Content),
			RelevanceScore: sc.Score,
		})
	}

	c.logger.Debug("citations resolved", "count", len(citations), "chunks", len(chunks))
	return citations
}

// truncateExcerpt bounds the excerpt at maxExcerptChars including the
// ellipsis, cutting back to a word boundary when one is near enough.
func truncateExcerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= maxExcerptChars {
		return text
	}
	cut := string(runes[:maxExcerptChars-3])
	if i := strings.LastIndexAny(cut, " \n"); i > maxExcerptChars/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "..."
}
