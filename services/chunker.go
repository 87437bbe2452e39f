package services

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"pdf-chat-assistant/models"
)

var (
	pageMarkerRegex = regexp.MustCompile(`--- PAGE (\d+) ---`)
	paragraphRegex  = regexp.MustCompile(`\n\s*\n`)
)

// Chunker splits page-tagged text into paragraph-level chunks with page
// provenance. Paragraphs at or below the minimum length are dropped; short
// fragments are typically headers, footers, or other noise that make poor
// retrieval units.
type Chunker struct {
	minChars int
}

func NewChunker(minChars int) *Chunker {
	if minChars <= 0 {
		minChars = 100
	}
	return &Chunker{minChars: minChars}
}

// Chunk splits text produced by the extractor. Text before the first page
// marker has no provenance and is ignored.
func (c *Chunker) Chunk(text string) []models.DocumentChunk {
	markers := pageMarkerRegex.FindAllStringSubmatch(text, -1)
	bodies := pageMarkerRegex.Split(text, -1)

	var chunks []models.DocumentChunk
	for i, marker := range markers {
		page, err := strconv.Atoi(marker[1])
		if err != nil {
			continue
		}

		for _, paragraph := range paragraphRegex.Split(bodies[i+1], -1) {
			paragraph = strings.TrimSpace(paragraph)
			if utf8.RuneCountInString(paragraph) <= c.minChars {
				continue
			}
			chunks = append(chunks, models.DocumentChunk{
				ChunkID: uuid.NewString(),
				Text:    paragraph,
				Page:    page,
			})
		}
	}

	return chunks
}
