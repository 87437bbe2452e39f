package services

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/ledongthuc/pdf"

	"pdf-chat-assistant/internal/logger"
)

const pageMarkerFormat = "--- PAGE %d ---"

// PDFExtractor turns raw PDF bytes into page-tagged plain text.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract reads every page's positioned text fragments and reconstructs
// natural reading flow. Each page's text is prefixed with a page marker so
// the chunker can recover page provenance.
func (e *PDFExtractor) Extract(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var textBuilder strings.Builder
	pages := reader.NumPage()

	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		content := page.Content()
		if len(content.Text) == 0 {
			logger.Debug("Page has no text fragments", "page", i)
			continue
		}

		textBuilder.WriteString(fmt.Sprintf(pageMarkerFormat+"\n", i))
		textBuilder.WriteString(reconstructFlow(content.Text))
		textBuilder.WriteString("\n\n")
	}

	return textBuilder.String(), nil
}

// reconstructFlow rebuilds reading order from positioned fragments. A
// vertical jump larger than 1.2x the fragment height starts a new text
// block; anything closer joins the running paragraph with a single space.
func reconstructFlow(fragments []pdf.Text) string {
	var b strings.Builder
	var lastY float64

	for i, frag := range fragments {
		if i > 0 {
			if math.Abs(frag.Y-lastY) > 1.2*frag.FontSize {
				b.WriteString("\n\n")
			} else {
				b.WriteString(" ")
			}
		}
		b.WriteString(frag.S)
		lastY = frag.Y
	}

	return b.String()
}
