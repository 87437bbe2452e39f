package services

import (
	"strings"
	"testing"
)

func TestChunkDropsShortParagraphs(t *testing.T) {
	chunker := NewChunker(100)
	long := strings.Repeat("a", 150)

	text := "--- PAGE 1 ---\nshort header\n\n" + long + "\n\nfooter\n\n"
	chunks := chunker.Chunk(text)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != long {
		t.Fatalf("unexpected chunk text: %q", chunks[0].Text)
	}
	if chunks[0].Page != 1 {
		t.Fatalf("expected page 1, got %d", chunks[0].Page)
	}
	if chunks[0].ChunkID == "" {
		t.Fatal("expected a chunk ID")
	}
}

func TestChunkExactMinimumIsDropped(t *testing.T) {
	chunker := NewChunker(100)
	text := "--- PAGE 1 ---\n" + strings.Repeat("b", 100) + "\n\n"

	if chunks := chunker.Chunk(text); len(chunks) != 0 {
		t.Fatalf("paragraph at the minimum length should be dropped, got %d chunks", len(chunks))
	}
}

func TestChunkPageProvenance(t *testing.T) {
	chunker := NewChunker(100)
	p1 := strings.Repeat("x", 120)
	p3a := strings.Repeat("y", 120)
	p3b := strings.Repeat("z", 120)

	text := "--- PAGE 1 ---\n" + p1 + "\n\n" +
		"--- PAGE 2 ---\ntoo short\n\n" +
		"--- PAGE 3 ---\n" + p3a + "\n\n" + p3b + "\n\n"

	chunks := chunker.Chunk(text)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	wantPages := []int{1, 3, 3}
	for i, chunk := range chunks {
		if chunk.Page != wantPages[i] {
			t.Errorf("chunk %d: expected page %d, got %d", i, wantPages[i], chunk.Page)
		}
	}
}

func TestChunkThreePagesOneSurvivor(t *testing.T) {
	chunker := NewChunker(100)
	body := strings.Repeat("m", 140)

	text := "--- PAGE 1 ---\ntitle page\n\n" +
		"--- PAGE 2 ---\n" + body + "\n\n" +
		"--- PAGE 3 ---\nreferences\n\n"

	chunks := chunker.Chunk(text)
	if len(chunks) != 1 {
		t.Fatalf("expected exactly 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Page != 2 {
		t.Fatalf("expected the surviving chunk tagged page 2, got %d", chunks[0].Page)
	}
}

func TestChunkIgnoresTextBeforeFirstMarker(t *testing.T) {
	chunker := NewChunker(100)
	orphan := strings.Repeat("o", 200)
	tagged := strings.Repeat("t", 200)

	chunks := chunker.Chunk(orphan + "\n\n--- PAGE 2 ---\n" + tagged + "\n\n")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != tagged || chunks[0].Page != 2 {
		t.Fatalf("unexpected chunk: page=%d text=%q", chunks[0].Page, chunks[0].Text)
	}
}

func TestChunkMultibyteRuneCounting(t *testing.T) {
	chunker := NewChunker(10)
	// 11 runes, more than 10 bytes each would be if counted as bytes either way;
	// the point is rune count governs the threshold.
	text := "--- PAGE 1 ---\n" + strings.Repeat("ü", 11) + "\n\n"

	if chunks := chunker.Chunk(text); len(chunks) != 1 {
		t.Fatalf("expected multibyte paragraph to pass the rune threshold, got %d chunks", len(chunks))
	}
}

func TestChunkEmptyText(t *testing.T) {
	chunker := NewChunker(100)
	if chunks := chunker.Chunk(""); len(chunks) != 0 {
		t.Fatalf("expected no chunks from empty text, got %d", len(chunks))
	}
}
