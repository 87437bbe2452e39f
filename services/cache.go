package services

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"

	"pdf-chat-assistant/internal/logger"
	"pdf-chat-assistant/models"
)

var cacheKeyStrip = regexp.MustCompile(`[^A-Za-z0-9]`)

// CacheStore persists embedded chunk sets as one JSON file per source
// document, keyed by a filesystem-safe name derived from the document path.
type CacheStore struct {
	dir string
}

func NewCacheStore(dir string) *CacheStore {
	return &CacheStore{dir: dir}
}

// Key derives the cache filename for a document path: every character
// outside [A-Za-z0-9] is stripped.
func (s *CacheStore) Key(docPath string) string {
	return cacheKeyStrip.ReplaceAllString(docPath, "") + ".json"
}

// Load returns the cached chunk set for a document, or false on a miss.
// A corrupt cache file is logged and reported as a miss so the caller
// re-ingests instead of aborting.
func (s *CacheStore) Load(docPath string) ([]models.DocumentChunk, bool) {
	path := filepath.Join(s.dir, s.Key(docPath))

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Failed to read cache file", "path", path, "error", err)
		}
		return nil, false
	}

	var record models.DocumentCacheRecord
	if err := json.Unmarshal(data, &record); err != nil {
		logger.Warn("Corrupt cache record, re-ingesting", "path", path, "error", err)
		return nil, false
	}

	return record.Chunks, true
}

// Store writes the chunk set for a document, rounding every embedding
// component to 4 decimal places first.
func (s *CacheStore) Store(docPath string, chunks []models.DocumentChunk) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	record := models.DocumentCacheRecord{Chunks: make([]models.DocumentChunk, len(chunks))}
	for i, chunk := range chunks {
		rounded := chunk
		rounded.Embedding = make([]float64, len(chunk.Embedding))
		for j, v := range chunk.Embedding {
			rounded.Embedding[j] = math.Round(v*1e4) / 1e4
		}
		record.Chunks[i] = rounded
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal cache record: %w", err)
	}

	path := filepath.Join(s.dir, s.Key(docPath))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache record: %w", err)
	}

	return nil
}
