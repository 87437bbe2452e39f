package models

// DocumentChunk is a paragraph-sized unit of extracted PDF text, tagged with
// its source page. Embedding is filled in by the ingestion pipeline; the
// vector length is constant across a document's chunk set.
type DocumentChunk struct {
	ChunkID   string    `json:"chunk_id,omitempty"`
	Text      string    `json:"text"`
	Page      int       `json:"page"`
	Embedding []float64 `json:"embedding,omitempty"`
}

// DocumentCacheRecord is the on-disk cache format, one file per source
// document. Embeddings are rounded to 4 decimal places before write.
type DocumentCacheRecord struct {
	Chunks []DocumentChunk `json:"chunks"`
}

// Ingestion pipeline states.
const (
	StateIdle           = "idle"
	StateSearchingCache = "searching_cache"
	StateLoadingCache   = "loading_cache"
	StateReading        = "reading"
	StateChunking       = "chunking"
	StateEmbedding      = "embedding"
	StateError          = "error"
	StateComplete       = "complete"
)

// IngestionState is broadcast to listeners for every pipeline transition.
// Progress/Total are meaningful only in the embedding state.
type IngestionState struct {
	State    string `json:"state"`
	Progress int    `json:"progress"`
	Total    int    `json:"total"`
	Document string `json:"document,omitempty"`
	Message  string `json:"message,omitempty"`
}
