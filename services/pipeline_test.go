package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"pdf-chat-assistant/internal/config"
	"pdf-chat-assistant/models"
)

type fakeReader struct {
	data []byte
	err  error
}

func (f fakeReader) ReadFile(string) ([]byte, error) { return f.data, f.err }

type fakeExtractor struct {
	text string
	err  error
}

func (f fakeExtractor) Extract([]byte) (string, error) { return f.text, f.err }

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	vec   []float64
	err   error
	block chan struct{}
}

func (f *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float64, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type stateRecorder struct {
	mu     sync.Mutex
	states []models.IngestionState
	once   sync.Once
	done   chan struct{}
}

func newStateRecorder() *stateRecorder {
	return &stateRecorder{done: make(chan struct{})}
}

func (r *stateRecorder) listen(s models.IngestionState) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
	if s.State == models.StateComplete {
		r.once.Do(func() { close(r.done) })
	}
}

func (r *stateRecorder) waitComplete(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for ingestion to complete")
	}
}

func (r *stateRecorder) seen(state string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.states {
		if s.State == state {
			return true
		}
	}
	return false
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		GeminiAPIKey:   "test-key",
		CacheDir:       t.TempDir(),
		EmbedBatchSize: 10,
		MinChunkChars:  100,
	}
}

func pageText(pages ...string) string {
	var b strings.Builder
	for i, body := range pages {
		b.WriteString("--- PAGE ")
		b.WriteString(string(rune('1' + i)))
		b.WriteString(" ---\n")
		b.WriteString(body)
		b.WriteString("\n\n")
	}
	return b.String()
}

func TestIngestFreshDocument(t *testing.T) {
	cfg := testConfig(t)
	embedder := &fakeEmbedder{vec: []float64{0.1, 0.2}}
	text := pageText(strings.Repeat("a", 150), strings.Repeat("b", 150))
	cache := NewCacheStore(cfg.CacheDir)

	p := NewIngestionPipeline(cfg, fakeReader{data: []byte("pdf")}, fakeExtractor{text: text}, NewChunker(cfg.MinChunkChars), cache, embedder)

	rec := newStateRecorder()
	defer p.Subscribe(rec.listen)()

	if err := p.Ingest("/docs/fresh.pdf"); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	rec.waitComplete(t)

	chunks := p.ActiveChunks()
	if len(chunks) != 2 {
		t.Fatalf("expected 2 embedded chunks, got %d", len(chunks))
	}
	for _, chunk := range chunks {
		if len(chunk.Embedding) != 2 {
			t.Fatalf("chunk %s has no embedding", chunk.ChunkID)
		}
	}
	if p.ActiveText() != text {
		t.Fatal("active text should be the extracted text")
	}

	for _, state := range []string{models.StateSearchingCache, models.StateReading, models.StateChunking, models.StateEmbedding, models.StateComplete} {
		if !rec.seen(state) {
			t.Errorf("expected to observe state %q", state)
		}
	}
	if rec.seen(models.StateError) {
		t.Error("did not expect an error state")
	}

	if _, ok := cache.Load("/docs/fresh.pdf"); !ok {
		t.Fatal("expected the embedded chunks to be cached")
	}
}

func TestIngestCacheHitSkipsEmbedding(t *testing.T) {
	cfg := testConfig(t)
	cache := NewCacheStore(cfg.CacheDir)
	cached := []models.DocumentChunk{
		{ChunkID: "c1", Text: "first cached paragraph", Page: 1, Embedding: []float64{0.1}},
		{ChunkID: "c2", Text: "second cached paragraph", Page: 2, Embedding: []float64{0.2}},
	}
	if err := cache.Store("/docs/seen.pdf", cached); err != nil {
		t.Fatalf("failed to seed cache: %v", err)
	}

	embedder := &fakeEmbedder{vec: []float64{9}}
	p := NewIngestionPipeline(cfg, fakeReader{err: errors.New("must not be read")}, fakeExtractor{}, NewChunker(cfg.MinChunkChars), cache, embedder)

	rec := newStateRecorder()
	defer p.Subscribe(rec.listen)()

	if err := p.Ingest("/docs/seen.pdf"); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	rec.waitComplete(t)

	if embedder.callCount() != 0 {
		t.Fatalf("expected no embedding calls on a cache hit, got %d", embedder.callCount())
	}
	if !rec.seen(models.StateLoadingCache) {
		t.Error("expected the loading_cache state")
	}
	if rec.seen(models.StateReading) {
		t.Error("cache hit must not reach the reading state")
	}
	if got := len(p.ActiveChunks()); got != 2 {
		t.Fatalf("expected 2 chunks from cache, got %d", got)
	}
	if want := "first cached paragraph\n\nsecond cached paragraph"; p.ActiveText() != want {
		t.Fatalf("unexpected active text: %q", p.ActiveText())
	}
}

func TestIngestRejectsConcurrentRun(t *testing.T) {
	cfg := testConfig(t)
	block := make(chan struct{})
	embedder := &fakeEmbedder{vec: []float64{1}, block: block}
	text := pageText(strings.Repeat("a", 150))

	p := NewIngestionPipeline(cfg, fakeReader{data: []byte("pdf")}, fakeExtractor{text: text}, NewChunker(cfg.MinChunkChars), NewCacheStore(cfg.CacheDir), embedder)

	rec := newStateRecorder()
	defer p.Subscribe(rec.listen)()

	if err := p.Ingest("/docs/slow.pdf"); err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}

	// The run is parked inside the embedder; a second request must bounce.
	deadline := time.Now().Add(2 * time.Second)
	for embedder.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if err := p.Ingest("/docs/other.pdf"); !errors.Is(err, ErrIngestionActive) {
		t.Fatalf("expected ErrIngestionActive, got %v", err)
	}

	close(block)
	rec.waitComplete(t)

	if p.LastDocument() != "/docs/slow.pdf" {
		t.Fatalf("rejected request must not replace the active document, got %q", p.LastDocument())
	}
	if len(p.ActiveChunks()) != 1 {
		t.Fatalf("expected the first run's chunks preserved, got %d", len(p.ActiveChunks()))
	}

	if err := p.Ingest("/docs/other.pdf"); errors.Is(err, ErrIngestionActive) {
		t.Fatal("expected the slot to be free after completion")
	}
}

func TestIngestRequiresAPIKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.GeminiAPIKey = ""
	p := NewIngestionPipeline(cfg, fakeReader{}, fakeExtractor{}, NewChunker(cfg.MinChunkChars), NewCacheStore(cfg.CacheDir), &fakeEmbedder{})

	err := p.Ingest("/docs/any.pdf")
	if err == nil {
		t.Fatal("expected an error without an API key")
	}
	if errors.Is(err, ErrIngestionActive) {
		t.Fatal("missing key must not report the slot as busy")
	}
	if p.IsIngesting() {
		t.Fatal("rejected ingest must not set the in-progress flag")
	}
}

func TestIngestDropsFailedEmbeddings(t *testing.T) {
	cfg := testConfig(t)
	embedder := &fakeEmbedder{err: errors.New("quota exceeded")}
	text := pageText(strings.Repeat("a", 150), strings.Repeat("b", 150))
	cache := NewCacheStore(cfg.CacheDir)

	p := NewIngestionPipeline(cfg, fakeReader{data: []byte("pdf")}, fakeExtractor{text: text}, NewChunker(cfg.MinChunkChars), cache, embedder)

	rec := newStateRecorder()
	defer p.Subscribe(rec.listen)()

	if err := p.Ingest("/docs/flaky.pdf"); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	rec.waitComplete(t)

	if rec.seen(models.StateError) {
		t.Error("embedding failures must not surface as an error state")
	}
	if got := len(p.ActiveChunks()); got != 0 {
		t.Fatalf("expected all failed chunks dropped, got %d", got)
	}
	if _, ok := cache.Load("/docs/flaky.pdf"); ok {
		t.Fatal("an all-failed run must not write a cache record")
	}
	if p.ActiveText() != text {
		t.Fatal("extracted text should still be published")
	}
}

func TestIngestUnreadableFileCompletesInert(t *testing.T) {
	cfg := testConfig(t)
	embedder := &fakeEmbedder{vec: []float64{1}}
	p := NewIngestionPipeline(cfg, fakeReader{err: errors.New("no such file")}, fakeExtractor{}, NewChunker(cfg.MinChunkChars), NewCacheStore(cfg.CacheDir), embedder)

	rec := newStateRecorder()
	defer p.Subscribe(rec.listen)()

	if err := p.Ingest("/docs/missing.pdf"); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	rec.waitComplete(t)

	if rec.seen(models.StateError) {
		t.Error("an unreadable file is a soft failure")
	}
	if embedder.callCount() != 0 {
		t.Error("nothing should be embedded for an unreadable file")
	}
	if p.ActiveText() != "" || len(p.ActiveChunks()) != 0 {
		t.Error("expected inert published state")
	}
}

func TestCancelDuringSettleDelay(t *testing.T) {
	cfg := testConfig(t)
	cfg.SettleDelay = 10 * time.Second
	embedder := &fakeEmbedder{vec: []float64{1}}

	p := NewIngestionPipeline(cfg, fakeReader{data: []byte("pdf")}, fakeExtractor{text: pageText(strings.Repeat("a", 150))}, NewChunker(cfg.MinChunkChars), NewCacheStore(cfg.CacheDir), embedder)

	rec := newStateRecorder()
	defer p.Subscribe(rec.listen)()

	if err := p.Ingest("/docs/cancelled.pdf"); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !rec.seen(models.StateSearchingCache) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	p.Cancel()
	rec.waitComplete(t)

	if rec.seen(models.StateError) {
		t.Error("cancellation must not surface as an error state")
	}
	if rec.seen(models.StateReading) {
		t.Error("cancellation during the settle delay must stop before reading")
	}
	if p.IsIngesting() {
		t.Error("the in-progress flag must be released after cancellation")
	}
}

func TestResetClearsStateWhenIdle(t *testing.T) {
	cfg := testConfig(t)
	p := NewIngestionPipeline(cfg, fakeReader{}, fakeExtractor{}, NewChunker(cfg.MinChunkChars), NewCacheStore(cfg.CacheDir), &fakeEmbedder{})
	p.publish("stale text", []models.DocumentChunk{{ChunkID: "c", Text: "t", Page: 1}})

	p.Reset()

	if p.ActiveText() != "" || len(p.ActiveChunks()) != 0 || p.LastDocument() != "" {
		t.Fatal("expected reset to clear the published state")
	}
	if p.CurrentState().State != models.StateIdle {
		t.Fatalf("expected idle state, got %q", p.CurrentState().State)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	cfg := testConfig(t)
	p := NewIngestionPipeline(cfg, fakeReader{}, fakeExtractor{}, NewChunker(cfg.MinChunkChars), NewCacheStore(cfg.CacheDir), &fakeEmbedder{})

	var mu sync.Mutex
	count := 0
	unsubscribe := p.Subscribe(func(models.IngestionState) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	p.broadcast(models.IngestionState{State: models.StateIdle})
	unsubscribe()
	p.broadcast(models.IngestionState{State: models.StateIdle})

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("expected exactly one delivery, got %d", count)
	}
}
