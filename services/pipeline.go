package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"pdf-chat-assistant/internal/config"
	"pdf-chat-assistant/internal/logger"
	"pdf-chat-assistant/models"
)

// ErrIngestionActive is returned when an ingest request arrives while a run
// is already in progress. Requests are rejected, not queued.
var ErrIngestionActive = errors.New("ingestion already in progress")

// FileReader supplies raw document bytes. The host's file-access
// collaborator in production; a fixture in tests.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

type osFileReader struct{}

func (osFileReader) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// NewOSFileReader returns a FileReader backed by the local filesystem.
func NewOSFileReader() FileReader {
	return osFileReader{}
}

// TextExtractor turns raw document bytes into page-tagged plain text.
type TextExtractor interface {
	Extract(data []byte) (string, error)
}

// Embedder abstracts the remote embedding endpoint.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float64, error)
}

// StateListener observes ingestion state transitions.
type StateListener func(models.IngestionState)

// IngestionPipeline orchestrates extract -> chunk -> embed -> cache for one
// document at a time and holds the active document's derived state.
type IngestionPipeline struct {
	cfg       *config.Config
	reader    FileReader
	extractor TextExtractor
	chunker   *Chunker
	cache     *CacheStore
	embedder  Embedder

	mu           sync.Mutex
	listeners    map[int]StateListener
	nextListener int
	ingesting    bool
	cancelRun    context.CancelFunc
	lastDocument string
	activeText   string
	activeChunks []models.DocumentChunk
	state        models.IngestionState
}

func NewIngestionPipeline(cfg *config.Config, reader FileReader, extractor TextExtractor, chunker *Chunker, cache *CacheStore, embedder Embedder) *IngestionPipeline {
	return &IngestionPipeline{
		cfg:       cfg,
		reader:    reader,
		extractor: extractor,
		chunker:   chunker,
		cache:     cache,
		embedder:  embedder,
		listeners: make(map[int]StateListener),
		state:     models.IngestionState{State: models.StateIdle},
	}
}

// Subscribe registers a state listener and returns its unsubscribe func.
// Multiple UI surfaces may observe the pipeline at once.
func (p *IngestionPipeline) Subscribe(listener StateListener) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextListener
	p.nextListener++
	p.listeners[id] = listener

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

// Ingest starts processing a document in the background. It returns
// ErrIngestionActive while a run is in flight and a configuration error when
// no API key is set; both happen before any state transition.
func (p *IngestionPipeline) Ingest(path string) error {
	if err := p.cfg.RequireAPIKey(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.ingesting {
		p.mu.Unlock()
		return ErrIngestionActive
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.ingesting = true
	p.cancelRun = cancel
	p.lastDocument = path
	p.mu.Unlock()

	go p.run(ctx, path)
	return nil
}

// Cancel aborts the in-flight run, if any. The run notices at its next
// suspension point and still emits the terminal complete transition.
func (p *IngestionPipeline) Cancel() {
	p.mu.Lock()
	cancel := p.cancelRun
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reset clears the active document state, e.g. when the host's active view
// moves away from any document.
func (p *IngestionPipeline) Reset() {
	p.mu.Lock()
	if p.ingesting {
		p.mu.Unlock()
		return
	}
	p.lastDocument = ""
	p.activeText = ""
	p.activeChunks = nil
	p.mu.Unlock()

	p.broadcast(models.IngestionState{State: models.StateIdle})
}

func (p *IngestionPipeline) IsIngesting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ingesting
}

func (p *IngestionPipeline) ActiveText() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeText
}

func (p *IngestionPipeline) ActiveChunks() []models.DocumentChunk {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeChunks
}

func (p *IngestionPipeline) LastDocument() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastDocument
}

// CurrentState returns the most recently broadcast state.
func (p *IngestionPipeline) CurrentState() models.IngestionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *IngestionPipeline) broadcast(state models.IngestionState) {
	p.mu.Lock()
	p.state = state
	targets := make([]StateListener, 0, len(p.listeners))
	for _, l := range p.listeners {
		targets = append(targets, l)
	}
	p.mu.Unlock()

	for _, l := range targets {
		l(state)
	}
}

func (p *IngestionPipeline) publish(text string, chunks []models.DocumentChunk) {
	p.mu.Lock()
	p.activeText = text
	p.activeChunks = chunks
	p.mu.Unlock()
}

// run drives one ingestion to completion. Whatever happens, the pipeline
// ends on a complete transition with the in-progress flag released.
func (p *IngestionPipeline) run(ctx context.Context, path string) {
	var runErr error
	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("ingestion panic: %v", r)
		}
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			logger.Error("Ingestion failed", "document", path, "error", runErr)
			p.broadcast(models.IngestionState{State: models.StateError, Document: path, Message: runErr.Error()})
		}
		p.mu.Lock()
		p.ingesting = false
		p.cancelRun = nil
		p.mu.Unlock()
		p.broadcast(models.IngestionState{State: models.StateComplete, Document: path})
	}()

	runErr = p.process(ctx, path)
}

func (p *IngestionPipeline) process(ctx context.Context, path string) error {
	tracer := otel.Tracer("ingestion-pipeline")
	ctx, span := tracer.Start(ctx, "pipeline.ingest")
	defer span.End()
	span.SetAttributes(attribute.String("document.path", path))

	p.broadcast(models.IngestionState{State: models.StateSearchingCache, Document: path})

	// Give the host UI a moment to settle after a view change before doing
	// any real work.
	if p.cfg.SettleDelay > 0 {
		select {
		case <-time.After(p.cfg.SettleDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if chunks, ok := p.cache.Load(path); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true), attribute.Int("chunks", len(chunks)))
		p.broadcast(models.IngestionState{State: models.StateLoadingCache, Document: path})
		p.publish(joinChunkText(chunks), chunks)
		logger.Info("Loaded document from cache", "document", path, "chunks", len(chunks))
		return nil
	}

	p.broadcast(models.IngestionState{State: models.StateReading, Document: path})

	text := ""
	data, err := p.reader.ReadFile(path)
	if err != nil {
		logger.Warn("Failed to read document, continuing with empty text", "document", path, "error", err)
	} else if extracted, err := p.extractor.Extract(data); err != nil {
		logger.Warn("Text extraction failed, continuing with empty text", "document", path, "error", err)
	} else {
		text = extracted
	}

	p.broadcast(models.IngestionState{State: models.StateChunking, Document: path})
	chunks := p.chunker.Chunk(text)
	if len(chunks) == 0 {
		// Empty or short-only text is a valid inert outcome.
		p.publish(text, nil)
		logger.Info("Document produced no chunks", "document", path)
		return nil
	}

	total := len(chunks)
	span.SetAttributes(attribute.Int("chunks", total))
	p.broadcast(models.IngestionState{State: models.StateEmbedding, Progress: 0, Total: total, Document: path})

	embedded := make([]models.DocumentChunk, 0, total)
	batchSize := p.cfg.EmbedBatchSize

	for start := 0; start < total; start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := start + batchSize
		if end > total {
			end = total
		}

		results := make([][]float64, end-start)
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				vec, err := p.embedder.EmbedText(ctx, chunks[i].Text)
				if err != nil {
					logger.Warn("Embedding request failed, dropping chunk", "page", chunks[i].Page, "error", err)
					return
				}
				results[i-start] = vec
			}(i)
		}
		wg.Wait()

		for i, vec := range results {
			if vec != nil {
				chunk := chunks[start+i]
				chunk.Embedding = vec
				embedded = append(embedded, chunk)
			}
		}

		p.broadcast(models.IngestionState{State: models.StateEmbedding, Progress: end, Total: total, Document: path})
	}

	p.broadcast(models.IngestionState{State: models.StateEmbedding, Progress: total, Total: total, Document: path})

	if len(embedded) > 0 {
		if err := p.cache.Store(path, embedded); err != nil {
			return err
		}
	}

	p.publish(text, embedded)
	logger.Info("Document ingested", "document", path, "chunks", len(embedded), "dropped", total-len(embedded))
	return nil
}

// joinChunkText derives the full document text from a cached chunk set.
func joinChunkText(chunks []models.DocumentChunk) string {
	parts := make([]string, len(chunks))
	for i, chunk := range chunks {
		parts[i] = chunk.Text
	}
	return strings.Join(parts, "\n\n")
}
