package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tkohara/ragchat/internal/repository"
)

// ErrEmptyContent is returned when there is nothing to chunk after
// extraction.
var ErrEmptyContent = errors.New("content cannot be empty")

// PipelineResult is what Process returns for one document's content.
type PipelineResult struct {
	// ContentHash is the SHA-256 hash of the extracted content, used
	// for upload deduplication
	ContentHash string

	// Chunks contains all generated chunks
	Chunks []Chunk

	// Stats contains processing statistics
	Stats PipelineStats
}

// PipelineStats summarizes one Process call; recorded on ingestion
// events.
type PipelineStats struct {
	OriginalLength    int
	OriginalWordCount int
	ChunkCount        int
	TotalChunkWords   int
	AvgChunkWords     int
	ProcessingTime    time.Duration
}

// Pipeline turns extracted text into chunks. Embedding and storage are
// the caller's concern.
type Pipeline struct {
	chunker *Chunker
}

// NewPipeline builds a pipeline around the given chunker settings.
func NewPipeline(config ChunkerConfig) *Pipeline {
	return &Pipeline{
		chunker: NewChunker(config),
	}
}

// Process trims, hashes, and chunks content.
func (p *Pipeline) Process(ctx context.Context, content string) (*PipelineResult, error) {
	startTime := time.Now()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	contentHash := hashContent(content)
	chunks := p.chunker.Chunk(content)

	return &PipelineResult{
		ContentHash: contentHash,
		Chunks:      chunks,
		Stats:       calculateStats(content, chunks, time.Since(startTime)),
	}, nil
}

func calculateStats(content string, chunks []Chunk, processingTime time.Duration) PipelineStats {
	totalChunkWords := 0
	for _, chunk := range chunks {
		totalChunkWords += len(strings.Fields(chunk.Content))
	}

	avgChunkWords := 0
	if len(chunks) > 0 {
		avgChunkWords = totalChunkWords / len(chunks)
	}

	return PipelineStats{
		OriginalLength:    len(content),
		OriginalWordCount: len(strings.Fields(content)),
		ChunkCount:        len(chunks),
		TotalChunkWords:   totalChunkWords,
		AvgChunkWords:     avgChunkWords,
		ProcessingTime:    processingTime,
	}
}

func hashContent(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

// ChunksToDocumentChunks converts pipeline chunks to rows for storage
func ChunksToDocumentChunks(chunks []Chunk, documentID uuid.UUID) []*repository.DocumentChunk {
	docChunks := make([]*repository.DocumentChunk, len(chunks))
	now := time.Now()

	for i, chunk := range chunks {
		docChunks[i] = &repository.DocumentChunk{
			ID:         uuid.New(),
			DocumentID: documentID,
			ChunkIndex: chunk.Index,
			Content:    chunk.Content,
			CreatedAt:  now,
		}
	}

	return docChunks
}

// ValidateChunkerConfig rejects settings the chunker cannot honor.
func ValidateChunkerConfig(config ChunkerConfig) error {
	validMethods := map[string]bool{
		"fixed":    true,
		"sentence": true,
	}

	if config.Method != "" && !validMethods[config.Method] {
		return fmt.Errorf("invalid chunking method: %s (valid: fixed, sentence)", config.Method)
	}

	if config.TargetSize < 0 {
		return fmt.Errorf("target_size cannot be negative")
	}

	if config.MaxSize < 0 {
		return fmt.Errorf("max_size cannot be negative")
	}

	if config.TargetSize > 0 && config.MaxSize > 0 && config.TargetSize > config.MaxSize {
		return fmt.Errorf("target_size (%d) cannot be greater than max_size (%d)", config.TargetSize, config.MaxSize)
	}

	if config.Overlap < 0 {
		return fmt.Errorf("overlap cannot be negative")
	}

	if config.Overlap > 0 && config.TargetSize > 0 && config.Overlap >= config.TargetSize {
		return fmt.Errorf("overlap (%d) must be less than target_size (%d)", config.Overlap, config.TargetSize)
	}

	return nil
}
