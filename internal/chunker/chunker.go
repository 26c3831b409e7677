package chunker

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// DefaultChunkSizeTokens targets 500-1000 token passages.
	DefaultChunkSizeTokens = 800
	// DefaultOverlapTokens carries context across chunk boundaries.
	DefaultOverlapTokens = 100

	encodingName = "cl100k_base"
)

// Chunk is one contiguous token window of a document, decoded back to text.
type Chunk struct {
	Text       string
	TokenCount int
	Index      int
}

type tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// TokenChunker slides a fixed-size token window over the input, advancing by
// chunkSize-overlap each step. Overlap is always kept below the chunk size so
// the window makes forward progress.
type TokenChunker struct {
	chunkSize int
	overlap   int
	enc       tokenizer
}

func NewTokenChunker(chunkSizeTokens, overlapTokens int) (*TokenChunker, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s encoding: %w", encodingName, err)
	}
	return newWithTokenizer(chunkSizeTokens, overlapTokens, cl100k{enc}), nil
}

func newWithTokenizer(chunkSizeTokens, overlapTokens int, enc tokenizer) *TokenChunker {
	if chunkSizeTokens <= 0 {
		chunkSizeTokens = DefaultChunkSizeTokens
	}
	if overlapTokens < 0 {
		overlapTokens = DefaultOverlapTokens
	}
	if overlapTokens >= chunkSizeTokens {
		overlapTokens = chunkSizeTokens - 1
	}
	return &TokenChunker{chunkSize: chunkSizeTokens, overlap: overlapTokens, enc: enc}
}

// Chunk splits text into overlapping token windows with 0-based indices.
// Empty input yields no chunks; callers decide whether that is an error.
func (c *TokenChunker) Chunk(text string) []Chunk {
	tokens := c.enc.Encode(text)
	var chunks []Chunk
	start := 0
	idx := 0
	for start < len(tokens) {
		end := start + c.chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		window := tokens[start:end]
		chunks = append(chunks, Chunk{
			Text:       strings.TrimSpace(c.enc.Decode(window)),
			TokenCount: len(window),
			Index:      idx,
		})
		if end == len(tokens) {
			break
		}
		idx++
		start = end - c.overlap
	}
	return chunks
}

type cl100k struct {
	tke *tiktoken.Tiktoken
}

func (e cl100k) Encode(text string) []int {
	return e.tke.Encode(text, nil, nil)
}

func (e cl100k) Decode(tokens []int) string {
	return e.tke.Decode(tokens)
}
