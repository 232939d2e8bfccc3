package chunker

import (
	"fmt"
	"strconv"

	"cleanse/internal/domain"
)

// WindowChunker splits text into fixed-size rune windows. Each window starts
// size-overlap runes after the previous one, so neighbours share overlap runes.
type WindowChunker struct {
	size    int
	overlap int
}

// NewWindowChunker validates the window geometry.
func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunker: size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunker: overlap must be in [0, %d), got %d", size, overlap)
	}
	return &WindowChunker{size: size, overlap: overlap}, nil
}

// Chunk returns the ordered windows of the document. Empty documents yield no chunks.
func (c *WindowChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	runes := []rune(document.Text)
	if len(runes) == 0 {
		return nil, nil
	}
	step := c.size - c.overlap
	var chunks []domain.Chunk
	for start, idx := 0, 0; ; start, idx = start+step, idx+1 {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, domain.Chunk{
			DocumentID: document.ID,
			ChunkID:    document.ID + ":" + strconv.Itoa(idx),
			Text:       string(runes[start:end]),
			Index:      idx,
			SourceURL:  document.SourceURL,
			Community:  document.Community,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}

// Reassemble joins chunks produced with the given overlap back into the
// original text. Chunks must be in sequence order.
func Reassemble(chunks []domain.Chunk, overlap int) string {
	var out []rune
	for i, ch := range chunks {
		r := []rune(ch.Text)
		if i > 0 {
			r = r[min(overlap, len(r)):]
		}
		out = append(out, r...)
	}
	return string(out)
}
