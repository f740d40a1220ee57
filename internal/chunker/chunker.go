package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/forgeml/botkb/internal/model"
)

type Config struct {
	MaxChars     int
	OverlapChars int
}

// Chunker splits normalized units into bounded, slightly overlapping
// segments. The recursive splitter prefers paragraph breaks, then
// sentence-ish breaks, then hard cuts.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
}

func New(cfg Config) *Chunker {
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = 2000
	}
	overlap := cfg.OverlapChars
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxChars {
		overlap = maxChars / 10
	}
	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(maxChars),
			textsplitter.WithChunkOverlap(overlap),
		),
	}
}

// Split produces content-addressed chunks. Whitespace-only units yield no
// chunks; a unit shorter than the chunk budget yields exactly one.
func (c *Chunker) Split(units []model.NormalizedUnit) ([]model.Chunk, error) {
	var chunks []model.Chunk
	for _, unit := range units {
		if strings.TrimSpace(unit.Text) == "" {
			continue
		}
		parts, err := c.splitter.SplitText(unit.Text)
		if err != nil {
			return nil, err
		}
		for _, part := range parts {
			if strings.TrimSpace(part) == "" {
				continue
			}
			chunks = append(chunks, model.Chunk{
				ID:         ChunkID(unit.OriginRef, part),
				Text:       part,
				SourceType: unit.SourceType,
				OriginRef:  unit.OriginRef,
			})
		}
	}
	return chunks, nil
}

// ChunkID derives a deterministic id from the chunk text plus its origin
// ref, so identical text from different pages or URLs stays distinct while
// re-ingested unchanged content keeps a stable id.
func ChunkID(originRef, text string) string {
	sum := sha256.Sum256([]byte(originRef + "\n" + text))
	return hex.EncodeToString(sum[:])
}
