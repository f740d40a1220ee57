package model

// Chunk is the atomic unit that gets embedded and stored. ID is a content
// hash, so re-ingesting unchanged text produces the same IDs.
type Chunk struct {
	ID         string
	Text       string
	SourceType string
	OriginRef  string
}

// VectorRecord is what gets upserted into the vector store.
type VectorRecord struct {
	ID       string                 `json:"id"`
	Values   []float32              `json:"values"`
	Metadata map[string]interface{} `json:"metadata"`
}

// ScoredMatch is one vector store query result, higher score = more similar.
type ScoredMatch struct {
	ID       string                 `json:"id"`
	Score    float32                `json:"score"`
	Metadata map[string]interface{} `json:"metadata"`
}

// ContextResult is the read-path output: concatenated chunk texts bounded
// by the context budget, plus the IDs of the chunks that contributed.
type ContextResult struct {
	Text         string   `json:"text"`
	UsedChunkIDs []string `json:"used_chunk_ids"`
}
