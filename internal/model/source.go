package model

const (
	SourceTypeText    = "text"
	SourceTypeFile    = "file"
	SourceTypeWebsite = "website"
	SourceTypeQA      = "qa"
)

const (
	FileKindPDF      = "pdf"
	FileKindJSON     = "json"
	FileKindMarkdown = "markdown"
)

// QAPair is a single question/answer item of a qa source.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// FileRef points at an already-archived file payload. The pipeline never
// receives inline file bytes; it reads them back from the archive store.
type FileRef struct {
	Key  string `json:"key"`
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// Source is one ingestion request. Exactly one of Text/File/URLs/Pairs is
// meaningful, selected by Type.
type Source struct {
	ChatbotID string   `json:"chatbot_id"`
	UserID    string   `json:"user_id"`
	Type      string   `json:"type"`
	Text      string   `json:"text,omitempty"`
	File      *FileRef `json:"file,omitempty"`
	URLs      []string `json:"urls,omitempty"`
	Pairs     []QAPair `json:"pairs,omitempty"`
}

// NormalizedUnit is a piece of plain text extracted from a source, ready
// for chunking. OriginRef is a page URL for website sources, a page number
// for pdf files, empty for raw text and qa pairs.
type NormalizedUnit struct {
	Text       string
	SourceType string
	OriginRef  string
}
