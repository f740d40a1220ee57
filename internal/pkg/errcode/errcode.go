package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrInvalid
	ErrNotFound
	ErrUnsupportedSource
	ErrEmptySource
	ErrEmbeddingFailed
	ErrVectorStoreFailed
	ErrInternal
)
