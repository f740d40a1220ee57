package errors

import "errors"

var (
	ErrUnsupportedSourceType = errors.New("unsupported source type")
	ErrEmptySource           = errors.New("empty source")
	ErrInvalid               = errors.New("invalid")
	ErrNotFound              = errors.New("not found")
	ErrEmbeddingService      = errors.New("embedding service error")
	ErrVectorStore           = errors.New("vector store error")
	ErrInternal              = errors.New("internal")
)

type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return e.err.Error()
}

func (e *transientError) Unwrap() error {
	return e.err
}

// Transient marks err as retryable (rate limit, timeout, upstream 5xx).
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked with Transient anywhere in
// its chain.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// IsCallerFault reports whether err should surface as a 4xx to the caller.
func IsCallerFault(err error) bool {
	return errors.Is(err, ErrUnsupportedSourceType) ||
		errors.Is(err, ErrEmptySource) ||
		errors.Is(err, ErrInvalid)
}
