package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbedding covers empty input and embedding-backend failures.
	ErrEmbedding = errors.New("embedding failure")
	// ErrRetrieval covers vector-store query and scroll failures.
	ErrRetrieval = errors.New("retrieval failure")
	// ErrConnection marks the storage backend unreachable at startup.
	// It is fatal and aborts initialization.
	ErrConnection = errors.New("storage connection failure")
	// ErrInvalidIntent marks a classifier label outside the known set.
	// Recovered locally by defaulting to IntentGeneral.
	ErrInvalidIntent = errors.New("invalid intent")
	// ErrEmptyQuery rejects blank queries before any retrieval work.
	ErrEmptyQuery = errors.New("empty query")
	// ErrCompletion marks a completion-service failure on a call with no
	// safe default, such as answer generation.
	ErrCompletion = errors.New("completion failure")
	// ErrTemporary marks transient collaborator failures for the
	// resilience layer and HTTP 503 mapping.
	ErrTemporary = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
