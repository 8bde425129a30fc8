package domain

import "errors"

var (
	// ErrConfiguration signals invalid or incomplete configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrIngestion signals a single file that could not be turned into text.
	ErrIngestion = errors.New("ingestion error")

	// ErrIndex signals a failure to build or load the vector index.
	ErrIndex = errors.New("index error")
	// ErrDimensionMismatch signals a vector whose length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrStoreCorrupt signals a persisted index that cannot be used.
	ErrStoreCorrupt = errors.New("vector store corrupt")
	// ErrSnapshotNotFound signals that nothing has been persisted yet.
	ErrSnapshotNotFound = errors.New("vector store snapshot not found")

	// ErrRetrieval signals a failed question embedding or index query.
	ErrRetrieval = errors.New("retrieval error")
	// ErrEmbedding signals an embedding provider failure.
	ErrEmbedding = errors.New("embedding error")
	// ErrGeneration signals a chat-completion failure.
	ErrGeneration = errors.New("generation error")

	// ErrNetwork signals a transport failure or timeout talking to a hosted model.
	ErrNetwork = errors.New("network error")
	// ErrAuthentication signals a rejected API credential.
	ErrAuthentication = errors.New("authentication failed")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrQuotaExceeded signals an exhausted provider quota.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrProvider signals any other provider-side failure.
	ErrProvider = errors.New("provider error")

	// ErrInvalidQuestion signals an empty question.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrNotReady signals a question asked before the tutor was initialised.
	ErrNotReady = errors.New("tutor not ready")
)
