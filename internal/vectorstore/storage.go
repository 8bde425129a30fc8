// Package vectorstore selects the configured vector store backend.
package vectorstore

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"ermtutor/internal/config"
	"ermtutor/internal/domain"
	"ermtutor/internal/vectorstore/memory"
	"ermtutor/internal/vectorstore/qdrant"
)

// New builds the store for vectors of dimension produced by model.
func New(cfg config.VectorStoreConfig, model string, dimension int, logger *zap.Logger) (domain.VectorStore, error) {
	switch cfg.Type {
	case "memory", "":
		st, err := memory.NewStorage(memory.Config{
			Dimension:    dimension,
			Model:        model,
			SnapshotPath: cfg.Memory.SnapshotPath,
		}, logger)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "qdrant":
		st, err := qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Dimension:  dimension,
			Model:      model,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		}, logger)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown vector store %q: %w", cfg.Type, domain.ErrConfiguration)
	}
}
