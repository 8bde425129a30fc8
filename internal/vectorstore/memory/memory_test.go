package memory

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"

	"ermtutor/internal/domain"
)

func record(i int, v ...float32) domain.EmbeddingRecord {
	ch := domain.Chunk{Text: string(rune('a' + i)), SourcePath: "doc.pdf", Index: i}
	return domain.EmbeddingRecord{ID: ch.ID(), Vector: v, Chunk: ch}
}

func newStore(t *testing.T, dim int, path string) *Storage {
	t.Helper()
	s, err := NewStorage(Config{Dimension: dim, Model: "test-model", SnapshotPath: path}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	return s
}

func TestQuery_RanksByCosine(t *testing.T) {
	s := newStore(t, 2, "")
	records := []domain.EmbeddingRecord{
		record(0, 1, 0),
		record(1, 0, 1),
		record(2, 3, 3),
	}
	if err := s.Build(context.Background(), records); err != nil {
		t.Fatalf("Build: %v", err)
	}

	res, err := s.Query(context.Background(), []float32{2, 0}, 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res) != 3 {
		t.Fatalf("got %d results, want all 3", len(res))
	}
	if res[0].Chunk.Index != 0 || math.Abs(res[0].Score-1) > 1e-9 {
		t.Errorf("top result = %+v, want chunk 0 with score 1", res[0])
	}
	for i := 1; i < len(res); i++ {
		if res[i].Score > res[i-1].Score {
			t.Errorf("results not descending at %d: %v", i, res)
		}
	}
}

func TestQuery_StoredVectorRanksFirst(t *testing.T) {
	s := newStore(t, 3, "")
	records := []domain.EmbeddingRecord{
		record(0, 0.2, 0.1, 0.9),
		record(1, 0.5, 0.5, 0.1),
		record(2, 0.9, 0.3, 0.2),
	}
	_ = s.Build(context.Background(), records)
	for _, r := range records {
		res, err := s.Query(context.Background(), r.Vector, 1)
		if err != nil {
			t.Fatal(err)
		}
		if res[0].Chunk != r.Chunk || math.Abs(res[0].Score-1) > 1e-6 {
			t.Errorf("query with %s returned %+v", r.ID, res[0])
		}
	}
}

func TestQuery_TiesKeepInsertionOrder(t *testing.T) {
	s := newStore(t, 2, "")
	_ = s.Build(context.Background(), []domain.EmbeddingRecord{
		record(0, 0, 1),
		record(1, 1, 0),
		record(2, 2, 0),
		record(3, 5, 0),
	})
	res, _ := s.Query(context.Background(), []float32{1, 0}, 3)
	want := []int{1, 2, 3}
	for i, w := range want {
		if res[i].Chunk.Index != w {
			t.Fatalf("order = %v, want %v", res, want)
		}
	}
}

func TestQuery_EmptyCases(t *testing.T) {
	s := newStore(t, 2, "")
	res, err := s.Query(context.Background(), []float32{1, 0}, 5)
	if err != nil || len(res) != 0 {
		t.Fatalf("empty store: %v, %v", res, err)
	}
	_ = s.Build(context.Background(), []domain.EmbeddingRecord{record(0, 1, 0)})
	for _, k := range []int{0, -1} {
		res, err := s.Query(context.Background(), []float32{1, 0}, k)
		if err != nil || len(res) != 0 {
			t.Errorf("k=%d: %v, %v", k, res, err)
		}
	}
}

func TestDimensionMismatch(t *testing.T) {
	s := newStore(t, 2, "")
	err := s.Build(context.Background(), []domain.EmbeddingRecord{record(0, 1, 0, 0)})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("Build: expected ErrDimensionMismatch, got %v", err)
	}
	_, err = s.Query(context.Background(), []float32{1}, 1)
	if !errors.Is(err, domain.ErrDimensionMismatch) || !errors.Is(err, domain.ErrRetrieval) {
		t.Fatalf("Query: expected retrieval dimension error, got %v", err)
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "index.gob")
	built := newStore(t, 2, path)
	records := []domain.EmbeddingRecord{record(0, 1, 0), record(1, 0.6, 0.8), record(2, 0, 1)}
	if err := built.Build(context.Background(), records); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}

	loaded := newStore(t, 2, path)
	if err := loaded.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Len() != 3 {
		t.Fatalf("Len = %d, want 3", loaded.Len())
	}
	q := []float32{0.8, 0.6}
	want, _ := built.Query(context.Background(), q, 3)
	got, _ := loaded.Query(context.Background(), q, 3)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	if err := newStore(t, 2, filepath.Join(dir, "absent.gob")).Load(context.Background()); !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Errorf("missing file: %v", err)
	}
	if err := newStore(t, 2, "").Load(context.Background()); !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Errorf("no path: %v", err)
	}

	garbage := filepath.Join(dir, "garbage.gob")
	_ = os.WriteFile(garbage, []byte("definitely not gob"), 0o644)
	if err := newStore(t, 2, garbage).Load(context.Background()); !errors.Is(err, domain.ErrStoreCorrupt) {
		t.Errorf("garbage: %v", err)
	}

	path := filepath.Join(dir, "index.gob")
	_ = newStore(t, 2, path).Build(context.Background(), []domain.EmbeddingRecord{record(0, 1, 0)})
	if err := newStore(t, 3, path).Load(context.Background()); !errors.Is(err, domain.ErrStoreCorrupt) {
		t.Errorf("dimension change: %v", err)
	}
	other, _ := NewStorage(Config{Dimension: 2, Model: "other-model", SnapshotPath: path}, zap.NewNop())
	if err := other.Load(context.Background()); !errors.Is(err, domain.ErrStoreCorrupt) {
		t.Errorf("model change: %v", err)
	}
}

func TestQuery_Concurrent(t *testing.T) {
	s := newStore(t, 2, "")
	_ = s.Build(context.Background(), []domain.EmbeddingRecord{record(0, 1, 0), record(1, 0, 1)})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := s.Query(context.Background(), []float32{1, 1}, 2); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
