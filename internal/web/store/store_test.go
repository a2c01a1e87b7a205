package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"createdAt"`
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "store.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertGetUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, "notes", note{ID: "ignored", Title: "first", Owner: "a"})
	require.NoError(t, err)
	assert.NotEqual(t, "ignored", id)

	doc, err := s.Get(ctx, "notes", id)
	require.NoError(t, err)
	assert.NotContains(t, string(doc.Data), `"id"`)

	var n note
	require.NoError(t, doc.Decode(&n))
	assert.Equal(t, id, n.ID)
	assert.Equal(t, "first", n.Title)

	require.NoError(t, s.Update(ctx, "notes", id, map[string]any{"title": "renamed"}))

	doc, err = s.Get(ctx, "notes", id)
	require.NoError(t, err)
	require.NoError(t, doc.Decode(&n))
	assert.Equal(t, "renamed", n.Title)
	assert.Equal(t, "a", n.Owner)
}

func TestUpdateMissing(t *testing.T) {
	s := openTestStore(t)

	err := s.Update(context.Background(), "notes", "nope", map[string]any{"title": "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(context.Background(), "notes", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveMissingIsNoop(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.Remove(context.Background(), "notes", "nope"))
	assert.NoError(t, s.Remove(context.Background(), "unknown-collection", "nope"))
}

func TestListOrderAndFindBy(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Batch(ctx, []Op{
		Put("notes", "c", note{Title: "third", Owner: "x", CreatedAt: base.Add(2 * time.Hour)}),
		Put("notes", "a", note{Title: "first", Owner: "y", CreatedAt: base}),
		Put("notes", "b", note{Title: "second", Owner: "x", CreatedAt: base}),
	}))

	docs, err := s.List(ctx, "notes")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{docs[0].ID, docs[1].ID, docs[2].ID})

	owned, err := s.FindBy(ctx, "notes", "owner", "x")
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, "b", owned[0].ID)
	assert.Equal(t, "c", owned[1].ID)

	n, err := s.Count(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	notes, err := DecodeAll[note](docs)
	require.NoError(t, err)
	assert.Equal(t, "second", notes[1].Title)
}

func TestBatchIsAtomic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Batch(ctx, []Op{
		Put("notes", "keep", note{Title: "keep"}),
	}))

	err := s.Batch(ctx, []Op{
		Delete("notes", "keep"),
		Put("notes", "new", note{Title: "new"}),
		Put("notes", "", note{Title: "broken"}),
	})
	require.Error(t, err)

	_, err = s.Get(ctx, "notes", "keep")
	assert.NoError(t, err, "delete before the failing op must be rolled back")
	_, err = s.Get(ctx, "notes", "new")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSeedIfEmpty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ops := []Op{Put("notes", "n1", note{Title: "seed"})}

	seeded, err := s.SeedIfEmpty(ctx, "notes", ops)
	require.NoError(t, err)
	assert.True(t, seeded)

	seeded, err = s.SeedIfEmpty(ctx, "notes", []Op{Put("notes", "n2", note{Title: "again"})})
	require.NoError(t, err)
	assert.False(t, seeded)

	n, err := s.Count(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

type snapshots struct {
	mu   sync.Mutex
	seen [][]Document
}

func (s *snapshots) add(docs []Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, docs)
}

func (s *snapshots) last() ([]Document, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.seen) == 0 {
		return nil, 0
	}
	return s.seen[len(s.seen)-1], len(s.seen)
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, "notes", note{Title: "before"})
	require.NoError(t, err)

	var got snapshots
	unsubscribe, err := s.Subscribe("notes", got.add, nil)
	require.NoError(t, err)
	defer unsubscribe()

	require.Eventually(t, func() bool {
		docs, n := got.last()
		return n >= 1 && len(docs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, err = s.Insert(ctx, "notes", note{Title: "after"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		docs, _ := got.last()
		return len(docs) == 2
	}, 2*time.Second, 10*time.Millisecond)

	unsubscribe()
	_, count := got.last()

	_, err = s.Insert(ctx, "notes", note{Title: "ignored"})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	_, after := got.last()
	assert.Equal(t, count, after)
}

func TestSubscribeEmptyCollectionAcknowledges(t *testing.T) {
	s := openTestStore(t)

	acked := make(chan int, 1)
	unsubscribe, err := s.Subscribe("notes", func(docs []Document) {
		select {
		case acked <- len(docs):
		default:
		}
	}, nil)
	require.NoError(t, err)
	defer unsubscribe()

	select {
	case n := <-acked:
		assert.Equal(t, 0, n)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}
}

func TestClosedStore(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Insert(context.Background(), "notes", note{})
	assert.True(t, errors.Is(err, ErrClosed))

	_, err = s.Subscribe("notes", func([]Document) {}, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCancelledContext(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.List(ctx, "notes")
	assert.ErrorIs(t, err, context.Canceled)
}
