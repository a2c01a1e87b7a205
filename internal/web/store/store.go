package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/techsupport/internal/metrics"
)

// Collection names
const (
	CollectionEnvironments  = "environments"
	CollectionOrganizations = "organizations"
	CollectionAPIKeys       = "apiKeys"
	CollectionOrgPaths      = "orgPaths"
	CollectionAPIActions    = "apiActions"
	CollectionUsers         = "users"
	CollectionSessions      = "sessions"
)

// EntityCollections lists the collections mirrored by the data provider
var EntityCollections = []string{
	CollectionEnvironments,
	CollectionOrganizations,
	CollectionAPIKeys,
	CollectionOrgPaths,
	CollectionAPIActions,
	CollectionUsers,
}

var (
	ErrNotFound = errors.New("document not found")
	ErrClosed   = errors.New("store is closed")
)

// Store is a document database on top of BoltDB. Every collection is a
// bucket, every document a JSON object keyed by its id.
type Store struct {
	db     *bolt.DB
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[string]map[uint64]*subscription
	nextID uint64
	closed bool
}

// Open opens or creates the database file at path
func Open(path string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := append([]string{CollectionSessions}, EntityCollections...)
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		db:     db,
		path:   path,
		logger: logger,
		subs:   make(map[string]map[uint64]*subscription),
	}, nil
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// Close stops all subscriptions and closes the database
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, subs := range s.subs {
		for _, sub := range subs {
			sub.stop()
		}
	}
	s.subs = make(map[string]map[uint64]*subscription)
	s.mu.Unlock()

	return s.db.Close()
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Get returns a single document
func (s *Store) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := s.check(ctx); err != nil {
		return Document{}, err
	}

	var doc Document
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return ErrNotFound
		}
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		doc = Document{ID: id, Data: append(json.RawMessage(nil), data...)}
		return nil
	})
	return doc, err
}

// List returns every document of a collection ordered by creation date
func (s *Store) List(ctx context.Context, collection string) ([]Document, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var docs []Document
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			docs = append(docs, Document{
				ID:   string(k),
				Data: append(json.RawMessage(nil), v...),
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sortDocuments(docs)
	return docs, nil
}

// FindBy returns documents whose top-level string field equals value
func (s *Store) FindBy(ctx context.Context, collection, field, value string) ([]Document, error) {
	docs, err := s.List(ctx, collection)
	if err != nil {
		return nil, err
	}

	var out []Document
	for _, doc := range docs {
		var fields map[string]any
		if err := json.Unmarshal(doc.Data, &fields); err != nil {
			return nil, fmt.Errorf("failed to decode %s/%s: %w", collection, doc.ID, err)
		}
		if v, ok := fields[field].(string); ok && v == value {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Count returns the number of documents in a collection
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}

	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(collection)); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}

// Insert creates a new document and returns its generated id
func (s *Store) Insert(ctx context.Context, collection string, record any) (string, error) {
	if err := s.check(ctx); err != nil {
		return "", err
	}

	id := uuid.New().String()
	err := s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, collection, id, record)
	})
	observe(collection, "insert", err)
	if err != nil {
		return "", fmt.Errorf("failed to insert into %s: %w", collection, err)
	}

	s.notify(collection)
	return id, nil
}

// Update merges fields into an existing document
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return ErrNotFound
		}
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}

		var current map[string]any
		if err := json.Unmarshal(data, &current); err != nil {
			return fmt.Errorf("failed to decode document: %w", err)
		}
		for k, v := range fields {
			current[k] = v
		}
		return put(tx, collection, id, current)
	})
	observe(collection, "update", err)
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}

	s.notify(collection)
	return nil
}

// Remove deletes a document. Removing a missing document is not an error.
func (s *Store) Remove(ctx context.Context, collection, id string) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return remove(tx, collection, id)
	})
	observe(collection, "remove", err)
	if err != nil {
		return fmt.Errorf("failed to remove %s/%s: %w", collection, id, err)
	}

	s.notify(collection)
	return nil
}

// Batch applies all operations in a single transaction. Either every
// operation is committed or none is.
func (s *Store) Batch(ctx context.Context, ops []Op) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return apply(tx, ops)
	})
	observe("batch", "batch", err)
	if err != nil {
		return fmt.Errorf("batch failed: %w", err)
	}

	s.notify(affected(ops)...)
	return nil
}

// SeedIfEmpty applies ops when the probe collection holds no documents.
// The emptiness check and the writes share one transaction.
func (s *Store) SeedIfEmpty(ctx context.Context, probe string, ops []Op) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}

	seeded := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(probe)); b != nil {
			if k, _ := b.Cursor().First(); k != nil {
				return nil
			}
		}
		if err := apply(tx, ops); err != nil {
			return err
		}
		seeded = true
		return nil
	})
	observe(probe, "seed", err)
	if err != nil {
		return false, fmt.Errorf("failed to seed: %w", err)
	}

	if seeded {
		s.logger.Info("store seeded", "documents", len(ops))
		s.notify(affected(ops)...)
	}
	return seeded, nil
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrClosed
	}
	return nil
}

func apply(tx *bolt.Tx, ops []Op) error {
	for i, op := range ops {
		var err error
		switch op.Kind {
		case OpPut:
			err = put(tx, op.Collection, op.ID, op.Data)
		case OpDelete:
			err = remove(tx, op.Collection, op.ID)
		default:
			err = fmt.Errorf("unknown op kind %q", op.Kind)
		}
		if err != nil {
			return fmt.Errorf("op %d (%s %s/%s): %w", i, op.Kind, op.Collection, op.ID, err)
		}
	}
	return nil
}

func put(tx *bolt.Tx, collection, id string, record any) error {
	if id == "" {
		return errors.New("document id is required")
	}

	data, err := encode(record)
	if err != nil {
		return err
	}

	b, err := tx.CreateBucketIfNotExists([]byte(collection))
	if err != nil {
		return fmt.Errorf("failed to open bucket %s: %w", collection, err)
	}
	return b.Put([]byte(id), data)
}

func remove(tx *bolt.Tx, collection, id string) error {
	b := tx.Bucket([]byte(collection))
	if b == nil {
		return nil
	}
	return b.Delete([]byte(id))
}

// encode marshals record as a JSON object without its id field. The id is
// the document key.
func encode(record any) ([]byte, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("document must be a JSON object: %w", err)
	}
	delete(fields, "id")

	return json.Marshal(fields)
}

func affected(ops []Op) []string {
	seen := make(map[string]bool)
	var out []string
	for _, op := range ops {
		if !seen[op.Collection] {
			seen[op.Collection] = true
			out = append(out, op.Collection)
		}
	}
	return out
}

func sortDocuments(docs []Document) {
	created := make(map[string]time.Time, len(docs))
	for _, doc := range docs {
		var meta struct {
			CreatedAt time.Time `json:"createdAt"`
		}
		_ = json.Unmarshal(doc.Data, &meta)
		created[doc.ID] = meta.CreatedAt
	}

	sort.SliceStable(docs, func(i, j int) bool {
		ci, cj := created[docs[i].ID], created[docs[j].ID]
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return docs[i].ID < docs[j].ID
	})
}

func observe(collection, op string, err error) {
	m := metrics.Global()
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.StoreOperationsTotal.WithLabelValues(collection, op, result).Inc()
}
