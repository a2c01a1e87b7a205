// Package provider owns the in-memory mirrors of every entity collection
// and is the only sanctioned mutation surface of the application.
//
// Mirrors are written exclusively by store subscription callbacks. Commands
// write through the store and never touch local state, so a successful
// command becomes visible once the store echoes the change back.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxzi/techsupport/internal/metrics"
	"github.com/foxzi/techsupport/internal/web/models"
	"github.com/foxzi/techsupport/internal/web/seed"
	"github.com/foxzi/techsupport/internal/web/store"
)

// State is the connection state of the provider
type State string

const (
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateError      State = "error"
)

var (
	ErrDatabaseUnavailable = errors.New("database is not available")
	ErrConfiguration       = errors.New("store configuration error")
	ErrConnectionTimeout   = errors.New("timed out waiting for the store")
)

// DefaultConnectTimeout bounds the wait for the first acknowledgment
const DefaultConnectTimeout = 60 * time.Second

// Status is a snapshot of the connection state
type Status struct {
	State     State  `json:"state"`
	Error     string `json:"error,omitempty"`
	ProjectID string `json:"projectId,omitempty"`
}

// DocumentStore is the subset of store.Store used by the provider
type DocumentStore interface {
	Subscribe(collection string, onChange func([]store.Document), onError func(error)) (func(), error)
	Insert(ctx context.Context, collection string, record any) (string, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Remove(ctx context.Context, collection, id string) error
	Get(ctx context.Context, collection, id string) (store.Document, error)
	List(ctx context.Context, collection string) ([]store.Document, error)
	Batch(ctx context.Context, ops []store.Op) error
	SeedIfEmpty(ctx context.Context, probe string, ops []store.Op) (bool, error)
	FindBy(ctx context.Context, collection, field, value string) ([]store.Document, error)
	Count(ctx context.Context, collection string) (int, error)
	Close() error
}

// Opener opens the document store at path
type Opener func(path string, logger *slog.Logger) (DocumentStore, error)

// OpenBolt opens a bbolt-backed store
func OpenBolt(path string, logger *slog.Logger) (DocumentStore, error) {
	return store.Open(path, logger)
}

// Config configures the provider
type Config struct {
	StorePath      string
	ProjectID      string
	ConnectTimeout time.Duration
	Seed           bool
	// PasswordCost is the bcrypt cost for seeded and updated passwords
	PasswordCost int
}

// Event is delivered to watchers after a mirror or the status changes
type Event struct {
	Collection string `json:"collection,omitempty"`
	Count      int    `json:"count"`
	Status     Status `json:"status"`
}

// Provider holds the live mirrors and the connection state
type Provider struct {
	cfg    Config
	open   Opener
	logger *slog.Logger

	mu            sync.RWMutex
	status        Status
	store         DocumentStore
	unsubscribers []func()
	acked         map[string]bool
	timer         *time.Timer
	settled       chan struct{}
	settleOnce    sync.Once

	environments  []models.Environment
	organizations []models.Organization
	apiKeys       []models.APIKey
	orgPaths      []models.OrgPath
	apiActions    []models.APIAction
	users         []models.User

	watchMu   sync.Mutex
	watchers  map[uint64]func(Event)
	nextWatch uint64
}

// New creates a provider in the connecting state. A nil opener uses bbolt.
func New(cfg Config, open Opener, logger *slog.Logger) *Provider {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if open == nil {
		open = OpenBolt
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Provider{
		cfg:    cfg,
		open:   open,
		logger: logger,
		status: Status{
			State:     StateConnecting,
			ProjectID: cfg.ProjectID,
		},
		acked:    make(map[string]bool),
		settled:  make(chan struct{}),
		watchers: make(map[uint64]func(Event)),
	}
}

// Start connects to the store, seeds it when empty and opens one live
// subscription per collection. Setup failures move the provider to the
// error state and are also returned. There is no way out of the error
// state other than a new provider.
func (p *Provider) Start(ctx context.Context) error {
	metrics.SetConnectionState(string(StateConnecting))

	if err := p.checkConfig(); err != nil {
		p.fail(err)
		return err
	}

	st, err := p.open(p.cfg.StorePath, p.logger)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrConfiguration, err)
		p.fail(err)
		return err
	}

	p.mu.Lock()
	p.store = st
	p.timer = time.AfterFunc(p.cfg.ConnectTimeout, func() {
		p.fail(fmt.Errorf("%w after %s", ErrConnectionTimeout, p.cfg.ConnectTimeout))
	})
	p.mu.Unlock()

	if p.cfg.Seed {
		if _, err := p.SeedIfEmpty(ctx); err != nil {
			p.fail(err)
			return err
		}
	}

	for _, coll := range store.EntityCollections {
		coll := coll
		unsubscribe, err := st.Subscribe(coll,
			func(docs []store.Document) { p.onSnapshot(coll, docs) },
			func(err error) { p.fail(fmt.Errorf("subscription to %s failed: %w", coll, err)) },
		)
		if err != nil {
			err = fmt.Errorf("failed to subscribe to %s: %w", coll, err)
			p.fail(err)
			return err
		}
		p.mu.Lock()
		p.unsubscribers = append(p.unsubscribers, unsubscribe)
		p.mu.Unlock()
	}

	return nil
}

func (p *Provider) checkConfig() error {
	var missing []string
	if p.cfg.StorePath == "" {
		missing = append(missing, "store path")
	}
	if p.cfg.ProjectID == "" {
		missing = append(missing, "project id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %v", ErrConfiguration, missing)
	}
	return nil
}

// SeedIfEmpty writes the default dataset when the users collection is empty
func (p *Provider) SeedIfEmpty(ctx context.Context) (bool, error) {
	p.mu.RLock()
	st := p.store
	p.mu.RUnlock()
	if st == nil {
		return false, ErrDatabaseUnavailable
	}

	ops, err := seed.Default().Ops(p.cfg.PasswordCost)
	if err != nil {
		return false, err
	}
	return st.SeedIfEmpty(ctx, seed.ProbeCollection, ops)
}

// WaitConnected blocks until the provider leaves the connecting state and
// returns the resulting error, if any.
func (p *Provider) WaitConnected(ctx context.Context) error {
	select {
	case <-p.settled:
	case <-ctx.Done():
		return ctx.Err()
	}

	st := p.Status()
	if st.State == StateError {
		return errors.New(st.Error)
	}
	return nil
}

// Status returns the current connection state
func (p *Provider) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Connected reports whether commands may be issued
func (p *Provider) Connected() bool {
	return p.Status().State == StateConnected
}

// Counter exposes the store for metrics sampling; nil before Start
func (p *Provider) Counter() metrics.DocumentCounter {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.store == nil {
		return nil
	}
	return p.store
}

// Documents returns the underlying store for collections the provider
// does not mirror, such as sessions
func (p *Provider) Documents() (DocumentStore, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.store == nil {
		return nil, ErrDatabaseUnavailable
	}
	return p.store, nil
}

// Close releases every subscription and closes the store
func (p *Provider) Close() error {
	p.mu.Lock()
	unsubs := p.unsubscribers
	p.unsubscribers = nil
	st := p.store
	p.store = nil
	if p.timer != nil {
		p.timer.Stop()
	}
	p.mu.Unlock()

	for _, unsubscribe := range unsubs {
		unsubscribe()
	}
	if st == nil {
		return nil
	}
	return st.Close()
}

func (p *Provider) fail(err error) {
	p.mu.Lock()
	if p.status.State != StateConnecting {
		p.mu.Unlock()
		return
	}
	p.status.State = StateError
	p.status.Error = err.Error()
	if p.timer != nil {
		p.timer.Stop()
	}
	status := p.status
	p.mu.Unlock()

	p.logger.Error("store connection failed", "error", err)
	metrics.SetConnectionState(string(StateError))
	p.settle()
	p.emit(Event{Status: status})
}

func (p *Provider) settle() {
	p.settleOnce.Do(func() { close(p.settled) })
}

func (p *Provider) onSnapshot(collection string, docs []store.Document) {
	var err error

	p.mu.Lock()
	switch collection {
	case store.CollectionEnvironments:
		p.environments, err = decodeInto(p.environments, docs)
	case store.CollectionOrganizations:
		p.organizations, err = decodeInto(p.organizations, docs)
	case store.CollectionAPIKeys:
		p.apiKeys, err = decodeInto(p.apiKeys, docs)
	case store.CollectionOrgPaths:
		p.orgPaths, err = decodeInto(p.orgPaths, docs)
	case store.CollectionAPIActions:
		p.apiActions, err = decodeInto(p.apiActions, docs)
	case store.CollectionUsers:
		p.users, err = decodeInto(p.users, docs)
	}
	if err != nil {
		p.mu.Unlock()
		p.logger.Warn("failed to decode snapshot", "collection", collection, "error", err)
		return
	}

	p.acked[collection] = true
	becameConnected := false
	if p.status.State == StateConnecting && len(p.acked) == len(store.EntityCollections) {
		p.status.State = StateConnected
		if p.timer != nil {
			p.timer.Stop()
		}
		becameConnected = true
	}
	status := p.status
	p.mu.Unlock()

	if becameConnected {
		p.logger.Info("connected to store", "path", p.cfg.StorePath, "project_id", p.cfg.ProjectID)
		metrics.SetConnectionState(string(StateConnected))
		p.settle()
	}
	p.emit(Event{Collection: collection, Count: len(docs), Status: status})
}

// decodeInto replaces a mirror with a freshly decoded snapshot. The old
// mirror is kept when decoding fails.
func decodeInto[T any](old []T, docs []store.Document) ([]T, error) {
	fresh, err := store.DecodeAll[T](docs)
	if err != nil {
		return old, err
	}
	return fresh, nil
}

// Watch registers fn for change events and returns a cancel function.
// fn runs on the subscription goroutine and must not block.
func (p *Provider) Watch(fn func(Event)) func() {
	p.watchMu.Lock()
	p.nextWatch++
	id := p.nextWatch
	p.watchers[id] = fn
	p.watchMu.Unlock()

	return func() {
		p.watchMu.Lock()
		delete(p.watchers, id)
		p.watchMu.Unlock()
	}
}

func (p *Provider) emit(ev Event) {
	p.watchMu.Lock()
	fns := make([]func(Event), 0, len(p.watchers))
	for _, fn := range p.watchers {
		fns = append(fns, fn)
	}
	p.watchMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// connectedStore returns the store when commands are allowed
func (p *Provider) connectedStore() (DocumentStore, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.status.State != StateConnected || p.store == nil {
		return nil, ErrDatabaseUnavailable
	}
	return p.store, nil
}
