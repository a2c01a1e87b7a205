package store

import (
	"context"
	"sync"
)

type subscription struct {
	collection string
	onChange   func([]Document)
	onError    func(error)

	notifyCh chan struct{}
	done     chan struct{}
	once     sync.Once
}

func (sub *subscription) stop() {
	sub.once.Do(func() {
		close(sub.done)
	})
}

func (sub *subscription) signal() {
	select {
	case sub.notifyCh <- struct{}{}:
	default:
	}
}

// Subscribe delivers a full snapshot of the collection to onChange right
// away and again after every committed write touching it. Snapshots are
// delivered sequentially from one goroutine. Read failures go to onError.
// The returned function stops the subscription.
func (s *Store) Subscribe(collection string, onChange func([]Document), onError func(error)) (func(), error) {
	sub := &subscription{
		collection: collection,
		onChange:   onChange,
		onError:    onError,
		notifyCh:   make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.nextID++
	id := s.nextID
	if s.subs[collection] == nil {
		s.subs[collection] = make(map[uint64]*subscription)
	}
	s.subs[collection][id] = sub
	s.mu.Unlock()

	sub.signal()
	go s.pump(sub)

	unsubscribe := func() {
		s.mu.Lock()
		if subs := s.subs[collection]; subs != nil {
			delete(subs, id)
		}
		s.mu.Unlock()
		sub.stop()
	}
	return unsubscribe, nil
}

func (s *Store) pump(sub *subscription) {
	for {
		select {
		case <-sub.done:
			return
		case <-sub.notifyCh:
		}

		docs, err := s.List(context.Background(), sub.collection)

		select {
		case <-sub.done:
			return
		default:
		}

		if err != nil {
			s.logger.Warn("subscription read failed", "collection", sub.collection, "error", err)
			if sub.onError != nil {
				sub.onError(err)
			}
			continue
		}
		if sub.onChange != nil {
			sub.onChange(docs)
		}
	}
}

func (s *Store) notify(collections ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range collections {
		for _, sub := range s.subs[c] {
			sub.signal()
		}
	}
}
