// Package session persists chat sessions and their diagram state.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/uber-go/tally"
)

type Options struct {
	Now   func() time.Time
	NewID func() string
	Stats tally.Scope
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = func() string { return uuid.Must(uuid.NewV7()).String() }
	}
	if o.Stats == nil {
		o.Stats = tally.NoopScope
	}
	return o
}

// Store is the session API over a Repository. Writes to one session id are
// serialized; different ids never wait on each other.
type Store struct {
	repo  Repository
	opts  Options
	stats tally.Scope
	locks keyedMutex
}

func NewStore(repo Repository, opts Options) *Store {
	opts = opts.withDefaults()
	return &Store{
		repo:  repo,
		opts:  opts,
		stats: opts.Stats.SubScope("sessions"),
	}
}

// Create persists a new empty session with the default config.
func (s *Store) Create() (Session, error) {
	now := s.opts.Now()
	sess := Session{
		ID:             s.opts.NewID(),
		CreatedAt:      now,
		LastAccessedAt: now,
		ChatHistory:    []Message{},
		Config:         DefaultConfig(),
	}

	unlock := s.locks.Lock(sess.ID)
	defer unlock()

	if err := s.put("create", sess); err != nil {
		return Session{}, err
	}
	s.stats.Counter("created").Inc(1)
	slog.Info("session created", "sessionId", sess.ID)
	return sess, nil
}

// Get does not touch LastAccessedAt.
func (s *Store) Get(id string) (Session, error) {
	return s.load("get", id)
}

// Update merges u over the stored session and refreshes LastAccessedAt.
func (s *Store) Update(id string, u Update) (Session, error) {
	return s.mutate("update", id, u.apply)
}

// Delete is idempotent.
func (s *Store) Delete(id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.repo.Delete(id); err != nil {
		return &PersistenceError{Op: "delete", ID: id, Err: err}
	}
	return nil
}

// SaveChatMessage appends msg to the session history. Missing id,
// session id and timestamp are filled in.
func (s *Store) SaveChatMessage(id string, msg Message) (Message, error) {
	if msg.ID == "" {
		msg.ID = s.opts.NewID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.opts.Now()
	}
	msg.SessionID = id

	_, err := s.mutate("save message", id, func(sess *Session) {
		sess.ChatHistory = append(sess.ChatHistory, msg)
	})
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

// SaveDiagram replaces the current diagram.
func (s *Store) SaveDiagram(id string, d Diagram) (Session, error) {
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = s.opts.Now()
	}
	return s.Update(id, Update{CurrentDiagram: &d})
}

// Restore returns the session after touching LastAccessedAt.
func (s *Store) Restore(id string) (Session, error) {
	return s.Update(id, Update{})
}

// CleanupExpired deletes sessions not accessed within retention and
// returns how many were deleted. A failed deletion is logged and skipped;
// all such failures are joined into the returned error.
func (s *Store) CleanupExpired(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := s.opts.Now().Add(-retention)
	ids, err := s.repo.ListAccessedBefore(cutoff)
	if err != nil {
		return 0, &PersistenceError{Op: "scan", Err: err}
	}

	var deleted int
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		ok, err := s.deleteIfExpired(id, cutoff)
		if err != nil {
			slog.Error("failed to delete expired session", "sessionId", id, "error", err)
			s.stats.Counter("expire_failures").Inc(1)
			errs = append(errs, err)
			continue
		}
		if ok {
			deleted++
		}
	}

	s.stats.Counter("expired").Inc(int64(deleted))
	return deleted, errors.Join(errs...)
}

// deleteIfExpired re-checks expiry under the session lock so a session
// touched after the scan survives.
func (s *Store) deleteIfExpired(id string, cutoff time.Time) (bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	rec, found, err := s.repo.Get(id)
	if err != nil {
		return false, &PersistenceError{Op: "get", ID: id, Err: err}
	}
	if found && !rec.LastAccessedAt.Before(cutoff) {
		return false, nil
	}
	if err := s.repo.Delete(id); err != nil {
		return false, &PersistenceError{Op: "delete", ID: id, Err: err}
	}
	return found, nil
}

func (s *Store) mutate(op, id string, fn func(*Session)) (Session, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.load(op, id)
	if err != nil {
		return Session{}, err
	}
	fn(&sess)
	if now := s.opts.Now(); now.After(sess.LastAccessedAt) {
		sess.LastAccessedAt = now
	}
	if err := s.put(op, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *Store) load(op, id string) (Session, error) {
	rec, found, err := s.repo.Get(id)
	if err != nil {
		return Session{}, &PersistenceError{Op: op, ID: id, Err: err}
	}
	if !found {
		return Session{}, ErrSessionNotFound
	}
	sess, err := fromRecord(rec)
	if err != nil {
		return Session{}, &PersistenceError{Op: op, ID: id, Err: err}
	}
	return sess, nil
}

func (s *Store) put(op string, sess Session) error {
	rec, err := toRecord(sess)
	if err == nil {
		err = s.repo.Put(rec)
	}
	if err != nil {
		s.stats.Counter("persist_failures").Inc(1)
		return &PersistenceError{Op: op, ID: sess.ID, Err: err}
	}
	return nil
}

// keyedMutex hands out one mutex per key, dropping it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refMutex{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
