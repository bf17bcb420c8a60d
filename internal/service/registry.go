package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/stemsi/exstem-exam-engine/internal/apiclient"
)

// Bootstrapper creates sessions. *BootstrapService implements it.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, examID string) (*Session, error)
}

// Registry owns the live sessions of this engine, keyed by exam id.
// Concurrent opens of the same exam share one bootstrap. A session only
// answers to the caller that opened it; see apiclient.CallerFrom.
type Registry struct {
	boot Bootstrapper
	log  zerolog.Logger

	group singleflight.Group

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(boot Bootstrapper, log zerolog.Logger) *Registry {
	return &Registry{
		boot:     boot,
		log:      log.With().Str("component", "session_registry").Logger(),
		sessions: make(map[string]*Session),
	}
}

// Open returns the live session for examID, bootstrapping one if needed.
// created reports whether this call built it. A session owned by another
// caller yields ErrSessionForbidden.
func (r *Registry) Open(ctx context.Context, examID string) (sess *Session, created bool, err error) {
	caller := apiclient.CallerFrom(ctx)
	if sess, ok := r.get(examID); ok {
		if !sess.OwnedBy(caller) {
			return nil, false, ErrSessionForbidden
		}
		return sess, false, nil
	}

	type opened struct {
		sess    *Session
		created bool
	}
	v, err, shared := r.group.Do(examID, func() (interface{}, error) {
		if sess, ok := r.get(examID); ok {
			return opened{sess: sess}, nil
		}
		sess, err := r.boot.Bootstrap(ctx, examID)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.sessions[examID] = sess
		r.mu.Unlock()
		return opened{sess: sess, created: true}, nil
	})
	if err != nil {
		return nil, false, err
	}
	o := v.(opened)
	if !o.sess.OwnedBy(caller) {
		r.log.Warn().Str("exam_id", examID).Msg("Rejected open of a session owned by another caller")
		return nil, false, ErrSessionForbidden
	}
	return o.sess, o.created && !shared, nil
}

// Lookup returns caller's live session for examID.
func (r *Registry) Lookup(ctx context.Context, examID string) (*Session, error) {
	sess, ok := r.get(examID)
	switch {
	case !ok:
		return nil, ErrNoSession
	case !sess.OwnedBy(apiclient.CallerFrom(ctx)):
		return nil, ErrSessionForbidden
	}
	return sess, nil
}

func (r *Registry) get(examID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[examID]
	return sess, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close tears down and forgets caller's session for examID.
func (r *Registry) Close(ctx context.Context, examID string) error {
	r.mu.Lock()
	sess, ok := r.sessions[examID]
	switch {
	case !ok:
		r.mu.Unlock()
		return ErrNoSession
	case !sess.OwnedBy(apiclient.CallerFrom(ctx)):
		r.mu.Unlock()
		return ErrSessionForbidden
	}
	delete(r.sessions, examID)
	r.mu.Unlock()

	sess.Close()
	r.log.Info().Str("exam_id", examID).Msg("Session torn down")
	return nil
}

// CloseAll tears down every session. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	if len(sessions) > 0 {
		r.log.Info().Int("sessions", len(sessions)).Msg("All sessions torn down")
	}
}
