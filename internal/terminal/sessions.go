package terminal

import (
	"context"
	"sync"

	"github.com/appetiteclub/apt"
	"github.com/forkline/forkline/internal/engine"
	"github.com/google/uuid"
)

// SessionRegistry tracks one engine session per open table view. Sessions
// are created on first open and torn down when the operator leaves the
// table or the terminal shuts down.
type SessionRegistry struct {
	ctx     context.Context
	client  engine.StoreClient
	changes *engine.ChangeSubscription
	cfg     engine.SessionConfig
	logger  apt.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*engine.Session
}

func NewSessionRegistry(ctx context.Context, client engine.StoreClient, changes *engine.ChangeSubscription, cfg engine.SessionConfig, logger apt.Logger) *SessionRegistry {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &SessionRegistry{
		ctx:      ctx,
		client:   client,
		changes:  changes,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[uuid.UUID]*engine.Session),
	}
}

// Open returns the table's session, creating and attaching one when the
// table view is opened for the first time.
func (r *SessionRegistry) Open(ctx context.Context, tableID uuid.UUID) (*engine.Session, error) {
	r.mu.Lock()
	if session, ok := r.sessions[tableID]; ok {
		r.mu.Unlock()
		return session, nil
	}
	session := engine.NewSession(r.ctx, tableID, r.client, r.changes, r.cfg, r.logger)
	r.sessions[tableID] = session
	r.mu.Unlock()

	if err := session.Open(ctx); err != nil {
		r.Close(tableID)
		return nil, err
	}
	return session, nil
}

// Get returns an already-open session.
func (r *SessionRegistry) Get(tableID uuid.UUID) (*engine.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[tableID]
	return session, ok
}

// Close disposes the table's session. Closing a table that has no open
// session is a no-op.
func (r *SessionRegistry) Close(tableID uuid.UUID) {
	r.mu.Lock()
	session, ok := r.sessions[tableID]
	if ok {
		delete(r.sessions, tableID)
	}
	r.mu.Unlock()
	if ok {
		session.Close()
	}
}

// Stop closes every open session; wired as a lifecycle OnStop hook.
func (r *SessionRegistry) Stop(context.Context) error {
	r.mu.Lock()
	sessions := make([]*engine.Session, 0, len(r.sessions))
	for id, session := range r.sessions {
		sessions = append(sessions, session)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
	return nil
}
