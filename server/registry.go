package server

import (
	"sync"

	"github.com/cyberinferno/go-gameserver/session"
)

// Registry tracks the live sessions of one server, keyed by session id, with
// a secondary index from actor id to session for addressing logged-in
// players. It is safe for concurrent use.
type Registry struct {
	sessions sync.Map // session id -> *session.Session
	actors   sync.Map // actor id -> session id
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add stores a session under its id.
func (r *Registry) Add(s *session.Session) {
	r.sessions.Store(s.ID(), s)
}

// Remove drops the session and any actor index entry pointing at it. Safe to
// call for a session that was never added.
func (r *Registry) Remove(s *session.Session) {
	r.sessions.Delete(s.ID())

	if a := s.Actor(); a != nil {
		if id, ok := r.actors.Load(a.ActorID()); ok && id == s.ID() {
			r.actors.Delete(a.ActorID())
		}
	}
}

// Get returns the session with the given id, if present.
func (r *Registry) Get(id string) (*session.Session, bool) {
	v, ok := r.sessions.Load(id)
	if !ok {
		return nil, false
	}

	return v.(*session.Session), true
}

// BindActor records that actorID is served by s. Call it alongside
// session.BindActor after a successful login so server-initiated sends can
// find the player's session.
func (r *Registry) BindActor(actorID string, s *session.Session) {
	r.actors.Store(actorID, s.ID())
}

// ByActor returns the session currently associated with actorID, if any.
func (r *Registry) ByActor(actorID string) (*session.Session, bool) {
	id, ok := r.actors.Load(actorID)
	if !ok {
		return nil, false
	}

	return r.Get(id.(string))
}

// Each calls f for every live session until f returns false.
func (r *Registry) Each(f func(s *session.Session) bool) {
	r.sessions.Range(func(_, v any) bool {
		return f(v.(*session.Session))
	})
}

// Len returns the number of live sessions. It iterates; use sparingly.
func (r *Registry) Len() int {
	n := 0
	r.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})

	return n
}
