// Package review serves the compile review screen: an SSE event stream of
// live compile runs plus an HTTP API over stored sessions and their
// artifacts.
package review

import "github.com/simforge/simforge/internal/session"

// Review ties together all review screen components.
type Review struct {
	Server  *Server
	Store   *Store
	Hub     *Hub
	Emitter *Emitter
}

// New creates a fully wired review screen. sessions may be nil when no
// session store is configured.
func New(config *Config, sessions *session.Store) *Review {
	store := NewStore()
	hub := NewHub()
	emitter := NewEmitter(store, hub)
	server := NewServer(config, store, sessions, hub)

	return &Review{
		Server:  server,
		Store:   store,
		Hub:     hub,
		Emitter: emitter,
	}
}
