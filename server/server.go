// Package server exposes the HTTP surface of the realtime subsystem:
// the websocket endpoint, a health probe, and internal endpoints the
// REST tier calls to push domain events into the hub.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/phidinhthang/tiny-chat/hub"
)

// Server wraps the HTTP listener and its routes.
type Server struct {
	httpServer *http.Server
	hub        *hub.Hub
}

// New builds the router and server. wsHandler serves the websocket
// upgrade endpoint.
func New(addr string, h *hub.Hub, wsHandler http.HandlerFunc, readTimeout, writeTimeout time.Duration) *Server {
	s := &Server{hub: h}

	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, "/ws", wsHandler)
	router.GET("/healthz", s.health)
	router.POST("/internal/events/message", s.newMessage)
	router.POST("/internal/events/user", s.newUser)
	router.POST("/internal/events/message-deleted", s.messageDeleted)
	router.POST("/internal/events/reaction", s.reactionUpdated)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: router,
		// These apply to plain HTTP requests only; upgraded websocket
		// connections are hijacked out from under the server.
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return s
}

// Start runs the listener until Shutdown is called or it fails.
func (s *Server) Start() error {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting new connections and drains in-flight
// requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	snap, err := s.hub.Snapshot(r.Context())
	if err != nil {
		http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "ok",
		"sessions":    len(snap.SessionIDs),
		"onlineUsers": len(snap.Online),
		"visitors":    snap.Visitors,
	})
}

// decodeEvent reads an event body, replying 400 on malformed JSON.
func decodeEvent(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		log.Printf("Rejecting malformed event on %s: %v", r.URL.Path, err)
		http.Error(w, "malformed event payload", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) newMessage(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var ev hub.NewMessage
	if !decodeEvent(w, r, &ev) {
		return
	}
	s.hub.PublishNewMessage(ev)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) newUser(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var ev hub.NewUser
	if !decodeEvent(w, r, &ev) {
		return
	}
	s.hub.PublishNewUser(ev)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) messageDeleted(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var ev hub.MessageDeleted
	if !decodeEvent(w, r, &ev) {
		return
	}
	s.hub.PublishMessageDeleted(ev)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) reactionUpdated(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var ev hub.ReactionUpdated
	if !decodeEvent(w, r, &ev) {
		return
	}
	s.hub.PublishReactionUpdated(ev)
	w.WriteHeader(http.StatusAccepted)
}
