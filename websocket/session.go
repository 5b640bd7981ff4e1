// Package websocket owns the per-connection side of the realtime
// subsystem: one Session per client connection, handling heartbeat,
// inbound envelope parsing, and outbound delivery. Every stateful
// decision is delegated to the hub.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/phidinhthang/tiny-chat/config"
	"github.com/phidinhthang/tiny-chat/hub"
	"github.com/phidinhthang/tiny-chat/metrics"
)

// Session is the actor for one live client connection. It registers
// with the hub on start, pumps frames in both directions, and
// guarantees the hub sees exactly one disconnect no matter which
// termination path fires first.
type Session struct {
	conn *websocket.Conn
	hub  *hub.Hub
	cfg  *config.WebSocketConfig

	id  uint64
	out chan []byte

	mu     sync.Mutex
	userID *uuid.UUID

	lastSeen  atomicTime
	closeOnce sync.Once
	done      chan struct{}
}

// atomicTime stores a unix-nano timestamp updated from the read loop
// and observed by the heartbeat goroutine.
type atomicTime struct {
	mu sync.Mutex
	t  time.Time
}

func (a *atomicTime) set(t time.Time) {
	a.mu.Lock()
	a.t = t
	a.mu.Unlock()
}

func (a *atomicTime) get() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.t
}

// NewSession wraps an upgraded connection. Run must be called to start
// the session.
func NewSession(conn *websocket.Conn, h *hub.Hub, cfg *config.WebSocketConfig) *Session {
	s := &Session{
		conn: conn,
		hub:  h,
		cfg:  cfg,
		out:  make(chan []byte, cfg.OutboundBuffer),
		done: make(chan struct{}),
	}
	s.lastSeen.set(time.Now())
	return s
}

// Run registers the session with the hub and services the connection
// until it terminates. It blocks for the lifetime of the connection.
func (s *Session) Run() {
	id, err := s.hub.Connect(s.out)
	if err != nil {
		log.Printf("Rejecting connection, hub unavailable: %v", err)
		s.conn.Close()
		return
	}
	s.id = id

	s.conn.SetReadLimit(s.cfg.MessageSizeLimit)
	s.conn.SetPongHandler(func(string) error {
		s.lastSeen.set(time.Now())
		return nil
	})
	s.conn.SetPingHandler(func(appData string) error {
		s.lastSeen.set(time.Now())
		return s.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(s.cfg.WriteDeadline()))
	})

	go s.writePump()
	go s.heartbeat()

	s.readLoop()
}

// heartbeat probes the client at a fixed interval and unilaterally
// disconnects after too long without inbound activity. This is the only
// liveness check in the system; the hub does no timeout tracking.
func (s *Session) heartbeat() {
	ticker := time.NewTicker(s.cfg.Heartbeat())
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if time.Since(s.lastSeen.get()) > s.cfg.Timeout() {
				log.Printf("Session %d heartbeat failed, disconnecting", s.id)
				metrics.HeartbeatTimeouts.Inc()
				s.teardown(websocket.ClosePolicyViolation, "heartbeat timeout")
				return
			}
			deadline := time.Now().Add(s.cfg.WriteDeadline())
			if err := s.conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
				log.Printf("Failed to ping session %d: %v", s.id, err)
				s.teardown(websocket.CloseInternalServerErr, "ping failure")
				return
			}
		}
	}
}

// writePump drains the outbound buffer onto the wire. Frames are
// written in the order the hub issued them.
func (s *Session) writePump() {
	for {
		select {
		case <-s.done:
			return
		case data := <-s.out:
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteDeadline())); err != nil {
				s.teardown(websocket.CloseInternalServerErr, "write deadline failure")
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Write error on session %d: %v", s.id, err)
				}
				s.teardown(websocket.CloseInternalServerErr, "write failure")
				return
			}
		}
	}
}

func (s *Session) readLoop() {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, net.ErrClosed) && !isExpectedCloseError(err) {
				log.Printf("Read error on session %d: %v", s.id, err)
			}
			s.teardown(websocket.CloseNormalClosure, "client disconnected")
			return
		}
		s.lastSeen.set(time.Now())

		switch messageType {
		case websocket.TextMessage:
			if !s.handleFrame(data) {
				return
			}
		case websocket.BinaryMessage:
			// Not part of the protocol; log and carry on.
			log.Printf("Ignoring binary frame from session %d (%d bytes)", s.id, len(data))
		}
	}
}

// handleFrame dispatches one inbound envelope. It returns false when
// the session must terminate (malformed payloads are protocol errors).
func (s *Session) handleFrame(data []byte) bool {
	var env hub.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("Malformed frame from session %d: %v", s.id, err)
		s.teardown(websocket.CloseInvalidFramePayloadData, "malformed frame")
		return false
	}

	switch env.Op {
	case hub.OpAuth:
		var token string
		if err := json.Unmarshal(env.D, &token); err != nil {
			log.Printf("Malformed auth payload from session %d: %v", s.id, err)
			s.teardown(websocket.CloseInvalidFramePayloadData, "malformed auth payload")
			return false
		}
		// Await the hub's reply off the read loop so heartbeats and
		// further frames keep flowing during verification.
		go s.authenticate(token)
	default:
		s.enqueue([]byte(fmt.Sprintf("!!! unknown command: %q", env.Op)))
	}
	return true
}

// authenticate performs the request/response exchange with the hub and
// reports the outcome to the client as an auth-good envelope carrying
// the resolved identity, or null when verification failed. The binding
// is replaced only on success.
func (s *Session) authenticate(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	userID, ok := s.hub.Authenticate(ctx, s.id, token)

	var payload interface{}
	if ok {
		s.setUserID(userID)
		payload = userID
	}
	env, err := hub.NewEnvelope(hub.OpAuthGood, payload)
	if err != nil {
		log.Printf("Failed to build auth-good reply for session %d: %v", s.id, err)
		return
	}
	data, err := env.Encode()
	if err != nil {
		log.Printf("Failed to encode auth-good reply for session %d: %v", s.id, err)
		return
	}
	s.enqueue(data)
}

// enqueue hands a frame to the write pump without blocking the caller.
func (s *Session) enqueue(data []byte) {
	select {
	case s.out <- data:
	default:
		metrics.EnvelopesDropped.Inc()
		log.Printf("Dropping frame for session %d: outbound buffer full", s.id)
	}
}

func (s *Session) setUserID(id uuid.UUID) {
	s.mu.Lock()
	s.userID = &id
	s.mu.Unlock()
}

func (s *Session) boundUserID() *uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// teardown converges every termination path (client close, heartbeat
// timeout, protocol error, write failure) onto a single cleanup that
// notifies the hub exactly once.
func (s *Session) teardown(code int, reason string) {
	s.closeOnce.Do(func() {
		close(s.done)
		s.hub.Disconnect(s.id, s.boundUserID())

		deadline := time.Now().Add(s.cfg.WriteDeadline())
		if err := s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline); err != nil {
			if !isExpectedCloseError(err) {
				log.Printf("Error sending close frame to session %d: %v", s.id, err)
			}
		}
		s.conn.Close()
	})
}
