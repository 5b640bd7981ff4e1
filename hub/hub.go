// Package hub implements the central coordinator of the realtime
// delivery subsystem. The Hub is the single owner of the session
// directory and the presence sets: every mutation goes through its run
// loop, so no other locking is needed.
package hub

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/phidinhthang/tiny-chat/auth"
	"github.com/phidinhthang/tiny-chat/membership"
	"github.com/phidinhthang/tiny-chat/metrics"
	"github.com/phidinhthang/tiny-chat/presence"
)

const (
	// commandBuffer absorbs bursts of fire-and-forget events from the
	// REST tier without blocking their handlers.
	commandBuffer = 256

	// collaboratorTimeout bounds every verifier/resolver/repository call
	// made from the run loop.
	collaboratorTimeout = 5 * time.Second
)

// ErrHubClosed is returned when an operation is attempted against a hub
// that has been shut down.
var ErrHubClosed = errors.New("hub is closed")

// sessionRecord is the directory entry for one live connection.
type sessionRecord struct {
	out    chan<- []byte
	userID *uuid.UUID
}

// Hub routes domain events to connected sessions and maintains the
// online/offline presence model. All state behind it is mutated only by
// the goroutine running Run.
type Hub struct {
	verifier auth.Verifier
	members  membership.Resolver
	presence presence.Repository

	commands chan command

	// Owned exclusively by the run loop.
	sessions map[uint64]*sessionRecord
	users    map[uuid.UUID]map[uint64]struct{}
	seq      uint64
	rng      *rand.Rand
	visitors uint64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a hub wired to its three collaborators. Call Run in a
// goroutine before using it.
func New(verifier auth.Verifier, members membership.Resolver, presenceRepo presence.Repository) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		verifier: verifier,
		members:  members,
		presence: presenceRepo,
		commands: make(chan command, commandBuffer),
		sessions: make(map[uint64]*sessionRecord),
		users:    make(map[uuid.UUID]map[uint64]struct{}),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

type command interface{}

type connectCmd struct {
	out   chan<- []byte
	reply chan uint64
}

type authReply struct {
	userID uuid.UUID
	ok     bool
}

type authCmd struct {
	token     string
	sessionID uint64
	reply     chan authReply
}

type disconnectCmd struct {
	sessionID uint64
	userID    *uuid.UUID
}

type broadcastCmd struct {
	env Envelope
}

type newMessageCmd struct{ ev NewMessage }
type newUserCmd struct{ ev NewUser }
type messageDeletedCmd struct{ ev MessageDeleted }
type reactionUpdatedCmd struct{ ev ReactionUpdated }

type snapshotCmd struct {
	reply chan Snapshot
}

// Run executes the hub's event loop until Shutdown is called. It must
// run in exactly one goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			return
		case cmd := <-h.commands:
			h.dispatch(cmd)
		}
	}
}

// Shutdown stops the run loop and waits for it to drain, up to timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.cancel()

	select {
	case <-h.done:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}

func (h *Hub) dispatch(cmd command) {
	switch c := cmd.(type) {
	case connectCmd:
		h.handleConnect(c)
	case authCmd:
		h.handleAuth(c)
	case disconnectCmd:
		h.handleDisconnect(c)
	case broadcastCmd:
		h.broadcast(c.env)
	case newMessageCmd:
		h.fanOut(OpNewMessage, c.ev.Message.ConversationID, c.ev.Message.AuthorID, c.ev)
	case messageDeletedCmd:
		h.fanOut(OpMessageDeleted, c.ev.ConversationID, c.ev.AuthorID, c.ev)
	case reactionUpdatedCmd:
		h.fanOut(OpReactionUpdated, c.ev.ConversationID, c.ev.UserID, c.ev)
	case newUserCmd:
		h.broadcastPayload(OpNewUser, c.ev)
		metrics.EventsFannedOut.WithLabelValues(OpNewUser).Inc()
	case snapshotCmd:
		c.reply <- h.snapshot()
	default:
		log.Printf("Hub received unknown command %T", cmd)
	}
}

// submit enqueues a command unless the hub has shut down.
func (h *Hub) submit(cmd command) bool {
	select {
	case h.commands <- cmd:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Connect registers a session's outbound handle and returns its fresh
// session identifier. The handle receives at most one frame per send;
// a full handle causes frames to be dropped, never blocks the hub.
func (h *Hub) Connect(out chan<- []byte) (uint64, error) {
	reply := make(chan uint64, 1)
	if !h.submit(connectCmd{out: out, reply: reply}) {
		return 0, ErrHubClosed
	}
	select {
	case id := <-reply:
		return id, nil
	case <-h.ctx.Done():
		return 0, ErrHubClosed
	}
}

// Authenticate verifies a bearer token on behalf of a session. On
// success it binds the session to the resolved user, records the
// presence transition and announces it; on failure nothing changes.
// The boolean reports whether a user identity was resolved.
func (h *Hub) Authenticate(ctx context.Context, sessionID uint64, token string) (uuid.UUID, bool) {
	reply := make(chan authReply, 1)
	select {
	case h.commands <- authCmd{token: token, sessionID: sessionID, reply: reply}:
	case <-ctx.Done():
		return uuid.Nil, false
	case <-h.ctx.Done():
		return uuid.Nil, false
	}

	select {
	case res := <-reply:
		return res.userID, res.ok
	case <-ctx.Done():
		return uuid.Nil, false
	case <-h.ctx.Done():
		return uuid.Nil, false
	}
}

// Disconnect removes a session from the directory. It is idempotent:
// duplicate or racing triggers for the same session are no-ops. userID
// is the session's last known binding; the directory record wins when
// they disagree.
func (h *Hub) Disconnect(sessionID uint64, userID *uuid.UUID) {
	h.submit(disconnectCmd{sessionID: sessionID, userID: userID})
}

// Broadcast sends an envelope to every connected session regardless of
// authentication state.
func (h *Hub) Broadcast(env Envelope) {
	h.submit(broadcastCmd{env: env})
}

// PublishNewMessage routes a new_message event to the members of its
// conversation, excluding the author.
func (h *Hub) PublishNewMessage(ev NewMessage) {
	h.submit(newMessageCmd{ev: ev})
}

// PublishNewUser announces a new account to all connected sessions.
func (h *Hub) PublishNewUser(ev NewUser) {
	h.submit(newUserCmd{ev: ev})
}

// PublishMessageDeleted routes a message_deleted event to the members
// of its conversation, excluding the author.
func (h *Hub) PublishMessageDeleted(ev MessageDeleted) {
	h.submit(messageDeletedCmd{ev: ev})
}

// PublishReactionUpdated routes a reaction_updated event to the members
// of its conversation, excluding the reacting user.
func (h *Hub) PublishReactionUpdated(ev ReactionUpdated) {
	h.submit(reactionUpdatedCmd{ev: ev})
}

// Snapshot is a read-only view of the hub's state, produced inside the
// run loop so it is always consistent.
type Snapshot struct {
	SessionIDs []uint64
	Online     map[uuid.UUID][]uint64
	Visitors   uint64
}

// Snapshot returns a consistent view of the directory and presence
// sets. Intended for health endpoints and tests.
func (h *Hub) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if !h.submit(snapshotCmd{reply: reply}) {
		return Snapshot{}, ErrHubClosed
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-h.ctx.Done():
		return Snapshot{}, ErrHubClosed
	}
}

func (h *Hub) snapshot() Snapshot {
	return Snapshot{
		SessionIDs: lo.Keys(h.sessions),
		Online: lo.MapValues(h.users, func(set map[uint64]struct{}, _ uuid.UUID) []uint64 {
			return lo.Keys(set)
		}),
		Visitors: h.visitors,
	}
}

func (h *Hub) handleConnect(c connectCmd) {
	id := h.allocateSessionID()
	h.sessions[id] = &sessionRecord{out: c.out}
	h.visitors++
	metrics.ActiveSessions.Inc()
	metrics.TotalSessions.Inc()

	c.reply <- id
	h.broadcastPayload(OpHi, h.visitors)
}

// allocateSessionID returns an identifier that is guaranteed not to
// collide with any live session: monotonic high bits, random low bits.
// The retry loop only matters if the sequence ever wraps.
func (h *Hub) allocateSessionID() uint64 {
	for {
		h.seq++
		id := h.seq<<16 | uint64(h.rng.Intn(1<<16))
		if _, taken := h.sessions[id]; !taken && id != 0 {
			return id
		}
	}
}

func (h *Hub) handleAuth(c authCmd) {
	ctx, cancel := context.WithTimeout(h.ctx, collaboratorTimeout)
	userID, err := h.verifier.VerifyToken(ctx, c.token)
	cancel()
	if err != nil {
		metrics.AuthFailures.Inc()
		log.Printf("Authentication failed for session %d: %v", c.sessionID, err)
		c.reply <- authReply{}
		return
	}

	rec, ok := h.sessions[c.sessionID]
	if !ok {
		// The session disconnected while the token was being verified.
		c.reply <- authReply{}
		return
	}

	// Re-auth as a different user migrates the session between presence
	// sets, firing user_offline for the old user if this was its last
	// session.
	if rec.userID != nil && *rec.userID != userID {
		h.dropFromPresence(c.sessionID, *rec.userID)
	}

	uid := userID
	rec.userID = &uid
	set, ok := h.users[userID]
	if !ok {
		set = make(map[uint64]struct{})
		h.users[userID] = set
	}
	set[c.sessionID] = struct{}{}

	ctx, cancel = context.WithTimeout(h.ctx, collaboratorTimeout)
	if err := h.presence.SetOnline(ctx, userID); err != nil {
		log.Printf("Failed to persist online state for user %s: %v", userID, err)
	}
	cancel()

	metrics.AuthSuccess.Inc()
	h.broadcastPayload(OpUserOnline, userID)
	c.reply <- authReply{userID: userID, ok: true}
}

func (h *Hub) handleDisconnect(c disconnectCmd) {
	rec, ok := h.sessions[c.sessionID]
	if !ok {
		return
	}
	delete(h.sessions, c.sessionID)
	metrics.ActiveSessions.Dec()

	bound := rec.userID
	if bound == nil {
		bound = c.userID
	}
	if bound != nil {
		h.dropFromPresence(c.sessionID, *bound)
	}
}

// dropFromPresence removes a session from a user's presence set and,
// when the set becomes empty, performs the offline transition: the
// entry is deleted, the repository is updated with a last-seen
// timestamp, and user_offline is broadcast.
func (h *Hub) dropFromPresence(sessionID uint64, userID uuid.UUID) {
	set, ok := h.users[userID]
	if !ok {
		return
	}
	delete(set, sessionID)
	if len(set) > 0 {
		return
	}
	delete(h.users, userID)

	ctx, cancel := context.WithTimeout(h.ctx, collaboratorTimeout)
	if err := h.presence.SetOffline(ctx, userID, time.Now().UTC()); err != nil {
		log.Printf("Failed to persist offline state for user %s: %v", userID, err)
	}
	cancel()

	h.broadcastPayload(OpUserOffline, userID)
}

// fanOut resolves the recipients of a conversation-scoped event and
// unicasts it to each member's live sessions. A resolver failure drops
// the event.
func (h *Hub) fanOut(op string, conversationID, actingUserID uuid.UUID, payload interface{}) {
	ctx, cancel := context.WithTimeout(h.ctx, collaboratorTimeout)
	recipients, err := h.members.ConversationMembers(ctx, conversationID, &actingUserID)
	cancel()
	if err != nil {
		metrics.EventsDropped.WithLabelValues(op).Inc()
		log.Printf("Dropping %s event for conversation %s: %v", op, conversationID, err)
		return
	}

	env, err := NewEnvelope(op, payload)
	if err != nil {
		metrics.EventsDropped.WithLabelValues(op).Inc()
		log.Printf("Dropping %s event for conversation %s: %v", op, conversationID, err)
		return
	}
	data, err := env.Encode()
	if err != nil {
		metrics.EventsDropped.WithLabelValues(op).Inc()
		log.Printf("Dropping %s event for conversation %s: %v", op, conversationID, err)
		return
	}

	for _, userID := range recipients {
		h.unicast(userID, data)
	}
	metrics.EventsFannedOut.WithLabelValues(op).Inc()
}

// unicast sends a frame to every live session bound to userID. A user
// with no live sessions silently receives nothing.
func (h *Hub) unicast(userID uuid.UUID, data []byte) {
	for sessionID := range h.users[userID] {
		if rec, ok := h.sessions[sessionID]; ok {
			h.send(sessionID, rec, data)
		}
	}
}

func (h *Hub) broadcastPayload(op string, v interface{}) {
	env, err := NewEnvelope(op, v)
	if err != nil {
		log.Printf("Failed to build %s broadcast: %v", op, err)
		return
	}
	h.broadcast(env)
}

func (h *Hub) broadcast(env Envelope) {
	data, err := env.Encode()
	if err != nil {
		log.Printf("Failed to encode %s broadcast: %v", env.Op, err)
		return
	}
	for sessionID, rec := range h.sessions {
		h.send(sessionID, rec, data)
	}
}

// send pushes a frame into a session's outbound buffer without ever
// blocking the run loop. A session that cannot keep up loses frames and
// is left for its heartbeat to reap.
func (h *Hub) send(sessionID uint64, rec *sessionRecord, data []byte) {
	select {
	case rec.out <- data:
		metrics.EnvelopesSent.Inc()
	default:
		metrics.EnvelopesDropped.Inc()
		log.Printf("Dropping envelope for session %d: outbound buffer full", sessionID)
	}
}
