package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phidinhthang/tiny-chat/auth"
	"github.com/phidinhthang/tiny-chat/hub"
	"github.com/phidinhthang/tiny-chat/membership"
	"github.com/phidinhthang/tiny-chat/models"
	"github.com/phidinhthang/tiny-chat/presence"
)

type noopPresence struct{}

func (noopPresence) SetOnline(context.Context, uuid.UUID) error             { return nil }
func (noopPresence) SetOffline(context.Context, uuid.UUID, time.Time) error { return nil }
func (noopPresence) Get(context.Context, uuid.UUID) (*presence.Status, error) {
	return nil, nil
}

// chanBroker is an in-memory MessageBroker for exercising Pump.
type chanBroker struct {
	events chan Event
}

func (b *chanBroker) Publish(_ context.Context, _ string, event Event) error {
	b.events <- event
	return nil
}

func (b *chanBroker) Subscribe(context.Context, string) (<-chan Event, error) {
	return b.events, nil
}

func (b *chanBroker) Type() string { return "chan" }
func (b *chanBroker) Close() error { close(b.events); return nil }

func startHub(t *testing.T) *hub.Hub {
	t.Helper()
	verifier := auth.VerifierFunc(func(context.Context, string) (uuid.UUID, error) {
		return uuid.Nil, auth.ErrInvalidToken
	})
	resolver := membership.ResolverFunc(func(context.Context, uuid.UUID, *uuid.UUID) ([]uuid.UUID, error) {
		return nil, nil
	})
	h := hub.New(verifier, resolver, noopPresence{})
	go h.Run()
	t.Cleanup(func() { h.Shutdown(time.Second) })
	return h
}

func mustEvent(t *testing.T, typ EventType, v interface{}) Event {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return Event{Type: typ, Data: data}
}

func awaitOp(t *testing.T, out chan []byte, wantOp string) hub.Envelope {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case data := <-out:
			var env hub.Envelope
			require.NoError(t, json.Unmarshal(data, &env))
			if env.Op == wantOp {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", wantOp)
		}
	}
}

func TestDispatchNewUserReachesHub(t *testing.T) {
	h := startHub(t)

	out := make(chan []byte, 16)
	_, err := h.Connect(out)
	require.NoError(t, err)

	ev := mustEvent(t, EventNewUser, hub.NewUser{
		User: models.User{ID: uuid.New(), Username: "carol"},
	})
	Dispatch(ev, h)

	env := awaitOp(t, out, hub.OpNewUser)
	var got hub.NewUser
	require.NoError(t, json.Unmarshal(env.D, &got))
	assert.Equal(t, "carol", got.User.Username)
}

func TestDispatchDropsMalformedAndUnknown(t *testing.T) {
	h := startHub(t)

	out := make(chan []byte, 16)
	_, err := h.Connect(out)
	require.NoError(t, err)
	<-out // hi

	Dispatch(Event{Type: EventNewUser, Data: json.RawMessage(`{broken`)}, h)
	Dispatch(Event{Type: "mystery", Data: json.RawMessage(`{}`)}, h)

	// Fence: nothing beyond the drops was enqueued.
	_, err = h.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestPumpDrainsSubscriptionUntilClosed(t *testing.T) {
	h := startHub(t)

	out := make(chan []byte, 16)
	_, err := h.Connect(out)
	require.NoError(t, err)

	b := &chanBroker{events: make(chan Event, 8)}
	require.NoError(t, b.Publish(context.Background(), "chat-events", mustEvent(t, EventNewUser, hub.NewUser{
		User: models.User{ID: uuid.New(), Username: "dave"},
	})))

	done := make(chan error, 1)
	go func() { done <- Pump(context.Background(), b, "chat-events", h) }()

	awaitOp(t, out, hub.OpNewUser)

	b.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("pump did not stop after the subscription closed")
	}
}

func TestPumpStopsOnContextCancel(t *testing.T) {
	h := startHub(t)

	ctx, cancel := context.WithCancel(context.Background())
	b := &chanBroker{events: make(chan Event)}

	done := make(chan error, 1)
	go func() { done <- Pump(ctx, b, "chat-events", h) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("pump did not stop after cancellation")
	}
}

func TestEventBinaryRoundTrip(t *testing.T) {
	in := mustEvent(t, EventMessageDeleted, hub.MessageDeleted{
		MessageID:      uuid.New(),
		ConversationID: uuid.New(),
		AuthorID:       uuid.New(),
	})

	raw, err := in.MarshalBinary()
	require.NoError(t, err)

	var out Event
	require.NoError(t, out.UnmarshalBinary(raw))
	assert.Equal(t, in, out)
}
