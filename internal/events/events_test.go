package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/agronect/apiserver/internal/mq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	channel string
	data    []byte
	attrs   map[string]string
}

type fakeBackend struct {
	published  []published
	publishErr error
	inbox      []mq.Message
	closed     bool
}

func (f *fakeBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if f.publishErr != nil {
		return "", f.publishErr
	}
	f.published = append(f.published, published{channel: channel, data: data, attrs: attrs})
	return "msg-1", nil
}

func (f *fakeBackend) Subscribe(ctx context.Context, channel string, handler mq.Handler) error {
	for _, msg := range f.inbox {
		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

func TestPublishEncodesEvent(t *testing.T) {
	backend := &fakeBackend{}
	p := NewPublisher(mq.New(backend), "auth-events")
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	err := p.Publish(context.Background(), Event{Type: UserSignedUp, UserID: "u1", Email: "a@x.com", At: at})
	require.NoError(t, err)
	require.Len(t, backend.published, 1)

	msg := backend.published[0]
	assert.Equal(t, "auth-events", msg.channel)
	assert.Equal(t, map[string]string{"type": "user.signed_up"}, msg.attrs)

	var got Event
	require.NoError(t, json.Unmarshal(msg.data, &got))
	assert.Equal(t, UserSignedUp, got.Type)
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, got.At.Equal(at))
}

func TestPublishStampsTime(t *testing.T) {
	backend := &fakeBackend{}
	p := NewPublisher(mq.New(backend), "auth-events")

	require.NoError(t, p.Publish(context.Background(), Event{Type: UserSignedOut}))

	var got Event
	require.NoError(t, json.Unmarshal(backend.published[0].data, &got))
	assert.False(t, got.At.IsZero())
}

func TestPublishWrapsBackendError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewPublisher(mq.New(&fakeBackend{publishErr: boom}), "auth-events")

	err := p.Publish(context.Background(), Event{Type: UserSignedIn})
	assert.ErrorIs(t, err, boom)
}

func TestTailSkipsUndecodableMessages(t *testing.T) {
	good, err := json.Marshal(Event{Type: UserSignedIn, UserID: "u1"})
	require.NoError(t, err)
	backend := &fakeBackend{inbox: []mq.Message{{Data: []byte("{not json")}, {Data: good}}}
	p := NewPublisher(mq.New(backend), "auth-events")

	var seen []Event
	err = p.Tail(context.Background(), func(ctx context.Context, event Event) error {
		seen = append(seen, event)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, "u1", seen[0].UserID)

	require.NoError(t, p.Close())
	assert.True(t, backend.closed)
}

func TestDiscard(t *testing.T) {
	assert.NoError(t, Discard.Publish(context.Background(), Event{Type: UserSignedUp}))
}
