package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"farmwatch/internal/logging"
	"farmwatch/internal/model"
)

type recordingSink struct {
	mu   sync.Mutex
	got  []model.Alert
	fail bool
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Publish(_ context.Context, a model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, a)
	if s.fail {
		return errors.New("sink down")
	}
	return nil
}

func alert(id, source string, p model.Priority) model.Alert {
	return model.Alert{ID: id, Title: "Low soil_moisture", Source: source, Priority: p, CreatedAt: time.Now().UTC()}
}

func TestNotifyOnlyUrgent(t *testing.T) {
	sink := &recordingSink{}
	n := New(0, logging.Discard(), sink)
	ctx := context.Background()
	assert.False(t, n.Notify(ctx, alert("1", "s1", model.PriorityMedium)))
	assert.False(t, n.Notify(ctx, alert("2", "s1", model.PriorityLow)))
	assert.True(t, n.Notify(ctx, alert("3", "s1", model.PriorityHigh)))
	assert.True(t, n.Notify(ctx, alert("4", "s1", model.PriorityCritical)))
	require.Len(t, sink.got, 2)
	assert.Equal(t, "3", sink.got[0].ID)
}

func TestNotifyCooldownPerSource(t *testing.T) {
	sink := &recordingSink{}
	n := New(time.Minute, logging.Discard(), sink)
	now := time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)
	n.cooldown.now = func() time.Time { return now }
	ctx := context.Background()

	assert.True(t, n.Notify(ctx, alert("1", "s1", model.PriorityHigh)))
	assert.False(t, n.Notify(ctx, alert("2", "s1", model.PriorityHigh)))
	assert.True(t, n.Notify(ctx, alert("3", "s2", model.PriorityHigh)))
	now = now.Add(time.Minute)
	assert.True(t, n.Notify(ctx, alert("4", "s1", model.PriorityHigh)))
	assert.Len(t, sink.got, 3)
}

func TestNotifyKeepsGoingWhenSinkFails(t *testing.T) {
	bad := &recordingSink{fail: true}
	good := &recordingSink{}
	n := New(0, logging.Discard(), bad, good)
	assert.True(t, n.Notify(context.Background(), alert("1", "s1", model.PriorityHigh)))
	assert.Len(t, good.got, 1)

	var nilNotifier *Notifier
	assert.False(t, nilNotifier.Notify(context.Background(), alert("2", "s1", model.PriorityHigh)))
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisherWith(w)
	require.NoError(t, p.Publish(context.Background(), alert("a1", "field-7", model.PriorityHigh)))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "field-7", string(w.msgs[0].Key))
	var got model.Alert
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "a1", got.ID)

	w.err = errors.New("broker gone")
	assert.ErrorContains(t, p.Publish(context.Background(), alert("a2", "x", model.PriorityHigh)), "kafka publish")
}

func TestHubBroadcasts(t *testing.T) {
	hub := NewHub(logging.Discard())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, hub.Publish(ctx, alert("w1", "s1", model.PriorityCritical)))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var got model.Alert
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "w1", got.ID)
	assert.Equal(t, model.PriorityCritical, got.Priority)
}
