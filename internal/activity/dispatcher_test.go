package activity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeWriter records everything written to it.
type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
	err    error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs)
}

func (w *fakeWriter) events(t *testing.T) []Event {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Event, 0, len(w.msgs))
	for _, m := range w.msgs {
		var ev Event
		require.NoError(t, json.Unmarshal(m.Value, &ev))
		assert.Equal(t, ev.ActorID, string(m.Key))
		out = append(out, ev)
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runDispatcher starts d.Run and returns a stop func that cancels and waits.
func runDispatcher(t *testing.T, d *Dispatcher) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("dispatcher did not stop")
			return nil
		}
	}
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	w := &fakeWriter{}
	d := NewDispatcher(w, 16, quietLogger())
	stop := runDispatcher(t, d)

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	want := []Event{
		{Type: UserRegistered, ActorID: "u1", At: at},
		{Type: PostCreated, ActorID: "u1", SubjectID: "p1", At: at},
		{Type: UserFollowed, ActorID: "u1", SubjectID: "u2", At: at},
	}
	for _, ev := range want {
		d.Publish(context.Background(), ev)
	}

	require.Eventually(t, func() bool { return w.count() == len(want) }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	if diff := cmp.Diff(want, w.events(t)); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, w.closed)
}

func TestDispatcher_DrainsOnShutdown(t *testing.T) {
	w := &fakeWriter{}
	d := NewDispatcher(w, 16, quietLogger())

	// Queue before Run starts; cancel immediately. Shutdown must still flush.
	for i := 0; i < 5; i++ {
		d.Publish(context.Background(), NewEvent(MessageSent, "s1", "r1"))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))

	assert.Len(t, w.events(t), 5)
	assert.True(t, w.closed)
}

func TestDispatcher_PublishNeverBlocks(t *testing.T) {
	w := &fakeWriter{}
	d := NewDispatcher(w, 2, quietLogger())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Publish(context.Background(), NewEvent(PostCreated, "u1", "p"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
	assert.Len(t, d.queue, 2)
}

func TestDispatcher_WriteErrorIsLoggedNotFatal(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	d := NewDispatcher(w, 4, quietLogger())
	d.Publish(context.Background(), NewEvent(UserUnfollowed, "u1", "u2"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, d.Run(ctx))
	assert.True(t, w.closed)
}

func TestNewKafkaWriter(t *testing.T) {
	kw := NewKafkaWriter(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "microblog-activity"})
	assert.Equal(t, "microblog-activity", kw.Topic)
	assert.Equal(t, 10*time.Second, kw.WriteTimeout)
	assert.IsType(t, &kafka.Hash{}, kw.Balancer)
	require.NoError(t, kw.Close())
}

func TestDiscard(t *testing.T) {
	var p Publisher = Discard{}
	p.Publish(context.Background(), NewEvent(UserRegistered, "u1", ""))
}
