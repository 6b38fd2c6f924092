package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestProducer_PublishNeverBlocks(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "orders", 2, quietLog())

	assert.True(t, p.Publish([]byte("shop:1"), []byte("a")))
	assert.True(t, p.Publish([]byte("shop:1"), []byte("b"), kafka.Header{Key: "x-channel", Value: []byte("shop:1")}))
	assert.False(t, p.Publish([]byte("shop:1"), []byte("c")), "inbox is full")

	m := <-p.inbox
	assert.Equal(t, "a", string(m.Value))
	m = <-p.inbox
	v, ok := HeaderValue(m, "x-channel")
	require.True(t, ok)
	assert.Equal(t, "shop:1", v)
}

func TestProducer_CloseIsIdempotent(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "orders", 4, quietLog())
	p.Start(context.Background())

	p.Close()
	p.Close()
	p.WaitClosed()
	assert.False(t, p.Publish([]byte("k"), []byte("v")))
}

func TestHeaderValue(t *testing.T) {
	m := kafka.Message{Headers: []kafka.Header{
		{Key: "x-event-type", Value: []byte("order.created")},
		{Key: "x-event-type", Value: []byte("ignored")},
	}}
	v, ok := HeaderValue(m, "x-event-type")
	assert.True(t, ok)
	assert.Equal(t, "order.created", v)

	_, ok = HeaderValue(m, "x-channel")
	assert.False(t, ok)
}

func TestConsumer_RetriesFailingHandler(t *testing.T) {
	c := &Consumer{log: quietLog(), maxAttempts: 4, backoff: time.Millisecond}
	m := kafka.Message{Topic: "orders", Offset: 7}

	calls := 0
	err := c.handle(context.Background(), func(_ context.Context, got kafka.Message) error {
		calls++
		assert.Equal(t, int64(7), got.Offset, "the same message is retried")
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, m)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestConsumer_GivesUpAfterMaxAttempts(t *testing.T) {
	c := &Consumer{log: quietLog(), maxAttempts: 3, backoff: time.Millisecond}

	calls := 0
	boom := errors.New("boom")
	err := c.handle(context.Background(), func(context.Context, kafka.Message) error {
		calls++
		return boom
	}, kafka.Message{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestConsumer_StopsRetryingOnCancel(t *testing.T) {
	c := &Consumer{log: quietLog(), maxAttempts: 100, backoff: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := c.handle(ctx, func(context.Context, kafka.Message) error {
		calls++
		cancel()
		return errors.New("fail")
	}, kafka.Message{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []int64
	closed    bool
}

func newFakeReader(ms ...kafka.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(ms))}
	for _, m := range ms {
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, ms ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range ms {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) state() ([]int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...), r.closed
}

func TestConsumer_CommitsPastDroppedMessage(t *testing.T) {
	r := newFakeReader(kafka.Message{Offset: 1}, kafka.Message{Offset: 2})
	c := &Consumer{r: r, workers: 1, log: quietLog(), maxAttempts: 2, backoff: time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	h := func(_ context.Context, m kafka.Message) error {
		if m.Offset == 1 {
			return errors.New("poison")
		}
		return nil
	}
	go func() { done <- c.Start(ctx, h) }()

	assert.Eventually(t, func() bool {
		got, _ := r.state()
		return len(got) == 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	got, closed := r.state()
	assert.Equal(t, []int64{1, 2}, got)
	assert.True(t, closed)
}

func TestConsumer_StartWaitsForInFlightHandler(t *testing.T) {
	r := newFakeReader(kafka.Message{Offset: 9})
	c := &Consumer{r: r, workers: 2, log: quietLog(), maxAttempts: 1, backoff: time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	h := func(context.Context, kafka.Message) error {
		close(started)
		<-release
		return nil
	}
	go func() { done <- c.Start(ctx, h) }()

	<-started
	cancel()
	select {
	case <-done:
		t.Fatal("Start returned while a handler was still running")
	case <-time.After(50 * time.Millisecond):
	}
	_, closed := r.state()
	assert.False(t, closed, "reader stays open until workers finish")

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return")
	}
	got, closed := r.state()
	assert.Equal(t, []int64{9}, got, "the finished message is still committed")
	assert.True(t, closed)
}
