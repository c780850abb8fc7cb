package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingPublisher は release が閉じられるまで Publish を返さない
type blockingPublisher struct {
	release chan struct{}

	mu       sync.Mutex
	received []Event
	closed   bool
}

func newBlockingPublisher() *blockingPublisher {
	return &blockingPublisher{release: make(chan struct{})}
}

func (p *blockingPublisher) Publish(ev Event) error {
	<-p.release
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received = append(p.received, ev)
	return nil
}

func (p *blockingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *blockingPublisher) Received() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.received...)
}

func TestAsync_PublishDoesNotWait(t *testing.T) {
	inner := newBlockingPublisher()
	a := NewAsync(inner, 1)

	start := time.Now()
	require.NoError(t, a.Publish(Event{Type: TypeStateChanged, State: "ACTIVE"}))

	// 1件目が送信中になってから2件目をキューに入れる
	require.Eventually(t, func() bool { return len(a.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, a.Publish(Event{Type: TypeStateChanged, State: "RECORDING"}))

	// キューが一杯なら捨てる
	assert.ErrorIs(t, a.Publish(Event{Type: TypeStateChanged, State: "SLEEPING"}), errQueueFull)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, uint64(1), a.Dropped())

	close(inner.release)
	require.NoError(t, a.Close())

	got := inner.Received()
	require.Len(t, got, 2)
	assert.Equal(t, "ACTIVE", got[0].State)
	assert.Equal(t, "RECORDING", got[1].State)
	assert.True(t, inner.closed)
}

func TestAsync_PublishAfterClose(t *testing.T) {
	r := &Recorder{}
	a := NewAsync(r, 0)

	require.NoError(t, a.Publish(Event{Type: TypeRecordsDeleted}))
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	assert.ErrorIs(t, a.Publish(Event{Type: TypeRecordsDeleted}), errClosed)
	assert.Len(t, r.Events(), 1)
}
