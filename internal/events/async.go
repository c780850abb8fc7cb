package events

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultQueueSize は Async の送信待ちキューの長さ
const DefaultQueueSize = 64

// 終了時に送信待ちのイベントを待つ上限
const drainTimeout = 3 * time.Second

var (
	errQueueFull = errors.New("通知キューが一杯です")
	errClosed    = errors.New("通知は終了しています")
)

// Async は送信を別ゴルーチンに任せる Publisher
//
// Publish は待たずに戻る。キューが一杯なら捨ててエラーを返す。
// 通知先が遅くても呼び出し側（キャプチャループ）は止まらない。
type Async struct {
	inner Publisher
	queue chan Event
	done  chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped uint64
}

// NewAsync は inner へ順番に送信する Async を作成する
func NewAsync(inner Publisher, size int) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	a := &Async{
		inner: inner,
		queue: make(chan Event, size),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for ev := range a.queue {
		if err := a.inner.Publish(ev); err != nil {
			log.WithError(err).WithField("event", ev.Type).Debug("イベント通知に失敗")
		}
	}
}

// Publish はイベントをキューに入れる
func (a *Async) Publish(ev Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return errClosed
	}
	select {
	case a.queue <- ev:
		return nil
	default:
		a.dropped++
		return errQueueFull
	}
}

// Dropped はキューが一杯で捨てたイベントの数を返す
func (a *Async) Dropped() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Close は送信待ちのイベントをしばらく待ってから inner を閉じる
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	select {
	case <-a.done:
	case <-time.After(drainTimeout):
		log.Warn("送信待ちのイベントを破棄して終了します")
	}
	return a.inner.Close()
}
