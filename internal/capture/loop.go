// Package capture はカメラから撮影して共有ストアへ書き込むキャプチャループを実装する
//
// 1ティックごとにセンチネルから状態を導出し（SLEEPING / ACTIVE / RECORDING）、
// 撮影・最新フレームの書き込み・録画・録画削除要求の処理を行う。
// 1回の失敗でループは止まらない。
package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"kanshi/internal/camera"
	"kanshi/internal/events"
	"kanshi/internal/sentinel"
)

// Camera はループが必要とするカメラ操作
type Camera interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Capture(ctx context.Context) ([]byte, error)
}

var _ Camera = (*camera.Camera)(nil)

// Loop はキャプチャループ
type Loop struct {
	store     sentinel.Store
	camera    Camera
	publisher events.Publisher
	interval  time.Duration
	now       func() time.Time

	mu        sync.Mutex
	lastState sentinel.State
	observed  bool
}

// Option はLoopの設定
type Option func(*Loop)

// WithPublisher は状態変化の通知先を設定する
func WithPublisher(p events.Publisher) Option {
	return func(l *Loop) {
		if p != nil {
			l.publisher = p
		}
	}
}

// WithClock は撮影時刻の取得方法を差し替える
func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		l.now = now
	}
}

// New は新しいLoopを作成する。fps はティック間隔 (1/fps 秒) を決める
func New(store sentinel.Store, cam Camera, fps int, opts ...Option) *Loop {
	if fps <= 0 {
		fps = 1
	}
	l := &Loop{
		store:     store,
		camera:    cam,
		publisher: events.Nop{},
		interval:  time.Second / time.Duration(fps),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Interval はティック間隔を返す
func (l *Loop) Interval() time.Duration {
	return l.interval
}

// State は現在のカメラ状態をストアから導出する
func (l *Loop) State() sentinel.State {
	return sentinel.CurrentState(l.store)
}

// Start はカメラを開始する。ウォームアップが終わるまでブロックし、開始済みなら何もしない
func (l *Loop) Start(ctx context.Context) error {
	return l.camera.Start(ctx)
}

// Stop はカメラを停止し、ロックと停止要求を必ず解除する
func (l *Loop) Stop(ctx context.Context) error {
	return errors.Join(
		l.camera.Stop(ctx),
		l.store.Clear(sentinel.Lock),
		l.store.Clear(sentinel.Sleep),
	)
}

// Close は録画を止めてから Stop する。プロセス終了時に呼ぶ
func (l *Loop) Close(ctx context.Context) error {
	return errors.Join(
		l.store.Clear(sentinel.Record),
		l.Stop(ctx),
	)
}

// Capture は静止画を1枚撮影する。Start 前なら camera.ErrCameraNotStarted を返す
func (l *Loop) Capture(ctx context.Context) ([]byte, error) {
	return l.camera.Capture(ctx)
}

// Run は ctx がキャンセルされるまでティックを繰り返す
func (l *Loop) Run(ctx context.Context) error {
	log.WithField("interval", l.interval).Info("キャプチャループを開始します")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("キャプチャループを終了します")
			return nil
		case <-timer.C:
		}

		if err := l.Tick(ctx); err != nil {
			log.WithError(err).Warn("ティックでエラーが発生しました")
		}
		timer.Reset(l.interval)
	}
}

// Tick はループの1回分を実行する。返すエラーは報告用で、次のティックには影響しない
func (l *Loop) Tick(ctx context.Context) error {
	var errs []error

	state := l.State()
	l.observe(state)

	if state.Capturing() {
		if err := l.captureAndPublish(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	// 削除要求はカメラの状態に関係なく毎回確認する
	if err := l.processDeleteRequest(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// captureAndPublish は撮影し、ロックを取って最新フレームと録画を書き込む
func (l *Loop) captureAndPublish(ctx context.Context) error {
	frame, err := l.camera.Capture(ctx)
	if err != nil {
		l.publish(events.Event{Type: events.TypeCaptureFailed, Error: err.Error()})
		return pkgerrors.Wrap(err, "撮影に失敗")
	}
	capturedAt := l.now()

	return l.writeLocked(frame, capturedAt)
}

// writeLocked はロックセンチネルを立てて書き込み、どの経路でも必ずロックを解除する
func (l *Loop) writeLocked(frame []byte, capturedAt time.Time) (err error) {
	if err := l.store.Set(sentinel.Lock); err != nil {
		return pkgerrors.Wrap(err, "ロックの取得に失敗")
	}
	defer func() {
		if clearErr := l.store.Clear(sentinel.Lock); clearErr != nil {
			err = errors.Join(err, pkgerrors.Wrap(clearErr, "ロックの解除に失敗"))
		}
	}()

	if err := sentinel.WriteLatestFrame(l.store, frame); err != nil {
		return err
	}

	// 書き込みの間に状態が変わっていれば従う
	if l.State() == sentinel.StateRecording {
		name, err := l.store.AppendRecord(capturedAt, frame)
		if err != nil {
			return pkgerrors.Wrap(err, "録画に失敗")
		}
		log.WithField("record", name).Debug("フレームを録画しました")
	}
	return nil
}

// processDeleteRequest は削除要求があれば全ての録画を消し、要求を取り下げる
func (l *Loop) processDeleteRequest() error {
	if !l.store.Exists(sentinel.DeleteRecords) {
		return nil
	}

	removed, err := l.store.ClearAllRecords()
	if err != nil {
		// 要求は残し、次のティックで再試行する
		return pkgerrors.Wrap(err, "録画の削除に失敗")
	}
	if err := l.store.Clear(sentinel.DeleteRecords); err != nil {
		return pkgerrors.Wrap(err, "削除要求の解除に失敗")
	}

	log.WithField("count", removed).Info("録画を削除しました")
	l.publish(events.Event{Type: events.TypeRecordsDeleted, Count: removed})
	return nil
}

// observe は状態の変化を記録し、変化していれば通知する
func (l *Loop) observe(state sentinel.State) {
	l.mu.Lock()
	prev, observed := l.lastState, l.observed
	l.lastState, l.observed = state, true
	l.mu.Unlock()

	if observed && prev == state {
		return
	}

	fields := log.Fields{"state": state}
	ev := events.Event{Type: events.TypeStateChanged, State: state.String()}
	if observed {
		fields["previous"] = prev
		ev.Previous = prev.String()
	}
	log.WithFields(fields).Info("カメラ状態が変わりました")
	l.publish(ev)
}

// publish はティックの中で呼ばれる。遅い通知先は events.Async で包んで渡すこと
func (l *Loop) publish(ev events.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.now()
	}
	if err := l.publisher.Publish(ev); err != nil {
		log.WithError(err).WithField("event", ev.Type).Debug("イベント通知に失敗")
	}
}
