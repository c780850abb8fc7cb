// Package stream は共有ストアの最新フレームをMJPEG (multipart/x-mixed-replace) として配信する
package stream

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"time"

	log "github.com/sirupsen/logrus"

	"kanshi/internal/sentinel"
)

// マルチパートの区切り
const (
	Boundary    = "frame"
	ContentType = "multipart/x-mixed-replace; boundary=" + Boundary
)

var (
	partHeader  = []byte("--" + Boundary + "\r\nContent-Type: image/jpeg\r\n\r\n")
	partTrailer = []byte("\r\n\r\n")
)

// デフォルトの待ち時間
const (
	DefaultFrameInterval = 500 * time.Millisecond
	DefaultPollInterval  = 10 * time.Millisecond
)

// Responder は1本のフィードを読み続けてマルチパートのチャンクを作る
type Responder struct {
	store         sentinel.Store
	feed          sentinel.Feed
	frameInterval time.Duration
	pollInterval  time.Duration
	logger        *log.Entry
}

// Option はResponderの設定
type Option func(*Responder)

// WithFrameInterval はフレーム間の待ち時間を設定する
func WithFrameInterval(d time.Duration) Option {
	return func(r *Responder) {
		r.frameInterval = d
	}
}

// WithPollInterval はロック待ち・未到着時の再試行間隔を設定する
func WithPollInterval(d time.Duration) Option {
	return func(r *Responder) {
		r.pollInterval = d
	}
}

// WithLogger はログの出力先を設定する
func WithLogger(entry *log.Entry) Option {
	return func(r *Responder) {
		r.logger = entry
	}
}

// New は新しいResponderを作成する
func New(store sentinel.Store, feed sentinel.Feed, opts ...Option) *Responder {
	r := &Responder{
		store:         store,
		feed:          feed,
		frameInterval: DefaultFrameInterval,
		pollInterval:  DefaultPollInterval,
		logger:        log.WithField("feed", feed.Name),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Part はJPEGデータをマルチパートの1パートに包む
func Part(jpeg []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(partHeader) + len(jpeg) + len(partTrailer))
	buf.Write(partHeader)
	buf.Write(jpeg)
	buf.Write(partTrailer)
	return buf.Bytes()
}

// Frames は無限に続くチャンクの列を返す
//
// 呼び出すたびに新しい列になる。消費側が止める（range を抜ける）か ctx が終わると列も終わる。
// 各チャンクを渡した後 frameInterval だけ待ってから次を読む。
func (r *Responder) Frames(ctx context.Context) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for {
			chunk, err := r.Next(ctx)
			if err != nil {
				return
			}
			if !yield(chunk) {
				return
			}
			if !sleep(ctx, r.frameInterval) {
				return
			}
		}
	}
}

// Next はロックが外れるのを待ってフレームを読み、チャンクを返す
//
// フレームがまだ無い場合や読み込みに失敗した場合は再試行する。
// ctx が終わったときだけエラーを返す。
func (r *Responder) Next(ctx context.Context) ([]byte, error) {
	for {
		if err := r.waitUnlocked(ctx); err != nil {
			return nil, err
		}

		// ロック確認の直後に読む。この順序を入れ替えてはいけない
		data, err := r.store.ReadFeed(r.feed)
		if err == nil {
			return Part(data), nil
		}
		if !errors.Is(err, sentinel.ErrNotAvailable) {
			r.logger.WithError(err).Debug("フレームの読み込みに失敗。再試行します")
		}
		if !sleep(ctx, r.pollInterval) {
			return nil, ctx.Err()
		}
	}
}

// waitUnlocked はロック（と一時停止）が無くなるまで待つ
func (r *Responder) waitUnlocked(ctx context.Context) error {
	for r.blocked() {
		if !sleep(ctx, r.pollInterval) {
			return ctx.Err()
		}
	}
	return ctx.Err()
}

func (r *Responder) blocked() bool {
	if r.store.Exists(r.feed.Lock) {
		return true
	}
	return r.feed.Pause != "" && r.store.Exists(r.feed.Pause)
}

// sleep は d だけ待つ。ctx が先に終われば false を返す
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
