package camera

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Camera はデバイスのライフサイクル（開始・ウォームアップ・停止）を管理する
type Camera struct {
	device Device
	warmup time.Duration

	mu      sync.Mutex
	started bool
}

// New は新しいCameraを作成する。warmup は Start 後に画像が安定するまでの待ち時間
func New(device Device, warmup time.Duration) *Camera {
	return &Camera{
		device: device,
		warmup: warmup,
	}
}

// Start はデバイスを開き、ウォームアップが終わるまでブロックする。開始済みなら何もしない
func (c *Camera) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}

	if err := c.device.Open(ctx); err != nil {
		return errors.Wrapf(err, "カメラ %s の開始に失敗", c.device.Name())
	}

	log.WithFields(log.Fields{"device": c.device.Name(), "warmup": c.warmup}).Info("カメラのウォームアップ中")

	if c.warmup > 0 {
		timer := time.NewTimer(c.warmup)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			_ = c.device.Close()
			return ctx.Err()
		}
	}

	c.started = true
	log.WithField("device", c.device.Name()).Info("カメラを開始しました")
	return nil
}

// Stop はデバイスを解放する。停止済みでもエラーにしない
func (c *Camera) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil
	}
	c.started = false

	if err := c.device.Close(); err != nil {
		return errors.Wrapf(err, "カメラ %s の停止に失敗", c.device.Name())
	}
	log.WithField("device", c.device.Name()).Info("カメラを停止しました")
	return nil
}

// IsStarted は Start 済みかを返す
func (c *Camera) IsStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Capture は静止画を1枚撮影する
func (c *Camera) Capture(ctx context.Context) ([]byte, error) {
	if !c.IsStarted() {
		return nil, ErrCameraNotStarted
	}

	data, err := c.device.CaptureStill(ctx)
	if err != nil {
		var captureErr *CaptureError
		if errors.As(err, &captureErr) {
			return nil, err
		}
		return nil, &CaptureError{Device: c.device.Name(), Err: err}
	}
	return data, nil
}
