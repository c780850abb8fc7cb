package camera

import (
	"context"
	"errors"
	"fmt"
)

// ErrCameraNotStarted は Start 前に撮影しようとしたことを表す
var ErrCameraNotStarted = errors.New("camera is not started")

// errDeviceClosed はデバイスが開かれていないことを表す
var errDeviceClosed = errors.New("device is not opened")

// CaptureError はハードウェア・ドライバーでの撮影失敗
type CaptureError struct {
	Device string
	Err    error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture failed on %s: %v", e.Device, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// Device はカメラハードウェアの最小インターフェース
type Device interface {
	// Open はデバイスを使用可能にする
	Open(ctx context.Context) error

	// Close はデバイスを解放する
	Close() error

	// CaptureStill は静止画を1枚撮影してJPEGで返す
	CaptureStill(ctx context.Context) ([]byte, error)

	// Name はログ用のデバイス名
	Name() string
}

// Settings はカメラの設定を表す
type Settings struct {
	Width    int // 画像幅
	Height   int // 画像高さ
	Rotation int // 回転角度 (0, 90, 180, 270)
	Quality  int // ffmpeg の -q:v (2-31、小さいほど高品質)
}
