package camera

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// V4L2Device はシェルコマンドを使ってV4L2デバイスから静止画を取得する
type V4L2Device struct {
	devicePath string
	settings   Settings

	mu     sync.Mutex
	opened bool
}

// NewV4L2Device は新しいV4L2Deviceを作成する
func NewV4L2Device(devicePath string, settings Settings) *V4L2Device {
	if settings.Quality <= 0 {
		settings.Quality = 2
	}
	return &V4L2Device{
		devicePath: devicePath,
		settings:   settings,
	}
}

// Name はデバイスパスを返す
func (d *V4L2Device) Name() string {
	return d.devicePath
}

// Open はデバイスが利用可能かを確認して開いた状態にする
func (d *V4L2Device) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := os.Stat(d.devicePath); err != nil {
		return errors.Wrapf(err, "デバイスが見つかりません: %s", d.devicePath)
	}

	// v4l2-ctlコマンドでデバイス情報を取得して確認
	cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", d.devicePath, "--info")
	if output, err := cmd.CombinedOutput(); err != nil {
		return errors.Wrapf(err, "V4L2デバイスではありません: %s (output: %s)", d.devicePath, strings.TrimSpace(string(output)))
	}

	d.opened = true
	return nil
}

// Close はデバイスを閉じた状態にする
func (d *V4L2Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = false
	return nil
}

// CaptureStill はffmpegで1フレームをキャプチャしてJPEGバイト配列として返す
func (d *V4L2Device) CaptureStill(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	opened := d.opened
	d.mu.Unlock()

	if !opened {
		return nil, &CaptureError{Device: d.devicePath, Err: errDeviceClosed}
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", d.captureArgs()...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &CaptureError{
			Device: d.devicePath,
			Err:    fmt.Errorf("ffmpeg: %w (stderr: %s)", err, strings.TrimSpace(stderr.String())),
		}
	}

	// JPEGの開始マーカー（FF D8）で始まることだけ確認する
	data := stdout.Bytes()
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, &CaptureError{Device: d.devicePath, Err: fmt.Errorf("JPEGではない出力 (%d bytes)", len(data))}
	}
	return data, nil
}

// captureArgs はffmpegの引数を組み立てる
func (d *V4L2Device) captureArgs() []string {
	args := []string{
		"-loglevel", "error",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", d.settings.Width, d.settings.Height),
		"-i", d.devicePath,
		"-vframes", "1",
	}
	if filter := rotationFilter(d.settings.Rotation); filter != "" {
		args = append(args, "-vf", filter)
	}
	args = append(args,
		"-f", "image2",
		"-c:v", "mjpeg",
		"-q:v", strconv.Itoa(d.settings.Quality),
		"-",
	)
	return args
}

// rotationFilter は回転角度をffmpegのビデオフィルタに変換する
func rotationFilter(rotation int) string {
	switch rotation {
	case 90:
		return "transpose=1"
	case 180:
		return "hflip,vflip"
	case 270:
		return "transpose=2"
	default:
		return ""
	}
}
