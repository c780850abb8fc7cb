package camera

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCamera_CaptureBeforeStart(t *testing.T) {
	cam := New(NewMockDevice(8, 8), 0)

	_, err := cam.Capture(context.Background())
	assert.ErrorIs(t, err, ErrCameraNotStarted)
}

func TestCamera_StartStop(t *testing.T) {
	ctx := context.Background()
	dev := NewMockDevice(8, 8)
	cam := New(dev, 0)

	require.NoError(t, cam.Start(ctx))
	assert.True(t, cam.IsStarted())
	assert.True(t, dev.IsOpened())

	// 2回目の開始は何もしない
	require.NoError(t, cam.Start(ctx))

	data, err := cam.Capture(ctx)
	require.NoError(t, err)
	_, err = jpeg.Decode(bytes.NewReader(data))
	assert.NoError(t, err, "mock frames are valid JPEG")

	require.NoError(t, cam.Stop(ctx))
	require.NoError(t, cam.Stop(ctx))
	assert.False(t, cam.IsStarted())
	assert.False(t, dev.IsOpened())

	_, err = cam.Capture(ctx)
	assert.ErrorIs(t, err, ErrCameraNotStarted)
}

func TestCamera_StartWaitsForWarmup(t *testing.T) {
	cam := New(NewMockDevice(8, 8), 50*time.Millisecond)

	start := time.Now()
	require.NoError(t, cam.Start(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// 開始済みなら待たない
	start = time.Now()
	require.NoError(t, cam.Start(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestCamera_StartCancelledDuringWarmup(t *testing.T) {
	dev := NewMockDevice(8, 8)
	cam := New(dev, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cam.Start(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, cam.IsStarted())
	assert.False(t, dev.IsOpened())
}

func TestCamera_StartOpenFailure(t *testing.T) {
	dev := NewMockDevice(8, 8)
	dev.SetShouldFailOpen(errors.New("no device"))
	cam := New(dev, 0)

	assert.Error(t, cam.Start(context.Background()))
	assert.False(t, cam.IsStarted())
}

func TestCamera_CaptureErrorWrapping(t *testing.T) {
	ctx := context.Background()
	dev := NewMockDevice(8, 8)
	cam := New(dev, 0)
	require.NoError(t, cam.Start(ctx))

	boom := errors.New("sensor timeout")
	dev.FailNextCapture(boom)

	_, err := cam.Capture(ctx)
	var captureErr *CaptureError
	require.ErrorAs(t, err, &captureErr)
	assert.Equal(t, "mock", captureErr.Device)
	assert.ErrorIs(t, err, boom)

	// 失敗は1回限り
	_, err = cam.Capture(ctx)
	assert.NoError(t, err)
}

func TestMockDevice_SetFrames(t *testing.T) {
	ctx := context.Background()
	dev := NewMockDevice(8, 8)
	dev.SetFrames([]byte("a"), []byte("b"))
	require.NoError(t, dev.Open(ctx))

	for _, want := range []string{"a", "b", "a"} {
		got, err := dev.CaptureStill(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
	assert.Equal(t, 3, dev.Captures())
}

func TestMockDevice_CaptureWhenClosed(t *testing.T) {
	_, err := NewMockDevice(8, 8).CaptureStill(context.Background())
	var captureErr *CaptureError
	assert.ErrorAs(t, err, &captureErr)
}

func TestV4L2Device_CaptureArgs(t *testing.T) {
	dev := NewV4L2Device("/dev/video0", Settings{Width: 320, Height: 240, Rotation: 180})
	args := dev.captureArgs()

	assert.Contains(t, args, "320x240")
	assert.Contains(t, args, "/dev/video0")
	assert.Contains(t, args, "hflip,vflip")
	assert.Equal(t, "-", args[len(args)-1])

	dev = NewV4L2Device("/dev/video1", Settings{Width: 640, Height: 480})
	assert.NotContains(t, dev.captureArgs(), "-vf")
}

func TestV4L2Device_CaptureWithoutOpen(t *testing.T) {
	dev := NewV4L2Device("/dev/video0", Settings{Width: 320, Height: 240})

	_, err := dev.CaptureStill(context.Background())
	var captureErr *CaptureError
	require.ErrorAs(t, err, &captureErr)
	assert.ErrorIs(t, err, errDeviceClosed)
}

func TestRotationFilter(t *testing.T) {
	testCases := map[int]string{
		0:   "",
		90:  "transpose=1",
		180: "hflip,vflip",
		270: "transpose=2",
		45:  "",
	}
	for rotation, want := range testCases {
		assert.Equal(t, want, rotationFilter(rotation), "rotation %d", rotation)
	}
}
