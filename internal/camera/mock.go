package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
)

// MockDevice はハードウェア無しで動作確認するためのデバイス
//
// 撮影ごとに色の変わる単色JPEGを生成する。テスト用に失敗を注入できる。
type MockDevice struct {
	width  int
	height int

	mu       sync.Mutex
	opened   bool
	captures int
	frames   [][]byte
	failNext error
	failOpen error
}

// NewMockDevice は新しいMockDeviceを作成する
func NewMockDevice(width, height int) *MockDevice {
	return &MockDevice{width: width, height: height}
}

// Name はデバイス名を返す
func (m *MockDevice) Name() string {
	return "mock"
}

// Open はモックデバイスを開く
func (m *MockDevice) Open(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOpen != nil {
		return m.failOpen
	}
	m.opened = true
	return nil
}

// Close はモックデバイスを閉じる
func (m *MockDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = false
	return nil
}

// CaptureStill は設定されたフレーム、なければ生成したJPEGを返す
func (m *MockDevice) CaptureStill(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.opened {
		return nil, &CaptureError{Device: m.Name(), Err: errDeviceClosed}
	}
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return nil, err
	}

	n := m.captures
	m.captures++

	if len(m.frames) > 0 {
		return m.frames[n%len(m.frames)], nil
	}
	return m.generate(n)
}

// generate は n 番目のフレーム用の単色JPEGを作る
func (m *MockDevice) generate(n int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, m.width, m.height))
	c := color.RGBA{R: uint8(n * 37), G: uint8(n * 91), B: uint8(n * 13), A: 255}
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("JPEG エンコードに失敗: %w", err)
	}
	return buf.Bytes(), nil
}

// SetFrames は撮影ごとに順番に返すフレームを設定する
func (m *MockDevice) SetFrames(frames ...[]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = frames
}

// FailNextCapture は次の撮影を err で失敗させる
func (m *MockDevice) FailNextCapture(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

// SetShouldFailOpen はテスト用にOpen失敗を設定する
func (m *MockDevice) SetShouldFailOpen(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOpen = err
}

// Captures はこれまでの撮影成功回数を返す
func (m *MockDevice) Captures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.captures
}

// IsOpened はデバイスが開かれているかを返す
func (m *MockDevice) IsOpened() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}
