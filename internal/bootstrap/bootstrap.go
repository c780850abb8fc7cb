// Package bootstrap は設定から各コンポーネントを組み立てる
package bootstrap

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"kanshi/internal/camera"
	"kanshi/internal/config"
	"kanshi/internal/events"
	"kanshi/internal/sentinel"
)

// SetupLogging はログのレベルと形式を設定する
func SetupLogging(cfg config.LogConfig) error {
	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lv, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("ログレベルの解析に失敗: %w", err)
	}
	log.SetLevel(lv)

	if strings.EqualFold(cfg.Format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// NewStore は設定に応じた共有ストアを作成する
func NewStore(cfg config.StorageConfig) (sentinel.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return sentinel.NewMemoryStore(), nil
	case config.BackendFile, "":
		store, err := sentinel.NewFileStore(cfg.WorkDir)
		if err != nil {
			return nil, fmt.Errorf("ストアの作成に失敗: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("未対応のストア: %q", cfg.Backend)
	}
}

// NewCamera は設定に応じたカメラを作成する
func NewCamera(cfg config.CameraConfig) (*camera.Camera, error) {
	var device camera.Device
	switch cfg.Driver {
	case config.DriverV4L2, "":
		device = camera.NewV4L2Device(cfg.Device, camera.Settings{
			Width:    cfg.Width,
			Height:   cfg.Height,
			Rotation: cfg.Rotation,
			Quality:  cfg.Quality,
		})
	case config.DriverMock:
		device = camera.NewMockDevice(cfg.Width, cfg.Height)
	default:
		return nil, fmt.Errorf("未対応のカメラドライバー: %q", cfg.Driver)
	}
	return camera.New(device, cfg.Warmup), nil
}

// NewPublisher は状態通知の送信先を作成する。ブローカーが未設定なら何もしない Publisher を返す
//
// MQTTへの送信は別ゴルーチンで行い、ブローカーが遅くてもキャプチャループを止めない。
func NewPublisher(cfg config.MQTTConfig) (events.Publisher, error) {
	if cfg.Broker == "" {
		return events.Nop{}, nil
	}
	p, err := events.NewMQTTPublisher(events.MQTTConfig{
		Broker:   cfg.Broker,
		ClientID: cfg.ClientID,
		Topic:    cfg.Topic,
		QoS:      byte(cfg.QoS),
	})
	if err != nil {
		return nil, fmt.Errorf("MQTTの接続に失敗: %w", err)
	}
	return events.NewAsync(p, events.DefaultQueueSize), nil
}
