// Package main はKanshiのキャプチャループだけを起動するコマンドです
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"kanshi/internal/bootstrap"
	"kanshi/internal/capture"
	"kanshi/internal/config"
)

func main() {
	var (
		workDir = flag.String("workdir", "", "HTTPサーバーと共有する作業ディレクトリ (デフォルト: /tmp)")
		device  = flag.String("device", "", "カメラデバイス (デフォルト: /dev/video0)")
		fps     = flag.Int("fps", 0, "キャプチャの周期 (デフォルト: 20)")
		mock    = flag.Bool("mock", false, "カメラの代わりにモックデバイスを使う")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}
	if err := bootstrap.SetupLogging(cfg.Log); err != nil {
		log.Fatalf("ログの設定に失敗しました: %v", err)
	}

	if *workDir != "" {
		cfg.Storage.WorkDir = *workDir
	}
	if *device != "" {
		cfg.Camera.Device = *device
	}
	if *fps > 0 {
		cfg.Camera.FPS = *fps
	}
	if *mock {
		cfg.Camera.Driver = config.DriverMock
	}
	cfg.Storage.Backend = config.BackendFile

	if err := run(cfg); err != nil {
		log.Fatalf("キャプチャループの起動に失敗しました: %v", err)
	}
}

func run(cfg *config.Config) error {
	store, err := bootstrap.NewStore(cfg.Storage)
	if err != nil {
		return err
	}
	cam, err := bootstrap.NewCamera(cfg.Camera)
	if err != nil {
		return err
	}
	publisher, err := bootstrap.NewPublisher(cfg.MQTT)
	if err != nil {
		log.WithError(err).Warn("状態通知を無効にして続行します")
		publisher, _ = bootstrap.NewPublisher(config.MQTTConfig{})
	}
	defer publisher.Close()

	loop := capture.New(store, cam, cfg.Camera.FPS, capture.WithPublisher(publisher))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{"device": cfg.Camera.Device, "workdir": cfg.Storage.WorkDir}).Info("カメラを起動しています")
	if err := loop.Start(ctx); err != nil {
		return err
	}

	runErr := loop.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := loop.Close(closeCtx); err != nil {
		log.WithError(err).Warn("カメラの終了処理に失敗しました")
	}
	return runErr
}
