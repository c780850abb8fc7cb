package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"kanshi/internal/bootstrap"
	"kanshi/internal/capture"
	"kanshi/internal/config"
	"kanshi/internal/server"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}
	if err := bootstrap.SetupLogging(cfg.Log); err != nil {
		log.Fatalf("ログの設定に失敗しました: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("起動に失敗しました: %v", err)
	}
}

// run はキャプチャループとHTTPサーバーを同じプロセスで動かす
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
		// 通知が無くてもカメラは動かす
		log.WithError(err).Warn("状態通知を無効にして続行します")
		publisher, _ = bootstrap.NewPublisher(config.MQTTConfig{})
	}
	defer publisher.Close()

	loop := capture.New(store, cam, cfg.Camera.FPS, capture.WithPublisher(publisher))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithField("device", cfg.Camera.Device).Info("カメラを起動しています")
	if err := loop.Start(ctx); err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := loop.Close(closeCtx); err != nil {
			log.WithError(err).Warn("カメラの終了処理に失敗しました")
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = loop.Run(ctx)
	}()

	// サーバーを起動
	srv := server.New(cfg, store)
	err = srv.Start(ctx)

	stop()
	wg.Wait()
	return err
}
