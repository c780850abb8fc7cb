// Package main はKanshiのHTTPサーバーだけを起動するコマンドです
//
// キャプチャループは cmd/capture で別プロセスとして起動し、作業ディレクトリを共有します。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"kanshi/internal/bootstrap"
	"kanshi/internal/config"
	"kanshi/internal/server"
)

func main() {
	// コマンドラインオプション
	var (
		host    = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port    = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		workDir = flag.String("workdir", "", "キャプチャループと共有する作業ディレクトリ (デフォルト: /tmp)")
		help    = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Kanshi")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}
	if err := bootstrap.SetupLogging(cfg.Log); err != nil {
		log.Fatalf("ログの設定に失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *workDir != "" {
		cfg.Storage.WorkDir = *workDir
	}

	// 別プロセスと共有できるのはファイルストアだけ
	if cfg.Storage.Backend != config.BackendFile {
		log.Warnf("%s ストアはプロセス間で共有できないため file ストアを使用します", cfg.Storage.Backend)
		cfg.Storage.Backend = config.BackendFile
	}

	store, err := bootstrap.NewStore(cfg.Storage)
	if err != nil {
		log.Fatalf("ストアの作成に失敗しました: %v", err)
	}

	srv := server.New(cfg, store)

	// サーバーを起動
	log.Infof("Kanshi サーバーを起動します: %s", cfg.ServerAddress())
	if err := srv.Start(context.Background()); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
