package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"kanshi/internal/config"
	"kanshi/internal/control"
	"kanshi/internal/sentinel"
)

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	store      sentinel.Store
	controller *control.Controller
	engine     *gin.Engine
	httpServer *http.Server

	// 配信中のリクエストはこのコンテキストから派生する。シャットダウン時にキャンセルする
	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu   sync.Mutex
	addr net.Addr
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, store sentinel.Store) *Server {
	if log.IsLevelEnabled(log.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:     cfg,
		store:      store,
		controller: control.New(store),
		engine:     gin.New(),
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}
	s.engine.Use(gin.Recovery(), accessLogger())
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      s.engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BaseContext: func(net.Listener) context.Context {
			return s.baseCtx
		},
	}
	return s
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	// 映像配信
	s.engine.GET("/video/stream", s.handleStream(sentinel.PrimaryFeed))
	s.engine.GET("/cam/stream", s.handleStream(sentinel.SecondaryFeed))

	// カメラ操作
	s.engine.GET("/video/activate", s.handleCommand(s.controller.Activate))
	s.engine.GET("/video/deactivate", s.handleCommand(s.controller.Deactivate))
	s.engine.GET("/video/records/start", s.handleCommand(s.controller.StartRecording))
	s.engine.GET("/video/records/stop", s.handleCommand(s.controller.StopRecording))
	s.engine.GET("/video/records/delete", s.handleCommand(s.controller.RequestDeleteRecords))
	s.engine.GET("/video/records/download", s.handleDownload)
	s.engine.GET("/video/status", s.handleVideoStatus)

	// ヘルスチェックとシステム状態
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/api/status", s.handleStatus)

	// ルートハンドラ（簡単な確認用）
	s.engine.GET("/", s.handleRoot)
}

// accessLogger はリクエストごとにアクセスログを出力する
func accessLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
			"client":  c.ClientIP(),
		}).Info("HTTPリクエスト")
	}
}

// Addr は実際にリッスンしているアドレスを返す。起動前は nil
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start はサーバーを起動する
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("サーバーの起動に失敗: %w", err)
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		log.WithField("addr", ln.Addr().String()).Info("HTTPサーバーを起動しています")
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		log.Info("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		log.WithField("signal", sig).Info("シグナルを受信しました")
	case err := <-shutdownCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	log.Info("サーバーをシャットダウンしています...")

	// 配信中のストリームを終わらせる
	s.cancelBase()

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	log.Info("サーバーが正常にシャットダウンされました")
	return nil
}
