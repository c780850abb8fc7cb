package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"kanshi/internal/sentinel"
	"kanshi/internal/stream"
)

// ダウンロード時のキャッシュ無効化ヘッダー
const noStoreCacheControl = "no-store, no-cache, must-revalidate, post-check=0, pre-check=0, max-age=0"

// handleStream はフィードをMJPEGで配信するハンドラを返す
func (s *Server) handleStream(feed sentinel.Feed) gin.HandlerFunc {
	return func(c *gin.Context) {
		streamID := uuid.NewString()
		logger := log.WithFields(log.Fields{"feed": feed.Name, "stream_id": streamID})

		// レスポンスライターを取得
		writer := c.Writer
		flusher, ok := writer.(http.Flusher)
		if !ok {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		responder := stream.New(s.store, feed,
			stream.WithFrameInterval(s.config.Stream.FrameInterval),
			stream.WithPollInterval(s.config.Stream.PollInterval),
			stream.WithLogger(logger),
		)

		// レスポンスヘッダーを設定
		c.Header("Content-Type", stream.ContentType)
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("X-Stream-Id", streamID)
		c.Status(http.StatusOK)
		writer.WriteHeaderNow()
		flusher.Flush()

		logger.Info("配信を開始しました")
		frames := 0

		// クライアントが切断するとリクエストのコンテキストが終わり、列も終わる
		for chunk := range responder.Frames(c.Request.Context()) {
			if _, err := writer.Write(chunk); err != nil {
				logger.WithError(err).Debug("書き込みに失敗。配信を終了します")
				break
			}

			// バッファをフラッシュ
			flusher.Flush()
			frames++
		}

		logger.WithField("frames", frames).Info("配信を終了しました")
	}
}

// handleCommand はセンチネル操作を実行してメッセージを返すハンドラを作る
func (s *Server) handleCommand(command func() (string, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		msg, err := command()
		if err != nil {
			log.WithError(err).Error("コマンドの実行に失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": msg})
	}
}

// handleDownload は全ての録画をZIPで返す
func (s *Server) handleDownload(c *gin.Context) {
	archive, err := s.controller.DownloadRecords()
	if err != nil {
		log.WithError(err).Error("録画アーカイブの作成に失敗しました")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archive.Name))
	c.Header("Last-Modified", archive.CreatedAt.UTC().Format(http.TimeFormat))
	c.Header("Cache-Control", noStoreCacheControl)
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "-1")
	c.Data(http.StatusOK, "application/zip", archive.Data)
}

// handleVideoStatus はストアから見たカメラの状態を返す
func (s *Server) handleVideoStatus(c *gin.Context) {
	st, err := s.controller.Status()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

// handleHealth はヘルスチェックエンドポイント
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleStatus はステータス確認エンドポイント
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "running",
		"server": gin.H{
			"host": s.config.Server.Host,
			"port": s.config.Server.Port,
		},
		"camera": gin.H{
			"state":  sentinel.CurrentState(s.store).String(),
			"driver": s.config.Camera.Driver,
			"width":  s.config.Camera.Width,
			"height": s.config.Camera.Height,
		},
		"store":     s.config.Storage.Backend,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleRoot はルートパスのハンドラ
func (s *Server) handleRoot(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(`<!DOCTYPE html>
<html lang="ja">
<head>
    <meta charset="UTF-8">
    <title>Kanshi - 監視カメラ</title>
</head>
<body>
    <h1>Kanshi 監視カメラ</h1>
    <p><img src="/video/stream" alt="camera"></p>
    <p>
        <a href="/video/activate">再開</a> |
        <a href="/video/deactivate">停止</a> |
        <a href="/video/records/start">録画開始</a> |
        <a href="/video/records/stop">録画停止</a> |
        <a href="/video/records/download">ダウンロード</a> |
        <a href="/video/records/delete">録画削除</a>
    </p>
    <p>ステータス: <a href="/video/status">/video/status</a></p>
    <p>ヘルスチェック: <a href="/health">/health</a></p>
</body>
</html>`))
}
