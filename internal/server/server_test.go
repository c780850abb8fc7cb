package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanshi/internal/config"
	"kanshi/internal/sentinel"
	"kanshi/internal/stream"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0 // ランダムポートを使用
	cfg.Storage.Backend = config.BackendMemory
	cfg.Stream.FrameInterval = 5 * time.Millisecond
	cfg.Stream.PollInterval = time.Millisecond
	return cfg
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	h.ServeHTTP(w, req)
	return w
}

// TestServerStartAndShutdown はサーバーの起動とシャットダウンをテストする
func TestServerStartAndShutdown(t *testing.T) {
	srv := New(testConfig(), sentinel.NewMemoryStore())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// サーバーを別ゴルーチンで起動
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, 10*time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://%s/health", srv.Addr()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// コンテキストをキャンセルしてサーバーを停止
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("サーバーの停止がタイムアウトしました")
	}
}

// TestServerShutdownEndsStreams は配信中でもシャットダウンが終わることをテストする
func TestServerShutdownEndsStreams(t *testing.T) {
	store := sentinel.NewMemoryStore()
	require.NoError(t, sentinel.WriteLatestFrame(store, []byte("frame")))
	srv := New(testConfig(), store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()
	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, 10*time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://%s/video/stream", srv.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()

	buf := make([]byte, len(stream.Part([]byte("frame"))))
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("配信中のシャットダウンがタイムアウトしました")
	}
}

// TestServerEndpoints はサーバーのエンドポイントをテストする
func TestServerEndpoints(t *testing.T) {
	h := New(testConfig(), sentinel.NewMemoryStore()).Handler()

	testCases := []struct {
		name           string
		endpoint       string
		expectedStatus int
	}{
		{"ルートエンドポイント", "/", http.StatusOK},
		{"ヘルスチェックエンドポイント", "/health", http.StatusOK},
		{"ステータスエンドポイント", "/api/status", http.StatusOK},
		{"カメラ状態", "/video/status", http.StatusOK},
		{"存在しないパス", "/video/unknown", http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := get(t, h, tc.endpoint)
			assert.Equal(t, tc.expectedStatus, w.Code)
		})
	}
}

func TestCommandRoutes(t *testing.T) {
	store := sentinel.NewMemoryStore()
	h := New(testConfig(), store).Handler()

	testCases := []struct {
		path    string
		message string
		want    sentinel.Flags
	}{
		{"/video/deactivate", "Camera is deactivated.", sentinel.Flags{Sleeping: true}},
		{"/video/records/start", "Start recording.", sentinel.Flags{Sleeping: true, Recording: true}},
		{"/video/activate", "Camera is activated.", sentinel.Flags{Recording: true}},
		{"/video/records/stop", "Stop recording.", sentinel.Flags{}},
		{"/video/records/delete", "Records are deleted.", sentinel.Flags{DeleteRequested: true}},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			w := get(t, h, tc.path)
			require.Equal(t, http.StatusOK, w.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.message, body["message"])
			assert.Equal(t, tc.want, sentinel.ReadFlags(store))
		})
	}
}

func TestVideoStatus(t *testing.T) {
	store := sentinel.NewMemoryStore()
	require.NoError(t, store.Set(sentinel.Record))
	_, err := store.AppendRecord(time.Now(), []byte("x"))
	require.NoError(t, err)

	w := get(t, New(testConfig(), store).Handler(), "/video/status")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "RECORDING", body["state"])
	assert.Equal(t, true, body["recording"])
	assert.Equal(t, false, body["sleeping"])
	assert.Equal(t, float64(1), body["records"])
}

func TestDownloadRecords(t *testing.T) {
	store := sentinel.NewMemoryStore()
	name, err := store.AppendRecord(time.Date(2024, 1, 2, 3, 4, 5, 6000, time.Local), []byte("jpeg"))
	require.NoError(t, err)

	w := get(t, New(testConfig(), store).Handler(), "/video/records/download")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Regexp(t, `^attachment; filename="camera_records_\d{20}\.zip"$`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, noStoreCacheControl, w.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", w.Header().Get("Pragma"))
	assert.Equal(t, "-1", w.Header().Get("Expires"))
	_, err = http.ParseTime(w.Header().Get("Last-Modified"))
	assert.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "records/"+name, zr.File[0].Name)
}

func TestDownloadRecordsEmpty(t *testing.T) {
	w := get(t, New(testConfig(), sentinel.NewMemoryStore()).Handler(), "/video/records/download")
	require.Equal(t, http.StatusOK, w.Code)

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	assert.Empty(t, zr.File)
}

func TestStreamRoutes(t *testing.T) {
	store := sentinel.NewMemoryStore()
	require.NoError(t, sentinel.WriteLatestFrame(store, []byte("primary")))
	require.NoError(t, store.WriteFeed(sentinel.SecondaryFeed, []byte("secondary")))

	ts := httptest.NewServer(New(testConfig(), store).Handler())
	defer ts.Close()

	testCases := []struct {
		path string
		data []byte
	}{
		{"/video/stream", []byte("primary")},
		{"/cam/stream", []byte("secondary")},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+tc.path, nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", resp.Header.Get("Content-Type"))
			assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
			assert.NotEmpty(t, resp.Header.Get("X-Stream-Id"))

			// 2フレーム続けて届く
			want := stream.Part(tc.data)
			for i := 0; i < 2; i++ {
				buf := make([]byte, len(want))
				_, err = io.ReadFull(resp.Body, buf)
				require.NoError(t, err)
				assert.Equal(t, want, buf)
			}
		})
	}
}

func TestStreamIDsAreUnique(t *testing.T) {
	store := sentinel.NewMemoryStore()
	require.NoError(t, sentinel.WriteLatestFrame(store, []byte("f")))

	ts := httptest.NewServer(New(testConfig(), store).Handler())
	defer ts.Close()

	ids := map[string]bool{}
	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/video/stream", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		ids[resp.Header.Get("X-Stream-Id")] = true
		cancel()
		resp.Body.Close()
	}
	assert.Len(t, ids, 3)
}
