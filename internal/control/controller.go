// Package control はHTTPのコマンドをセンチネル操作に変換する
//
// # 責務
//
//   - カメラの停止・再開、録画の開始・停止、録画削除の要求
//   - 録画のZIPアーカイブ作成
//   - 現在のフラグと状態の取得
//
// 要求はセンチネルを立てる・消すだけで、実際の処理はキャプチャループが次のティックで行う。
package control

import (
	"archive/zip"
	"bytes"
	"io"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"kanshi/internal/sentinel"
)

// レスポンスメッセージ
const (
	MessageActivated      = "Camera is activated."
	MessageDeactivated    = "Camera is deactivated."
	MessageRecordStarted  = "Start recording."
	MessageRecordStopped  = "Stop recording."
	MessageRecordsDeleted = "Records are deleted."
)

// Status はストアから見た現在の状態
type Status struct {
	State           string `json:"state"`
	Sleeping        bool   `json:"sleeping"`
	Recording       bool   `json:"recording"`
	DeleteRequested bool   `json:"delete_requested"`
	Records         int    `json:"records"`
}

// scratchRemover は古い一時アーカイブを消せるストア
type scratchRemover interface {
	RemoveScratchArchive() error
}

// Controller はセンチネルを操作する
type Controller struct {
	store sentinel.Store
	now   func() time.Time
}

// New は新しいControllerを作成する
func New(store sentinel.Store) *Controller {
	return &Controller{store: store, now: time.Now}
}

// Activate はカメラを再開する
func (c *Controller) Activate() (string, error) {
	if err := c.store.Clear(sentinel.Sleep); err != nil {
		return "", errors.Wrap(err, "カメラの再開に失敗")
	}
	log.Info("カメラの再開を要求しました")
	return MessageActivated, nil
}

// Deactivate はカメラを停止する
func (c *Controller) Deactivate() (string, error) {
	if err := c.store.Set(sentinel.Sleep); err != nil {
		return "", errors.Wrap(err, "カメラの停止に失敗")
	}
	log.Info("カメラの停止を要求しました")
	return MessageDeactivated, nil
}

// StartRecording は録画を開始する
func (c *Controller) StartRecording() (string, error) {
	if err := c.store.Set(sentinel.Record); err != nil {
		return "", errors.Wrap(err, "録画の開始に失敗")
	}
	log.Info("録画の開始を要求しました")
	return MessageRecordStarted, nil
}

// StopRecording は録画を停止する
func (c *Controller) StopRecording() (string, error) {
	if err := c.store.Clear(sentinel.Record); err != nil {
		return "", errors.Wrap(err, "録画の停止に失敗")
	}
	log.Info("録画の停止を要求しました")
	return MessageRecordStopped, nil
}

// RequestDeleteRecords は録画の削除を要求する。削除はキャプチャループが行う
func (c *Controller) RequestDeleteRecords() (string, error) {
	if err := c.store.Set(sentinel.DeleteRecords); err != nil {
		return "", errors.Wrap(err, "録画削除の要求に失敗")
	}
	log.Info("録画の削除を要求しました")
	return MessageRecordsDeleted, nil
}

// Status は現在のフラグと録画数を返す
func (c *Controller) Status() (Status, error) {
	flags := sentinel.ReadFlags(c.store)
	n, err := c.store.CountRecords()
	if err != nil {
		return Status{}, errors.Wrap(err, "録画数の取得に失敗")
	}
	return Status{
		State:           flags.State().String(),
		Sleeping:        flags.Sleeping,
		Recording:       flags.Recording,
		DeleteRequested: flags.DeleteRequested,
		Records:         n,
	}, nil
}

// ArchiveName はダウンロード時のファイル名を返す (YYYYMMDDhhmmss + マイクロ秒6桁)
func ArchiveName(t time.Time) string {
	stamp := strings.Replace(t.Format("20060102150405.000000"), ".", "", 1)
	return "camera_records_" + stamp + ".zip"
}

// Archive はZIPアーカイブとその作成時刻
type Archive struct {
	Name      string
	CreatedAt time.Time
	Data      []byte
}

// DownloadRecords は全ての録画を1つのZIPにまとめる
//
// エントリ名は records/<ファイル名>。録画が無い場合も空の有効なZIPを返す。
func (c *Controller) DownloadRecords() (*Archive, error) {
	if fs, ok := c.store.(scratchRemover); ok {
		if err := fs.RemoveScratchArchive(); err != nil {
			log.WithError(err).Warn("古いアーカイブの削除に失敗")
		}
	}

	var buf bytes.Buffer
	now := c.now()
	n, err := c.WriteArchive(&buf, now)
	if err != nil {
		return nil, err
	}
	log.WithField("records", n).Info("録画アーカイブを作成しました")

	return &Archive{Name: ArchiveName(now), CreatedAt: now, Data: buf.Bytes()}, nil
}

// WriteArchive は録画をZIP形式で w に書き込み、格納した件数を返す
func (c *Controller) WriteArchive(w io.Writer, modified time.Time) (int, error) {
	records, err := c.store.ListRecords()
	if err != nil {
		return 0, errors.Wrap(err, "録画一覧の取得に失敗")
	}

	zw := zip.NewWriter(w)
	for _, rec := range records {
		hdr := &zip.FileHeader{
			Name:     path.Join(sentinel.RecordDir, rec.Name),
			Method:   zip.Deflate,
			Modified: modified,
		}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return 0, errors.Wrapf(err, "アーカイブへの追加に失敗: %s", rec.Name)
		}
		if _, err := fw.Write(rec.Data); err != nil {
			return 0, errors.Wrapf(err, "アーカイブへの書き込みに失敗: %s", rec.Name)
		}
	}
	if err := zw.Close(); err != nil {
		return 0, errors.Wrap(err, "アーカイブの終端処理に失敗")
	}
	return len(records), nil
}
