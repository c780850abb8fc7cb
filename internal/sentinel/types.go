package sentinel

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel は存在のみが意味を持つマーカーファイル名
type Sentinel string

const (
	Lock          Sentinel = "camera_lock"           // 最新フレーム書き込み中
	Sleep         Sentinel = "camera_sleep"          // カメラ停止要求
	Record        Sentinel = "camera_record"         // 録画要求
	DeleteRecords Sentinel = "camera_delete_records" // 録画削除要求（一度きり）
	CamLock       Sentinel = "cam_lock"              // セカンダリフィードの書き込み中
)

// ファイルレイアウト
const (
	OutputFile    = "camera_out.jpg"
	CamOutputFile = "cam_out.jpg"
	RecordDir     = "records"
	RecordArchive = "records.zip"
	RecordExt     = ".jpg"
)

// ErrNotAvailable は最新フレームがまだ書き込まれていないことを表す
var ErrNotAvailable = errors.New("frame not available yet")

// Feed は読み手から見た1本の映像フィード
type Feed struct {
	Name   string   // ログ用の名前
	Output string   // フレームファイル名
	Lock   Sentinel // 書き込み中を示すロック
	Pause  Sentinel // 存在する間は配信を止める（空なら無視）
}

var (
	// PrimaryFeed はキャプチャループが書き込むフィード
	PrimaryFeed = Feed{Name: "video", Output: OutputFile, Lock: Lock, Pause: Sleep}
	// SecondaryFeed は外部のプロデューサーが書き込むフィード
	SecondaryFeed = Feed{Name: "cam", Output: CamOutputFile, Lock: CamLock}
)

// RecordFile は録画された1フレーム
type RecordFile struct {
	Name string
	Data []byte
}

// Store は両ループが触れる唯一の共有オブジェクト
type Store interface {
	Exists(s Sentinel) bool
	Set(s Sentinel) error
	Clear(s Sentinel) error

	ReadFeed(f Feed) ([]byte, error)
	WriteFeed(f Feed, data []byte) error

	AppendRecord(t time.Time, data []byte) (string, error)
	ListRecords() ([]RecordFile, error)
	CountRecords() (int, error)
	ClearAllRecords() (int, error)
}

// ReadLatestFrame はプライマリフィードの最新フレームを読み込む
func ReadLatestFrame(s Store) ([]byte, error) {
	return s.ReadFeed(PrimaryFeed)
}

// WriteLatestFrame はプライマリフィードに最新フレームを書き込む
func WriteLatestFrame(s Store, data []byte) error {
	return s.WriteFeed(PrimaryFeed, data)
}

// RecordName はキャプチャ時刻から録画ファイル名を生成する (YYYYMMDDhhmmss + マイクロ秒6桁)
func RecordName(t time.Time) string {
	return fmt.Sprintf("%s%06d%s", t.Format("20060102150405"), t.Nanosecond()/int(time.Microsecond), RecordExt)
}
