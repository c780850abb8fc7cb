package sentinel

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// FileStore は作業ディレクトリ上のファイルで信号を表現する Store 実装
type FileStore struct {
	root      string
	recordDir string
}

// NewFileStore は新しいFileStoreを作成する。作業ディレクトリと録画ディレクトリは無ければ作る
func NewFileStore(root string) (*FileStore, error) {
	s := &FileStore{
		root:      root,
		recordDir: filepath.Join(root, RecordDir),
	}
	if err := os.MkdirAll(s.recordDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "録画ディレクトリの作成に失敗: %s", s.recordDir)
	}
	return s, nil
}

// Root は作業ディレクトリを返す
func (s *FileStore) Root() string {
	return s.root
}

// Path は作業ディレクトリ内のファイルパスを返す
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.root, name)
}

// Exists はセンチネルが存在するかを毎回ファイルシステムに問い合わせる
//
// 存在しないと確定できないエラー（権限、I/O）は存在扱いにする。読み手はロックが読めない間は待つ。
func (s *FileStore) Exists(sn Sentinel) bool {
	_, err := os.Stat(s.Path(string(sn)))
	if err == nil {
		return true
	}
	if !os.IsNotExist(err) {
		log.WithError(err).WithField("sentinel", sn).Debug("センチネルを確認できません。存在するものとして扱います")
		return true
	}
	return false
}

// Set はセンチネルを作成する
func (s *FileStore) Set(sn Sentinel) error {
	f, err := os.OpenFile(s.Path(string(sn)), os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "センチネル %s の作成に失敗", sn)
	}
	return f.Close()
}

// Clear はセンチネルを削除する
func (s *FileStore) Clear(sn Sentinel) error {
	if err := os.Remove(s.Path(string(sn))); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "センチネル %s の削除に失敗", sn)
	}
	return nil
}

// ReadFeed はフィードのフレームファイルを丸ごと読み込む
func (s *FileStore) ReadFeed(f Feed) ([]byte, error) {
	data, err := os.ReadFile(s.Path(f.Output))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotAvailable
		}
		return nil, errors.Wrapf(err, "フレーム %s の読み込みに失敗", f.Output)
	}
	// 書き込み開始直後の空ファイルは未到着として扱う
	if len(data) == 0 {
		return nil, ErrNotAvailable
	}
	return data, nil
}

// WriteFeed はフィードのフレームファイルを上書きする。ロックの取得は呼び出し側の責務
func (s *FileStore) WriteFeed(f Feed, data []byte) error {
	if err := os.WriteFile(s.Path(f.Output), data, 0644); err != nil {
		return errors.Wrapf(err, "フレーム %s の書き込みに失敗", f.Output)
	}
	return nil
}

// AppendRecord はキャプチャ時刻を名前にして録画ファイルを作成する。既存ファイルは上書きしない
func (s *FileStore) AppendRecord(t time.Time, data []byte) (string, error) {
	name := RecordName(t)
	if err := os.MkdirAll(s.recordDir, 0755); err != nil {
		return "", errors.Wrap(err, "録画ディレクトリの作成に失敗")
	}
	f, err := os.OpenFile(filepath.Join(s.recordDir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", errors.Wrapf(err, "録画ファイル %s の作成に失敗", name)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return "", errors.Wrapf(err, "録画ファイル %s の書き込みに失敗", name)
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrapf(err, "録画ファイル %s のクローズに失敗", name)
	}
	return name, nil
}

// recordNames は録画ディレクトリ内の通常ファイル名を名前順で返す
func (s *FileStore) recordNames() ([]string, error) {
	entries, err := os.ReadDir(s.recordDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "録画ディレクトリの読み取りに失敗")
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ListRecords は全ての録画ファイルを名前順に返す
func (s *FileStore) ListRecords() ([]RecordFile, error) {
	names, err := s.recordNames()
	if err != nil {
		return nil, err
	}

	records := make([]RecordFile, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(s.recordDir, name))
		if err != nil {
			// 一覧取得と読み込みの間に削除された
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.Wrapf(err, "録画ファイル %s の読み込みに失敗", name)
		}
		records = append(records, RecordFile{Name: name, Data: data})
	}
	return records, nil
}

// CountRecords は録画ファイル数を返す
func (s *FileStore) CountRecords() (int, error) {
	names, err := s.recordNames()
	return len(names), err
}

// ClearAllRecords は全ての録画ファイルを削除し、削除した数を返す
func (s *FileStore) ClearAllRecords() (int, error) {
	names, err := s.recordNames()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, name := range names {
		if err := os.Remove(filepath.Join(s.recordDir, name)); err != nil && !os.IsNotExist(err) {
			return removed, errors.Wrapf(err, "録画ファイル %s の削除に失敗", name)
		}
		removed++
	}
	return removed, nil
}

// RemoveScratchArchive は前回のダウンロードで残った records.zip を削除する
func (s *FileStore) RemoveScratchArchive() error {
	if err := os.Remove(s.Path(RecordArchive)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "一時アーカイブの削除に失敗")
	}
	return nil
}
