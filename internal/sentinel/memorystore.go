package sentinel

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// MemoryStore はプロセス内で両ループを動かすための Store 実装
//
// センチネルはフラグ、フレームファイルはバイト列に置き換わる。
// 読み手・書き手の手順（ロック確認→読み込み）は FileStore と同じで、
// ミューテックスは個々の操作を守るだけで、ロックセンチネルの代わりにはならない。
type MemoryStore struct {
	mu      sync.RWMutex
	flags   map[Sentinel]bool
	feeds   map[string][]byte
	records map[string][]byte
}

// NewMemoryStore は空のMemoryStoreを作成する
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		flags:   make(map[Sentinel]bool),
		feeds:   make(map[string][]byte),
		records: make(map[string][]byte),
	}
}

func (s *MemoryStore) Exists(sn Sentinel) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags[sn]
}

func (s *MemoryStore) Set(sn Sentinel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[sn] = true
	return nil
}

func (s *MemoryStore) Clear(sn Sentinel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flags, sn)
	return nil
}

func (s *MemoryStore) ReadFeed(f Feed) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.feeds[f.Output]
	if !ok || len(data) == 0 {
		return nil, ErrNotAvailable
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemoryStore) WriteFeed(f Feed, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds[f.Output] = buf
	return nil
}

func (s *MemoryStore) AppendRecord(t time.Time, data []byte) (string, error) {
	name := RecordName(t)
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[name]; exists {
		return "", errors.Errorf("録画ファイル %s は既に存在します", name)
	}
	s.records[name] = buf
	return name, nil
}

func (s *MemoryStore) ListRecords() ([]RecordFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.records))
	for name := range s.records {
		names = append(names, name)
	}
	sort.Strings(names)

	records := make([]RecordFile, 0, len(names))
	for _, name := range names {
		data := make([]byte, len(s.records[name]))
		copy(data, s.records[name])
		records = append(records, RecordFile{Name: name, Data: data})
	}
	return records, nil
}

func (s *MemoryStore) CountRecords() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *MemoryStore) ClearAllRecords() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.records)
	s.records = make(map[string][]byte)
	return n, nil
}
