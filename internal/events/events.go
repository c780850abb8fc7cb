// Package events はカメラ状態の変化を外部に通知する
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Type はイベントの種類
type Type string

const (
	TypeStateChanged   Type = "state_changed"
	TypeRecordsDeleted Type = "records_deleted"
	TypeCaptureFailed  Type = "capture_failed"
)

// Event は通知1件分
type Event struct {
	Type      Type      `json:"type"`
	State     string    `json:"state,omitempty"`
	Previous  string    `json:"previous,omitempty"`
	Count     int       `json:"count,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// JSON はイベントをJSONにする
func (e Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher はイベントの送信先
type Publisher interface {
	Publish(ev Event) error
	Close() error
}

// Nop は何もしない Publisher
type Nop struct{}

func (Nop) Publish(Event) error { return nil }
func (Nop) Close() error        { return nil }

// Recorder は受け取ったイベントを保持する Publisher。テストと診断で使う
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events はこれまでに受け取ったイベントのコピーを返す
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
