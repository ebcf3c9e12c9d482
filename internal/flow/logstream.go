package flow

import (
	"fmt"
	"sync"
	"time"
)

// Level 表示日志条目的级别。
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

// Entry 是流程日志流中的一条记录。
type Entry struct {
	Seq     int       `json:"seq"`
	At      time.Time `json:"at"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
}

// Stream 是一条只追加的流程日志流，按写入顺序保留全部条目。
type Stream struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
}

// NewStream 创建空日志流。
func NewStream() *Stream {
	return &Stream{now: time.Now}
}

// Append 追加一条指定级别的日志。
func (s *Stream) Append(level Level, format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, Entry{
		Seq:     len(s.entries) + 1,
		At:      s.now(),
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	})
}

// Info 追加一条 INFO 日志。
func (s *Stream) Info(format string, args ...any) {
	s.Append(LevelInfo, format, args...)
}

// Error 追加一条 ERROR 日志。
func (s *Stream) Error(format string, args ...any) {
	s.Append(LevelError, format, args...)
}

// Entries 返回日志条目快照。
func (s *Stream) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries...)
}

// Len 返回日志条目数量。
func (s *Stream) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
