package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions configures rotation of the JSONL audit file.
type FileOptions struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// FileSink appends records to a rotating JSONL file.
type FileSink struct {
	path string
	mu   sync.Mutex
	out  *lumberjack.Logger
}

func NewFileSink(path string, opts FileOptions) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	return &FileSink{
		path: path,
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		},
	}, nil
}

func (s *FileSink) Name() string { return "file_jsonl:" + s.path }

func (s *FileSink) Deliver(_ context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.out.Write(data); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

func (s *FileSink) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Close()
}
