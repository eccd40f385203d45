package reports

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DiskSink stores reports as JSON files in a directory.
type DiskSink struct {
	dir     string
	maxSize int64
}

// NewDiskSink creates a DiskSink.
//
// Parameters:
//   - dir: Directory to store reports in
//   - maxSize: Maximum encoded report size in bytes (0 = no limit)
func NewDiskSink(dir string, maxSize int64) (*DiskSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &DiskSink{dir: dir, maxSize: maxSize}, nil
}

func (s *DiskSink) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes r to <dir>/<id>.json.
func (s *DiskSink) Save(ctx context.Context, r *Report) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := encode(r, s.maxSize)
	if err != nil {
		return "", err
	}

	// Write to a temp file and rename so readers never see a partial report.
	tmp, err := os.CreateTemp(s.dir, ".report-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), s.path(r.ID)); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return r.ID, nil
}

// Load reads the report with the given id.
func (s *DiskSink) Load(ctx context.Context, id string) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(id, data)
}

// Cleanup removes report files last modified before now-maxAge.
func (s *DiskSink) Cleanup(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(s.dir, entry.Name()))
		}
	}
	return nil
}
