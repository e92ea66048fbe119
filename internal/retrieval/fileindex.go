package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"emsadvisor/internal/corpus"
	"emsadvisor/internal/models"
)

// FileIndex is the static file-based protocol index used as the third link of
// the retrieval fallback cascade. It loads once, lazily.
type FileIndex struct {
	path string

	once    sync.Once
	loadErr error
	byCode  map[string]models.Protocol
}

// NewFileIndex creates a file index over the JSON protocol file at path.
func NewFileIndex(path string) *FileIndex {
	return &FileIndex{path: path}
}

func (f *FileIndex) load() error {
	f.once.Do(func() {
		data, err := os.ReadFile(f.path)
		if err != nil {
			f.loadErr = fmt.Errorf("failed to read protocol index: %w", err)
			return
		}
		var protocols []models.Protocol
		if err := json.Unmarshal(data, &protocols); err != nil {
			f.loadErr = fmt.Errorf("failed to parse protocol index: %w", err)
			return
		}
		byCode := make(map[string]models.Protocol, len(protocols))
		for _, p := range protocols {
			byCode[corpus.NormalizeCode(p.TPCode)] = p
		}
		f.byCode = byCode
	})
	return f.loadErr
}

// GetProtocolByCode returns the indexed protocol for code, or nil when absent.
func (f *FileIndex) GetProtocolByCode(_ context.Context, code string) (*models.Protocol, error) {
	if err := f.load(); err != nil {
		return nil, err
	}
	p, ok := f.byCode[corpus.NormalizeCode(code)]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// Search returns protocols whose name or keywords contain the query.
func (f *FileIndex) Search(_ context.Context, query string, limit int) ([]models.Protocol, error) {
	if err := f.load(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 6
	}
	q := strings.ToLower(query)
	var out []models.Protocol
	for _, p := range f.byCode {
		if len(out) >= limit {
			break
		}
		if strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(strings.Join(p.Keywords, " ")), q) {
			out = append(out, p)
		}
	}
	return out, nil
}
