package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"sync"

	"emsadvisor/internal/models"

	"golang.org/x/sync/singleflight"
)

// protocolManualCategories are the document categories retained when the
// knowledge-base scope is "protocol-manual".
var protocolManualCategories = map[string]bool{
	"treatment-protocol": true,
	"medical-control":    true,
	"reference":          true,
}

var docCodePattern = regexp.MustCompile(`(?i)\b(?:TP|MCG)\s*-?\s*(\d{4})(-P)?\b`)

// Store loads and serves the protocol document corpus. The corpus is built at
// most once; concurrent first callers share a single in-flight load and later
// calls are no-ops.
type Store struct {
	path  string
	scope string

	mu     sync.RWMutex
	loaded bool
	docs   []models.Document
	byID   map[string]models.Document
	byCode map[string][]models.Document

	group singleflight.Group
}

// NewStore creates a corpus store reading from path, filtered to scope.
func NewStore(path, scope string) *Store {
	return &Store{
		path:   path,
		scope:  scope,
		byID:   make(map[string]models.Document),
		byCode: make(map[string][]models.Document),
	}
}

// Load reads and filters the corpus file. Safe for concurrent use; only the
// first call does work.
func (s *Store) Load(ctx context.Context) error {
	s.mu.RLock()
	if s.loaded {
		s.mu.RUnlock()
		return nil
	}
	s.mu.RUnlock()

	_, err, _ := s.group.Do("load", func() (interface{}, error) {
		s.mu.RLock()
		done := s.loaded
		s.mu.RUnlock()
		if done {
			return nil, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, s.load()
	})
	return err
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read corpus file: %w", err)
	}

	var all []models.Document
	if err := json.Unmarshal(data, &all); err != nil {
		return fmt.Errorf("failed to parse corpus JSON: %w", err)
	}

	docs := make([]models.Document, 0, len(all))
	byID := make(map[string]models.Document, len(all))
	byCode := make(map[string][]models.Document)

	for _, doc := range all {
		if !s.inScope(doc) {
			continue
		}
		docs = append(docs, doc)
		byID[doc.ID] = doc
		if code := ProtocolCodeOf(doc); code != "" {
			byCode[code] = append(byCode[code], doc)
		}
	}

	s.mu.Lock()
	s.docs = docs
	s.byID = byID
	s.byCode = byCode
	s.loaded = true
	s.mu.Unlock()

	log.Printf("[CORPUS] Loaded %d documents (%d total, scope=%s)", len(docs), len(all), s.scope)
	return nil
}

func (s *Store) inScope(doc models.Document) bool {
	if s.scope != "protocol-manual" {
		return true
	}
	return protocolManualCategories[doc.Category]
}

// Documents returns the filtered corpus. Empty until Load has succeeded.
func (s *Store) Documents() []models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Document, len(s.docs))
	copy(out, s.docs)
	return out
}

// ByID returns the document with the given id.
func (s *Store) ByID(id string) (models.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.byID[id]
	return doc, ok
}

// ByProtocolCode returns documents carrying the given protocol code
// (e.g. "1210" or "1210-P").
func (s *Store) ByProtocolCode(code string) []models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.byCode[NormalizeCode(code)]
	out := make([]models.Document, len(docs))
	copy(out, docs)
	return out
}

// Loaded reports whether the corpus has been built.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// ProtocolCodeOf extracts the protocol code a document carries, scanning its
// id, title and keywords. Returns "" when the document is not protocol-bound.
func ProtocolCodeOf(doc models.Document) string {
	for _, field := range append([]string{doc.ID, doc.Title}, doc.Keywords...) {
		if m := docCodePattern.FindStringSubmatch(field); m != nil {
			return NormalizeCode(m[1] + m[2])
		}
	}
	return ""
}

// NormalizeCode upper-cases the pediatric suffix and strips spacing so
// "1210-p" and "1210 -P" compare equal.
func NormalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.ReplaceAll(code, " ", "")
}
