package search

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"emsadvisor/internal/corpus"
	"emsadvisor/internal/models"

	"github.com/blevesearch/bleve/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultResultLimit caps search hits when the caller does not supply a limit.
const DefaultResultLimit = 6

// Field boosts: title matches dominate, category and keywords next, body last.
const (
	titleBoost    = 3.0
	categoryBoost = 2.0
	contentBoost  = 1.0
)

// Index is the inverted index over the filtered corpus. It is built at most
// once; concurrent first callers share a single in-flight build.
type Index struct {
	store *corpus.Store

	mu    sync.RWMutex
	built bool
	idx   bleve.Index

	group singleflight.Group
}

// NewIndex creates an index over the given corpus store.
func NewIndex(store *corpus.Store) *Index {
	return &Index{store: store}
}

// Build loads the corpus if needed and indexes every document. Subsequent
// calls are no-ops.
func (s *Index) Build(ctx context.Context) error {
	s.mu.RLock()
	if s.built {
		s.mu.RUnlock()
		return nil
	}
	s.mu.RUnlock()

	_, err, _ := s.group.Do("build", func() (interface{}, error) {
		s.mu.RLock()
		done := s.built
		s.mu.RUnlock()
		if done {
			return nil, nil
		}
		return nil, s.build(ctx)
	})
	return err
}

func (s *Index) build(ctx context.Context) error {
	if err := s.store.Load(ctx); err != nil {
		return fmt.Errorf("corpus load failed: %w", err)
	}

	indexMapping := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	docMapping.AddFieldMappingsAt(models.DocFieldTitle, text)
	docMapping.AddFieldMappingsAt(models.DocFieldCategory, text)
	docMapping.AddFieldMappingsAt(models.DocFieldKeywords, text)
	docMapping.AddFieldMappingsAt(models.DocFieldContent, text)
	indexMapping.DefaultMapping = docMapping

	idx, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	batch := idx.NewBatch()
	docs := s.store.Documents()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, map[string]interface{}{
			models.DocFieldTitle:    doc.Title,
			models.DocFieldCategory: doc.Category,
			models.DocFieldKeywords: strings.Join(doc.Keywords, " "),
			models.DocFieldContent:  doc.Content,
		}); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("failed to commit index batch: %w", err)
	}

	s.mu.Lock()
	s.idx = idx
	s.built = true
	s.mu.Unlock()

	log.Printf("[SEARCH] Indexed %d documents", len(docs))
	return nil
}

// Search runs the expanded query with fuzzy, prefix and field-boosted clauses
// and returns up to limit documents ordered by relevance score.
func (s *Index) Search(ctx context.Context, query string, limit int) ([]models.Document, error) {
	if err := s.Build(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultResultLimit
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	s.mu.RLock()
	idx := s.idx
	s.mu.RUnlock()

	q := bleve.NewDisjunctionQuery()

	// Exact phrase against title and content keeps title-substring lookups
	// at the top of the ranking.
	titlePhrase := bleve.NewMatchPhraseQuery(query)
	titlePhrase.SetField(models.DocFieldTitle)
	titlePhrase.SetBoost(titleBoost * 2)
	q.AddQuery(titlePhrase)

	contentPhrase := bleve.NewMatchPhraseQuery(query)
	contentPhrase.SetField(models.DocFieldContent)
	contentPhrase.SetBoost(contentBoost * 2)
	q.AddQuery(contentPhrase)

	for _, term := range strings.Fields(strings.ToLower(query)) {
		fuzz := fuzzinessFor(term)

		for field, boost := range map[string]float64{
			models.DocFieldTitle:    titleBoost,
			models.DocFieldCategory: categoryBoost,
			models.DocFieldKeywords: categoryBoost,
			models.DocFieldContent:  contentBoost,
		} {
			mq := bleve.NewMatchQuery(term)
			mq.SetField(field)
			mq.SetBoost(boost)
			if fuzz > 0 {
				mq.SetFuzziness(fuzz)
			}
			q.AddQuery(mq)

			pq := bleve.NewPrefixQuery(term)
			pq.SetField(field)
			pq.SetBoost(boost / 2)
			q.AddQuery(pq)
		}
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]models.Document, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if doc, ok := s.store.ByID(hit.ID); ok {
			hits = append(hits, doc)
		}
	}
	return hits, nil
}

// fuzzinessFor tolerates roughly 20% edit distance: none for short tokens,
// one edit for medium, two for long.
func fuzzinessFor(term string) int {
	switch {
	case len(term) >= 8:
		return 2
	case len(term) >= 5:
		return 1
	default:
		return 0
	}
}
