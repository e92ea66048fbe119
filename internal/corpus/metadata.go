package corpus

import (
	"encoding/json"
	"log"
	"os"
	"sync"

	"emsadvisor/internal/models"
)

// MetadataStore is a lazily loaded, cached mapping from document id to
// ProtocolMetadata. Load failures degrade gracefully: retrieval proceeds
// without the critical-metadata block rather than failing the request.
type MetadataStore struct {
	path string

	once sync.Once
	load models.MetadataLoad

	byCode map[string]models.ProtocolMetadata
}

// NewMetadataStore creates a metadata store reading from path.
func NewMetadataStore(path string) *MetadataStore {
	return &MetadataStore{path: path}
}

// Load reads the side table on first call and caches the result, including a
// degraded (empty) result when the file is missing or unparseable.
func (m *MetadataStore) Load() models.MetadataLoad {
	m.once.Do(func() {
		data, err := os.ReadFile(m.path)
		if err != nil {
			log.Printf("[METADATA] Load failed, continuing without critical metadata: %v", err)
			m.load = models.MetadataLoad{Entries: map[string]models.ProtocolMetadata{}, Degraded: true, Reason: err.Error()}
			m.byCode = map[string]models.ProtocolMetadata{}
			return
		}

		var entries []models.ProtocolMetadata
		if err := json.Unmarshal(data, &entries); err != nil {
			log.Printf("[METADATA] Parse failed, continuing without critical metadata: %v", err)
			m.load = models.MetadataLoad{Entries: map[string]models.ProtocolMetadata{}, Degraded: true, Reason: err.Error()}
			m.byCode = map[string]models.ProtocolMetadata{}
			return
		}

		byID := make(map[string]models.ProtocolMetadata, len(entries))
		byCode := make(map[string]models.ProtocolMetadata, len(entries))
		for _, e := range entries {
			byID[e.DocumentID] = e
			if e.TPCode != "" {
				byCode[NormalizeCode(e.TPCode)] = e
			}
		}
		m.load = models.MetadataLoad{Entries: byID}
		m.byCode = byCode
	})
	return m.load
}

// Lookup returns the metadata for a document id.
func (m *MetadataStore) Lookup(docID string) (models.ProtocolMetadata, bool) {
	load := m.Load()
	md, ok := load.Entries[docID]
	return md, ok
}

// ByProtocolCode returns the metadata for a protocol code.
func (m *MetadataStore) ByProtocolCode(code string) (models.ProtocolMetadata, bool) {
	m.Load()
	md, ok := m.byCode[NormalizeCode(code)]
	return md, ok
}

// Degraded reports whether the side table failed to load.
func (m *MetadataStore) Degraded() bool {
	return m.Load().Degraded
}
