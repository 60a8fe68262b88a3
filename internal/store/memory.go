package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/AngelCh415/auction-tracker/internal/ingest"
	"github.com/AngelCh415/auction-tracker/internal/models"
)

var ErrNotFound = errors.New("dataset not found")

// Dataset is one consolidated upload. Records are never mutated after Put.
type Dataset struct {
	ID        string               `json:"id"`
	CreatedAt time.Time            `json:"created_at"`
	Sheets    []string             `json:"sheets"`
	Skipped   []ingest.SourceError `json:"skipped,omitempty"`
	Stats     ingest.Stats         `json:"stats"`
	Records   []models.Record      `json:"-"`
}

// Campaigns returns the distinct campaign names, sorted.
func (d *Dataset) Campaigns() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range d.Records {
		if r.CampaignName == "" {
			continue
		}
		if _, ok := seen[r.CampaignName]; ok {
			continue
		}
		seen[r.CampaignName] = struct{}{}
		out = append(out, r.CampaignName)
	}
	sort.Strings(out)
	return out
}

// MemoryStore caches ingestion results so repeated queries over the same
// upload skip parsing. Datasets are keyed by a hash of the uploaded bytes.
type MemoryStore struct {
	mu       sync.RWMutex
	sets     map[string]*Dataset
	order    []string
	capacity int
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 16
	}
	return &MemoryStore{sets: make(map[string]*Dataset), capacity: capacity}
}

// Key hashes named file contents; the same files in any order give the same key.
func Key(files []ingest.File) string {
	sorted := append([]ingest.File(nil), files...)
	SortFiles(sorted)
	h := sha256.New()
	for _, f := range sorted {
		h.Write([]byte(f.Name))
		h.Write([]byte{0})
		h.Write(f.Data)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// SortFiles orders files by name, then by content for files sharing a name.
func SortFiles(files []ingest.File) {
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Name != files[j].Name {
			return files[i].Name < files[j].Name
		}
		return bytes.Compare(files[i].Data, files[j].Data) < 0
	})
}

// Put stores d unless its ID is already present; it reports whether d was added.
// The oldest dataset is evicted past capacity.
func (s *MemoryStore) Put(d *Dataset) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sets[d.ID]; ok {
		return false
	}
	s.sets[d.ID] = d
	s.order = append(s.order, d.ID)
	for len(s.order) > s.capacity {
		delete(s.sets, s.order[0])
		s.order = s.order[1:]
	}
	return true
}

func (s *MemoryStore) Get(id string) (*Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.sets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (s *MemoryStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sets[id]; !ok {
		return false
	}
	delete(s.sets, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *MemoryStore) All() []*Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Dataset, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sets[id])
	}
	return out
}
