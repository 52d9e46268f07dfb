package usecase

import (
	"context"
	"fmt"
	"log"

	"github.com/shelfscan/backend/internal/domain"
)

// MatchConfig holds configuration for the matching service
type MatchConfig struct {
	BrandThreshold     float64 // acceptance score when the reference row has a brand
	SlugThreshold      float64 // acceptance score when matching against slug bases
	EnableDebugLogging bool
}

// MatchingService pairs reference rows with catalogue entries using size and brand buckets
// and fuzzy name scoring
type MatchingService struct {
	brandThreshold     float64
	slugThreshold      float64
	enableDebugLogging bool
}

// NewMatchingService creates a new matching service with the given configuration
func NewMatchingService(config MatchConfig) *MatchingService {
	brand := config.BrandThreshold
	if brand <= 0 {
		brand = 30.0
	}
	slug := config.SlugThreshold
	if slug <= 0 {
		slug = 85.0
	}

	return &MatchingService{
		brandThreshold:     brand,
		slugThreshold:      slug,
		enableDebugLogging: config.EnableDebugLogging,
	}
}

// CatalogueIndex is a normalized catalogue with size and brand buckets
type CatalogueIndex struct {
	Entries []domain.CatalogueEntry
	bySize  map[string][]int
	byBrand map[string][]int
}

// BuildIndex normalizes a copy of entries and buckets them by size and brand
func (s *MatchingService) BuildIndex(entries []domain.CatalogueEntry) *CatalogueIndex {
	idx := &CatalogueIndex{
		Entries: make([]domain.CatalogueEntry, len(entries)),
		bySize:  make(map[string][]int),
		byBrand: make(map[string][]int),
	}
	copy(idx.Entries, entries)

	for i := range idx.Entries {
		e := &idx.Entries[i]
		NormalizeEntry(e)
		if e.NormalizedSize != "" {
			idx.bySize[e.NormalizedSize] = append(idx.bySize[e.NormalizedSize], i)
		}
		if e.NormalizedBrand != "" {
			idx.byBrand[e.NormalizedBrand] = append(idx.byBrand[e.NormalizedBrand], i)
		}
	}
	return idx
}

// candidates returns entry indices sharing the row's size (and brand when known), in catalogue order
func (idx *CatalogueIndex) candidates(ref *domain.ReferenceRow) []int {
	sized := idx.bySize[ref.NormalizedSize]
	if !ref.HasBrand() {
		return sized
	}
	branded := make(map[int]bool, len(idx.byBrand[ref.NormalizedBrand]))
	for _, i := range idx.byBrand[ref.NormalizedBrand] {
		branded[i] = true
	}
	var out []int
	for _, i := range sized {
		if branded[i] {
			out = append(out, i)
		}
	}
	return out
}

// MatchAll matches every reference row against the catalogue, preserving reference order
func (s *MatchingService) MatchAll(ctx context.Context, refs []domain.ReferenceRow, idx *CatalogueIndex) ([]domain.MatchResult, error) {
	results := make([]domain.MatchResult, 0, len(refs))
	for i := range refs {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}
		results = append(results, s.Match(&refs[i], i, idx))
	}

	accepted := 0
	for _, r := range results {
		if r.Accepted {
			accepted++
		}
	}
	log.Printf("[MATCH] Matched %d/%d reference rows against %d catalogue entries", accepted, len(refs), len(idx.Entries))
	return results, nil
}

// Match finds the best catalogue entry for one reference row and decides acceptance
func (s *MatchingService) Match(ref *domain.ReferenceRow, refIndex int, idx *CatalogueIndex) domain.MatchResult {
	NormalizeReference(ref)
	result := domain.MatchResult{ReferenceIndex: refIndex}

	if ref.NormalizedSize == "" {
		result.RejectReasons = []string{"no size"}
		return result
	}

	pool := idx.candidates(ref)
	threshold := s.slugThreshold
	if ref.HasBrand() {
		threshold = s.brandThreshold
	}
	if len(pool) == 0 {
		if !ref.HasBrand() || len(idx.Entries) == 0 {
			result.RejectReasons = []string{"no candidate with same size/brand"}
			return result
		}
		// Nothing shares size and brand; score the whole catalogue so the rejection names the closest entry
		pool = make([]int, len(idx.Entries))
		for i := range pool {
			pool[i] = i
		}
	}

	best, bestScore := -1, -1.0
	for _, i := range pool {
		score := s.score(ref, &idx.Entries[i])
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	entry := &idx.Entries[best]
	result.CatalogueIndex = &best
	result.Score = bestScore

	if bestScore < threshold {
		result.RejectReasons = append(result.RejectReasons,
			fmt.Sprintf("below threshold (score %.1f < %.1f)", bestScore, threshold))
	}
	if entry.NormalizedSize != ref.NormalizedSize {
		result.RejectReasons = append(result.RejectReasons,
			fmt.Sprintf("size mismatch - src=%s / comp=%s", ref.NormalizedSize, entry.NormalizedSize))
	}
	if ref.HasBrand() && entry.NormalizedBrand != ref.NormalizedBrand {
		result.RejectReasons = append(result.RejectReasons,
			fmt.Sprintf("brand mismatch - src=%s / comp=%s", ref.NormalizedBrand, entry.NormalizedBrand))
	}
	result.Accepted = len(result.RejectReasons) == 0

	if s.enableDebugLogging {
		log.Printf("[MATCH] %q -> %q | Score: %.1f | Accepted: %v %v",
			ref.Description, entry.Name, bestScore, result.Accepted, result.RejectReasons)
	}
	return result
}

// score rates a catalogue entry for a reference row. With a brand the name is compared directly;
// without one the token set of the slug base is used.
func (s *MatchingService) score(ref *domain.ReferenceRow, e *domain.CatalogueEntry) float64 {
	if !ref.HasBrand() {
		return TokenSetRatio(ref.NormalizedName, e.Base)
	}
	return max(TokenSortRatio(ref.NormalizedName, e.NormalizedName), PartialRatio(ref.NormalizedName, e.NormalizedName))
}

// MatchByUPC joins reference rows to catalogue entries on UPC. Reference UPCs carry a check digit,
// catalogue UPCs do not; both sides drop leading zeros.
func (s *MatchingService) MatchByUPC(refs []domain.ReferenceRow, idx *CatalogueIndex) []domain.MatchResult {
	byUPC := make(map[string]int, len(idx.Entries))
	for i := range idx.Entries {
		key := domain.NormalizeUPC(idx.Entries[i].UPC, false)
		if key == "" {
			continue
		}
		if _, dup := byUPC[key]; !dup {
			byUPC[key] = i
		}
	}

	results := make([]domain.MatchResult, len(refs))
	matched := 0
	for i := range refs {
		NormalizeReference(&refs[i])
		results[i] = domain.MatchResult{ReferenceIndex: i}
		key := domain.NormalizeUPC(refs[i].UPC, true)
		if j, ok := byUPC[key]; ok && key != "" {
			results[i].CatalogueIndex = &j
			results[i].Score = 100
			results[i].Accepted = true
			matched++
			continue
		}
		results[i].RejectReasons = []string{"no catalogue entry with same UPC"}
	}
	log.Printf("[MATCH] UPC join matched %d/%d reference rows", matched, len(refs))
	return results
}

// MatchCheckpoint pairs reference rows with the results of a batch scrape. The checkpoint is indexed
// by work item, so every row with a UPC is joined to its own lookup; rows that were not scraped yet
// or came back not found are rejected. The returned index holds only found products.
func (s *MatchingService) MatchCheckpoint(refs []domain.ReferenceRow, record *domain.CheckpointRecord) (*CatalogueIndex, []domain.MatchResult) {
	_, rows := domain.BuildWorkItems(refs)
	itemOf := make(map[int]int, len(rows))
	for i, row := range rows {
		itemOf[row.Row] = i
	}

	var entries []domain.CatalogueEntry
	entryOf := make(map[int]int)
	scraped := make(map[int]bool, len(record.Results))
	for _, r := range record.Results {
		scraped[r.Index] = true
		if r.Data == nil {
			continue
		}
		entryOf[r.Index] = len(entries)
		entries = append(entries, domain.CatalogueEntry{
			Name:        r.Data.DisplayName(),
			Brand:       r.Data.Brand,
			SizeRaw:     r.Data.Size,
			Description: r.Data.Description,
			UPC:         r.Data.UPC,
			Price:       r.Data.Price,
		})
	}
	idx := s.BuildIndex(entries)

	results := make([]domain.MatchResult, len(refs))
	matched := 0
	for i := range refs {
		NormalizeReference(&refs[i])
		results[i] = domain.MatchResult{ReferenceIndex: i}
		item, ok := itemOf[refs[i].Row]
		switch {
		case !ok:
			results[i].RejectReasons = []string{"no UPC"}
		case !scraped[item]:
			results[i].RejectReasons = []string{"not scraped yet"}
		default:
			j, found := entryOf[item]
			if !found {
				results[i].RejectReasons = []string{"not found at retailer"}
				continue
			}
			results[i].CatalogueIndex = &j
			results[i].Score = 100
			results[i].Accepted = true
			matched++
		}
	}
	log.Printf("[MATCH] Checkpoint join matched %d/%d reference rows", matched, len(refs))
	return idx, results
}
