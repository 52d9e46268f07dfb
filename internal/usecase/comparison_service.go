package usecase

import (
	"log"
	"math"

	"github.com/shelfscan/backend/internal/domain"
)

const defaultDeltaThreshold = 0.25

// ComparisonService turns match results into price comparison rows
type ComparisonService struct {
	deltaThreshold float64
}

// NewComparisonService creates a comparison service; deltas whose magnitude exceeds deltaThreshold are flagged
func NewComparisonService(deltaThreshold float64) *ComparisonService {
	if deltaThreshold <= 0 {
		deltaThreshold = defaultDeltaThreshold
	}
	return &ComparisonService{deltaThreshold: deltaThreshold}
}

// Compare produces one row per reference row, in reference order
func (s *ComparisonService) Compare(refs []domain.ReferenceRow, idx *CatalogueIndex, matches []domain.MatchResult) ([]domain.ComparisonRow, domain.ComparisonSummary) {
	byRef := make(map[int]domain.MatchResult, len(matches))
	for _, m := range matches {
		byRef[m.ReferenceIndex] = m
	}

	rows := make([]domain.ComparisonRow, len(refs))
	summary := domain.ComparisonSummary{Total: len(refs)}

	for i, ref := range refs {
		m, ok := byRef[i]
		if !ok {
			m = domain.MatchResult{ReferenceIndex: i}
		}
		row := domain.ComparisonRow{Reference: ref, Match: m, Status: domain.StatusNoMatch}

		var entry *domain.CatalogueEntry
		if m.CatalogueIndex != nil && *m.CatalogueIndex < len(idx.Entries) {
			entry = &idx.Entries[*m.CatalogueIndex]
			row.CandidateName = entry.Name
		}

		switch {
		case m.Accepted && entry != nil:
			row.Status = domain.StatusMatched
			row.MatchedName = entry.Name
			row.MatchedBrand = entry.Brand
			row.MatchedSize = entry.SizeRaw
			row.MatchedPrice = entry.Price
			s.applyDelta(&row)
			summary.Matched++
			if row.Flagged {
				summary.Flagged++
			}
		case entry != nil:
			row.Status = domain.StatusRejected
			summary.Rejected++
		default:
			summary.Unmatched++
		}
		rows[i] = row
	}

	log.Printf("[COMPARE] %d rows: %d matched, %d rejected, %d unmatched, %d flagged",
		summary.Total, summary.Matched, summary.Rejected, summary.Unmatched, summary.Flagged)
	return rows, summary
}

// applyDelta computes the absolute and relative price difference when both prices are known
func (s *ComparisonService) applyDelta(row *domain.ComparisonRow) {
	if row.Reference.Price == nil || row.MatchedPrice == nil {
		return
	}
	ref, got := *row.Reference.Price, *row.MatchedPrice
	abs := round(got-ref, 2)
	row.DeltaAbs = &abs
	if ref == 0 {
		return
	}
	pct := (got - ref) / ref
	row.DeltaPct = &pct
	row.Flagged = math.Abs(pct) > s.deltaThreshold
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
