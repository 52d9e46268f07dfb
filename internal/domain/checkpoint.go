package domain

import (
	"fmt"
	"sort"
	"time"
)

// ResultEntry is the durable result of one completed work item
type ResultEntry struct {
	Index     int            `json:"index"`
	Data      *ScrapedResult `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// CheckpointRecord is the durable progress ledger of a scrape.
// CompletedCount == len(CompletedIndices) == len(Results) at all times.
type CheckpointRecord struct {
	SessionID        string        `json:"session_id,omitempty"`
	CompletedIndices []int         `json:"completed_indices"`
	CompletedCount   int           `json:"completed_count"`
	TotalCount       int           `json:"total_count"`
	Results          []ResultEntry `json:"results"`
	SessionCount     int           `json:"session_count"`
	LastSessionStart *time.Time    `json:"last_session_start"`
	LastUpdated      *time.Time    `json:"last_updated,omitempty"`

	completed map[int]struct{}
}

// ProgressStats summarizes completion of a scrape
type ProgressStats struct {
	Total      int     `json:"total"`
	Completed  int     `json:"completed"`
	Remaining  int     `json:"remaining"`
	Percentage float64 `json:"percentage"`
}

// NewCheckpointRecord returns a zeroed record
func NewCheckpointRecord() *CheckpointRecord {
	return &CheckpointRecord{
		CompletedIndices: []int{},
		Results:          []ResultEntry{},
		completed:        make(map[int]struct{}),
	}
}

func (r *CheckpointRecord) index() map[int]struct{} {
	if r.completed == nil {
		r.completed = make(map[int]struct{}, len(r.CompletedIndices))
		for _, i := range r.CompletedIndices {
			r.completed[i] = struct{}{}
		}
	}
	return r.completed
}

// IsCompleted reports whether the item at index has already been processed
func (r *CheckpointRecord) IsCompleted(index int) bool {
	_, ok := r.index()[index]
	return ok
}

// MarkCompleted records a result for index. It is idempotent: an index that is already
// present (or out of range) is ignored and false is returned.
func (r *CheckpointRecord) MarkCompleted(index int, data *ScrapedResult, at time.Time) bool {
	if index < 0 || index >= r.TotalCount {
		return false
	}
	idx := r.index()
	if _, ok := idx[index]; ok {
		return false
	}
	idx[index] = struct{}{}
	r.CompletedIndices = append(r.CompletedIndices, index)
	r.Results = append(r.Results, ResultEntry{Index: index, Data: data, Timestamp: at})
	r.CompletedCount = len(r.CompletedIndices)
	return true
}

// NextBatch returns up to size items whose index is not yet completed, in their original order
func (r *CheckpointRecord) NextBatch(items []WorkItem, size int) []WorkItem {
	if size <= 0 {
		return nil
	}
	batch := make([]WorkItem, 0, size)
	for _, item := range items {
		if r.IsCompleted(item.Index) {
			continue
		}
		batch = append(batch, item)
		if len(batch) == size {
			break
		}
	}
	return batch
}

// IsComplete reports whether every item of total has been processed
func (r *CheckpointRecord) IsComplete(total int) bool {
	return r.CompletedCount >= total
}

// StartSession marks the beginning of a new scraping session
func (r *CheckpointRecord) StartSession(id string, at time.Time) {
	r.SessionID = id
	r.SessionCount++
	r.LastSessionStart = &at
}

// Stats returns completion statistics against total
func (r *CheckpointRecord) Stats(total int) ProgressStats {
	stats := ProgressStats{Total: total, Completed: r.CompletedCount}
	stats.Remaining = total - r.CompletedCount
	if stats.Remaining < 0 {
		stats.Remaining = 0
	}
	if total > 0 {
		stats.Percentage = float64(r.CompletedCount) / float64(total) * 100
	}
	return stats
}

// SortedResults returns results ordered by item index
func (r *CheckpointRecord) SortedResults() []ResultEntry {
	out := make([]ResultEntry, len(r.Results))
	copy(out, r.Results)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Validate checks the ledger invariants of a record read from storage
func (r *CheckpointRecord) Validate() error {
	if r.CompletedCount != len(r.CompletedIndices) || r.CompletedCount != len(r.Results) {
		return fmt.Errorf("%w: completed_count=%d indices=%d results=%d",
			ErrCheckpointCorrupt, r.CompletedCount, len(r.CompletedIndices), len(r.Results))
	}
	seen := make(map[int]struct{}, len(r.CompletedIndices))
	for _, i := range r.CompletedIndices {
		if i < 0 || (r.TotalCount > 0 && i >= r.TotalCount) {
			return fmt.Errorf("%w: index %d out of range [0,%d)", ErrCheckpointCorrupt, i, r.TotalCount)
		}
		if _, dup := seen[i]; dup {
			return fmt.Errorf("%w: duplicate index %d", ErrCheckpointCorrupt, i)
		}
		seen[i] = struct{}{}
	}
	for _, res := range r.Results {
		if _, ok := seen[res.Index]; !ok {
			return fmt.Errorf("%w: result for index %d not in completed set", ErrCheckpointCorrupt, res.Index)
		}
	}
	r.completed = seen
	return nil
}

// FailedCategory records a category the crawler gave up on
type FailedCategory struct {
	Category  string    `json:"category"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// CrawlProgress is the durable progress ledger of a catalogue crawl
type CrawlProgress struct {
	CompletedCategories []string         `json:"completed_categories"`
	FailedCategories    []FailedCategory `json:"failed_categories"`
	LastUpdated         *time.Time       `json:"last_updated,omitempty"`
}

// NewCrawlProgress returns an empty crawl ledger
func NewCrawlProgress() *CrawlProgress {
	return &CrawlProgress{
		CompletedCategories: []string{},
		FailedCategories:    []FailedCategory{},
	}
}

// IsCompleted reports whether a category key was already crawled
func (p *CrawlProgress) IsCompleted(key string) bool {
	for _, k := range p.CompletedCategories {
		if k == key {
			return true
		}
	}
	return false
}

// MarkCompleted records a crawled category once
func (p *CrawlProgress) MarkCompleted(key string) {
	if !p.IsCompleted(key) {
		p.CompletedCategories = append(p.CompletedCategories, key)
	}
}

// MarkFailed records a category failure with its reason
func (p *CrawlProgress) MarkFailed(key, reason string, at time.Time) {
	p.FailedCategories = append(p.FailedCategories, FailedCategory{Category: key, Reason: reason, Timestamp: at})
}
