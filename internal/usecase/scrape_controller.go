package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shelfscan/backend/internal/domain"
)

// EmptyPolicy decides what an empty batch response means
type EmptyPolicy string

const (
	// EmptyConfirmedAbsent marks every requested item as not found when the fetcher
	// signals domain.ErrConfirmedAbsent. Any other empty response is still a failure.
	EmptyConfirmedAbsent EmptyPolicy = "confirmed_absent"
	// EmptyAsFailure treats every empty response as a failed batch
	EmptyAsFailure EmptyPolicy = "failure"
)

// ControllerState is the lifecycle state of a scrape run
type ControllerState string

const (
	StateIdle             ControllerState = "idle"
	StateRunning          ControllerState = "running"
	StateAwaitingOperator ControllerState = "awaiting_operator"
	StateDone             ControllerState = "done"
)

// ScrapeConfig holds the tunables of the scrape control loop
type ScrapeConfig struct {
	BatchSize          int
	PauseThreshold     int
	BatchTimeout       time.Duration
	InterBatchMin      time.Duration
	InterBatchMax      time.Duration
	FailureDelay       time.Duration
	MaxSessionRenewals int // 0 = unlimited
	EmptyPolicy        EmptyPolicy
}

// ScrapeDeps are the collaborators of a ScrapeController
type ScrapeDeps struct {
	Store    domain.CheckpointRepository
	Fetcher  domain.BatchFetcher
	Sessions domain.SessionProvider // optional
	Operator domain.Operator
	Limiter  *RateLimiter
	Budget   *SessionBudget
}

// RunSummary describes how a run ended
type RunSummary struct {
	Completed  int     `json:"completed"`
	Total      int     `json:"total"`
	Remaining  int     `json:"remaining"`
	Percentage float64 `json:"percentage"`
	Batches    int     `json:"batches"`
	Failures   int     `json:"failures"`
	Renewals   int     `json:"renewals"`
	StopReason string  `json:"stopReason"`
}

// ScrapeController drives resumable batch scraping: it pulls uncompleted work from the checkpoint,
// paces requests, classifies outcomes and escalates to the operator after repeated failures.
type ScrapeController struct {
	cfg      ScrapeConfig
	store    domain.CheckpointRepository
	fetcher  domain.BatchFetcher
	sessions domain.SessionProvider
	operator domain.Operator
	limiter  *RateLimiter
	budget   *SessionBudget

	// OnProgress, when set, is called after every resolved batch
	OnProgress func(stats domain.ProgressStats)

	mu    sync.RWMutex
	state ControllerState

	now    func() time.Time
	random func() float64
	sleep  func(ctx context.Context, d time.Duration) error
	newID  func() string
}

// NewScrapeController creates a controller, filling defaults for unset tunables
func NewScrapeController(cfg ScrapeConfig, deps ScrapeDeps) *ScrapeController {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.PauseThreshold <= 0 {
		cfg.PauseThreshold = 3
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 60 * time.Second
	}
	if cfg.EmptyPolicy == "" {
		cfg.EmptyPolicy = EmptyConfirmedAbsent
	}
	if deps.Limiter == nil {
		deps.Limiter = NewRateLimiter(0)
	}
	if deps.Budget == nil {
		deps.Budget = NewSessionBudget(SessionBudgetConfig{})
	}

	return &ScrapeController{
		cfg:      cfg,
		store:    deps.Store,
		fetcher:  deps.Fetcher,
		sessions: deps.Sessions,
		operator: deps.Operator,
		limiter:  deps.Limiter,
		budget:   deps.Budget,
		state:    StateIdle,
		now:      time.Now,
		random:   rand.Float64,
		sleep:    sleepContext,
		newID:    uuid.NewString,
	}
}

// State returns the current lifecycle state
func (c *ScrapeController) State() ControllerState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *ScrapeController) setState(s ControllerState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Budget exposes the session budget so callers can pause a run
func (c *ScrapeController) Budget() *SessionBudget {
	return c.budget
}

// batchOutcome is the classified result of one fetch
type batchOutcome int

const (
	outcomeSuccess batchOutcome = iota
	outcomeAbsent
	outcomeFailure
	outcomeThrottled
	outcomeCancelled
	outcomeAbort
)

// Run scrapes items until the work is done, the session budget is spent, ctx is cancelled
// or the operator aborts. Progress is durable after every resolved batch.
func (c *ScrapeController) Run(ctx context.Context, items []domain.WorkItem) (*RunSummary, error) {
	record, err := c.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	total := len(items)
	record.TotalCount = total
	summary := &RunSummary{}

	if record.IsComplete(total) {
		log.Printf("[SCRAPE] All %d items already completed", total)
		c.setState(StateDone)
		c.fillSummary(summary, record, total, "already complete")
		return summary, nil
	}

	record.StartSession(c.newID(), c.now())
	if err := c.store.Save(record); err != nil {
		return nil, fmt.Errorf("failed to save checkpoint: %w", err)
	}
	stats := record.Stats(total)
	log.Printf("[SCRAPE] Session %d (%s) starting: %d/%d done, %d remaining",
		record.SessionCount, record.SessionID, stats.Completed, total, stats.Remaining)

	c.budget.Start()
	creds, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}

	c.setState(StateRunning)
	defer c.setState(StateDone)

	stopReason := ""
	for stopReason == "" {
		if ctx.Err() != nil {
			stopReason = "cancelled"
			break
		}
		if pause, reason := c.budget.ShouldPause(); pause {
			stopReason = reason
			break
		}

		batch := record.NextBatch(items, c.cfg.BatchSize)
		if len(batch) == 0 {
			stopReason = "complete"
			break
		}

		if failures := c.limiter.Failures(); failures >= c.cfg.PauseThreshold {
			c.setState(StateAwaitingOperator)
			reason := fmt.Sprintf("%d consecutive failed batches", failures)
			log.Printf("[SCRAPE] Pausing for operator: %s", reason)
			if err := c.operator.AwaitOperator(ctx, reason); err != nil {
				stop := "operator aborted"
				if ctx.Err() != nil {
					stop = "cancelled"
				}
				c.fillSummary(summary, record, total, stop)
				if errors.Is(err, domain.ErrOperatorAborted) || ctx.Err() != nil {
					return summary, nil
				}
				return summary, fmt.Errorf("operator prompt failed: %w", err)
			}
			c.limiter.ResetFailures()
			if renewed, err := c.renew(ctx); err != nil {
				log.Printf("[SCRAPE] Session renewal after operator resume failed: %v", err)
			} else if renewed != nil {
				creds = renewed
			}
			c.setState(StateRunning)
		}

		if err := c.limiter.Wait(ctx); err != nil {
			stopReason = "cancelled"
			break
		}

		summary.Batches++
		outcome, results, fetchErr := c.fetch(ctx, batch, creds)
		// Failed and throttled lookups still hit the retailer
		c.budget.RecordRequests(len(batch))

		switch outcome {
		case outcomeSuccess, outcomeAbsent:
			c.applyResults(record, batch, results)
			if err := c.store.Save(record); err != nil {
				return summary, fmt.Errorf("failed to save checkpoint: %w", err)
			}
			c.limiter.RecordSuccess()
			c.report(record, total)
			if err := c.sleep(ctx, jitterBetween(c.cfg.InterBatchMin, c.cfg.InterBatchMax, c.random)); err != nil {
				stopReason = "cancelled"
			}

		case outcomeThrottled:
			summary.Failures++
			c.limiter.RecordFailure()
			log.Printf("[SCRAPE] Batch throttled: %v", fetchErr)
			if c.cfg.MaxSessionRenewals > 0 && summary.Renewals >= c.cfg.MaxSessionRenewals {
				log.Printf("[SCRAPE] Session renewal budget (%d) spent, escalating to operator", c.cfg.MaxSessionRenewals)
			} else if renewed, err := c.renew(ctx); err != nil {
				log.Printf("[SCRAPE] Session renewal failed: %v", err)
			} else if renewed != nil {
				creds = renewed
				summary.Renewals++
			}
			c.report(record, total)
			if err := c.sleep(ctx, c.cfg.FailureDelay); err != nil {
				stopReason = "cancelled"
			}

		case outcomeFailure:
			summary.Failures++
			c.limiter.RecordFailure()
			log.Printf("[SCRAPE] Batch failed (%s): %v", domain.KindOf(fetchErr), fetchErr)
			c.report(record, total)
			if err := c.sleep(ctx, c.cfg.FailureDelay); err != nil {
				stopReason = "cancelled"
			}

		case outcomeCancelled:
			stopReason = "cancelled"

		case outcomeAbort:
			c.fillSummary(summary, record, total, "configuration error")
			return summary, fmt.Errorf("scrape aborted: %w", fetchErr)
		}
	}

	if err := c.store.Save(record); err != nil {
		return summary, fmt.Errorf("failed to save checkpoint: %w", err)
	}
	c.fillSummary(summary, record, total, stopReason)
	log.Printf("[SCRAPE] Stopped (%s): %d/%d completed (%.1f%%)",
		stopReason, summary.Completed, summary.Total, summary.Percentage)
	return summary, nil
}

// fetch runs one batch under the per-batch timeout and classifies the outcome
func (c *ScrapeController) fetch(ctx context.Context, batch []domain.WorkItem, creds *domain.SessionCredentials) (batchOutcome, []domain.ScrapedResult, error) {
	ids := make([]string, len(batch))
	for i, item := range batch {
		ids[i] = item.ID
	}

	batchCtx, cancel := context.WithTimeout(ctx, c.cfg.BatchTimeout)
	defer cancel()

	results, err := c.fetcher.FetchBatch(batchCtx, ids, creds)
	if ctx.Err() != nil {
		return outcomeCancelled, nil, ctx.Err()
	}

	switch {
	case err == nil && len(results) > 0:
		return outcomeSuccess, results, nil
	case err == nil:
		return outcomeFailure, nil, domain.NewParseError("empty response without absence confirmation", nil)
	case errors.Is(err, domain.ErrConfirmedAbsent):
		if c.cfg.EmptyPolicy == EmptyConfirmedAbsent {
			log.Printf("[SCRAPE] Retailer confirmed %d items absent", len(batch))
			return outcomeAbsent, nil, nil
		}
		return outcomeFailure, nil, err
	case errors.Is(err, context.DeadlineExceeded):
		return outcomeFailure, nil, domain.NewTransientError("batch timed out", err)
	}

	switch domain.KindOf(err) {
	case domain.KindThrottled:
		return outcomeThrottled, nil, err
	case domain.KindConfiguration:
		return outcomeAbort, nil, err
	default:
		return outcomeFailure, nil, err
	}
}

// applyResults marks every requested item completed; items absent from the response get a nil result
func (c *ScrapeController) applyResults(record *domain.CheckpointRecord, batch []domain.WorkItem, results []domain.ScrapedResult) {
	byKey := make(map[string]domain.ScrapedResult, len(results))
	for _, r := range results {
		byKey[c.fetcher.ResultKey(r.UPC)] = r
	}

	now := c.now()
	found := 0
	for _, item := range batch {
		var data *domain.ScrapedResult
		if r, ok := byKey[c.fetcher.RequestKey(item.ID)]; ok {
			data = &r
			found++
		}
		record.MarkCompleted(item.Index, data, now)
	}
	log.Printf("[SCRAPE] Batch resolved: %d/%d found", found, len(batch))
}

func (c *ScrapeController) acquire(ctx context.Context) (*domain.SessionCredentials, error) {
	if c.sessions == nil {
		return nil, nil
	}
	creds, err := c.sessions.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire session: %w", err)
	}
	return creds, nil
}

func (c *ScrapeController) renew(ctx context.Context) (*domain.SessionCredentials, error) {
	if c.sessions == nil {
		return nil, nil
	}
	log.Printf("[SCRAPE] Renewing retailer session")
	return c.sessions.Renew(ctx)
}

func (c *ScrapeController) report(record *domain.CheckpointRecord, total int) {
	stats := record.Stats(total)
	log.Printf("[SCRAPE] Progress: %d/%d (%.1f%%), %d remaining",
		stats.Completed, stats.Total, stats.Percentage, stats.Remaining)
	if c.OnProgress != nil {
		c.OnProgress(stats)
	}
}

func (c *ScrapeController) fillSummary(s *RunSummary, record *domain.CheckpointRecord, total int, reason string) {
	stats := record.Stats(total)
	s.Completed = stats.Completed
	s.Total = stats.Total
	s.Remaining = stats.Remaining
	s.Percentage = stats.Percentage
	s.StopReason = reason
}
