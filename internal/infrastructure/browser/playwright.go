package browser

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/shelfscan/backend/internal/domain"
)

// Config controls the headless browser
type Config struct {
	Headless       bool
	UserAgent      string
	DefaultTimeout time.Duration
}

// Fetcher implements domain.PageFetcher with a Chromium instance driven by playwright.
// The browser is launched lazily and every Open gets a fresh context.
type Fetcher struct {
	config  Config
	mutex   sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

// NewFetcher creates a playwright backed page fetcher
func NewFetcher(config Config) *Fetcher {
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = 20 * time.Second
	}
	return &Fetcher{config: config}
}

func (f *Fetcher) start() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.browser != nil {
		return nil
	}

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("could not start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(f.config.Headless),
	})
	if err != nil {
		pw.Stop()
		return fmt.Errorf("could not launch chromium: %w", err)
	}
	f.pw = pw
	f.browser = browser
	log.Printf("[BROWSER] Chromium launched (headless=%v)", f.config.Headless)
	return nil
}

// Open implements domain.PageFetcher
func (f *Fetcher) Open(ctx context.Context, target string, steps []domain.InteractiveStep) (domain.RenderedSession, error) {
	if err := f.start(); err != nil {
		return nil, err
	}

	opts := playwright.BrowserNewContextOptions{}
	if f.config.UserAgent != "" {
		opts.UserAgent = playwright.String(f.config.UserAgent)
	}
	bctx, err := f.browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("could not create browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("could not create page: %w", err)
	}
	page.SetDefaultTimeout(float64(f.config.DefaultTimeout.Milliseconds()))

	s := &session{bctx: bctx, page: page, requests: newRequestLog()}
	page.OnRequest(func(r playwright.Request) {
		s.requests.add(domain.CapturedRequest{URL: r.URL(), Method: r.Method(), Headers: r.Headers()})
	})

	if err := s.Navigate(ctx, target); err != nil {
		s.Close()
		return nil, err
	}
	for i, step := range steps {
		if err := s.run(ctx, step); err != nil {
			s.Close()
			return nil, fmt.Errorf("step %d (%s %s): %w", i+1, step.Action, step.Selector, err)
		}
	}
	return s, nil
}

// Close shuts the browser down
func (f *Fetcher) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.browser == nil {
		return nil
	}
	if err := f.browser.Close(); err != nil {
		log.Printf("[BROWSER] Close error: %v", err)
	}
	err := f.pw.Stop()
	f.browser = nil
	f.pw = nil
	return err
}

// session is one browser context positioned on a storefront
type session struct {
	bctx     playwright.BrowserContext
	page     playwright.Page
	requests *requestLog
}

func (s *session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		return fmt.Errorf("could not goto %s: %w", url, err)
	}
	return nil
}

func (s *session) run(ctx context.Context, step domain.InteractiveStep) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var timeout *float64
	if step.Timeout > 0 {
		timeout = playwright.Float(float64(step.Timeout.Milliseconds()))
	}

	switch step.Action {
	case "goto":
		return s.Navigate(ctx, step.Value)
	case "wait":
		return sleepContext(ctx, step.Timeout)
	case "click":
		return s.locator(step).Click(playwright.LocatorClickOptions{Timeout: timeout})
	case "fill":
		return s.locator(step).Fill(step.Value, playwright.LocatorFillOptions{Timeout: timeout})
	case "press":
		return s.locator(step).Press(step.Value, playwright.LocatorPressOptions{Timeout: timeout})
	default:
		return fmt.Errorf("unknown step action %q", step.Action)
	}
}

func (s *session) locator(step domain.InteractiveStep) playwright.Locator {
	if step.Frame != "" {
		return s.page.FrameLocator(step.Frame).Locator(step.Selector).First()
	}
	return s.page.Locator(step.Selector).First()
}

func (s *session) AwaitCapturedRequest(ctx context.Context, match func(domain.CapturedRequest) bool, timeout time.Duration) (*domain.CapturedRequest, error) {
	return s.requests.await(ctx, match, timeout)
}

func (s *session) Cookies(ctx context.Context) ([]domain.BrowserCookie, error) {
	cookies, err := s.bctx.Cookies()
	if err != nil {
		return nil, fmt.Errorf("could not read cookies: %w", err)
	}
	out := make([]domain.BrowserCookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, domain.BrowserCookie{Name: c.Name, Value: c.Value, Domain: c.Domain})
	}
	return out, nil
}

func (s *session) Content(ctx context.Context) (string, error) {
	return s.page.Content()
}

func (s *session) Close() error {
	return s.bctx.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
