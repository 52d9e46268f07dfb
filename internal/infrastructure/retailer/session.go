package retailer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shelfscan/backend/internal/domain"
	"github.com/shelfscan/backend/internal/infrastructure/cache"
)

// SessionProfile describes how to bootstrap credentials for one retailer in a rendered browser
type SessionProfile struct {
	Retailer string
	StartURL string
	Steps    []domain.InteractiveStep

	// CaptureURL is a substring of the API request to wait for; empty means cookies are enough
	CaptureURL string
	// KeepHeaders are copied from the captured request into the credentials
	KeepHeaders   []string
	StaticHeaders map[string]string
	// CaptureParams copies the captured request's query into credentials params
	CaptureParams bool
	// PathParam, when set, stores the captured request path under this params key
	PathParam string
	// CookieDomain filters browser cookies; empty keeps all
	CookieDomain string

	// StoreSelector locates the selected store label in the rendered page; ExpectStore must appear in it
	StoreSelector string
	ExpectStore   string
}

// BrowserSessionProvider implements domain.SessionProvider on top of a PageFetcher
type BrowserSessionProvider struct {
	profile        SessionProfile
	fetcher        domain.PageFetcher
	cache          *cache.SessionCache
	ttl            time.Duration
	captureTimeout time.Duration
	mutex          sync.Mutex
	now            func() time.Time
}

// NewBrowserSessionProvider creates a provider; captured sessions are cached for ttl
func NewBrowserSessionProvider(profile SessionProfile, fetcher domain.PageFetcher, sessions *cache.SessionCache, ttl, captureTimeout time.Duration) *BrowserSessionProvider {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if captureTimeout <= 0 {
		captureTimeout = 120 * time.Second
	}
	return &BrowserSessionProvider{
		profile:        profile,
		fetcher:        fetcher,
		cache:          sessions,
		ttl:            ttl,
		captureTimeout: captureTimeout,
		now:            time.Now,
	}
}

// Acquire returns cached credentials or bootstraps new ones
func (p *BrowserSessionProvider) Acquire(ctx context.Context) (*domain.SessionCredentials, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.cache != nil {
		creds, err := p.cache.Get(ctx, p.profile.Retailer)
		if err == nil {
			log.Printf("[SESSION] Reusing cached %s session from %s", p.profile.Retailer, creds.CapturedAt.Format(time.RFC3339))
			return creds, nil
		}
		if !errors.Is(err, domain.ErrCacheMiss) {
			log.Printf("[SESSION] Cache error for %s: %v", p.profile.Retailer, err)
		}
	}
	return p.bootstrap(ctx)
}

// Renew drops the cached session and captures a fresh one in a new browser context
func (p *BrowserSessionProvider) Renew(ctx context.Context) (*domain.SessionCredentials, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.cache != nil {
		_ = p.cache.Delete(ctx, p.profile.Retailer)
	}
	log.Printf("[SESSION] Renewing %s session", p.profile.Retailer)
	return p.bootstrap(ctx)
}

// Close implements domain.SessionProvider; rendered sessions never outlive bootstrap
func (p *BrowserSessionProvider) Close() error {
	return nil
}

func (p *BrowserSessionProvider) bootstrap(ctx context.Context) (*domain.SessionCredentials, error) {
	rs, err := p.fetcher.Open(ctx, p.profile.StartURL, p.profile.Steps)
	if err != nil {
		return nil, domain.NewTransientError("failed to open "+p.profile.Retailer+" storefront", err)
	}
	defer rs.Close()

	creds := &domain.SessionCredentials{
		Headers:    make(map[string]string),
		Cookies:    make(map[string]string),
		Params:     make(map[string]string),
		CapturedAt: p.now(),
	}
	for k, v := range p.profile.StaticHeaders {
		creds.Headers[k] = v
	}

	if p.profile.CaptureURL != "" {
		captured, err := rs.AwaitCapturedRequest(ctx, func(r domain.CapturedRequest) bool {
			return strings.Contains(r.URL, p.profile.CaptureURL)
		}, p.captureTimeout)
		if err != nil {
			return nil, domain.NewTransientError("no "+p.profile.Retailer+" API request captured", err)
		}
		if err := p.applyCaptured(creds, captured); err != nil {
			return nil, err
		}
	}

	cookies, err := rs.Cookies(ctx)
	if err != nil {
		return nil, domain.NewTransientError("failed to read cookies", err)
	}
	for _, c := range cookies {
		if p.profile.CookieDomain == "" || strings.Contains(c.Domain, p.profile.CookieDomain) {
			creds.Cookies[c.Name] = c.Value
		}
	}

	if p.profile.StoreSelector != "" {
		html, err := rs.Content(ctx)
		if err != nil {
			return nil, domain.NewTransientError("failed to read page content", err)
		}
		store, err := ConfirmStore(html, p.profile.StoreSelector, p.profile.ExpectStore)
		if err != nil {
			return nil, domain.NewConfigurationError("store selection did not stick", err)
		}
		log.Printf("[SESSION] %s store confirmed: %s", p.profile.Retailer, store)
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, p.profile.Retailer, creds, p.ttl); err != nil {
			log.Printf("[SESSION] Failed to cache %s session: %v", p.profile.Retailer, err)
		}
	}
	log.Printf("[SESSION] Captured %s session (%d headers, %d cookies, %d params)",
		p.profile.Retailer, len(creds.Headers), len(creds.Cookies), len(creds.Params))
	return creds, nil
}

func (p *BrowserSessionProvider) applyCaptured(creds *domain.SessionCredentials, captured *domain.CapturedRequest) error {
	lower := make(map[string]string, len(captured.Headers))
	for k, v := range captured.Headers {
		lower[strings.ToLower(k)] = v
	}
	for _, name := range p.profile.KeepHeaders {
		if v, ok := lower[strings.ToLower(name)]; ok && v != "" {
			creds.Headers[name] = v
		}
	}

	u, err := url.Parse(captured.URL)
	if err != nil {
		return domain.NewParseError("captured request URL is invalid", err)
	}
	if p.profile.CaptureParams {
		for k, v := range u.Query() {
			if len(v) > 0 {
				creds.Params[k] = v[0]
			}
		}
	}
	if p.profile.PathParam != "" {
		creds.Params[p.profile.PathParam] = u.Path
	}
	return nil
}

// ConfirmStore finds the selected store label in rendered HTML and checks it mentions expect
func ConfirmStore(html, selector, expect string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}
	label := strings.Join(strings.Fields(doc.Find(selector).First().Text()), " ")
	if label == "" {
		return "", fmt.Errorf("no store label at %q", selector)
	}
	if expect != "" && !strings.Contains(strings.ToLower(label), strings.ToLower(expect)) {
		return label, fmt.Errorf("store %q does not match %q", label, expect)
	}
	return label, nil
}
