package retailer

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/shelfscan/backend/internal/domain"
	"github.com/tidwall/gjson"
)

const (
	GiantName    = "giant"
	giantBaseURL = "https://giantfood.com"

	// GiantProductsPathParam holds the store scoped product API path captured from the storefront,
	// e.g. /api/v6.0/products/2/50000351
	GiantProductsPathParam = "products_path"
	giantProductsPrefix    = "/api/v6.0/products"
)

// Giant looks up UPCs one at a time through the product search API
type Giant struct {
	client  *apiClient
	baseURL string
}

// NewGiant creates a Giant fetcher; empty baseURL uses the public storefront
func NewGiant(baseURL string, timeout time.Duration) *Giant {
	if baseURL == "" {
		baseURL = giantBaseURL
	}
	return &Giant{
		client:  newAPIClient("GIANT", timeout),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// SearchURL builds the keyword search URL for one UPC
func (g *Giant) SearchURL(productsPath, upc string) string {
	params := url.Values{}
	params.Set("keywords", upc)
	params.Set("sort", "bestMatch asc")
	params.Set("start", "0")
	params.Set("flags", "true")
	params.Set("nutrition", "false")
	params.Set("semanticSearch", "false")
	params.Set("platform", "desktop")
	return fmt.Sprintf("%s%s?%s", g.baseURL, productsPath, params.Encode())
}

// RequestKey implements domain.BatchFetcher
func (g *Giant) RequestKey(id string) string {
	return domain.NormalizeUPC(id, false)
}

// ResultKey implements domain.BatchFetcher. Results carry the requested id.
func (g *Giant) ResultKey(upc string) string {
	return domain.NormalizeUPC(upc, false)
}

// FetchBatch implements domain.BatchFetcher. Each id costs one request; a search whose first
// product carries a different UPC counts as not found.
func (g *Giant) FetchBatch(ctx context.Context, ids []string, creds *domain.SessionCredentials) ([]domain.ScrapedResult, error) {
	productsPath := ""
	if creds != nil {
		productsPath = creds.Params[GiantProductsPathParam]
	}
	if !strings.HasPrefix(productsPath, giantProductsPrefix) {
		return nil, domain.NewConfigurationError("giant session has no product API path", domain.ErrNoSession)
	}

	var results []domain.ScrapedResult
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		body, err := g.client.getJSON(ctx, g.SearchURL(productsPath, id), creds, map[string]string{
			"Referer": fmt.Sprintf("%s/product-search/%s?semanticSearch=false", g.baseURL, id),
		})
		if err != nil {
			return nil, err
		}

		products := gjson.GetBytes(body, "response.products")
		if !products.Exists() {
			return nil, domain.NewParseError("response has no response.products", nil)
		}
		first := products.Get("0")
		if !first.Exists() {
			log.Printf("[GIANT] No products found for UPC: %s", id)
			continue
		}
		scraped := first.Get("upc").String()
		if !domain.SameUPC(id, scraped) {
			log.Printf("[GIANT] Search for %s returned unrelated UPC %s", id, scraped)
			continue
		}
		results = append(results, domain.ScrapedResult{
			// keyed by the requested id so the controller can line it up with the work item
			UPC:      id,
			Name:     first.Get("name").String(),
			Brand:    first.Get("brand").String(),
			Price:    priceOf(first.Get("price")),
			Size:     first.Get("size").String(),
			Retailer: GiantName,
		})
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("giant batch of %d: %w", len(ids), domain.ErrConfirmedAbsent)
	}
	return results, nil
}
