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
	HarrisTeeterName    = "harristeeter"
	harrisTeeterBaseURL = "https://www.harristeeter.com"
	harrisTeeterPath    = "/atlas/v1/product/v2/products"
	harrisTeeterProject = "items.full,offers.compact,nutrition.label,variantGroupings.compact"

	// LAFHeader carries the store/location identity the storefront issues to a browser session
	LAFHeader = "x-laf-object"
)

// HarrisTeeter looks up batches of UPCs through the storefront product API
type HarrisTeeter struct {
	client  *apiClient
	baseURL string
}

// NewHarrisTeeter creates a Harris Teeter batch fetcher; empty baseURL uses the public storefront
func NewHarrisTeeter(baseURL string, timeout time.Duration) *HarrisTeeter {
	if baseURL == "" {
		baseURL = harrisTeeterBaseURL
	}
	return &HarrisTeeter{
		client:  newAPIClient("HT", timeout),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// BatchURL builds the multi-GTIN product lookup URL
func (h *HarrisTeeter) BatchURL(ids []string) string {
	params := url.Values{}
	for _, id := range ids {
		params.Add("filter.gtin13s", domain.UPCToGTIN13(id))
	}
	params.Set("filter.verified", "true")
	params.Set("projections", harrisTeeterProject)
	return fmt.Sprintf("%s%s?%s", h.baseURL, harrisTeeterPath, params.Encode())
}

// RequestKey implements domain.BatchFetcher with the GTIN-13 the lookup URL asks for
func (h *HarrisTeeter) RequestKey(id string) string {
	return domain.UPCToGTIN13(id)
}

// ResultKey implements domain.BatchFetcher. The API answers with GTIN-13 codes.
func (h *HarrisTeeter) ResultKey(upc string) string {
	return domain.PadGTIN13(upc)
}

// FetchBatch implements domain.BatchFetcher
func (h *HarrisTeeter) FetchBatch(ctx context.Context, ids []string, creds *domain.SessionCredentials) ([]domain.ScrapedResult, error) {
	if creds == nil || creds.Headers[LAFHeader] == "" {
		return nil, domain.NewConfigurationError("harris teeter session has no "+LAFHeader, domain.ErrNoSession)
	}

	body, err := h.client.getJSON(ctx, h.BatchURL(ids), creds, map[string]string{
		"x-kroger-channel": "WEB",
		"x-modality-type":  "PICKUP",
	})
	if err != nil {
		return nil, err
	}

	products := gjson.GetBytes(body, "data.products")
	if !products.IsArray() {
		return nil, domain.NewParseError("response has no data.products array", nil)
	}

	results := parseHarrisTeeterProducts(products)
	log.Printf("[HT] Batch of %d returned %d products", len(ids), len(results))
	if len(results) == 0 {
		return nil, fmt.Errorf("harris teeter batch of %d: %w", len(ids), domain.ErrConfirmedAbsent)
	}
	return results, nil
}

func parseHarrisTeeterProducts(products gjson.Result) []domain.ScrapedResult {
	var results []domain.ScrapedResult
	products.ForEach(func(_, prod gjson.Result) bool {
		upc := prod.Get("item.upc").String()
		if upc == "" {
			return true
		}
		result := domain.ScrapedResult{
			UPC:         upc,
			Description: prod.Get("item.description").String(),
			Brand:       prod.Get("item.brand.name").String(),
			Retailer:    HarrisTeeterName,
		}
		pickup := prod.Get(`fulfillmentSummaries.#(type=="PICKUP")`)
		if pickup.Exists() {
			result.Price = priceOf(pickup.Get("regular.price"))
			result.Size = pickup.Get("regular.pricePerUnitString").String()
		}
		results = append(results, result)
		return true
	})
	return results
}
