package retailer

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shelfscan/backend/internal/domain"
	"github.com/tidwall/gjson"
)

const (
	WholeFoodsName    = "wholefoods"
	wholeFoodsBaseURL = "https://www.wholefoodsmarket.com"
	wholeFoodsLimit   = 60
	// the listing API refuses offsets past this point
	wholeFoodsMaxOffset = 9999

	// StoreCookie carries the selected store as base64 encoded JSON
	StoreCookie = "wfm_store_d8"
)

// WholeFoods pages through category listings of one store
type WholeFoods struct {
	client     *apiClient
	baseURL    string
	categories []string
}

// NewWholeFoods creates a Whole Foods catalogue pager over the given leaf category slugs
func NewWholeFoods(baseURL string, categories []string, timeout time.Duration) *WholeFoods {
	if baseURL == "" {
		baseURL = wholeFoodsBaseURL
	}
	if len(categories) == 0 {
		categories = []string{"all-products"}
	}
	return &WholeFoods{
		client:     newAPIClient("WFM", timeout),
		baseURL:    strings.TrimRight(baseURL, "/"),
		categories: categories,
	}
}

// StoreIDFromCookie decodes the store id held in the wfm_store_d8 cookie
func StoreIDFromCookie(raw string) (string, error) {
	unescaped, err := url.QueryUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("unescape store cookie: %w", err)
	}
	if pad := len(unescaped) % 4; pad != 0 {
		unescaped += strings.Repeat("=", 4-pad)
	}
	payload, err := base64.URLEncoding.DecodeString(unescaped)
	if err != nil {
		payload, err = base64.StdEncoding.DecodeString(unescaped)
		if err != nil {
			return "", fmt.Errorf("decode store cookie: %w", err)
		}
	}
	id := gjson.GetBytes(payload, "id")
	if !id.Exists() || id.String() == "" {
		return "", fmt.Errorf("store cookie has no id")
	}
	return id.String(), nil
}

// Categories implements domain.CataloguePager
func (w *WholeFoods) Categories(ctx context.Context) ([]domain.Category, error) {
	categories := make([]domain.Category, 0, len(w.categories))
	for _, slug := range w.categories {
		categories = append(categories, domain.Category{Key: slug, ID: slug, Name: slug})
	}
	return categories, nil
}

// PageURL builds the category listing URL for one page
func (w *WholeFoods) PageURL(cat domain.Category, storeID string, offset int) string {
	params := url.Values{}
	params.Set("leafCategory", cat.ID)
	params.Set("store", storeID)
	params.Set("limit", strconv.Itoa(wholeFoodsLimit))
	params.Set("offset", strconv.Itoa(offset))
	return fmt.Sprintf("%s/api/products/category/%s?%s", w.baseURL, url.PathEscape(cat.ID), params.Encode())
}

// FetchPage implements domain.CataloguePager
func (w *WholeFoods) FetchPage(ctx context.Context, cat domain.Category, cursor domain.PageCursor, creds *domain.SessionCredentials) (*domain.Page, error) {
	raw, ok := creds.Cookie(StoreCookie)
	if !ok {
		return nil, domain.NewConfigurationError("whole foods session has no "+StoreCookie+" cookie", domain.ErrNoSession)
	}
	storeID, err := StoreIDFromCookie(raw)
	if err != nil {
		return nil, domain.NewConfigurationError("whole foods store cookie is unreadable", err)
	}

	body, err := w.client.getJSON(ctx, w.PageURL(cat, storeID, cursor.Offset), creds, map[string]string{
		"Referer":          w.baseURL + "/products/" + cat.ID,
		"Origin":           w.baseURL,
		"x-requested-with": "XMLHttpRequest",
	})
	if err != nil {
		return nil, err
	}

	results := gjson.GetBytes(body, "results")
	if !results.IsArray() {
		return nil, domain.NewParseError("response has no results array", nil)
	}

	page := &domain.Page{Total: totalFromFacets(gjson.GetBytes(body, "facets"), cat.ID)}
	items := results.Array()
	for _, item := range items {
		page.Entries = append(page.Entries, domain.CatalogueEntry{
			Name:  item.Get("name").String(),
			Brand: item.Get("brand").String(),
			Slug:  item.Get("slug").String(),
			Price: priceOf(item.Get("regularPrice")),
		})
	}

	next := cursor.Offset + wholeFoodsLimit
	switch {
	case len(items) == 0:
	case page.Total > 0 && next >= page.Total:
	case next > wholeFoodsMaxOffset:
		log.Printf("[WFM] %s reached the listing offset cap at %d", cat.Key, cursor.Offset)
	default:
		page.Next = &domain.PageCursor{Offset: next}
	}
	return page, nil
}

// totalFromFacets reads the SKU count the category facet reports for slug
func totalFromFacets(facets gjson.Result, slug string) int {
	total := 0
	facets.ForEach(func(_, facet gjson.Result) bool {
		if facet.Get("slug").String() != "category" {
			return true
		}
		facet.Get("refinements").ForEach(func(_, ref gjson.Result) bool {
			if ref.Get("slug").String() == slug {
				total = int(ref.Get("count").Int())
				return false
			}
			return true
		})
		return false
	})
	return total
}
