package retailer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shelfscan/backend/internal/domain"
	"github.com/tidwall/gjson"
)

const (
	SafewayName      = "safeway"
	safewayBaseURL   = "https://www.safeway.com"
	safewayAislePath = "/abs/pub/xapi/v1/aisles/products"
	safewayPageRows  = 20

	// SafewaySubscriptionHeader is the API gateway key the storefront sends with aisle requests
	SafewaySubscriptionHeader = "ocp-apim-subscription-key"
)

// Safeway pages through aisle product listings
type Safeway struct {
	client         *apiClient
	baseURL        string
	categoriesPath string
}

// NewSafeway creates a Safeway catalogue pager. categoriesPath points at the aisle map JSON
// ({"Parent": [{"display_name", "category_id", "category_name"}]}).
func NewSafeway(baseURL, categoriesPath string, timeout time.Duration) *Safeway {
	if baseURL == "" {
		baseURL = safewayBaseURL
	}
	return &Safeway{
		client:         newAPIClient("SAFEWAY", timeout),
		baseURL:        strings.TrimRight(baseURL, "/"),
		categoriesPath: categoriesPath,
	}
}

// Categories implements domain.CataloguePager. Subcategories without a category id are skipped.
func (s *Safeway) Categories(ctx context.Context) ([]domain.Category, error) {
	raw, err := os.ReadFile(s.categoriesPath)
	if err != nil {
		return nil, domain.NewConfigurationError("cannot read safeway category map", err)
	}
	if !gjson.ValidBytes(raw) {
		return nil, domain.NewConfigurationError("safeway category map is not valid JSON", nil)
	}

	var categories []domain.Category
	skipped := 0
	gjson.ParseBytes(raw).ForEach(func(parent, subcats gjson.Result) bool {
		subcats.ForEach(func(_, sub gjson.Result) bool {
			id := sub.Get("category_id").String()
			display := sub.Get("display_name").String()
			if id == "" {
				skipped++
				return true
			}
			name := sub.Get("category_name").String()
			if name == "" {
				name = display
			}
			categories = append(categories, domain.Category{
				Key:    parent.String() + "::" + display,
				ID:     id,
				Name:   name,
				Parent: parent.String(),
			})
			return true
		})
		return true
	})
	log.Printf("[SAFEWAY] Loaded %d categories (%d without id)", len(categories), skipped)
	return categories, nil
}

// PageURL builds the aisle listing URL for one page
func (s *Safeway) PageURL(cat domain.Category, cursor domain.PageCursor, creds *domain.SessionCredentials) string {
	params := url.Values{}
	if creds != nil {
		for k, v := range creds.Params {
			params.Set(k, v)
		}
	}
	params.Set("category-id", cat.ID)
	params.Set("category-name", cat.Name)
	params.Set("start", strconv.Itoa(cursor.Offset))
	params.Set("rows", strconv.Itoa(safewayPageRows))
	params.Del("nextPageToken")
	if cursor.Token != "" {
		params.Set("nextPageToken", cursor.Token)
	}
	return fmt.Sprintf("%s%s?%s", s.baseURL, safewayAislePath, params.Encode())
}

// FetchPage implements domain.CataloguePager. A 400 ends the category quietly.
func (s *Safeway) FetchPage(ctx context.Context, cat domain.Category, cursor domain.PageCursor, creds *domain.SessionCredentials) (*domain.Page, error) {
	if creds == nil || creds.Headers[SafewaySubscriptionHeader] == "" {
		return nil, domain.NewConfigurationError("safeway session has no "+SafewaySubscriptionHeader, domain.ErrNoSession)
	}

	body, err := s.client.getJSON(ctx, s.PageURL(cat, cursor, creds), creds, nil)
	if err != nil {
		var se *domain.ScrapeError
		if errors.As(err, &se) && se.Status == 400 {
			log.Printf("[SAFEWAY] Bad request for %s, stopping category", cat.Key)
			return &domain.Page{}, nil
		}
		return nil, err
	}

	response := gjson.GetBytes(body, "response")
	if !response.Exists() {
		return nil, domain.NewParseError("response has no response object", nil)
	}

	page := &domain.Page{Total: int(response.Get("numFound").Int())}
	docs := response.Get("docs").Array()
	for _, doc := range docs {
		upc := doc.Get("upc").String()
		if upc == "" {
			continue
		}
		page.Entries = append(page.Entries, domain.CatalogueEntry{
			Name:  doc.Get("name").String(),
			Brand: doc.Get("brand").String(),
			UPC:   upc,
			Price: priceOf(doc.Get("price")),
		})
	}

	token := response.Get("miscInfo.nextPageToken").String()
	if len(docs) > 0 && token != "" {
		page.Next = &domain.PageCursor{Offset: cursor.Offset + safewayPageRows, Token: token}
	}
	return page, nil
}
