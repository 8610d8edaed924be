package openfoodfacts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zombor/nutriscan/internal/nutrition"
)

const (
	// DefaultBaseURL is the public Open Food Facts instance
	DefaultBaseURL = "https://world.openfoodfacts.org"

	defaultUserAgent = "nutriscan/1.0"
	productFields    = "code,product_name,brands,serving_quantity,serving_quantity_unit,nutriments,image_front_url,image_url"
)

// productResponse is the subset of the v2 product API we read. Numeric
// fields arrive as numbers or strings depending on the contributor, so
// they are decoded loosely.
type productResponse struct {
	Code    string      `json:"code"`
	Status  interface{} `json:"status"`
	Product struct {
		ProductName         string                 `json:"product_name"`
		Brands              string                 `json:"brands"`
		ServingQuantity     interface{}            `json:"serving_quantity"`
		ServingQuantityUnit string                 `json:"serving_quantity_unit"`
		Nutriments          map[string]interface{} `json:"nutriments"`
		ImageFrontURL       string                 `json:"image_front_url"`
		ImageURL            string                 `json:"image_url"`
	} `json:"product"`
}

// Client looks codes up in the Open Food Facts database
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL points the client at another instance
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithUserAgent sets the User-Agent the API asks callers to identify with
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a Client
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		userAgent:  defaultUserAgent,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup fetches a product. Unknown codes and products without an energy
// value return nutrition.ErrNotFound.
func (c *Client) Lookup(ctx context.Context, code nutrition.Code) (*nutrition.Product, error) {
	u := fmt.Sprintf("%s/api/v2/product/%s.json?fields=%s", c.baseURL, url.PathEscape(string(code)), url.QueryEscape(productFields))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling open food facts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nutrition.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("open food facts returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var data productResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding open food facts response: %w", err)
	}
	if status, ok := number(data.Status); !ok || status != 1 {
		return nil, nutrition.ErrNotFound
	}

	product, ok := toProduct(code, &data)
	if !ok {
		slog.Debug("Open Food Facts product has no energy value", "code", code)
		return nil, nutrition.ErrNotFound
	}
	return product, nil
}

// toProduct prefers per-serving values and falls back to per-100g with a
// 100 g serving
func toProduct(code nutrition.Code, data *productResponse) (*nutrition.Product, bool) {
	n := data.Product.Nutriments

	var (
		basis string
		kcal  float64
		found bool
	)
	for _, b := range []string{"_serving", "_100g"} {
		if kcal, found = energy(n, b); found {
			basis = b
			break
		}
	}
	if !found {
		return nil, false
	}

	p := &nutrition.Product{
		Code:       code,
		Name:       strings.TrimSpace(data.Product.ProductName),
		Brand:      firstBrand(data.Product.Brands),
		Calories:   round1(kcal),
		Protein:    round1(valueOf(n, "proteins"+basis)),
		Carbs:      round1(valueOf(n, "carbohydrates"+basis)),
		Fat:        round1(valueOf(n, "fat"+basis)),
		Provenance: nutrition.ProvenancePublicDatabase,
		ImageURL:   data.Product.ImageFrontURL,
	}
	if p.ImageURL == "" {
		p.ImageURL = data.Product.ImageURL
	}

	if sodium, ok := number(n["sodium"+basis]); ok {
		p.Sodium = nutrition.Float(math.Round(sodium * 1000))
	}
	if sugar, ok := number(n["sugars"+basis]); ok {
		p.Sugar = nutrition.Float(round1(sugar))
	}
	if fiber, ok := number(n["fiber"+basis]); ok {
		p.Fiber = nutrition.Float(round1(fiber))
	}

	if basis == "_serving" {
		if qty, ok := number(data.Product.ServingQuantity); ok && qty > 0 {
			p.ServingSize = nutrition.Float(qty)
			p.ServingUnit = data.Product.ServingQuantityUnit
			if p.ServingUnit == "" {
				p.ServingUnit = "g"
			}
		}
	} else {
		p.ServingSize = nutrition.Float(100)
		p.ServingUnit = "g"
	}
	return p, true
}

// energy reads kcal for a basis, converting from kJ when only that is present
func energy(n map[string]interface{}, basis string) (float64, bool) {
	if kcal, ok := number(n["energy-kcal"+basis]); ok {
		return kcal, true
	}
	if kj, ok := number(n["energy-kj"+basis]); ok {
		return kj / 4.184, true
	}
	return 0, false
}

func valueOf(n map[string]interface{}, key string) float64 {
	v, _ := number(n[key])
	return v
}

// number accepts JSON numbers and numeric strings; negatives are rejected
func number(v interface{}) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func firstBrand(brands string) string {
	brand, _, _ := strings.Cut(brands, ",")
	return strings.TrimSpace(brand)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
