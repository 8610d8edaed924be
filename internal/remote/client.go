package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/zombor/nutriscan/internal/nutrition"
)

const defaultTimeout = 30 * time.Second

// StatusError is returned for HTTP statuses the client does not map to an outcome
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("lookup service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("lookup service returned status %d: %s", e.StatusCode, body)
}

// Client talks to the product-data service. A lookup miss is reported as
// nutrition.ErrNotFound and an exhausted quota as *nutrition.LimitReached.
type Client struct {
	baseURL    string
	httpClient *http.Client
	username   string
	password   string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBasicAuth sends basic auth credentials on every request
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: d}
	}
}

// NewClient creates a Client for the service at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve looks a code up through the service's tiers
func (c *Client) Resolve(ctx context.Context, code nutrition.Code, userID string) (*nutrition.Product, error) {
	body, err := json.Marshal(nutrition.LookupRequest{Code: code, UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/lookup", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req, nutrition.QuotaLookup)
	if err != nil {
		return nil, err
	}

	switch resp.Status {
	case nutrition.StatusFound:
		return checkProduct(resp.Product)
	case nutrition.StatusNotFound:
		return nil, nutrition.ErrNotFound
	default:
		return nil, fmt.Errorf("unexpected lookup status %q", resp.Status)
	}
}

// Analyze uploads a label photo for nutrition estimation
func (c *Client) Analyze(ctx context.Context, image []byte, contentType string, code nutrition.Code, userID string) (*nutrition.Product, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="label.jpg"`)
	if contentType == "" {
		contentType = "image/jpeg"
	}
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("creating image part: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("writing image part: %w", err)
	}
	if code != "" {
		if err := writer.WriteField("code", string(code)); err != nil {
			return nil, fmt.Errorf("writing code field: %w", err)
		}
	}
	if userID != "" {
		if err := writer.WriteField("user_id", userID); err != nil {
			return nil, fmt.Errorf("writing user field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/analyze", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.do(req, nutrition.QuotaAnalysis)
	if err != nil {
		return nil, err
	}

	if resp.Status != nutrition.StatusOK {
		return nil, fmt.Errorf("unexpected analyze status %q", resp.Status)
	}
	return checkProduct(resp.Product)
}

// SaveProduct writes a product into the service catalog keyed by its code
func (c *Client) SaveProduct(ctx context.Context, product *nutrition.Product) error {
	body, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("marshaling product: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/products", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling lookup service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return req, nil
}

// do sends req and decodes the envelope. A limit_reached answer becomes
// *nutrition.LimitReached; error answers and unexpected statuses become
// *StatusError.
func (c *Client) do(req *http.Request, kind nutrition.QuotaKind) (*nutrition.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling lookup service: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var envelope nutrition.Response
	if err := json.Unmarshal(data, &envelope); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
		}
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if envelope.Status == nutrition.StatusLimitReached {
		return nil, &nutrition.LimitReached{Kind: kind, Limit: envelope.Limit, Used: envelope.Used}
	}
	if resp.StatusCode != http.StatusOK {
		body := envelope.Error
		if body == "" {
			body = string(data)
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: body}
	}
	return &envelope, nil
}

func checkProduct(p *nutrition.Product) (*nutrition.Product, error) {
	if p == nil {
		return nil, fmt.Errorf("response is missing the product")
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid product in response: %w", err)
	}
	return p, nil
}
