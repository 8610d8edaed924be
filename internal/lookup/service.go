package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/nutriscan/internal/catalog"
	"github.com/zombor/nutriscan/internal/nutrition"
	"github.com/zombor/nutriscan/internal/scanning"
)

// anonymousUser buckets quota for requests without a user ID
const anonymousUser = "anonymous"

// ErrInvalidProduct is returned when a product cannot be stored
var ErrInvalidProduct = errors.New("invalid product")

// IDGenerator generates unique IDs for stored label images
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// PublicDatabase is the second lookup tier
type PublicDatabase interface {
	Lookup(ctx context.Context, code nutrition.Code) (*nutrition.Product, error)
}

// Limits are per-user daily call caps. Zero disables a cap.
type Limits struct {
	Lookup   int
	Analysis int
}

// Usage reports one quota kind for a user today
type Usage struct {
	Used  int `json:"used"`
	Limit int `json:"limit"`
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service resolves codes through the catalog and public database tiers,
// runs label analysis, and enforces daily quotas
type Service struct {
	db          catalog.DB
	public      PublicDatabase
	scanner     scanning.Scanner
	storage     catalog.Storage
	limits      Limits
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with uuid image names and the wall clock
func NewService(db catalog.DB, public PublicDatabase, scanner scanning.Scanner, storage catalog.Storage, limits Limits) *Service {
	return NewServiceWithDeps(db, public, scanner, storage, limits, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db catalog.DB, public PublicDatabase, scanner scanning.Scanner, storage catalog.Storage, limits Limits, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		public:      public,
		scanner:     scanner,
		storage:     storage,
		limits:      limits,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Lookup resolves a code. The catalog wins over the public database; a
// miss in both returns nutrition.ErrNotFound. Only hits count against
// the lookup quota.
func (s *Service) Lookup(ctx context.Context, code nutrition.Code, userID string) (*nutrition.Product, error) {
	userID = normalizeUser(userID)
	day := s.day()

	if err := s.checkQuota(userID, nutrition.QuotaLookup, day); err != nil {
		return nil, err
	}

	product, err := s.db.GetProduct(code)
	switch {
	case err == nil:
		product.Code = code
		product.Provenance = nutrition.ProvenanceCatalog
		slog.Info("Catalog hit", "code", code, "user", userID)
	case errors.Is(err, nutrition.ErrNotFound):
		product, err = s.lookupPublic(ctx, code)
		if err != nil {
			return nil, err
		}
		slog.Info("Public database hit", "code", code, "user", userID)
	default:
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	s.recordUsage(userID, nutrition.QuotaLookup, day)
	return product, nil
}

func (s *Service) lookupPublic(ctx context.Context, code nutrition.Code) (*nutrition.Product, error) {
	if s.public == nil {
		return nil, nutrition.ErrNotFound
	}
	product, err := s.public.Lookup(ctx, code)
	if err != nil {
		if errors.Is(err, nutrition.ErrNotFound) {
			return nil, nutrition.ErrNotFound
		}
		return nil, fmt.Errorf("querying public database: %w", err)
	}
	product.Code = code
	product.Provenance = nutrition.ProvenancePublicDatabase
	return product, nil
}

// Analyze stores the label photo, scans it, and returns an AI estimate.
// The stored photo is removed again when scanning fails.
func (s *Service) Analyze(ctx context.Context, data []byte, contentType string, code nutrition.Code, userID string) (*nutrition.Product, error) {
	userID = normalizeUser(userID)
	day := s.day()

	if err := s.checkQuota(userID, nutrition.QuotaAnalysis, day); err != nil {
		return nil, err
	}

	name := s.idGenerator.Generate() + extensionFor(contentType)
	savedName, err := s.storage.Save(name, data)
	if err != nil {
		return nil, fmt.Errorf("saving label image: %w", err)
	}

	label, err := s.scanner.ScanLabel(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to scan label",
			"code", code,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		if delErr := s.storage.Delete(savedName); delErr != nil {
			slog.Warn("Failed to delete label image", "name", savedName, "error", delErr)
		}
		return nil, fmt.Errorf("scanning label: %w", err)
	}

	s.recordUsage(userID, nutrition.QuotaAnalysis, day)

	return &nutrition.Product{
		Code:        code,
		Name:        label.Name,
		Brand:       label.Brand,
		ServingSize: label.ServingSize,
		ServingUnit: label.ServingUnit,
		Calories:    label.Calories,
		Protein:     label.Protein,
		Carbs:       label.Carbs,
		Fat:         label.Fat,
		Sodium:      label.Sodium,
		Sugar:       label.Sugar,
		Fiber:       label.Fiber,
		Provenance:  nutrition.ProvenanceAIEstimate,
		Confidence:  nutrition.Int(label.Confidence),
		ImageURL:    "/api/images/" + savedName,
	}, nil
}

// SaveProduct writes a confirmed product into the catalog. The stored
// copy is marked as a catalog entry so later lookups resolve from tier one.
func (s *Service) SaveProduct(product *nutrition.Product) (*nutrition.Product, error) {
	if product == nil {
		return nil, fmt.Errorf("%w: missing product", ErrInvalidProduct)
	}
	code, err := nutrition.NormalizeCode(string(product.Code))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}
	if err := product.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}

	stored := product.Clone()
	stored.Code = code
	stored.Provenance = nutrition.ProvenanceCatalog
	if strings.TrimSpace(stored.Name) == "" {
		stored.Name = "Unknown product"
	}

	if err := s.db.SaveProduct(stored); err != nil {
		return nil, fmt.Errorf("saving product: %w", err)
	}
	slog.Info("Product saved to catalog", "code", code, "from", product.Provenance)
	return stored, nil
}

// GetProduct returns a catalog product
func (s *Service) GetProduct(code nutrition.Code) (*nutrition.Product, error) {
	product, err := s.db.GetProduct(code)
	if err != nil {
		return nil, fmt.Errorf("getting product: %w", err)
	}
	return product, nil
}

// ListProducts returns every catalog product
func (s *Service) ListProducts() ([]*nutrition.Product, error) {
	products, err := s.db.ListProducts()
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return products, nil
}

// GetImage returns a stored label image and its sniffed content type
func (s *Service) GetImage(name string) ([]byte, string, error) {
	data, err := s.storage.Get(name)
	if err != nil {
		return nil, "", fmt.Errorf("getting label image: %w", err)
	}
	return data, http.DetectContentType(data), nil
}

// Usage returns today's counts for a user
func (s *Service) Usage(userID string) (map[nutrition.QuotaKind]Usage, error) {
	userID = normalizeUser(userID)
	day := s.day()

	usage := make(map[nutrition.QuotaKind]Usage, 2)
	for kind, limit := range map[nutrition.QuotaKind]int{
		nutrition.QuotaLookup:   s.limits.Lookup,
		nutrition.QuotaAnalysis: s.limits.Analysis,
	} {
		used, err := s.db.Usage(userID, kind, day)
		if err != nil {
			return nil, fmt.Errorf("reading %s usage: %w", kind, err)
		}
		usage[kind] = Usage{Used: used, Limit: limit}
	}
	return usage, nil
}

// checkQuota returns *nutrition.LimitReached once the day's cap is used up
func (s *Service) checkQuota(userID string, kind nutrition.QuotaKind, day string) error {
	limit := s.limitFor(kind)
	if limit <= 0 {
		return nil
	}
	used, err := s.db.Usage(userID, kind, day)
	if err != nil {
		return fmt.Errorf("reading usage: %w", err)
	}
	if used >= limit {
		slog.Info("Daily limit reached", "user", userID, "kind", kind, "limit", limit, "used", used)
		return &nutrition.LimitReached{Kind: kind, Limit: limit, Used: used}
	}
	return nil
}

// recordUsage counts a served call. A failed write is logged, not surfaced.
func (s *Service) recordUsage(userID string, kind nutrition.QuotaKind, day string) {
	if _, err := s.db.IncrementUsage(userID, kind, day, s.timeSource.Now()); err != nil {
		slog.Error("Failed to record usage", "user", userID, "kind", kind, "error", err)
	}
}

func (s *Service) limitFor(kind nutrition.QuotaKind) int {
	switch kind {
	case nutrition.QuotaLookup:
		return s.limits.Lookup
	case nutrition.QuotaAnalysis:
		return s.limits.Analysis
	}
	return 0
}

func (s *Service) day() string {
	return s.timeSource.Now().Format("2006-01-02")
}

func normalizeUser(userID string) string {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return anonymousUser
	}
	return userID
}

func extensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/heic":
		return ".heic"
	case "image/heif":
		return ".heif"
	case "application/pdf":
		return ".pdf"
	default:
		return ".bin"
	}
}
