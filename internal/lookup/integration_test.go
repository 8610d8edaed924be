package lookup_test

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"regexp"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/nutriscan/internal/catalog"
	"github.com/zombor/nutriscan/internal/lookup"
	"github.com/zombor/nutriscan/internal/nutrition"
	"github.com/zombor/nutriscan/internal/openfoodfacts"
	"github.com/zombor/nutriscan/internal/remote"
	"github.com/zombor/nutriscan/internal/scanning"
)

// stubScanner returns a fixed label
type stubScanner struct {
	label   *scanning.LabelData
	scanErr error
}

func (m *stubScanner) ScanLabel(ctx context.Context, imageData []byte, contentType string) (*scanning.LabelData, error) {
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	return m.label, nil
}

func (m *stubScanner) Close() error {
	return nil
}

var _ = Describe("Integration", func() {
	var (
		tempDir string
		db      *catalog.BoltDB
		store   *catalog.LocalStorage
		scanner *stubScanner
		offSrv  *ghttp.Server
		apiSrv  *ghttp.Server
		client  *remote.Client
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		tempDir = GinkgoT().TempDir()

		var err error
		db, err = catalog.NewBoltDB(filepath.Join(tempDir, "test.db"))
		Expect(err).NotTo(HaveOccurred())

		store, err = catalog.NewLocalStorage(filepath.Join(tempDir, "labels"))
		Expect(err).NotTo(HaveOccurred())

		scanner = &stubScanner{
			label: &scanning.LabelData{
				Name:       "Granola Bar",
				Calories:   300,
				Protein:    6,
				Carbs:      40,
				Fat:        12,
				Confidence: 55,
			},
		}

		offSrv = ghttp.NewServer()
		offSrv.RouteToHandler(http.MethodGet, "/api/v2/product/3017620422003.json", ghttp.RespondWith(http.StatusOK, `{
			"status": 1,
			"product": {"product_name": "Hazelnut Spread", "serving_quantity": 15, "nutriments": {"energy-kcal_serving": 80, "proteins_serving": 0.9, "carbohydrates_serving": 8.6, "fat_serving": 4.6}}
		}`))
		offSrv.RouteToHandler(http.MethodGet, regexp.MustCompile(`^/api/v2/product/`), ghttp.RespondWith(http.StatusNotFound, `{"status": 0}`))
		off := openfoodfacts.NewClient(openfoodfacts.WithBaseURL(offSrv.URL()))

		service := lookup.NewService(db, off, scanner, store, lookup.Limits{Lookup: 3, Analysis: 2})
		server := lookup.NewServer(service, lookup.BasicAuth{Username: "scanner", Password: "secret"})

		apiSrv = ghttp.NewServer()
		apiSrv.RouteToHandler(http.MethodGet, regexp.MustCompile(`.*`), server.ServeHTTP)
		apiSrv.RouteToHandler(http.MethodPost, regexp.MustCompile(`.*`), server.ServeHTTP)

		client = remote.NewClient(apiSrv.URL(), remote.WithBasicAuth("scanner", "secret"))
	})

	AfterEach(func() {
		apiSrv.Close()
		offSrv.Close()
		db.Close()
	})

	It("resolves from the public database and then from the catalog once saved", func() {
		product, err := client.Resolve(ctx, "3017620422003", "user-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(product.Provenance).To(Equal(nutrition.ProvenancePublicDatabase))
		Expect(product.Calories).To(Equal(80.0))

		product.Calories = 95
		Expect(client.SaveProduct(ctx, product)).To(Succeed())

		product, err = client.Resolve(ctx, "3017620422003", "user-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(product.Provenance).To(Equal(nutrition.ProvenanceCatalog))
		Expect(product.Calories).To(Equal(95.0))
	})

	It("reports misses without using quota", func() {
		for i := 0; i < 5; i++ {
			_, err := client.Resolve(ctx, "99999999", "user-1")
			Expect(err).To(MatchError(nutrition.ErrNotFound))
		}
		Expect(db.Usage("user-1", nutrition.QuotaLookup, time.Now().Format("2006-01-02"))).To(Equal(0))
	})

	It("reports the lookup limit after the daily hits are used", func() {
		for i := 0; i < 3; i++ {
			_, err := client.Resolve(ctx, "3017620422003", "user-1")
			Expect(err).NotTo(HaveOccurred())
		}

		_, err := client.Resolve(ctx, "3017620422003", "user-1")
		var limit *nutrition.LimitReached
		Expect(errors.As(err, &limit)).To(BeTrue())
		Expect(*limit).To(Equal(nutrition.LimitReached{Kind: nutrition.QuotaLookup, Limit: 3, Used: 3}))

		_, err = client.Resolve(ctx, "3017620422003", "user-2")
		Expect(err).NotTo(HaveOccurred())
	})

	It("analyzes a label photo and serves the stored image", func() {
		product, err := client.Analyze(ctx, []byte("\xff\xd8\xff\xe0 fake jpeg"), "image/jpeg", "99999999", "user-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(product.Provenance).To(Equal(nutrition.ProvenanceAIEstimate))
		Expect(product.LowConfidence()).To(BeTrue())
		Expect(product.ImageURL).To(HavePrefix("/api/images/"))

		name := filepath.Base(product.ImageURL)
		data, err := store.Get(name)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(HavePrefix("\xff\xd8"))

		req, err := http.NewRequest(http.MethodGet, apiSrv.URL()+product.ImageURL, nil)
		Expect(err).NotTo(HaveOccurred())
		req.SetBasicAuth("scanner", "secret")
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})

	It("reports analysis failures as errors", func() {
		scanner.scanErr = errors.New("model unavailable")
		_, err := client.Analyze(ctx, []byte("\xff\xd8\xff\xe0 fake jpeg"), "image/jpeg", "99999999", "user-1")
		var statusErr *remote.StatusError
		Expect(errors.As(err, &statusErr)).To(BeTrue())
		Expect(statusErr.StatusCode).To(Equal(http.StatusBadGateway))
	})
})
