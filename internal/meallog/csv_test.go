package meallog

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/nutriscan/internal/nutrition"
)

var _ = Describe("CSV", func() {
	var entry nutrition.MealEntry

	BeforeEach(func() {
		entry = nutrition.MealEntry{
			Code:       "8850001234567",
			Name:       "Rice Crackers",
			Calories:   500,
			Protein:    8,
			Multiplier: 2,
			Provenance: nutrition.ProvenancePublicDatabase,
			CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		}
	})

	It("writes a header before the first row", func() {
		var buf bytes.Buffer
		log := NewCSV(&buf, true)
		Expect(log.Emit(context.Background(), entry)).To(Succeed())
		Expect(log.Emit(context.Background(), entry)).To(Succeed())

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		Expect(lines).To(HaveLen(3))
		Expect(lines[0]).To(HavePrefix("created_at,code,name,multiplier,calories"))
		Expect(lines[1]).To(HavePrefix("2026-03-01T12:00:00Z,8850001234567,Rice Crackers,2,500,8"))
		Expect(lines[1]).To(ContainSubstring("public-database"))
	})

	It("omits the header when appending", func() {
		var buf bytes.Buffer
		Expect(NewCSV(&buf, false).Emit(context.Background(), entry)).To(Succeed())
		Expect(buf.String()).NotTo(ContainSubstring("created_at"))
	})

	It("writes the header once per file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "meals.csv")
		for i := 0; i < 2; i++ {
			log, err := Open(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(log).To(BeAssignableToTypeOf(&CSV{}))
			Expect(log.Emit(context.Background(), entry)).To(Succeed())
			Expect(log.Close()).To(Succeed())
		}
		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(strings.Count(string(data), "created_at")).To(Equal(1))
		Expect(strings.Count(string(data), "Rice Crackers")).To(Equal(2))
	})

	It("picks JSON lines for other extensions", func() {
		log, err := Open(filepath.Join(GinkgoT().TempDir(), "meals.jsonl"))
		Expect(err).NotTo(HaveOccurred())
		defer log.Close()
		Expect(log).To(BeAssignableToTypeOf(&JSONLines{}))
	})
})
