package lookup

import (
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/nutriscan/internal/nutrition"
)

var _ = Describe("ImportProducts", func() {
	var (
		db      *mockDB
		service *Service
		input   string
		result  ImportResult
		err     error
	)

	BeforeEach(func() {
		db = newMockDB()
		service = NewService(db, nil, newMockScanner(), newMockStorage(), Limits{})
	})

	JustBeforeEach(func() {
		result, err = service.ImportProducts(strings.NewReader(input))
	})

	When("every row is valid", func() {
		BeforeEach(func() {
			input = "code,name,brand,serving_size,serving_unit,calories,protein,carbs,fat,sodium,sugar,fiber\n" +
				"8850001234567,Rice Crackers,Crunchy,30,g,120,2,25,1.5,200,,\n" +
				" 012345678905 ,Oat Milk,,,,90,1,16,1.5,,7,\n"
		})

		It("should store catalog products", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(ImportResult{Imported: 2}))

			crackers := db.products["8850001234567"]
			Expect(crackers).NotTo(BeNil())
			Expect(crackers.Provenance).To(Equal(nutrition.ProvenanceCatalog))
			Expect(*crackers.ServingSize).To(Equal(30.0))
			Expect(*crackers.Sodium).To(Equal(200.0))
			Expect(crackers.Sugar).To(BeNil())

			Expect(db.products).To(HaveKey(nutrition.Code("012345678905")))
		})
	})

	When("some rows are invalid", func() {
		BeforeEach(func() {
			input = "code,name,calories,protein,carbs,fat\n" +
				"123,Too Short,10,0,0,0\n" +
				"8850001234567,Negative,-5,0,0,0\n" +
				"8850001234568,Fine,10,0,0,0\n"
		})

		It("should skip them and keep going", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(ImportResult{Imported: 1, Skipped: 2}))
			Expect(db.products).To(HaveLen(1))
		})
	})

	When("a value cannot be parsed", func() {
		BeforeEach(func() {
			input = "code,name,calories,protein,carbs,fat\n" +
				"8850001234567,Rice Crackers,lots,0,0,0\n"
		})

		It("should stop with the line number", func() {
			Expect(err).To(MatchError(ContainSubstring("line 2")))
			Expect(result.Imported).To(Equal(0))
		})
	})

	When("the database fails", func() {
		BeforeEach(func() {
			input = "code,name,calories,protein,carbs,fat\n8850001234567,Rice Crackers,1,0,0,0\n"
			db.saveErr = errors.New("disk full")
		})

		It("should return the error", func() {
			Expect(err).To(MatchError(ContainSubstring("disk full")))
		})
	})

	When("the input is empty", func() {
		BeforeEach(func() {
			input = ""
		})

		It("should import nothing", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(ImportResult{}))
		})
	})
})
