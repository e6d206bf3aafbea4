package receipt

import (
	"bytes"
	"encoding/csv"
	"errors"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"
)

var _ = ginkgo.Describe("Export", func() {
	var service *Service

	ginkgo.BeforeEach(func() {
		history := newMockHistory(
			&Receipt{ID: "a", Vendor: "Cafe, Bar & Grill", Date: "2025-02-01", Total: 12.5, Tax: 1.1, Category: CategoryRestaurants,
				PaymentMethod: "Cash", Items: []Item{{Name: "Soup", Quantity: 2, Price: 9}, {Name: "Tea", Quantity: 1, Price: 2.4}}, Notes: `said "thanks"`},
			&Receipt{ID: "b", Vendor: "Market", Date: "2025-03-01", Total: 20, Category: CategoryGroceries, PaymentMethod: "Visa"},
		)
		service = newTestService(history, &mockReader{}, newMockStorage(), &mockInterpreter{}, &mockSummarizer{})
	})

	ginkgo.Describe("ExportCSV", func() {
		ginkgo.It("should write a header and one row per receipt, newest first", func() {
			data, err := service.ExportCSV(nil)
			Expect(err).NotTo(HaveOccurred())

			rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(3))
			Expect(rows[0]).To(Equal([]string{"Store", "Date", "Total", "Tax", "Category", "Payment Method", "Items", "Notes"}))
			Expect(rows[1][0]).To(Equal("Market"))
			Expect(rows[2]).To(Equal([]string{
				"Cafe, Bar & Grill", "2025-02-01", "12.50", "1.10", "Restaurants", "Cash",
				"Soup (x2) - $9.00; Tea (x1) - $2.40", `said "thanks"`,
			}))
		})

		ginkgo.It("should export only the requested receipts", func() {
			data, err := service.ExportCSV([]string{"b"})
			Expect(err).NotTo(HaveOccurred())
			rows, _ := csv.NewReader(bytes.NewReader(data)).ReadAll()
			Expect(rows).To(HaveLen(2))
			Expect(rows[1][0]).To(Equal("Market"))
		})

		ginkgo.It("should fail when nothing matches", func() {
			_, err := service.ExportCSV([]string{"zzz"})
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})
	})

	ginkgo.Describe("ExportXLSX", func() {
		ginkgo.It("should write a Receipts sheet", func() {
			data, err := service.ExportXLSX(nil)
			Expect(err).NotTo(HaveOccurred())

			f, err := excelize.OpenReader(bytes.NewReader(data))
			Expect(err).NotTo(HaveOccurred())
			defer f.Close()

			rows, err := f.GetRows("Receipts")
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(3))
			Expect(rows[0][0]).To(Equal("Store"))
			Expect(rows[1][0]).To(Equal("Market"))
			Expect(rows[2][6]).To(Equal("Soup (x2) - $9.00; Tea (x1) - $2.40"))
		})
	})
})
