package interpret

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Validator", func() {
	var (
		raw       string
		validator *Validator
		receipt   *InterpretedReceipt
		err       error
	)

	BeforeEach(func() {
		validator = NewValidator(func() time.Time {
			return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
		})
	})

	JustBeforeEach(func() {
		candidate, parseErr := ParseCandidate(raw)
		Expect(parseErr).NotTo(HaveOccurred())
		receipt, err = validator.Validate(candidate)
	})

	When("the candidate is complete and consistent", func() {
		BeforeEach(func() {
			raw = `{"vendor": "STORE A", "date": "2025-02-01", "subtotal": 45.90, "tax": 6.20, "total": 52.10,
				"items": [{"name": "Milk", "quantity": 2, "price": 7.98}], "paymentMethod": "Visa", "confidence": 0.95}`
		})

		It("should keep the amounts", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(receipt.Vendor).To(Equal("STORE A"))
			Expect(receipt.Subtotal).To(Equal(45.90))
			Expect(receipt.Tax).To(Equal(6.20))
			Expect(receipt.Total).To(Equal(52.10))
		})

		It("should keep the model confidence", func() {
			Expect(receipt.Confidence).To(Equal(0.95))
		})

		It("should not warn", func() {
			Expect(receipt.Warnings).To(BeEmpty())
		})

		It("should keep the payment method", func() {
			Expect(receipt.PaymentMethod).To(Equal(PaymentVisa))
		})
	})

	When("the vendor is missing", func() {
		BeforeEach(func() {
			raw = `{"vendor": "  ", "total": 12.00}`
		})

		It("should fail with IncompleteData", func() {
			Expect(errors.Is(err, ErrIncompleteData)).To(BeTrue())
			var incomplete *IncompleteDataError
			Expect(errors.As(err, &incomplete)).To(BeTrue())
			Expect(incomplete.Missing).To(ConsistOf("vendor"))
			Expect(incomplete.Candidate.Total).To(Equal(12.00))
		})
	})

	DescribeTable("falsy totals fail with IncompleteData",
		func(input string) {
			candidate, parseErr := ParseCandidate(input)
			Expect(parseErr).NotTo(HaveOccurred())
			_, validateErr := validator.Validate(candidate)
			Expect(errors.Is(validateErr, ErrIncompleteData)).To(BeTrue())
		},
		Entry("zero", `{"vendor": "A", "total": 0}`),
		Entry("null", `{"vendor": "A", "total": null}`),
		Entry("missing", `{"vendor": "A"}`),
		Entry("unparseable", `{"vendor": "A", "total": "about ten"}`),
		Entry("NaN", `{"vendor": "A", "total": "NaN"}`),
		Entry("NaN with subtotal and tax", `{"vendor": "A", "total": "NaN", "subtotal": 9, "tax": 1}`),
		Entry("infinity", `{"vendor": "A", "total": "Infinity"}`),
	)

	DescribeTable("non-finite optional amounts zero-default with a warning",
		func(input string, field string) {
			candidate, parseErr := ParseCandidate(input)
			Expect(parseErr).NotTo(HaveOccurred())
			r, validateErr := validator.Validate(candidate)
			Expect(validateErr).NotTo(HaveOccurred())
			Expect(r.Total).To(Equal(10.0))
			Expect(r.Warnings).To(ContainElement(ContainSubstring(field)))
		},
		Entry("infinite tax", `{"vendor": "A", "date": "2025-03-01", "total": 10, "subtotal": 9, "tax": "Infinity"}`, "tax"),
		Entry("NaN tax", `{"vendor": "A", "date": "2025-03-01", "total": 10, "subtotal": 9, "tax": "NaN"}`, "tax"),
		Entry("infinite subtotal", `{"vendor": "A", "date": "2025-03-01", "total": 10, "subtotal": "Infinity", "tax": 1}`, "subtotal"),
		Entry("NaN subtotal", `{"vendor": "A", "date": "2025-03-01", "total": 10, "subtotal": "NaN", "tax": 1}`, "subtotal"),
	)

	When("tax is absent but subtotal and total are present", func() {
		BeforeEach(func() {
			raw = `{"vendor": "A", "subtotal": 10.00, "total": 11.30}`
		})

		It("should derive the tax", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(receipt.Tax).To(BeNumerically("~", 1.30, 0.001))
			Expect(receipt.Warnings).To(ContainElement(ContainSubstring("tax derived")))
		})
	})

	When("there is no tax signal", func() {
		BeforeEach(func() {
			raw = `{"vendor": "A", "total": 20.00, "tax": 0, "subtotal": 0}`
		})

		It("should leave tax at zero", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(receipt.Tax).To(BeZero())
		})
	})

	When("subtotal + tax is far from total", func() {
		BeforeEach(func() {
			raw = `{"vendor": "A", "subtotal": 40.00, "tax": 5.00, "total": 52.10, "confidence": 0.95}`
		})

		It("should accept the receipt with a warning", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(receipt.Warnings).To(ContainElement(ContainSubstring("differs from total by 7.10")))
		})

		It("should cap the confidence", func() {
			Expect(receipt.Confidence).To(Equal(0.69))
		})
	})

	When("subtotal + tax is within tolerance", func() {
		BeforeEach(func() {
			raw = `{"vendor": "A", "date": "2025-01-02", "subtotal": 10.00, "tax": 1.00, "total": 11.50, "confidence": 0.9}`
		})

		It("should not warn", func() {
			Expect(receipt.Warnings).To(BeEmpty())
			Expect(receipt.Confidence).To(Equal(0.9))
		})
	})

	When("items have odd quantities", func() {
		BeforeEach(func() {
			raw = `{"vendor": "A", "total": 5, "items": [
				{"name": "Gum", "price": 1.5},
				{"name": "Soda", "quantity": "2", "price": "3.50"},
				{"name": "", "price": 1},
				{"name": "Chips", "quantity": -1, "price": 2}
			]}`
		})

		It("should default and coerce quantities", func() {
			Expect(receipt.Items).To(Equal([]ReceiptItem{
				{Name: "Gum", Quantity: 1, Price: 1.5},
				{Name: "Soda", Quantity: 2, Price: 3.5},
				{Name: "Chips", Quantity: 1, Price: 2},
			}))
		})

		It("should warn about dropped and corrected items", func() {
			Expect(receipt.Warnings).To(ContainElement(ContainSubstring("item 3 has no name")))
			Expect(receipt.Warnings).To(ContainElement(ContainSubstring(`"Chips" has an invalid quantity`)))
		})
	})

	When("optional amounts are not numbers", func() {
		BeforeEach(func() {
			raw = `{"vendor": "A", "total": 9.99, "tax": "unknown"}`
		})

		It("should zero-default with a warning", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(receipt.Tax).To(BeZero())
			Expect(receipt.Warnings).To(ContainElement(ContainSubstring("tax")))
		})
	})

	DescribeTable("payment methods are normalized",
		func(input string, expected PaymentMethod) {
			Expect(NormalizePaymentMethod(input)).To(Equal(expected))
		},
		Entry("canonical", "Credit Card", PaymentCreditCard),
		Entry("lower case", "cash", PaymentCash),
		Entry("alias", "AMEX", PaymentAmex),
		Entry("spacing", "  apple   pay ", PaymentApplePay),
		Entry("debit alias", "Debit", PaymentDebitCard),
		Entry("unknown value", "Gift Card", PaymentUnknown),
		Entry("empty", "", PaymentUnknown),
	)

	DescribeTable("dates are normalized",
		func(input string, expected string, ok bool) {
			date, parsed := normalizeDate(input, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
			Expect(date).To(Equal(expected))
			Expect(parsed).To(Equal(ok))
		},
		Entry("iso", "2024-01-15", "2024-01-15", true),
		Entry("slashes", "2024/01/15", "2024-01-15", true),
		Entry("us", "01/15/2024", "2024-01-15", true),
		Entry("short year", "01/15/24", "2024-01-15", true),
		Entry("month name", "Jan 15, 2024", "2024-01-15", true),
		Entry("no year", "01/15", "2025-01-15", true),
		Entry("garbage", "yesterday", "2025-03-10", false),
		Entry("empty", "", "2025-03-10", false),
	)

	When("confidence is absent", func() {
		BeforeEach(func() {
			raw = `{"vendor": "A", "date": "2025-01-01", "subtotal": 10, "tax": 1, "total": 11, "items": [{"name": "X", "price": 10}]}`
		})

		It("should derive one from completeness", func() {
			Expect(receipt.Confidence).To(Equal(0.9))
		})
	})

	When("confidence is out of range", func() {
		BeforeEach(func() {
			raw = `{"vendor": "A", "total": 11, "confidence": 85}`
		})

		It("should read it as a percentage", func() {
			Expect(receipt.Confidence).To(Equal(0.85))
		})
	})
})
