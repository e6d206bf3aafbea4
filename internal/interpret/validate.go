package interpret

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TaxTolerance is the allowed gap between subtotal + tax and total.
const TaxTolerance = 0.50

// inconsistentConfidenceCap keeps tax-inconsistent receipts below the "minor uncertainty" band.
const inconsistentConfidenceCap = 0.69

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"01/02/06",
	"1/2/06",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

var yearlessLayouts = []string{
	"01/02",
	"1/2",
	"01-02",
	"Jan 2",
	"January 2",
	"2 Jan",
}

// Validator turns parsed candidates into interpreted receipts
type Validator struct {
	now func() time.Time
}

// NewValidator creates a Validator. now supplies the current date for defaults.
func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{now: now}
}

// Validate enforces required fields, coerces amounts and checks tax consistency
func (v *Validator) Validate(c *Candidate) (*InterpretedReceipt, error) {
	var warnings []string
	warn := func(format string, args ...interface{}) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	receipt := &InterpretedReceipt{
		Vendor:        c.Vendor.String(),
		PaymentMethod: NormalizePaymentMethod(c.PaymentMethod.String()),
		Items:         []ReceiptItem{},
	}

	var missing []string
	if receipt.Vendor == "" {
		missing = append(missing, "vendor")
	}
	total, ok := c.Total.Float()
	if !ok && c.Total.Present() {
		warn("total %q is not a number", string(c.Total.raw))
	}
	if total < 0 {
		warn("total was negative, using its absolute value")
		total = math.Abs(total)
	}
	receipt.Total = total
	if receipt.Total == 0 {
		missing = append(missing, "total")
	}

	receipt.Tax = amount("tax", c.Tax, warn)
	receipt.Subtotal = amount("subtotal", c.Subtotal, warn)

	for i, item := range c.Items {
		name := item.Name.String()
		if name == "" {
			warn("item %d has no name and was dropped", i+1)
			continue
		}
		quantity, ok := item.Quantity.Float()
		if !ok || quantity <= 0 {
			if item.Quantity.Present() {
				warn("item %q has an invalid quantity, using 1", name)
			}
			quantity = 1
		}
		receipt.Items = append(receipt.Items, ReceiptItem{
			Name:     name,
			Quantity: quantity,
			Price:    amount(fmt.Sprintf("price of %q", name), item.Price, warn),
		})
	}

	date, ok := normalizeDate(c.Date.String(), v.now())
	if !ok {
		warn("date %q could not be read, using today", c.Date.String())
	}
	receipt.Date = date

	if len(missing) > 0 {
		receipt.Warnings = warnings
		return nil, &IncompleteDataError{Missing: missing, Candidate: receipt}
	}

	if receipt.Tax == 0 && receipt.Subtotal > 0 && receipt.Total > receipt.Subtotal {
		receipt.Tax = decimal.NewFromFloat(receipt.Total).Sub(decimal.NewFromFloat(receipt.Subtotal)).Round(2).InexactFloat64()
		warn("tax derived from total - subtotal")
	}

	inconsistent := false
	if receipt.Subtotal > 0 && receipt.Tax > 0 {
		gap := decimal.NewFromFloat(receipt.Subtotal).
			Add(decimal.NewFromFloat(receipt.Tax)).
			Sub(decimal.NewFromFloat(receipt.Total)).
			Abs()
		if gap.GreaterThan(decimal.NewFromFloat(TaxTolerance)) {
			inconsistent = true
			warn("subtotal + tax differs from total by %s", gap.StringFixed(2))
			slog.Warn("Tax inconsistency detected",
				"vendor", receipt.Vendor,
				"subtotal", receipt.Subtotal,
				"tax", receipt.Tax,
				"total", receipt.Total,
				"gap", gap.StringFixed(2))
		}
	}

	if confidence, ok := c.Confidence.Float(); ok {
		if confidence > 1 && confidence <= 100 {
			confidence /= 100
		}
		receipt.Confidence = math.Max(0, math.Min(1, confidence))
	} else {
		receipt.Confidence = derivedConfidence(receipt, len(warnings))
	}
	if inconsistent && receipt.Confidence > inconsistentConfidenceCap {
		receipt.Confidence = inconsistentConfidenceCap
	}

	receipt.Warnings = warnings
	return receipt, nil
}

// amount coerces an optional money field, zero-defaulting bad values.
func amount(field string, n Number, warn func(string, ...interface{})) float64 {
	f, ok := n.Float()
	if !ok {
		if n.Present() {
			warn("%s %q is not a number, using 0", field, string(n.raw))
		}
		return 0
	}
	if f < 0 {
		warn("%s was negative, using its absolute value", field)
		return math.Abs(f)
	}
	return f
}

func derivedConfidence(r *InterpretedReceipt, warnings int) float64 {
	confidence := 0.9
	if len(r.Items) == 0 {
		confidence -= 0.1
	}
	if r.Subtotal == 0 {
		confidence -= 0.1
	}
	confidence -= 0.1 * float64(warnings)
	return math.Max(0.1, math.Round(confidence*100)/100)
}

// normalizeDate returns YYYY-MM-DD, falling back to today.
func normalizeDate(s string, now time.Time) (string, bool) {
	today := now.Format("2006-01-02")
	if s == "" {
		return today, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	for _, layout := range yearlessLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Format("2006-01-02"), true
		}
	}
	slog.Debug("Unrecognized receipt date", "date", strings.TrimSpace(s))
	return today, false
}
