package interpret

import (
	"fmt"
	"strings"
)

const promptTemplate = `You are a receipt parsing expert. Analyze the OCR text of a receipt below and extract structured information.

OCR Text:
"""
%s
"""

Return a JSON object with exactly this structure:
{
  "vendor": "store or merchant name",
  "date": "purchase date in YYYY-MM-DD format",
  "total": number (final amount paid),
  "tax": number (total tax charged, 0 if none),
  "subtotal": number (amount before tax, 0 if not found),
  "items": [
    {
      "name": "item description",
      "quantity": number (default 1),
      "price": number (total price for this line, quantity already applied)
    }
  ],
  "paymentMethod": %s,
  "confidence": number between 0 and 1
}

Tax rules:
- Tax may be labeled Tax, GST, PST, HST, VAT or Sales Tax. If several tax lines appear, add them together.
- If tax is not printed but both subtotal and total are, set tax = total - subtotal.
- Check that subtotal + tax is within $0.50 of total. If it is not, re-read the amounts and lower your confidence.
- If there is no tax signal at all and only a total is present, set tax to 0 and subtotal to 0.

Item rules:
- Extract every purchased item you can identify.
- Quantity defaults to 1. Read "2x", "x2", "2 @" and similar notation as a quantity.
- Do not list service fees, tips, gratuity, discounts, change due, or repeated total/subtotal/tax lines as items.

Date rules:
- If the year is missing or ambiguous, assume the current year, %d.

Confidence rubric:
- 0.9 to 1.0: all fields are clearly legible and the amounts are consistent.
- 0.7 to 0.89: minor uncertainty in one or two fields.
- 0.5 to 0.69: some fields are unclear or had to be inferred.
- below 0.5: the OCR text is poor or ambiguous.

Respond with ONLY the JSON object. Do not include markdown, code fences, comments or any other text.`

// BuildPrompt renders the interpretation prompt for the given OCR text.
func BuildPrompt(ocrText string, currentYear int) string {
	methods := make([]string, len(PaymentMethods))
	for i, m := range PaymentMethods {
		methods[i] = fmt.Sprintf("%q", string(m))
	}
	return fmt.Sprintf(promptTemplate, ocrText, strings.Join(methods, " | "), currentYear)
}
