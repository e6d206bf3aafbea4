package interpret

import "strings"

// PaymentMethod is the normalized tender type printed on a receipt.
type PaymentMethod string

const (
	PaymentCreditCard PaymentMethod = "Credit Card"
	PaymentCash       PaymentMethod = "Cash"
	PaymentDebitCard  PaymentMethod = "Debit Card"
	PaymentVisa       PaymentMethod = "Visa"
	PaymentMastercard PaymentMethod = "Mastercard"
	PaymentAmex       PaymentMethod = "Amex"
	PaymentApplePay   PaymentMethod = "Apple Pay"
	PaymentGooglePay  PaymentMethod = "Google Pay"
	PaymentUnknown    PaymentMethod = "Unknown"
)

// PaymentMethods lists every accepted payment method in prompt order.
var PaymentMethods = []PaymentMethod{
	PaymentCreditCard,
	PaymentCash,
	PaymentDebitCard,
	PaymentVisa,
	PaymentMastercard,
	PaymentAmex,
	PaymentApplePay,
	PaymentGooglePay,
	PaymentUnknown,
}

var paymentAliases = map[string]PaymentMethod{
	"credit":           PaymentCreditCard,
	"credit card":      PaymentCreditCard,
	"cc":               PaymentCreditCard,
	"cash":             PaymentCash,
	"debit":            PaymentDebitCard,
	"debit card":       PaymentDebitCard,
	"interac":          PaymentDebitCard,
	"visa":             PaymentVisa,
	"visa credit":      PaymentVisa,
	"visa debit":       PaymentDebitCard,
	"mastercard":       PaymentMastercard,
	"master card":      PaymentMastercard,
	"mc":               PaymentMastercard,
	"amex":             PaymentAmex,
	"american express": PaymentAmex,
	"apple pay":        PaymentApplePay,
	"applepay":         PaymentApplePay,
	"google pay":       PaymentGooglePay,
	"googlepay":        PaymentGooglePay,
	"gpay":             PaymentGooglePay,
	"unknown":          PaymentUnknown,
}

// NormalizePaymentMethod maps free text onto the closed set, defaulting to Unknown.
func NormalizePaymentMethod(s string) PaymentMethod {
	key := strings.ToLower(strings.Join(strings.Fields(s), " "))
	if method, ok := paymentAliases[key]; ok {
		return method
	}
	return PaymentUnknown
}

// ReceiptItem is a purchased line. Price is the line total.
type ReceiptItem struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// InterpretedReceipt is the validated result of interpreting OCR text.
type InterpretedReceipt struct {
	Vendor        string        `json:"vendor"`
	Date          string        `json:"date"`
	Total         float64       `json:"total"`
	Tax           float64       `json:"tax"`
	Subtotal      float64       `json:"subtotal"`
	Items         []ReceiptItem `json:"items"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	Confidence    float64       `json:"confidence"`
	Warnings      []string      `json:"warnings,omitempty"`
}
