package interpret

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	leadingFence  = regexp.MustCompile("^```[A-Za-z0-9_+.-]*[ \t]*")
	trailingFence = regexp.MustCompile("```$")
	currencyNoise = strings.NewReplacer("$", "", "€", "", "£", "", " ", "")
	decimalComma  = regexp.MustCompile(`^-?\d+,\d{2}$`)
)

// Sanitize strips code fences and surrounding whitespace from a completion.
// Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(raw string) string {
	s := strings.TrimSpace(raw)
	for {
		stripped := leadingFence.ReplaceAllString(s, "")
		stripped = strings.TrimSpace(trailingFence.ReplaceAllString(strings.TrimSpace(stripped), ""))
		if stripped == s {
			return s
		}
		s = stripped
	}
}

// Text accepts a JSON string, number or null.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*t = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
	case len(b) > 0 && (b[0] == '-' || (b[0] >= '0' && b[0] <= '9')):
		*t = Text(b)
	default:
		return fmt.Errorf("expected text, got %s", string(b))
	}
	return nil
}

func (t Text) String() string {
	return strings.TrimSpace(string(t))
}

// Number holds whatever the model put in a numeric field.
type Number struct {
	raw json.RawMessage
}

func (n *Number) UnmarshalJSON(b []byte) error {
	n.raw = append(n.raw[:0], b...)
	return nil
}

// Present reports whether the field was set to something other than null.
func (n Number) Present() bool {
	trimmed := bytes.TrimSpace(n.raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) && !bytes.Equal(trimmed, []byte(`""`))
}

// Float coerces numbers and numeric strings such as "$1,234.50" or "12,50".
// NaN and infinities are rejected.
func (n Number) Float() (float64, bool) {
	if !n.Present() {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(n.raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(n.raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(numericText(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// numericText strips currency symbols and thousands separators.
// A single comma followed by exactly two digits is a decimal comma.
func numericText(s string) string {
	s = currencyNoise.Replace(strings.TrimSpace(s))
	if decimalComma.MatchString(s) {
		return strings.Replace(s, ",", ".", 1)
	}
	return strings.ReplaceAll(s, ",", "")
}

// NumberOf builds a Number from a float.
func NumberOf(f float64) Number {
	return Number{raw: json.RawMessage(strconv.FormatFloat(f, 'f', -1, 64))}
}

// CandidateItem is an unvalidated line item.
type CandidateItem struct {
	Name     Text   `json:"name"`
	Quantity Number `json:"quantity"`
	Price    Number `json:"price"`
}

// Candidate is the model's answer before validation.
type Candidate struct {
	Vendor        Text            `json:"vendor"`
	Date          Text            `json:"date"`
	Total         Number          `json:"total"`
	Tax           Number          `json:"tax"`
	Subtotal      Number          `json:"subtotal"`
	Items         []CandidateItem `json:"items"`
	PaymentMethod Text            `json:"paymentMethod"`
	Confidence    Number          `json:"confidence"`
}

// ParseCandidate sanitizes a completion and decodes it as a receipt object.
func ParseCandidate(raw string) (*Candidate, error) {
	cleaned := Sanitize(raw)
	if cleaned == "" {
		return nil, &MalformedResponseError{Raw: raw, Err: errors.New("response is empty")}
	}
	if !strings.HasPrefix(cleaned, "{") {
		return nil, &MalformedResponseError{Raw: raw, Err: errors.New("response is not a JSON object")}
	}

	var candidate Candidate
	if err := json.Unmarshal([]byte(cleaned), &candidate); err != nil {
		return nil, &MalformedResponseError{Raw: raw, Err: err}
	}
	return &candidate, nil
}
