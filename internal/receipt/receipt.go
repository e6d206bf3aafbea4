package receipt

import (
	"time"

	"github.com/zombor/receiptly/internal/interpret"
)

// Category groups receipts for analytics
type Category string

const (
	CategoryGroceries      Category = "Groceries"
	CategoryRestaurants    Category = "Restaurants"
	CategoryTransportation Category = "Transportation"
	CategorySupplies       Category = "Supplies"
	CategoryLifestyle      Category = "Lifestyle"
	CategoryTravel         Category = "Travel"
	CategoryServices       Category = "Services"
)

// Categories lists every valid category in display order
var Categories = []Category{
	CategoryGroceries,
	CategoryRestaurants,
	CategoryTransportation,
	CategorySupplies,
	CategoryLifestyle,
	CategoryTravel,
	CategoryServices,
}

var categoryEmoji = map[Category]string{
	CategoryGroceries:      "🛒",
	CategoryRestaurants:    "🍽️",
	CategoryTransportation: "🚌",
	CategorySupplies:       "🧽",
	CategoryLifestyle:      "🛍️",
	CategoryTravel:         "✈️",
	CategoryServices:       "🧾",
}

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	_, ok := categoryEmoji[c]
	return ok
}

// Emoji returns the display tag for the category
func (c Category) Emoji() string {
	return categoryEmoji[c]
}

// Item is a purchased line on a saved receipt
type Item struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Quantity float64  `json:"quantity"`
	Price    float64  `json:"price"`
	Emoji    string   `json:"emoji,omitempty"`
	Category Category `json:"category,omitempty"`
}

// Receipt is a confirmed receipt in the history
type Receipt struct {
	ID            string                  `json:"id"`
	Vendor        string                  `json:"vendor"`
	Date          string                  `json:"date"`
	Total         float64                 `json:"total"`
	Tax           float64                 `json:"tax"`
	Subtotal      float64                 `json:"subtotal"`
	Items         []Item                  `json:"items"`
	PaymentMethod interpret.PaymentMethod `json:"paymentMethod"`
	Confidence    float64                 `json:"confidence"`
	Category      Category                `json:"category"`
	Favorite      bool                    `json:"favorite"`
	Pinned        bool                    `json:"pinned"`
	CreatedAt     time.Time               `json:"createdAt"`
	Summary       string                  `json:"summary,omitempty"`
	Notes         string                  `json:"notes,omitempty"`
	RawText       string                  `json:"rawText,omitempty"`
	EmojiTag      string                  `json:"emojiTag,omitempty"`
	FileURL       string                  `json:"fileUrl,omitempty"`
	FilePath      string                  `json:"filePath,omitempty"`
}

// Draft is an interpreted receipt awaiting user review
type Draft struct {
	Vendor        string                  `json:"vendor"`
	Date          string                  `json:"date"`
	Total         float64                 `json:"total"`
	Tax           float64                 `json:"tax"`
	Subtotal      float64                 `json:"subtotal"`
	Items         []Item                  `json:"items"`
	PaymentMethod interpret.PaymentMethod `json:"paymentMethod"`
	Confidence    float64                 `json:"confidence"`
	Warnings      []string                `json:"warnings,omitempty"`
	Category      Category                `json:"category"`
	Notes         string                  `json:"notes,omitempty"`
	Summary       string                  `json:"summary,omitempty"`
	EmojiTag      string                  `json:"emojiTag,omitempty"`
	RawText       string                  `json:"rawText,omitempty"`
	FileURL       string                  `json:"fileUrl,omitempty"`
	FilePath      string                  `json:"filePath,omitempty"`
	Confirmed     bool                    `json:"confirmed"`
	NeedsRetake   bool                    `json:"needsRetake"`
}

// RetakeThreshold is the confidence below which a new photo is suggested
const RetakeThreshold = 0.65

// NewDraft builds a draft from an interpretation
func NewDraft(r *interpret.InterpretedReceipt) *Draft {
	items := make([]Item, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, Item{Name: item.Name, Quantity: item.Quantity, Price: item.Price})
	}
	return &Draft{
		Vendor:        r.Vendor,
		Date:          r.Date,
		Total:         r.Total,
		Tax:           r.Tax,
		Subtotal:      r.Subtotal,
		Items:         items,
		PaymentMethod: r.PaymentMethod,
		Confidence:    r.Confidence,
		Warnings:      r.Warnings,
		NeedsRetake:   r.Confidence < RetakeThreshold,
	}
}

// Filter narrows a history listing
type Filter struct {
	Query         string
	Category      Category
	FavoritesOnly bool
	PinnedOnly    bool
}

// ScanResult is the outcome of storing and reading an upload
type ScanResult struct {
	StoredPath string `json:"storedPath"`
	PublicURL  string `json:"publicUrl"`
	Text       string `json:"text"`
}
