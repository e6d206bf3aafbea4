package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zombor/receiptly/internal/analytics"
	"github.com/zombor/receiptly/internal/llm"
)

// ErrInvalidSummaryRequest means the type or payload of a summary request was unusable.
var ErrInvalidSummaryRequest = errors.New("invalid summary request")

// Type selects the summary mode.
type Type string

const (
	TypeSingle Type = "single"
	TypeBulk   Type = "bulk"
)

const (
	maxTopCategories = 3
	maxListedStores  = 5
)

// Item is a purchased line as far as a summary is concerned.
type Item struct {
	Name string `json:"name"`
}

// Receipt is the receipt shape accepted by the summarize endpoint.
type Receipt struct {
	Vendor   string  `json:"vendor,omitempty"`
	Store    string  `json:"store,omitempty"`
	Date     string  `json:"date"`
	Total    float64 `json:"total"`
	Category string  `json:"category,omitempty"`
	Items    []Item  `json:"items,omitempty"`
}

// Name prefers the vendor and falls back to the store.
func (r Receipt) Name() string {
	if strings.TrimSpace(r.Vendor) != "" {
		return strings.TrimSpace(r.Vendor)
	}
	return strings.TrimSpace(r.Store)
}

// Request is a single or bulk summary invocation.
type Request struct {
	Type     Type      `json:"type"`
	Receipt  *Receipt  `json:"receipt,omitempty"`
	Receipts []Receipt `json:"receipts,omitempty"`
}

// Stats are the aggregates computed before a bulk prompt is built.
type Stats struct {
	Count        int
	TotalSpent   float64
	Categories   []analytics.CategoryTotal
	Stores       []string
	Start        time.Time
	End          time.Time
	HasDateRange bool
}

// Generator writes narrative summaries with a Completer
type Generator struct {
	completer llm.Completer
}

// NewGenerator creates a Generator
func NewGenerator(completer llm.Completer) *Generator {
	return &Generator{completer: completer}
}

// SummaryRequest returns the decoding settings for narrative text.
func SummaryRequest(prompt string) llm.Request {
	return llm.Request{
		Prompt:      prompt,
		Temperature: 0.7,
		TopP:        1,
		MaxTokens:   500,
	}
}

// Summarize builds the prompt for the request type and returns the trimmed narrative.
func (g *Generator) Summarize(ctx context.Context, req Request) (string, error) {
	var prompt string
	switch {
	case req.Type == TypeSingle && req.Receipt != nil:
		prompt = BuildSinglePrompt(*req.Receipt)
	case req.Type == TypeBulk && len(req.Receipts) > 0:
		prompt = BuildBulkPrompt(ComputeStats(req.Receipts))
	default:
		return "", fmt.Errorf("%w: must specify type and provide receipt(s)", ErrInvalidSummaryRequest)
	}

	slog.Info("Generating summary", "type", req.Type, "receipts", len(req.Receipts))
	text, err := g.completer.Complete(ctx, SummaryRequest(prompt))
	if err != nil {
		return "", fmt.Errorf("completing summary: %w", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", llm.ErrEmptyCompletion
	}
	return text, nil
}

// ComputeStats aggregates spend, categories, stores and the date range.
func ComputeStats(receipts []Receipt) Stats {
	entries := make([]analytics.Entry, len(receipts))
	stats := Stats{Count: len(receipts)}
	seen := map[string]bool{}
	for i, r := range receipts {
		entries[i] = analytics.Entry{Date: r.Date, Category: r.Category, Total: r.Total}

		if name := r.Name(); name != "" && !seen[name] {
			seen[name] = true
			stats.Stores = append(stats.Stores, name)
		}

		t, ok := analytics.ParseDate(r.Date)
		if !ok {
			continue
		}
		if !stats.HasDateRange || t.Before(stats.Start) {
			stats.Start = t
		}
		if !stats.HasDateRange || t.After(stats.End) {
			stats.End = t
		}
		stats.HasDateRange = true
	}
	stats.TotalSpent = analytics.TotalSpend(entries)
	stats.Categories = analytics.CategorySplit(entries)
	return stats
}

// BuildSinglePrompt asks for a short narrative about one purchase.
func BuildSinglePrompt(r Receipt) string {
	names := make([]string, 0, len(r.Items))
	for _, item := range r.Items {
		names = append(names, item.Name)
	}
	category := r.Category
	if category == "" {
		category = "Not specified"
	}

	var b strings.Builder
	b.WriteString("You are a financial assistant analyzing a receipt. Provide a brief, helpful summary (2-3 sentences max) about this purchase.\n\n")
	b.WriteString("Receipt Details:\n")
	fmt.Fprintf(&b, "- Store: %s\n", r.Name())
	fmt.Fprintf(&b, "- Date: %s\n", r.Date)
	fmt.Fprintf(&b, "- Total: $%.2f\n", r.Total)
	fmt.Fprintf(&b, "- Items: %s\n", strings.Join(names, ", "))
	fmt.Fprintf(&b, "- Category: %s\n\n", category)
	b.WriteString("Cover what was purchased, any notable spending pattern, and brief context about the purchase.\n")
	b.WriteString("Keep it friendly and informative. Return ONLY the summary text, no JSON.")
	return b.String()
}

// BuildBulkPrompt asks for a longer narrative about spending history.
func BuildBulkPrompt(stats Stats) string {
	top := analytics.Top(stats.Categories, maxTopCategories)
	categories := make([]string, len(top))
	for i, c := range top {
		categories[i] = fmt.Sprintf("%s: $%.2f", c.Category, c.Total)
	}

	dateRange := "N/A"
	if stats.HasDateRange {
		dateRange = fmt.Sprintf("%s to %s", stats.Start.Format("Jan 2, 2006"), stats.End.Format("Jan 2, 2006"))
	}

	stores := strings.Join(stats.Stores, ", ")
	if len(stats.Stores) > maxListedStores {
		stores = fmt.Sprintf("%s and %d more", strings.Join(stats.Stores[:maxListedStores], ", "), len(stats.Stores)-maxListedStores)
	}

	var b strings.Builder
	b.WriteString("You are a financial assistant analyzing spending history. Provide an insightful summary (4-5 sentences) of the user's spending patterns.\n\n")
	b.WriteString("Spending Overview:\n")
	fmt.Fprintf(&b, "- Total Receipts: %d\n", stats.Count)
	fmt.Fprintf(&b, "- Total Spent: $%.2f\n", stats.TotalSpent)
	fmt.Fprintf(&b, "- Date Range: %s\n", dateRange)
	fmt.Fprintf(&b, "- Top Categories: %s\n", strings.Join(categories, ", "))
	fmt.Fprintf(&b, "- Stores Visited: %s\n\n", stores)
	b.WriteString("Highlight overall spending trends and the top spending categories, note interesting patterns such as frequent stores or habits, and end with one actionable insight.\n")
	b.WriteString("Be conversational and helpful. Return ONLY the summary text, no JSON.")
	return b.String()
}
