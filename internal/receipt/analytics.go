package receipt

import (
	"fmt"
	"time"

	"github.com/zombor/receiptly/internal/analytics"
)

const (
	reportMonths     = 4
	reportCategories = 4
)

// Report is the dashboard view over the whole history
type Report struct {
	Count         int                       `json:"count"`
	TotalSpent    float64                   `json:"totalSpent"`
	AverageTicket float64                   `json:"averageTicket"`
	Monthly       []analytics.Bucket        `json:"monthly"`
	Categories    []analytics.CategoryTotal `json:"categories"`
	MonthSpend    analytics.Spend           `json:"monthSpend"`
}

// Analytics derives the dashboard report from the stored history
func (s *Service) Analytics(now time.Time) (*Report, error) {
	all, err := s.history.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	entries := make([]analytics.Entry, len(all))
	for i, r := range all {
		entries[i] = analytics.Entry{Date: r.Date, Category: string(r.Category), Total: r.Total}
	}

	return &Report{
		Count:         len(entries),
		TotalSpent:    analytics.TotalSpend(entries),
		AverageTicket: analytics.AverageTicket(entries),
		Monthly:       analytics.Last(analytics.MonthlyBuckets(entries), reportMonths),
		Categories:    analytics.Top(analytics.CategorySplit(entries), reportCategories),
		MonthSpend:    analytics.MonthSpend(entries, now),
	}, nil
}
