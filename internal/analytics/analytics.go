package analytics

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Uncategorized labels entries without a category.
const Uncategorized = "Uncategorized"

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05", "2006/01/02", "01/02/2006"}

// Entry is the slice of a receipt the analytics care about.
type Entry struct {
	Date     string
	Category string
	Total    float64
}

// Bucket is one calendar month of spend.
type Bucket struct {
	Period string  `json:"period"`
	Label  string  `json:"label"`
	Total  float64 `json:"total"`
}

// CategoryTotal is the spend for one category.
type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
	Count    int     `json:"count"`
}

// Spend compares the current calendar month to the previous one.
type Spend struct {
	Current  float64 `json:"current"`
	Previous float64 `json:"previous"`
	Delta    float64 `json:"delta"`
}

// ParseDate reads a receipt date.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// MonthlyBuckets sums totals per calendar month, ordered by period ascending.
// Entries with unreadable dates are skipped.
func MonthlyBuckets(entries []Entry) []Bucket {
	sums := map[string]decimal.Decimal{}
	labels := map[string]string{}
	for _, e := range entries {
		t, ok := ParseDate(e.Date)
		if !ok {
			continue
		}
		period := t.Format("2006-01")
		sums[period] = sums[period].Add(decimal.NewFromFloat(e.Total))
		labels[period] = t.Format("Jan 2006")
	}

	buckets := make([]Bucket, 0, len(sums))
	for period, sum := range sums {
		buckets = append(buckets, Bucket{Period: period, Label: labels[period], Total: sum.InexactFloat64()})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Period < buckets[j].Period
	})
	return buckets
}

// CategorySplit sums totals per category, largest first.
// Ties go to the category with fewer receipts, then by name.
func CategorySplit(entries []Entry) []CategoryTotal {
	sums := map[string]decimal.Decimal{}
	counts := map[string]int{}
	for _, e := range entries {
		category := strings.TrimSpace(e.Category)
		if category == "" {
			category = Uncategorized
		}
		sums[category] = sums[category].Add(decimal.NewFromFloat(e.Total))
		counts[category]++
	}

	split := make([]CategoryTotal, 0, len(sums))
	for category, sum := range sums {
		split = append(split, CategoryTotal{Category: category, Total: sum.InexactFloat64(), Count: counts[category]})
	}
	sort.Slice(split, func(i, j int) bool {
		a, b := split[i], split[j]
		if cmp := sums[a.Category].Cmp(sums[b.Category]); cmp != 0 {
			return cmp > 0
		}
		if a.Count != b.Count {
			return a.Count < b.Count
		}
		return a.Category < b.Category
	})
	return split
}

// AverageTicket is the mean total, 0 for no entries.
func AverageTicket(entries []Entry) float64 {
	if len(entries) == 0 {
		return 0
	}
	return sum(entries).Div(decimal.NewFromInt(int64(len(entries)))).InexactFloat64()
}

// TotalSpend sums every entry.
func TotalSpend(entries []Entry) float64 {
	return sum(entries).InexactFloat64()
}

// MonthSpend compares spend in now's calendar month with the month before.
func MonthSpend(entries []Entry, now time.Time) Spend {
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	previous := current.AddDate(0, -1, 0)

	var cur, prev decimal.Decimal
	for _, e := range entries {
		t, ok := ParseDate(e.Date)
		if !ok {
			continue
		}
		switch {
		case t.Year() == current.Year() && t.Month() == current.Month():
			cur = cur.Add(decimal.NewFromFloat(e.Total))
		case t.Year() == previous.Year() && t.Month() == previous.Month():
			prev = prev.Add(decimal.NewFromFloat(e.Total))
		}
	}
	return Spend{
		Current:  cur.InexactFloat64(),
		Previous: prev.InexactFloat64(),
		Delta:    cur.Sub(prev).InexactFloat64(),
	}
}

// Last returns at most n trailing buckets.
func Last(buckets []Bucket, n int) []Bucket {
	if len(buckets) <= n {
		return buckets
	}
	return buckets[len(buckets)-n:]
}

// Top returns at most n leading categories.
func Top(split []CategoryTotal, n int) []CategoryTotal {
	if len(split) <= n {
		return split
	}
	return split[:n]
}

func sum(entries []Entry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(decimal.NewFromFloat(e.Total))
	}
	return total
}
