package receipt

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Receipts"

var exportHeader = []string{"Store", "Date", "Total", "Tax", "Category", "Payment Method", "Items", "Notes"}

// selectForExport returns the receipts with the given IDs, or all when ids is empty
func (s *Service) selectForExport(ids []string) ([]*Receipt, error) {
	all, err := s.List(Filter{})
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return all, nil
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	selected := make([]*Receipt, 0, len(ids))
	for _, r := range all {
		if wanted[r.ID] {
			selected = append(selected, r)
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no receipts match %s", ErrNotFound, strings.Join(ids, ", "))
	}
	return selected, nil
}

func formatItems(items []Item) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = fmt.Sprintf("%s (x%g) - $%.2f", item.Name, item.Quantity, item.Price)
	}
	return strings.Join(parts, "; ")
}

func exportRow(r *Receipt) []string {
	return []string{
		r.Vendor,
		r.Date,
		fmt.Sprintf("%.2f", r.Total),
		fmt.Sprintf("%.2f", r.Tax),
		string(r.Category),
		string(r.PaymentMethod),
		formatItems(r.Items),
		r.Notes,
	}
}

// ExportCSV renders receipts as CSV
func (s *Service) ExportCSV(ids []string) ([]byte, error) {
	receipts, err := s.selectForExport(ids)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, fmt.Errorf("writing csv header: %w", err)
	}
	for _, r := range receipts {
		if err := w.Write(exportRow(r)); err != nil {
			return nil, fmt.Errorf("writing csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing csv: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportXLSX renders receipts as an Excel workbook
func (s *Service) ExportXLSX(ids []string) ([]byte, error) {
	receipts, err := s.selectForExport(ids)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	header := make([]interface{}, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}

	for i, r := range receipts {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{
			r.Vendor,
			r.Date,
			r.Total,
			r.Tax,
			string(r.Category),
			string(r.PaymentMethod),
			formatItems(r.Items),
			r.Notes,
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}
