package weighing

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var receiptCSVHeader = []string{
	"document_type", "date", "sequence_number", "vehicle_number",
	"company_name", "product_name", "total_weight_kg", "tare_weight_kg",
	"net_weight_kg", "issuing_company", "phone", "confidence",
	"validation_errors",
}

// WriteJSON writes receipts as a JSON array, weights serialized as strings
func WriteJSON(receipts []*Receipt, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	data, err := json.MarshalIndent(receipts, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal receipts: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// WriteCSV writes receipts as a flat CSV table
func WriteCSV(receipts []*Receipt, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(receiptCSVHeader); err != nil {
		return err
	}
	for _, r := range receipts {
		if err := w.Write(receiptRecord(r)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func receiptRecord(r *Receipt) []string {
	date := ""
	if r.Date != nil {
		date = r.Date.Format("2006-01-02")
	}
	weight := func(m *WeightMeasurement) string {
		if m == nil {
			return ""
		}
		return m.ValueKg.String()
	}
	return []string{
		r.DocumentType,
		date,
		r.SequenceNumber,
		r.VehicleNumber,
		r.CompanyName,
		r.ProductName,
		weight(r.TotalWeight),
		weight(r.TareWeight),
		weight(r.NetWeight),
		r.IssuingCompany,
		r.Phone,
		fmt.Sprintf("%.2f", r.OverallConfidence()),
		strings.Join(r.ValidationErrors, "; "),
	}
}
