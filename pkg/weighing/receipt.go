package weighing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// WeightMeasurement is one measured weight with its capture metadata
type WeightMeasurement struct {
	ValueKg    decimal.Decimal `json:"value_kg"`
	Timestamp  string          `json:"timestamp,omitempty"`
	Confidence float64         `json:"confidence"`
}

// ConfidenceScore flags how reliably a field was extracted
type ConfidenceScore struct {
	FieldName         string  `json:"field_name"`
	Confidence        float64 `json:"confidence"`
	LowConfidenceFlag bool    `json:"low_confidence_flag"`
}

// Receipt is a parsed weighing receipt
type Receipt struct {
	DocumentType string `json:"document_type,omitempty"`

	Date           *time.Time `json:"date,omitempty"`
	SequenceNumber string     `json:"sequence_number,omitempty"`

	VehicleNumber string `json:"vehicle_number,omitempty"`

	CompanyName string `json:"company_name,omitempty"`
	ProductName string `json:"product_name,omitempty"`

	TotalWeight *WeightMeasurement `json:"total_weight,omitempty"`
	TareWeight  *WeightMeasurement `json:"tare_weight,omitempty"`
	NetWeight   *WeightMeasurement `json:"net_weight,omitempty"`

	IssuingCompany string `json:"issuing_company,omitempty"`
	Address        string `json:"address,omitempty"`
	Phone          string `json:"phone,omitempty"`

	ConfidenceScores []ConfidenceScore `json:"confidence_scores,omitempty"`
	ValidationErrors []string          `json:"validation_errors"`
	RawText          string            `json:"raw_text,omitempty"`
}

// Validate checks the weight invariants and appends any violations to
// ValidationErrors. Partial receipts stay usable: violations are recorded,
// not raised.
func (r *Receipt) Validate(toleranceKg decimal.Decimal) {
	r.appendErr(r.checkEquation(toleranceKg))
	for name, m := range map[string]*WeightMeasurement{
		"총중량":  r.TotalWeight,
		"공차중량": r.TareWeight,
		"실중량":  r.NetWeight,
	} {
		if m != nil && m.ValueKg.IsNegative() {
			r.appendErr(fmt.Sprintf("%s 음수: %s kg", name, m.ValueKg))
		}
	}
	if r.TotalWeight != nil && r.TareWeight != nil &&
		r.TotalWeight.ValueKg.LessThan(r.TareWeight.ValueKg) {
		r.appendErr(fmt.Sprintf("총중량(%s kg)이 공차중량(%s kg)보다 작음",
			r.TotalWeight.ValueKg, r.TareWeight.ValueKg))
	}
}

// checkEquation verifies net = gross - tare within tolerance
func (r *Receipt) checkEquation(toleranceKg decimal.Decimal) string {
	if r.TotalWeight == nil || r.TareWeight == nil || r.NetWeight == nil {
		return ""
	}
	expected := r.TotalWeight.ValueKg.Sub(r.TareWeight.ValueKg)
	diff := expected.Sub(r.NetWeight.ValueKg).Abs()
	if diff.GreaterThan(toleranceKg) {
		return fmt.Sprintf("중량 불변식 위반: %s - %s = %s, 실중량: %s (차이: %s kg)",
			r.TotalWeight.ValueKg, r.TareWeight.ValueKg, expected, r.NetWeight.ValueKg, diff)
	}
	return ""
}

func (r *Receipt) appendErr(msg string) {
	if msg == "" {
		return
	}
	for _, existing := range r.ValidationErrors {
		if existing == msg {
			return
		}
	}
	r.ValidationErrors = append(r.ValidationErrors, msg)
}

// IsValid reports whether no invariant was violated
func (r *Receipt) IsValid() bool {
	return len(r.ValidationErrors) == 0
}

// OverallConfidence averages the per-field confidence scores
func (r *Receipt) OverallConfidence() float64 {
	if len(r.ConfidenceScores) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range r.ConfidenceScores {
		sum += s.Confidence
	}
	return sum / float64(len(r.ConfidenceScores))
}

// LowConfidenceFields lists fields flagged below the confidence threshold
func (r *Receipt) LowConfidenceFields() []string {
	var out []string
	for _, s := range r.ConfidenceScores {
		if s.LowConfidenceFlag {
			out = append(out, s.FieldName)
		}
	}
	return out
}
