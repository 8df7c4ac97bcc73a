package weighing

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ParserConfig configures receipt parsing
type ParserConfig struct {
	ToleranceKg         decimal.Decimal `json:"tolerance_kg" yaml:"tolerance_kg"`
	ConfidenceThreshold float64         `json:"confidence_threshold" yaml:"confidence_threshold"`
	KeepRawText         bool            `json:"keep_raw_text" yaml:"keep_raw_text"`
}

// DefaultParserConfig returns parsing defaults
func DefaultParserConfig() *ParserConfig {
	return &ParserConfig{
		ToleranceKg:         DefaultToleranceKg,
		ConfidenceThreshold: 0.5,
	}
}

// Parser turns OCR documents into validated receipts
type Parser struct {
	config *ParserConfig
}

// NewParser creates a receipt parser
func NewParser(config *ParserConfig) *Parser {
	if config == nil {
		config = DefaultParserConfig()
	}
	return &Parser{config: config}
}

// Parse extracts every field it can find and validates the weight
// invariants. A receipt is returned even when fields are missing; an error
// only means the document had no recognizable content at all.
func (p *Parser) Parse(doc *OCRDocument) (*Receipt, error) {
	if doc == nil || len(doc.Lines()) == 0 {
		return nil, fmt.Errorf("ocr document has no lines")
	}

	receipt := &Receipt{ValidationErrors: []string{}}
	if p.config.KeepRawText {
		receipt.RawText = doc.Text
	}

	docType, docConf := extractDocumentType(doc)
	receipt.DocumentType = docType
	p.score(receipt, "document_type", docConf)

	dateText, sequence, dateConf := extractDateSequence(doc)
	if dateText != "" {
		if date, ok := ParseReceiptDate(dateText); ok {
			receipt.Date = &date
		}
		receipt.SequenceNumber = sequence
		p.score(receipt, "date", dateConf)
	}

	vehicle, vehicleConf := extractVehicle(doc)
	receipt.VehicleNumber = vehicle
	p.score(receipt, "vehicle_number", vehicleConf)

	company, companyConf := extractCompany(doc)
	receipt.CompanyName = company
	p.score(receipt, "company_name", companyConf)

	product, productConf := extractProduct(doc)
	receipt.ProductName = product
	p.score(receipt, "product_name", productConf)

	issuer, issuerConf := extractIssuer(doc)
	receipt.IssuingCompany = issuer
	p.score(receipt, "issuing_company", issuerConf)

	phone, phoneConf := extractPhone(doc)
	receipt.Phone = phone
	p.score(receipt, "phone", phoneConf)

	total, tare, net, weightConf := extractWeights(doc)
	receipt.TotalWeight = total
	receipt.TareWeight = tare
	receipt.NetWeight = net
	p.score(receipt, "weights", weightConf)

	receipt.Validate(p.config.ToleranceKg)

	log.Debug().
		Str("document_type", receipt.DocumentType).
		Str("vehicle", receipt.VehicleNumber).
		Int("validation_errors", len(receipt.ValidationErrors)).
		Float64("confidence", receipt.OverallConfidence()).
		Msg("Receipt parsed")
	return receipt, nil
}

// score records a field confidence; absent fields (zero confidence) and
// low-confidence extractions are flagged
func (p *Parser) score(receipt *Receipt, field string, confidence float64) {
	receipt.ConfidenceScores = append(receipt.ConfidenceScores, ConfidenceScore{
		FieldName:         field,
		Confidence:        confidence,
		LowConfidenceFlag: confidence < p.config.ConfidenceThreshold,
	})
}
