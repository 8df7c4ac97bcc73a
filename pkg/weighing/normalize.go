package weighing

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	kgSuffixRe    = regexp.MustCompile(`(?i)\s*kg\s*$`)
	splitDigitsRe = regexp.MustCompile(`(\d)\s+(\d)`)
	nonNumericRe  = regexp.MustCompile(`[^\d.\-]`)
	numberRe      = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	timeStringRe  = regexp.MustCompile(`\d{1,2}:\d{2}(?::\d{2})?`)
	weightInLine  = regexp.MustCompile(`(?i)([\d,]+(?:\.\d+)?)\s*kg`)
	bareNumberRe  = regexp.MustCompile(`([\d,]{3,}(?:\.\d+)?)`)

	receiptDateRes = []*regexp.Regexp{
		regexp.MustCompile(`(\d{4})[-./](\d{1,2})[-./](\d{1,2})`),
		regexp.MustCompile(`(\d{4})년\s*(\d{1,2})월\s*(\d{1,2})일`),
	}
	sequenceRe = regexp.MustCompile(`[-:]\s*(\d{1,4})\s*(?:호|번)?\s*$`)
)

// ParseWeight coerces OCR weight text to kilograms. It strips a kg suffix,
// rejoins digits split by OCR, and drops grouping commas.
func ParseWeight(text string) (decimal.Decimal, bool) {
	if text == "" {
		return decimal.Decimal{}, false
	}
	text = kgSuffixRe.ReplaceAllString(strings.TrimSpace(text), "")
	text = splitDigitsRe.ReplaceAllString(text, "$1$2")
	text = nonNumericRe.ReplaceAllString(text, "")

	m := numberRe.FindString(text)
	if m == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// ExtractWeightFromLine finds a weight value inside a label line, ignoring
// embedded clock times like 13:45
func ExtractWeightFromLine(text string) (decimal.Decimal, bool) {
	if text == "" {
		return decimal.Decimal{}, false
	}
	cleaned := timeStringRe.ReplaceAllString(text, "")

	if m := weightInLine.FindStringSubmatch(cleaned); m != nil {
		return ParseWeight(m[1])
	}
	if m := bareNumberRe.FindStringSubmatch(cleaned); m != nil {
		return ParseWeight(m[1])
	}
	return decimal.Decimal{}, false
}

// ExtractTimeString pulls an hh:mm or hh:mm:ss clock time out of a line
func ExtractTimeString(text string) string {
	return timeStringRe.FindString(text)
}

// ParseReceiptDate parses dashed, dotted, slashed and Korean date forms
func ParseReceiptDate(text string) (time.Time, bool) {
	for _, re := range receiptDateRes {
		if m := re.FindStringSubmatch(text); m != nil {
			t, err := time.Parse("2006-1-2", m[1]+"-"+m[2]+"-"+m[3])
			if err != nil {
				continue
			}
			return t, true
		}
	}
	return time.Time{}, false
}

// ExtractSequence pulls a trailing sequence number from a date line,
// e.g. "2024.01.15 - 37호"
func ExtractSequence(text string) string {
	if m := sequenceRe.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
		return m[1]
	}
	return ""
}

// CleanText collapses whitespace runs to single spaces and trims the result
func CleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
