package weighing

import (
	"regexp"
	"strings"
)

// weightType discriminates the three measurements on a receipt
type weightType int

const (
	weightTotal weightType = iota
	weightTare
	weightNet
)

// weightLabels in priority order: specific labels first, so 총중량 wins over
// the generic 중량. 품종명랑 is a recurring OCR corruption of 총중량 blocks.
var weightLabels = []struct {
	label string
	typ   weightType
}{
	{"총중량", weightTotal},
	{"총 중 량", weightTotal},
	{"품종명랑", weightTotal},
	{"품종명", weightTotal},
	{"공차중량", weightTare},
	{"공차 중량", weightTare},
	{"실중량", weightNet},
	{"실 중 량", weightNet},
	{"차중량", weightTare},
	{"차 중 량", weightTare},
	{"중 량", weightTare},
}

var documentTypePatterns = map[string][]*regexp.Regexp{
	"계량증명서": {
		regexp.MustCompile(`계\s*량\s*증\s*명\s*서`),
	},
	"계량확인서": {
		regexp.MustCompile(`계\s*량\s*확\s*인\s*서`),
	},
	"계량증명표": {
		regexp.MustCompile(`계\s*량\s*증\s*명\s*표`),
	},
	"계근표": {
		regexp.MustCompile(`계\s*[그근]\s*표`), // OCR reads 근 as 그
		regexp.MustCompile(`계표`),
	},
}

var vehiclePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{2,3}[가-힣]\d{4})`), // full plate: 80구8713
	regexp.MustCompile(`(\d{4})`),             // short form: 8713
}

var vehicleLabels = []string{"차량번호", "차량 번호", "차량No", "차량 No", "차번"}

var companyLabels = []string{"상호", "거래처", "업체명", "회사명"}

var issuerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`([\w가-힣]+\s*\(주\))`),
	regexp.MustCompile(`\(주\)\s*([\w가-힣]+)`),
	regexp.MustCompile(`([\w가-힣]+주식회사)`),
	regexp.MustCompile(`([\w가-힣]+C&S)`),
	regexp.MustCompile(`([\w가-힣]+바이오)`),
	regexp.MustCompile(`([\w가-힣]+리사이클링)`),
	regexp.MustCompile(`([\w가-힣]+펄프)`),
}

var phoneRe = regexp.MustCompile(`(0\d{1,2}[-.)\s]?\d{3,4}[-.\s]?\d{4})`)

var productLabels = []string{"품명", "품목", "제품명"}

// extractDocumentType finds the receipt type heading
func extractDocumentType(doc *OCRDocument) (string, float64) {
	for _, line := range doc.Lines() {
		for docType, patterns := range documentTypePatterns {
			for _, re := range patterns {
				if re.MatchString(line.Text) {
					return docType, line.Confidence
				}
			}
		}
	}
	return "", 0
}

// extractDateSequence finds the receipt date and its trailing sequence number
func extractDateSequence(doc *OCRDocument) (dateText string, sequence string, confidence float64) {
	for _, line := range doc.Lines() {
		if _, ok := ParseReceiptDate(line.Text); ok {
			return line.Text, ExtractSequence(line.Text), line.Confidence
		}
	}
	return "", "", 0
}

// extractVehicle finds the vehicle plate, preferring labeled lines
func extractVehicle(doc *OCRDocument) (string, float64) {
	lines := doc.Lines()

	for i, line := range lines {
		if !containsAny(line.Text, vehicleLabels) {
			continue
		}
		if v := matchVehicle(line.Text); v != "" {
			return v, line.Confidence
		}
		if i+1 < len(lines) {
			if v := matchVehicle(lines[i+1].Text); v != "" {
				return v, lines[i+1].Confidence
			}
		}
	}

	// fall back to a full plate pattern anywhere
	for _, line := range lines {
		if m := vehiclePatterns[0].FindStringSubmatch(line.Text); m != nil {
			return m[1], line.Confidence
		}
	}
	return "", 0
}

func matchVehicle(text string) string {
	for _, re := range vehiclePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

// extractCompany finds the customer company, reading the value after a label
func extractCompany(doc *OCRDocument) (string, float64) {
	lines := doc.Lines()
	for i, line := range lines {
		for _, label := range companyLabels {
			idx := strings.Index(line.Text, label)
			if idx < 0 {
				continue
			}
			rest := strings.Trim(line.Text[idx+len(label):], " :：\t")
			if rest != "" {
				return CleanText(rest), line.Confidence
			}
			if i+1 < len(lines) && !isLabelLine(lines[i+1].Text) {
				return CleanText(lines[i+1].Text), lines[i+1].Confidence
			}
		}
	}
	return "", 0
}

// extractProduct finds the product name after a 품명-style label
func extractProduct(doc *OCRDocument) (string, float64) {
	for _, line := range doc.Lines() {
		for _, label := range productLabels {
			idx := strings.Index(line.Text, label)
			if idx < 0 {
				continue
			}
			rest := strings.Trim(line.Text[idx+len(label):], " :：\t")
			if rest != "" {
				return CleanText(rest), line.Confidence
			}
		}
	}
	return "", 0
}

// extractIssuer finds the issuing company, scanning from the bottom where
// issuers print their name
func extractIssuer(doc *OCRDocument) (string, float64) {
	lines := doc.Lines()
	for i := len(lines) - 1; i >= 0; i-- {
		for _, re := range issuerPatterns {
			if m := re.FindStringSubmatch(lines[i].Text); m != nil {
				return CleanText(m[0]), lines[i].Confidence
			}
		}
	}
	return "", 0
}

// extractPhone finds a phone number anywhere in the document
func extractPhone(doc *OCRDocument) (string, float64) {
	for _, line := range doc.Lines() {
		if m := phoneRe.FindStringSubmatch(line.Text); m != nil {
			return m[1], line.Confidence
		}
	}
	return "", 0
}

// extractWeights matches all three weight measurements in one pass over the
// lines. A label line without a number borrows the value from the next line.
func extractWeights(doc *OCRDocument) (total, tare, net *WeightMeasurement, avgConfidence float64) {
	lines := doc.Lines()
	found := make(map[weightType]*WeightMeasurement)
	usedLines := make(map[int]struct{})

	for i, line := range lines {
		if _, used := usedLines[line.ID]; used {
			continue
		}
		for _, entry := range weightLabels {
			if _, have := found[entry.typ]; have {
				continue
			}
			if !strings.Contains(line.Text, entry.label) {
				continue
			}

			kg, ok := ExtractWeightFromLine(line.Text)
			timestamp := ExtractTimeString(line.Text)
			confidence := line.Confidence
			if !ok && i+1 < len(lines) {
				next := lines[i+1]
				if _, used := usedLines[next.ID]; !used {
					if kg, ok = ExtractWeightFromLine(next.Text); ok {
						timestamp = ExtractTimeString(next.Text)
						confidence = next.Confidence
					}
				}
			}
			if !ok {
				continue
			}

			found[entry.typ] = &WeightMeasurement{
				ValueKg:    kg,
				Timestamp:  timestamp,
				Confidence: confidence,
			}
			usedLines[line.ID] = struct{}{}
			break
		}
	}

	sum, n := 0.0, 0
	for _, m := range found {
		sum += m.Confidence
		n++
	}
	if n > 0 {
		avgConfidence = sum / float64(n)
	}
	return found[weightTotal], found[weightTare], found[weightNet], avgConfidence
}

func containsAny(text string, labels []string) bool {
	for _, label := range labels {
		if strings.Contains(text, label) {
			return true
		}
	}
	return false
}

func isLabelLine(text string) bool {
	return containsAny(text, companyLabels) ||
		containsAny(text, vehicleLabels) ||
		containsAny(text, productLabels)
}
