package weighing

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docFromLines(lines ...string) *OCRDocument {
	page := OCRPage{ID: 0, Confidence: 0.9}
	for i, text := range lines {
		page.Lines = append(page.Lines, OCRLine{ID: i, Text: text, Confidence: 0.9})
	}
	return &OCRDocument{Confidence: 0.9, Pages: []OCRPage{page}}
}

func TestParseWeight(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"12,340 kg", "12340", true},
		{"12340kg", "12340", true},
		{"1 2 340", "12340", true}, // OCR-split digits
		{"9,480.5 kg", "9480.5", true},
		{"", "", false},
		{"없음", "", false},
	}
	for _, tc := range tests {
		got, ok := ParseWeight(tc.in)
		assert.Equalf(t, tc.ok, ok, "input %q", tc.in)
		if ok {
			assert.Equalf(t, tc.want, got.String(), "input %q", tc.in)
		}
	}
}

func TestExtractWeightFromLineIgnoresClockTimes(t *testing.T) {
	got, ok := ExtractWeightFromLine("총중량 13:45 12,340 kg")
	require.True(t, ok)
	assert.Equal(t, "12340", got.String())
}

func TestWeightValueType(t *testing.T) {
	total := WeightFromKg(decimal.NewFromInt(12340))
	tare := WeightFromTon(decimal.RequireFromString("9.48"))

	assert.Equal(t, "9480", tare.Kg().String())
	net := total.Sub(tare)
	assert.Equal(t, "2860", net.Kg().String())
	assert.True(t, net.ApproxEqual(WeightFromKg(decimal.NewFromInt(2865)), decimal.NewFromInt(10)))
	assert.False(t, net.ApproxEqual(WeightFromKg(decimal.NewFromInt(2875)), decimal.NewFromInt(10)))
}

func TestParseExtractsCoreFields(t *testing.T) {
	doc := docFromLines(
		"계 량 증 명 서",
		"2024.03.15 - 37호",
		"차량번호: 80구8713",
		"상호: 한국자원 (주)",
		"품명: 폐지",
		"총중량 12,340 kg 13:45",
		"공차중량 9,480 kg 14:10",
		"실중량 2,860 kg",
		"대한펄프 (주)",
		"TEL: 031-123-4567",
	)

	receipt, err := NewParser(nil).Parse(doc)
	require.NoError(t, err)

	assert.Equal(t, "계량증명서", receipt.DocumentType)
	require.NotNil(t, receipt.Date)
	assert.Equal(t, "2024-03-15", receipt.Date.Format("2006-01-02"))
	assert.Equal(t, "37", receipt.SequenceNumber)
	assert.Equal(t, "80구8713", receipt.VehicleNumber)
	assert.Contains(t, receipt.CompanyName, "한국자원")
	assert.Equal(t, "폐지", receipt.ProductName)
	assert.Equal(t, "031-123-4567", receipt.Phone)

	require.NotNil(t, receipt.TotalWeight)
	require.NotNil(t, receipt.TareWeight)
	require.NotNil(t, receipt.NetWeight)
	assert.Equal(t, "12340", receipt.TotalWeight.ValueKg.String())
	assert.Equal(t, "9480", receipt.TareWeight.ValueKg.String())
	assert.Equal(t, "2860", receipt.NetWeight.ValueKg.String())
	assert.Equal(t, "13:45", receipt.TotalWeight.Timestamp)

	assert.True(t, receipt.IsValid(), "12340 - 9480 = 2860 satisfies the invariant")
}

func TestParseFlagsWeightInvariantViolation(t *testing.T) {
	doc := docFromLines(
		"계량증명서",
		"총중량 12,340 kg",
		"공차중량 9,480 kg",
		"실중량 2,000 kg", // off by 860 kg
	)

	receipt, err := NewParser(nil).Parse(doc)
	require.NoError(t, err)
	assert.False(t, receipt.IsValid())
	require.NotEmpty(t, receipt.ValidationErrors)
	assert.Contains(t, receipt.ValidationErrors[0], "중량 불변식 위반")
}

func TestParseToleranceBoundary(t *testing.T) {
	doc := docFromLines(
		"총중량 1,000 kg",
		"공차중량 400 kg",
		"실중량 590 kg", // diff exactly 10
	)
	receipt, err := NewParser(nil).Parse(doc)
	require.NoError(t, err)
	assert.True(t, receipt.IsValid(), "a difference equal to the tolerance passes")

	doc = docFromLines(
		"총중량 1,000 kg",
		"공차중량 400 kg",
		"실중량 589 kg", // diff 11
	)
	receipt, err = NewParser(nil).Parse(doc)
	require.NoError(t, err)
	assert.False(t, receipt.IsValid())
}

func TestParseRejectsTareAboveTotal(t *testing.T) {
	doc := docFromLines(
		"총중량 400 kg",
		"공차중량 1,000 kg",
	)
	receipt, err := NewParser(nil).Parse(doc)
	require.NoError(t, err)
	assert.False(t, receipt.IsValid())
}

func TestParsePartialReceiptStillReturned(t *testing.T) {
	doc := docFromLines("계근표", "차량번호 8713")
	receipt, err := NewParser(nil).Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, "계근표", receipt.DocumentType)
	assert.Equal(t, "8713", receipt.VehicleNumber)
	assert.Nil(t, receipt.TotalWeight)
	assert.True(t, receipt.IsValid(), "missing weights skip the equation check")
}

func TestParseEmptyDocumentFails(t *testing.T) {
	_, err := NewParser(nil).Parse(&OCRDocument{})
	assert.Error(t, err)
}

func TestWeightValueBorrowedFromNextLine(t *testing.T) {
	doc := docFromLines(
		"총중량",
		"12,340 kg 13:45",
		"공차중량",
		"9,480 kg",
	)
	receipt, err := NewParser(nil).Parse(doc)
	require.NoError(t, err)
	require.NotNil(t, receipt.TotalWeight)
	assert.Equal(t, "12340", receipt.TotalWeight.ValueKg.String())
	require.NotNil(t, receipt.TareWeight)
	assert.Equal(t, "9480", receipt.TareWeight.ValueKg.String())
}

func TestOCRNoiseDocumentTypeVariant(t *testing.T) {
	doc := docFromLines("계 그 표") // OCR reads 근 as 그
	receipt, err := NewParser(nil).Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, "계근표", receipt.DocumentType)
}

func TestConfidenceFlagging(t *testing.T) {
	page := OCRPage{ID: 0}
	page.Lines = []OCRLine{
		{ID: 0, Text: "계량증명서", Confidence: 0.3},
		{ID: 1, Text: "총중량 1,000 kg", Confidence: 0.95},
	}
	doc := &OCRDocument{Pages: []OCRPage{page}}

	receipt, err := NewParser(nil).Parse(doc)
	require.NoError(t, err)

	low := receipt.LowConfidenceFields()
	assert.Contains(t, low, "document_type")
	assert.NotContains(t, low, "weights")
}

func TestOutputRoundTrip(t *testing.T) {
	doc := docFromLines(
		"계량증명서",
		"2024.03.15",
		"총중량 12,340 kg",
		"공차중량 9,480 kg",
		"실중량 2,860 kg",
	)
	receipt, err := NewParser(nil).Parse(doc)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, WriteJSON([]*Receipt{receipt}, dir+"/receipts.json"))
	require.NoError(t, WriteCSV([]*Receipt{receipt}, dir+"/receipts.csv"))

	data, err := os.ReadFile(dir + "/receipts.json")
	require.NoError(t, err)
	var back []Receipt
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back, 1)
	assert.Equal(t, receipt.DocumentType, back[0].DocumentType)
	require.NotNil(t, back[0].TotalWeight)
	assert.Equal(t, "12340", back[0].TotalWeight.ValueKg.String())

	f, err := os.Open(dir + "/receipts.csv")
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "12340", records[1][6])
}
