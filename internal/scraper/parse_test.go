package scraper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurimarket/bidwatch/pkg/bidnotice"
)

func TestCleanText(t *testing.T) {
	assert.Equal(t, "입찰 공고", CleanText("  입찰 \n\t 공고  "))
	assert.Equal(t, "", CleanText("   "))
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"123,456,789원", "123456789", true},
		{"1,000,000", "1000000", true},
		{"추정가격: 50,000원 (VAT포함)", "50000", true},
		{"", "", false},
		{"미정", "", false},
	}
	for _, tc := range tests {
		got, ok := ParsePrice(tc.in)
		assert.Equalf(t, tc.ok, ok, "input %q", tc.in)
		if ok {
			assert.Equal(t, tc.want, got.String())
		}
	}
}

func TestParseKoreanPrice(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1억 2천만원", "120000000"},
		{"5천만원", "50000000"},
		{"약 3억원", "300000000"},
		{"2조원", "2000000000000"},
		{"1천2백만원", "12000000"},
		{"123,456,789원", "123456789"}, // plain numbers still work
	}
	for _, tc := range tests {
		got, ok := ParseKoreanPrice(tc.in)
		require.Truef(t, ok, "input %q", tc.in)
		assert.Equalf(t, tc.want, got.String(), "input %q", tc.in)
	}

	_, ok := ParseKoreanPrice("가격 미정")
	assert.False(t, ok)
}

func TestParseDateTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-15 14:30", time.Date(2024, 1, 15, 14, 30, 0, 0, time.Local)},
		{"2024-01-15 14:30:45", time.Date(2024, 1, 15, 14, 30, 45, 0, time.Local)},
		{"2024/01/15", time.Date(2024, 1, 15, 0, 0, 0, 0, time.Local)},
		{"2024.1.5", time.Date(2024, 1, 5, 0, 0, 0, 0, time.Local)},
		{"2024년 01월 15일 14시 30분", time.Date(2024, 1, 15, 14, 30, 0, 0, time.Local)},
		{"2024년 1월 15일", time.Date(2024, 1, 15, 0, 0, 0, 0, time.Local)},
		{"마감: 2024-01-15 14:30 까지", time.Date(2024, 1, 15, 14, 30, 0, 0, time.Local)},
	}
	for _, tc := range tests {
		got, ok := ParseDateTime(tc.in)
		require.Truef(t, ok, "input %q", tc.in)
		assert.Truef(t, tc.want.Equal(got), "input %q: want %v, got %v", tc.in, tc.want, got)
	}

	for _, bad := range []string{"", "없음", "2024-13-40"} {
		_, ok := ParseDateTime(bad)
		assert.Falsef(t, ok, "input %q must not parse", bad)
	}
}

func TestExtractBidID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"공고번호: 20240115-001", "20240115-001"},
		{"2024011500001", "2024011500001"},
		{"KEPCO-12345", "KEPCO-12345"},
		{"  custom id  ", "customid"},
		{"", ""},
	}
	for _, tc := range tests {
		assert.Equalf(t, tc.want, ExtractBidID(tc.in), "input %q", tc.in)
	}
}

func TestParseBidType(t *testing.T) {
	assert.Equal(t, bidnotice.TypeGoods, ParseBidType("물품"))
	assert.Equal(t, bidnotice.TypeService, ParseBidType(" 용역 "))
	assert.Equal(t, bidnotice.TypeConstruction, ParseBidType("시설공사"))
	assert.Equal(t, bidnotice.TypeForeign, ParseBidType("외자"))
	assert.Equal(t, bidnotice.TypeOther, ParseBidType("모름"))
}

func TestParseBidStatus(t *testing.T) {
	assert.Equal(t, bidnotice.StatusOpen, ParseBidStatus("공고중"))
	assert.Equal(t, bidnotice.StatusRebid, ParseBidStatus("재공고"), "재공고 must win over 공고중 substring rules")
	assert.Equal(t, bidnotice.StatusClosed, ParseBidStatus("마감"))
	assert.Equal(t, bidnotice.StatusCancelled, ParseBidStatus("취소"))
	assert.Equal(t, bidnotice.StatusPostponed, ParseBidStatus("연기"))
	assert.Equal(t, bidnotice.StatusUnknown, ParseBidStatus("???"))
}

func TestNormalizeURL(t *testing.T) {
	base := "https://www.g2b.go.kr/pt/bid/list.do"
	assert.Equal(t, "https://www.g2b.go.kr/pt/bid/detail.do?id=1", NormalizeURL("/pt/bid/detail.do?id=1", base))
	assert.Equal(t, "https://example.com/x", NormalizeURL("https://example.com/x", base))
	assert.Equal(t, "", NormalizeURL("", base))
}
