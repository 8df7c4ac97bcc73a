package scraper

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nurimarket/bidwatch/pkg/bidnotice"
)

var (
	spaceRe      = regexp.MustCompile(`\s+`)
	numberRunRe  = regexp.MustCompile(`[\d,]+`)
	bidIDRes     = []*regexp.Regexp{
		regexp.MustCompile(`(\d{8,}-\d+)`),       // date-sequence form
		regexp.MustCompile(`(\d{10,})`),          // long numeric form
		regexp.MustCompile(`([A-Z0-9]{5,}-\d+)`), // prefixed form
	}
	dateTimeRe   = regexp.MustCompile(`(\d{4})[-./](\d{1,2})[-./](\d{1,2})\s+(\d{1,2}):(\d{2})(?::(\d{2}))?`)
	dateRe       = regexp.MustCompile(`(\d{4})[-./](\d{1,2})[-./](\d{1,2})`)
	koDateTimeRe = regexp.MustCompile(`(\d{4})년\s*(\d{1,2})월\s*(\d{1,2})일\s*(\d{1,2})시\s*(\d{2})분`)
	koDateRe     = regexp.MustCompile(`(\d{4})년\s*(\d{1,2})월\s*(\d{1,2})일`)
	koPriceRe    = regexp.MustCompile(`(\d*)([조억만천백십])`)
)

var koreanUnits = map[string]int64{
	"조": 1_000_000_000_000,
	"억": 100_000_000,
	"만": 10_000,
	"천": 1_000,
	"백": 100,
	"십": 10,
}

// bid type and status labels as they appear on the site
var bidTypeLabels = map[string]bidnotice.BidType{
	"물품": bidnotice.TypeGoods,
	"용역": bidnotice.TypeService,
	"공사": bidnotice.TypeConstruction,
	"외자": bidnotice.TypeForeign,
	"기타": bidnotice.TypeOther,
}

var bidStatusLabels = map[string]bidnotice.BidStatus{
	"공고중": bidnotice.StatusOpen,
	"마감":  bidnotice.StatusClosed,
	"취소":  bidnotice.StatusCancelled,
	"연기":  bidnotice.StatusPostponed,
	"재공고": bidnotice.StatusRebid,
}

// CleanText collapses whitespace runs and trims the result
func CleanText(text string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}

// ParsePrice extracts a comma-grouped numeric price. The longest digit run
// wins; Korean units are handled by ParseKoreanPrice.
func ParsePrice(text string) (decimal.Decimal, bool) {
	if text == "" {
		return decimal.Zero, false
	}

	runs := numberRunRe.FindAllString(text, -1)
	if len(runs) == 0 {
		return decimal.Zero, false
	}
	longest := runs[0]
	for _, r := range runs[1:] {
		if len(r) > len(longest) {
			longest = r
		}
	}

	d, err := decimal.NewFromString(strings.ReplaceAll(longest, ",", ""))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseKoreanPrice parses prices written with Korean units, e.g.
// "1억 2천만원" = 120,000,000. Minor units (천/백/십) accumulate into a
// section that the next major unit (조/억/만) multiplies.
func ParseKoreanPrice(text string) (decimal.Decimal, bool) {
	if text == "" {
		return decimal.Zero, false
	}
	if !strings.ContainsAny(text, "조억만천백십") {
		return ParsePrice(text)
	}

	cleaned := strings.NewReplacer("약", "", "원", "", " ", "", ",", "").Replace(text)
	matches := koPriceRe.FindAllStringSubmatch(cleaned, -1)
	if len(matches) == 0 {
		return decimal.Zero, false
	}

	total := decimal.Zero
	section := decimal.Zero
	for _, m := range matches {
		num := decimal.Zero
		if m[1] != "" {
			n, err := decimal.NewFromString(m[1])
			if err != nil {
				continue
			}
			num = n
		}
		unit := decimal.NewFromInt(koreanUnits[m[2]])
		switch m[2] {
		case "조", "억", "만":
			total = total.Add(section.Add(num).Mul(unit))
			section = decimal.Zero
		default: // 천, 백, 십
			if num.IsZero() {
				num = decimal.NewFromInt(1)
			}
			section = section.Add(num.Mul(unit))
		}
	}
	total = total.Add(section)

	if total.IsZero() {
		return decimal.Zero, false
	}
	return total, true
}

// ParseDateTime parses the date formats the site uses: dashed/dotted/slashed
// dates with optional time, and Korean 년/월/일 forms.
func ParseDateTime(text string) (time.Time, bool) {
	if text == "" {
		return time.Time{}, false
	}
	text = CleanText(text)

	if m := dateTimeRe.FindStringSubmatch(text); m != nil {
		return buildTime(m[1], m[2], m[3], m[4], m[5], m[6])
	}
	if m := koDateTimeRe.FindStringSubmatch(text); m != nil {
		return buildTime(m[1], m[2], m[3], m[4], m[5], "")
	}
	if m := koDateRe.FindStringSubmatch(text); m != nil {
		return buildTime(m[1], m[2], m[3], "", "", "")
	}
	if m := dateRe.FindStringSubmatch(text); m != nil {
		return buildTime(m[1], m[2], m[3], "", "", "")
	}
	return time.Time{}, false
}

func buildTime(year, month, day, hour, minute, second string) (time.Time, bool) {
	atoi := func(s string) int {
		n := 0
		for _, c := range s {
			n = n*10 + int(c-'0')
		}
		return n
	}
	y, mo, d := atoi(year), atoi(month), atoi(day)
	if mo < 1 || mo > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	h, mi, se := 0, 0, 0
	if hour != "" {
		h = atoi(hour)
		mi = atoi(minute)
	}
	if second != "" {
		se = atoi(second)
	}
	if h > 23 || mi > 59 || se > 59 {
		return time.Time{}, false
	}
	return time.Date(y, time.Month(mo), d, h, mi, se, 0, time.Local), true
}

// ExtractBidID pulls a notice number out of surrounding text. When no known
// pattern matches, the whitespace-stripped text is used as-is.
func ExtractBidID(text string) string {
	if text == "" {
		return ""
	}
	for _, re := range bidIDRes {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return spaceRe.ReplaceAllString(text, "")
}

// ParseBidType maps a site label onto a BidType
func ParseBidType(label string) bidnotice.BidType {
	label = CleanText(label)
	for key, t := range bidTypeLabels {
		if strings.Contains(label, key) {
			return t
		}
	}
	return bidnotice.TypeOther
}

// ParseBidStatus maps a site label onto a BidStatus
func ParseBidStatus(label string) bidnotice.BidStatus {
	label = CleanText(label)
	// 재공고 contains 공고, so check the longer label first
	if strings.Contains(label, "재공고") {
		return bidnotice.StatusRebid
	}
	for key, s := range bidStatusLabels {
		if strings.Contains(label, key) {
			return s
		}
	}
	return bidnotice.StatusUnknown
}

// NormalizeURL absolutizes href against base
func NormalizeURL(href, base string) string {
	if href == "" {
		return ""
	}
	refURL, err := url.Parse(href)
	if err != nil {
		return href
	}
	if refURL.IsAbs() {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(refURL).String()
}
