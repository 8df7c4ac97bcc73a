package bidnotice

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBidNoticeRequiresID(t *testing.T) {
	_, err := NewBidNotice("", "title")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "bid_notice_id", verr.Field)

	_, err = NewBidNotice("   ", "title")
	assert.Error(t, err)

	n, err := NewBidNotice("20240101-001", "급식 재료 구매")
	require.NoError(t, err)
	assert.Equal(t, TypeOther, n.BidType)
	assert.Equal(t, StatusUnknown, n.Status)
	assert.False(t, n.CrawledAt.IsZero())
}

func TestValidateRejectsNegativePrice(t *testing.T) {
	n, err := NewBidNotice("1", "t")
	require.NoError(t, err)

	neg := decimal.NewFromInt(-1)
	n.EstimatedPrice = &neg
	var verr *ValidationError
	require.ErrorAs(t, n.Validate(), &verr)
	assert.Equal(t, "estimated_price", verr.Field)
}

func TestStatusTransitionTable(t *testing.T) {
	allowed := []struct {
		from, to BidStatus
	}{
		{StatusOpen, StatusClosed},
		{StatusOpen, StatusCancelled},
		{StatusOpen, StatusPostponed},
		{StatusPostponed, StatusOpen},
		{StatusPostponed, StatusCancelled},
		{StatusPostponed, StatusRebid},
		{StatusRebid, StatusOpen},
	}

	for _, tc := range allowed {
		n := &BidNotice{BidNoticeID: "1", Status: tc.from}
		next, err := n.TransitionTo(tc.to)
		require.NoErrorf(t, err, "%s -> %s must be allowed", tc.from, tc.to)
		assert.Equal(t, tc.to, next.Status)
		assert.Equal(t, tc.from, n.Status, "transitions must not mutate the original")
	}

	all := []BidStatus{StatusOpen, StatusClosed, StatusCancelled, StatusPostponed, StatusRebid, StatusUnknown}
	isAllowed := func(from, to BidStatus) bool {
		for _, tc := range allowed {
			if tc.from == from && tc.to == to {
				return true
			}
		}
		return false
	}

	for _, from := range all {
		for _, to := range all {
			if isAllowed(from, to) {
				continue
			}
			n := &BidNotice{BidNoticeID: "1", Status: from}
			_, err := n.TransitionTo(to)
			var verr *ValidationError
			require.ErrorAsf(t, err, &verr, "%s -> %s must be rejected", from, to)
		}
	}
}

func TestIsValuableThresholdBoundary(t *testing.T) {
	threshold := DefaultValuableThreshold

	n := &BidNotice{BidNoticeID: "1"}
	assert.False(t, n.IsValuable(threshold), "absent price is never valuable")

	exact := decimal.NewFromInt(100_000_000)
	n.EstimatedPrice = &exact
	assert.True(t, n.IsValuable(threshold), "price equal to the threshold is valuable")

	below := decimal.NewFromInt(99_999_999)
	n.EstimatedPrice = &below
	assert.False(t, n.IsValuable(threshold))

	above := decimal.NewFromInt(500_000_000)
	n.EstimatedPrice = &above
	assert.True(t, n.IsValuable(threshold))
}

func TestCanParticipate(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	open := &BidNotice{BidNoticeID: "1", Status: StatusOpen, Deadline: &future}
	assert.True(t, open.CanParticipate())

	expired := &BidNotice{BidNoticeID: "1", Status: StatusOpen, Deadline: &past}
	assert.False(t, expired.CanParticipate())

	closed := &BidNotice{BidNoticeID: "1", Status: StatusClosed, Deadline: &future}
	assert.False(t, closed.CanParticipate())

	noDeadline := &BidNotice{BidNoticeID: "1", Status: StatusOpen}
	assert.True(t, noDeadline.CanParticipate(), "no deadline means not expired")
}

func TestPriceDisplay(t *testing.T) {
	display := func(v int64) string {
		d := decimal.NewFromInt(v)
		n := &BidNotice{BidNoticeID: "1", EstimatedPrice: &d}
		return n.PriceDisplay()
	}

	assert.Equal(t, "미정", (&BidNotice{BidNoticeID: "1"}).PriceDisplay())
	assert.Equal(t, "5억원", display(500_000_000))
	assert.Equal(t, "1억 2,000만원", display(120_000_000))
	assert.Equal(t, "5,000만원", display(50_000_000))
	assert.Equal(t, "999원", display(999))
}

func TestDecimalJSONRoundTrip(t *testing.T) {
	price, err := decimal.NewFromString("123456789.05")
	require.NoError(t, err)

	n := &BidNotice{BidNoticeID: "1", Title: "t", EstimatedPrice: &price, CrawledAt: time.Now()}
	data, err := json.Marshal(n)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"123456789.05"`, "decimals serialize as strings")

	var back BidNotice
	require.NoError(t, json.Unmarshal(data, &back))
	require.NotNil(t, back.EstimatedPrice)
	assert.True(t, price.Equal(*back.EstimatedPrice), "no precision drift")
}

func TestFailedDetail(t *testing.T) {
	n, err := NewBidNotice("1", "t")
	require.NoError(t, err)

	d := NewFailedDetail(*n, errors.New("detail scrape timed out"))
	assert.False(t, d.CrawlSuccess)
	assert.NotEmpty(t, d.CrawlError)
	require.NotNil(t, d.DetailCrawledAt)
	assert.False(t, d.IsCrawlComplete())
}

func TestContactInfo(t *testing.T) {
	d := &BidNoticeDetail{
		ContactDepartment: "구매팀",
		ContactPhone:      "02-1234-5678",
	}
	assert.Equal(t, "구매팀 / 02-1234-5678", d.ContactInfo())
	assert.Equal(t, "", (&BidNoticeDetail{}).ContactInfo())
}
