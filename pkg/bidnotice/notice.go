package bidnotice

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BidType classifies a bid notice by procurement category
type BidType string

const (
	TypeGoods        BidType = "goods"
	TypeService      BidType = "service"
	TypeConstruction BidType = "construction"
	TypeForeign      BidType = "foreign"
	TypeOther        BidType = "other"
)

// BidStatus is the publication status of a notice
type BidStatus string

const (
	StatusOpen      BidStatus = "open"
	StatusClosed    BidStatus = "closed"
	StatusCancelled BidStatus = "cancelled"
	StatusPostponed BidStatus = "postponed"
	StatusRebid     BidStatus = "rebid"
	StatusUnknown   BidStatus = "unknown"
)

// validTransitions encodes the status state machine as a transition table
var validTransitions = map[BidStatus][]BidStatus{
	StatusOpen:      {StatusClosed, StatusCancelled, StatusPostponed},
	StatusPostponed: {StatusOpen, StatusCancelled, StatusRebid},
	StatusRebid:     {StatusOpen},
}

// DefaultValuableThreshold is the price at or above which a notice is
// considered valuable (100,000,000 KRW)
var DefaultValuableThreshold = decimal.NewFromInt(100_000_000)

// ValidationError reports a bid notice field that failed validation
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid bid data: %s (field %s, value %q)", e.Message, e.Field, e.Value)
	}
	return fmt.Sprintf("invalid bid data: %s", e.Message)
}

// BidNotice is a bid notice list entry as extracted from a list page.
// TransitionTo returns a copy and leaves the receiver unchanged. The fields
// are exported and are not locked after NewBidNotice: scrapers set them
// after construction, and such assignments are not re-validated.
type BidNotice struct {
	BidNoticeID string    `json:"bid_notice_id"`
	Title       string    `json:"title"`
	BidType     BidType   `json:"bid_type"`
	Status      BidStatus `json:"status"`

	Organization       string `json:"organization,omitempty"`
	DemandOrganization string `json:"demand_organization,omitempty"`

	AnnounceDate *time.Time `json:"announce_date,omitempty"`
	Deadline     *time.Time `json:"deadline,omitempty"`

	EstimatedPrice *decimal.Decimal `json:"estimated_price,omitempty"`
	BasePrice      *decimal.Decimal `json:"base_price,omitempty"`

	DetailURL string    `json:"detail_url,omitempty"`
	CrawledAt time.Time `json:"crawled_at"`
}

// NewBidNotice builds a validated list entry
func NewBidNotice(id, title string) (*BidNotice, error) {
	n := &BidNotice{
		BidNoticeID: id,
		Title:       title,
		BidType:     TypeOther,
		Status:      StatusUnknown,
		CrawledAt:   time.Now(),
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// Validate checks the notice invariants
func (n *BidNotice) Validate() error {
	if strings.TrimSpace(n.BidNoticeID) == "" {
		return &ValidationError{Field: "bid_notice_id", Message: "id cannot be empty"}
	}
	if n.EstimatedPrice != nil && n.EstimatedPrice.IsNegative() {
		return &ValidationError{
			Field:   "estimated_price",
			Value:   n.EstimatedPrice.String(),
			Message: "price cannot be negative",
		}
	}
	if n.BasePrice != nil && n.BasePrice.IsNegative() {
		return &ValidationError{
			Field:   "base_price",
			Value:   n.BasePrice.String(),
			Message: "price cannot be negative",
		}
	}
	return nil
}

// IsValuable reports whether the estimated price meets the threshold.
// A notice without a price is never valuable.
func (n *BidNotice) IsValuable(threshold decimal.Decimal) bool {
	if n.EstimatedPrice == nil {
		return false
	}
	return n.EstimatedPrice.GreaterThanOrEqual(threshold)
}

// IsOpen reports whether the notice is still accepting bids
func (n *BidNotice) IsOpen() bool {
	return n.Status == StatusOpen
}

// IsExpired reports whether the deadline has passed. A notice without a
// deadline never expires.
func (n *BidNotice) IsExpired() bool {
	if n.Deadline == nil {
		return false
	}
	return time.Now().After(*n.Deadline)
}

// CanParticipate reports whether the notice is open and not expired
func (n *BidNotice) CanParticipate() bool {
	return n.IsOpen() && !n.IsExpired()
}

// TransitionTo returns a copy of the notice with the new status applied.
// Only the transitions in the state table are allowed.
func (n *BidNotice) TransitionTo(next BidStatus) (*BidNotice, error) {
	for _, allowed := range validTransitions[n.Status] {
		if allowed == next {
			out := *n
			out.Status = next
			return &out, nil
		}
	}
	return nil, &ValidationError{
		Field:   "status",
		Value:   string(next),
		Message: fmt.Sprintf("transition %s -> %s not allowed", n.Status, next),
	}
}

// PriceDisplay formats the estimated price in Korean units (억/만원)
func (n *BidNotice) PriceDisplay() string {
	if n.EstimatedPrice == nil {
		return "미정"
	}
	price := n.EstimatedPrice.IntPart()
	switch {
	case price >= 100_000_000:
		eok := price / 100_000_000
		man := (price % 100_000_000) / 10_000
		if man > 0 {
			return fmt.Sprintf("%d억 %s만원", eok, groupDigits(man))
		}
		return fmt.Sprintf("%d억원", eok)
	case price >= 10_000:
		return fmt.Sprintf("%s만원", groupDigits(price/10_000))
	default:
		return fmt.Sprintf("%s원", groupDigits(price))
	}
}

func groupDigits(v int64) string {
	s := fmt.Sprintf("%d", v)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// BidNoticeDetail extends a list entry with detail-page fields
type BidNoticeDetail struct {
	BidNotice

	BidMethod      string `json:"bid_method,omitempty"`
	ContractMethod string `json:"contract_method,omitempty"`
	Qualification  string `json:"qualification,omitempty"`

	Region           string `json:"region,omitempty"`
	DeliveryLocation string `json:"delivery_location,omitempty"`

	ContactDepartment string `json:"contact_department,omitempty"`
	ContactPerson     string `json:"contact_person,omitempty"`
	ContactPhone      string `json:"contact_phone,omitempty"`
	ContactEmail      string `json:"contact_email,omitempty"`

	Attachments []string `json:"attachments,omitempty"`

	RegistrationNo string `json:"registration_no,omitempty"`
	ReferenceNo    string `json:"reference_no,omitempty"`

	DetailCrawledAt *time.Time `json:"detail_crawled_at,omitempty"`
	CrawlSuccess    bool       `json:"crawl_success"`
	CrawlError      string     `json:"crawl_error,omitempty"`
}

// NewDetail wraps a list entry into a detail record
func NewDetail(notice BidNotice) *BidNoticeDetail {
	return &BidNoticeDetail{
		BidNotice:    notice,
		CrawlSuccess: true,
	}
}

// NewFailedDetail builds a partial detail record for a notice whose detail
// page could not be scraped
func NewFailedDetail(notice BidNotice, crawlErr error) *BidNoticeDetail {
	now := time.Now()
	return &BidNoticeDetail{
		BidNotice:       notice,
		DetailCrawledAt: &now,
		CrawlSuccess:    false,
		CrawlError:      crawlErr.Error(),
	}
}

// HasAttachments reports whether the detail page listed any attachments
func (d *BidNoticeDetail) HasAttachments() bool {
	return len(d.Attachments) > 0
}

// ContactInfo joins department, person and phone into a display string
func (d *BidNoticeDetail) ContactInfo() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{d.ContactDepartment, d.ContactPerson, d.ContactPhone} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " / ")
}

// IsCrawlComplete reports whether the detail scrape finished successfully
func (d *BidNoticeDetail) IsCrawlComplete() bool {
	return d.CrawlSuccess && d.DetailCrawledAt != nil
}

// NoticeList is one page of list-scrape results
type NoticeList struct {
	Items       []*BidNotice `json:"items"`
	TotalCount  int          `json:"total_count"`
	CurrentPage int          `json:"current_page"`
	TotalPages  int          `json:"total_pages"`
	HasNext     bool         `json:"has_next"`
}
