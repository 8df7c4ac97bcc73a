package scraper

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ListSelectors locates list-page elements
type ListSelectors struct {
	Row          string `yaml:"row"`
	ID           string `yaml:"id"`
	Title        string `yaml:"title"`
	TitleLink    string `yaml:"title_link"`
	Type         string `yaml:"type"`
	Status       string `yaml:"status"`
	Organization string `yaml:"organization"`
	Deadline     string `yaml:"deadline"`
	Price        string `yaml:"price"`
	TotalCount   string `yaml:"total_count"`
	Pagination   string `yaml:"pagination"`
	NextButton   string `yaml:"next_button"`
	// PageURL is a template with a %d verb for the 1-based page number
	PageURL string `yaml:"page_url"`
}

// DetailSelectors locates detail-page elements
type DetailSelectors struct {
	Title             string `yaml:"title"`
	Organization      string `yaml:"organization"`
	BidMethod         string `yaml:"bid_method"`
	ContractMethod    string `yaml:"contract_method"`
	Qualification     string `yaml:"qualification"`
	Region            string `yaml:"region"`
	DeliveryLocation  string `yaml:"delivery_location"`
	Deadline          string `yaml:"deadline"`
	EstimatedPrice    string `yaml:"estimated_price"`
	BasePrice         string `yaml:"base_price"`
	ContactDepartment string `yaml:"contact_department"`
	ContactPerson     string `yaml:"contact_person"`
	ContactPhone      string `yaml:"contact_phone"`
	ContactEmail      string `yaml:"contact_email"`
	Attachments       string `yaml:"attachments"`
	ReferenceNo       string `yaml:"reference_no"`
}

// Selectors is the full selector document loaded from YAML
type Selectors struct {
	List   ListSelectors   `yaml:"list"`
	Detail DetailSelectors `yaml:"detail"`
}

// DefaultSelectors returns the selector set for the nara-jangteo list layout
func DefaultSelectors() *Selectors {
	return &Selectors{
		List: ListSelectors{
			Row:          "table.bid-list tbody tr",
			ID:           "td.bid-no",
			Title:        "td.bid-title",
			TitleLink:    "td.bid-title a",
			Type:         "td.bid-type",
			Status:       "td.bid-status",
			Organization: "td.bid-org",
			Deadline:     "td.bid-deadline",
			Price:        "td.bid-price",
			TotalCount:   "span.total-count",
			Pagination:   "div.pagination a.page",
			NextButton:   "div.pagination a.next",
			PageURL:      "https://www.g2b.go.kr/pt/bid/list.do?page=%d",
		},
		Detail: DetailSelectors{
			Title:             "div.bid-detail h2.title",
			Organization:      "table.bid-info td.org",
			BidMethod:         "table.bid-info td.method",
			ContractMethod:    "table.bid-info td.contract",
			Qualification:     "table.bid-info td.qualification",
			Region:            "table.bid-info td.region",
			DeliveryLocation:  "table.bid-info td.delivery",
			Deadline:          "table.bid-info td.deadline",
			EstimatedPrice:    "table.bid-info td.estimated-price",
			BasePrice:         "table.bid-info td.base-price",
			ContactDepartment: "table.contact-info td.department",
			ContactPerson:     "table.contact-info td.person",
			ContactPhone:      "table.contact-info td.phone",
			ContactEmail:      "table.contact-info td.email",
			Attachments:       "ul.attachments li a",
			ReferenceNo:       "table.bid-info td.reference-no",
		},
	}
}

// LoadSelectors reads a selector document, falling back to defaults for an
// empty path
func LoadSelectors(path string) (*Selectors, error) {
	if path == "" {
		return DefaultSelectors(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read selectors %s: %w", path, err)
	}

	sel := DefaultSelectors()
	if err := yaml.Unmarshal(data, sel); err != nil {
		return nil, fmt.Errorf("parse selectors %s: %w", path, err)
	}
	return sel, nil
}
