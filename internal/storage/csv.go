package storage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/nurimarket/bidwatch/pkg/bidnotice"
)

var csvHeader = []string{
	"bid_notice_id", "title", "bid_type", "status", "organization",
	"deadline", "estimated_price", "bid_method", "region", "contact",
	"detail_url", "crawled_at", "detail_crawled_at", "crawl_success", "crawl_error",
}

// CSVRepository appends notices to a CSV file. Rows are buffered and written
// on Flush; a header row is emitted when the file is created. CSV is a flat
// export format, so FindByID and FindAll reconstruct only the columns above.
type CSVRepository struct {
	mu      sync.Mutex
	path    string
	buffer  []*bidnotice.BidNoticeDetail
	idCache map[string]struct{}
	strict  bool
}

// NewCSVRepository opens the CSV store and hydrates the id cache
func NewCSVRepository(outputDir, filename string) (*CSVRepository, error) {
	if filename == "" {
		filename = "bid_notices.csv"
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, &RepositoryError{Op: "init", Err: err}
	}

	r := &CSVRepository{
		path:    filepath.Join(outputDir, filename),
		idCache: make(map[string]struct{}),
	}
	r.hydrateIDCache()
	return r, nil
}

func (r *CSVRepository) hydrateIDCache() {
	records, err := r.readRecords()
	if err != nil {
		log.Warn().Err(err).Msg("CSV id cache hydration failed, starting empty")
		return
	}
	for _, rec := range records {
		if len(rec) > 0 && rec[0] != "" {
			r.idCache[rec[0]] = struct{}{}
		}
	}
}

func (r *CSVRepository) Save(detail *bidnotice.BidNoticeDetail) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save(detail)
}

func (r *CSVRepository) save(detail *bidnotice.BidNoticeDetail) (bool, error) {
	id := detail.BidNoticeID
	if _, dup := r.idCache[id]; dup {
		if r.strict {
			return false, &DuplicateError{ID: id}
		}
		return false, nil
	}
	r.buffer = append(r.buffer, detail)
	r.idCache[id] = struct{}{}
	return true, nil
}

func (r *CSVRepository) SaveBatch(details []*bidnotice.BidNoticeDetail) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, d := range details {
		ok, err := r.save(d)
		if err != nil {
			if _, dup := err.(*DuplicateError); dup {
				continue
			}
			return count, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}

func (r *CSVRepository) Exists(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.idCache[id]
	return ok
}

func (r *CSVRepository) FindByID(id string) (*bidnotice.BidNoticeDetail, error) {
	all, err := r.FindAll(0)
	if err != nil {
		return nil, err
	}
	for _, d := range all {
		if d.BidNoticeID == id {
			return d, nil
		}
	}
	return nil, nil
}

func (r *CSVRepository) FindAll(limit int) ([]*bidnotice.BidNoticeDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.readRecords()
	if err != nil {
		return nil, &RepositoryError{Op: "find_all", Err: err}
	}

	out := make([]*bidnotice.BidNoticeDetail, 0, len(records)+len(r.buffer))
	for _, rec := range records {
		out = append(out, recordToDetail(rec))
	}
	out = append(out, r.buffer...)

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *CSVRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.idCache)
}

// Flush appends buffered rows to the CSV file, writing the header first when
// the file is new
func (r *CSVRepository) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.buffer) == 0 {
		return nil
	}

	_, statErr := os.Stat(r.path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return &RepositoryError{Op: "flush", Err: err}
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(csvHeader); err != nil {
			return &RepositoryError{Op: "flush", Err: err}
		}
	}
	for _, d := range r.buffer {
		if err := w.Write(detailToRecord(d)); err != nil {
			return &RepositoryError{Op: "flush", Err: err}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &RepositoryError{Op: "flush", Err: err}
	}

	log.Info().Int("rows", len(r.buffer)).Str("path", r.path).Msg("CSV repository flushed")
	r.buffer = r.buffer[:0]
	return nil
}

func (r *CSVRepository) Close() error {
	return r.Flush()
}

// readRecords returns data rows (header stripped)
func (r *CSVRepository) readRecords() ([][]string, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		records = records[1:]
	}
	return records, nil
}

func detailToRecord(d *bidnotice.BidNoticeDetail) []string {
	deadline := ""
	if d.Deadline != nil {
		deadline = d.Deadline.Format(time.RFC3339)
	}
	price := ""
	if d.EstimatedPrice != nil {
		price = d.EstimatedPrice.String()
	}
	detailCrawledAt := ""
	if d.DetailCrawledAt != nil {
		detailCrawledAt = d.DetailCrawledAt.Format(time.RFC3339)
	}
	return []string{
		d.BidNoticeID,
		d.Title,
		string(d.BidType),
		string(d.Status),
		d.Organization,
		deadline,
		price,
		d.BidMethod,
		d.Region,
		d.ContactInfo(),
		d.DetailURL,
		d.CrawledAt.Format(time.RFC3339),
		detailCrawledAt,
		strconv.FormatBool(d.CrawlSuccess),
		d.CrawlError,
	}
}

func recordToDetail(rec []string) *bidnotice.BidNoticeDetail {
	get := func(i int) string {
		if i < len(rec) {
			return rec[i]
		}
		return ""
	}

	d := &bidnotice.BidNoticeDetail{
		BidNotice: bidnotice.BidNotice{
			BidNoticeID:  get(0),
			Title:        get(1),
			BidType:      bidnotice.BidType(get(2)),
			Status:       bidnotice.BidStatus(get(3)),
			Organization: get(4),
			DetailURL:    get(10),
		},
		BidMethod:  get(7),
		Region:     get(8),
		CrawlError: get(14),
	}
	if t, err := time.Parse(time.RFC3339, get(5)); err == nil {
		d.Deadline = &t
	}
	if p, err := decimal.NewFromString(get(6)); err == nil && get(6) != "" {
		d.EstimatedPrice = &p
	}
	if t, err := time.Parse(time.RFC3339, get(11)); err == nil {
		d.CrawledAt = t
	}
	if t, err := time.Parse(time.RFC3339, get(12)); err == nil {
		d.DetailCrawledAt = &t
	}
	d.CrawlSuccess = get(13) == "true"
	return d
}
