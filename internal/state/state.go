package state

import (
	"encoding/json"
	"sort"
	"time"
)

// Progress is the crawl position pointer. LastCompletedPage means the page
// was fully scanned and its items enqueued, not that every item on it was
// durably saved; resumed runs rely on the collected-id set for dedup.
type Progress struct {
	CurrentPage       int `json:"current_page"`
	CurrentIndex      int `json:"current_index"`
	TotalPages        int `json:"total_pages,omitempty"`
	LastCompletedPage int `json:"last_completed_page"`
}

// Statistics holds cumulative crawl counters
type Statistics struct {
	TotalCollected    int `json:"total_collected"`
	ListCollected     int `json:"list_collected"`
	DetailCollected   int `json:"detail_collected"`
	Errors            int `json:"errors"`
	Retries           int `json:"retries"`
	SkippedDuplicates int `json:"skipped_duplicates"`
}

// SuccessRate returns the collected/(collected+errors) ratio as a percentage,
// defaulting to 100 when nothing has been attempted
func (s Statistics) SuccessRate() float64 {
	total := s.TotalCollected + s.Errors
	if total == 0 {
		return 100.0
	}
	return float64(s.TotalCollected) / float64(total) * 100.0
}

// FailedItem records one item whose processing failed after retries
type FailedItem struct {
	Info      map[string]string `json:"info"`
	Error     string            `json:"error"`
	Timestamp time.Time         `json:"timestamp"`
}

// IDSet is a string set persisted as a sorted JSON array
type IDSet map[string]struct{}

func (s IDSet) MarshalJSON() ([]byte, error) {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return json.Marshal(ids)
}

func (s *IDSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	*s = set
	return nil
}

// CrawlState is the persisted checkpoint document
type CrawlState struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`

	IsRunning   bool   `json:"is_running"`
	IsCompleted bool   `json:"is_completed"`
	LastError   string `json:"last_error,omitempty"`

	Progress   Progress   `json:"progress"`
	Statistics Statistics `json:"statistics"`

	CollectedIDs IDSet        `json:"collected_ids"`
	FailedItems  []FailedItem `json:"failed_items"`
}

// NewCrawlState builds a fresh state for a run
func NewCrawlState(runID string) *CrawlState {
	now := time.Now()
	return &CrawlState{
		RunID:         runID,
		StartedAt:     now,
		LastUpdatedAt: now,
		Progress:      Progress{CurrentPage: 1},
		CollectedIDs:  make(IDSet),
		FailedItems:   []FailedItem{},
	}
}

func (s *CrawlState) touch() {
	s.LastUpdatedAt = time.Now()
}

// MarkCollected adds an id to the collected set. It returns false and counts
// a skipped duplicate when the id was already present.
func (s *CrawlState) MarkCollected(id string) bool {
	if _, dup := s.CollectedIDs[id]; dup {
		s.Statistics.SkippedDuplicates++
		return false
	}
	s.CollectedIDs[id] = struct{}{}
	s.Statistics.TotalCollected++
	s.touch()
	return true
}

// IsCollected reports whether an id has already been collected
func (s *CrawlState) IsCollected(id string) bool {
	_, ok := s.CollectedIDs[id]
	return ok
}

// RecordError counts an error and, when item info is given, appends it to
// the failed-item log
func (s *CrawlState) RecordError(msg string, info map[string]string) {
	s.Statistics.Errors++
	s.LastError = msg
	s.touch()
	if info != nil {
		s.FailedItems = append(s.FailedItems, FailedItem{
			Info:      info,
			Error:     msg,
			Timestamp: time.Now(),
		})
	}
}

// RecordRetry counts one retry attempt
func (s *CrawlState) RecordRetry() {
	s.Statistics.Retries++
	s.touch()
}

// UpdateProgress moves the progress pointer. Pass a negative value to leave
// a field unchanged.
func (s *CrawlState) UpdateProgress(page, index, totalPages int) {
	if page >= 0 {
		s.Progress.CurrentPage = page
	}
	if index >= 0 {
		s.Progress.CurrentIndex = index
	}
	if totalPages >= 0 {
		s.Progress.TotalPages = totalPages
	}
	s.touch()
}

// CompletePage marks a page fully scanned and resets the index
func (s *CrawlState) CompletePage(page int) {
	if page > s.Progress.LastCompletedPage {
		s.Progress.LastCompletedPage = page
	}
	s.Progress.CurrentIndex = 0
	s.touch()
}

// MarkCompleted flags the run finished
func (s *CrawlState) MarkCompleted() {
	s.IsCompleted = true
	s.IsRunning = false
	s.touch()
}

// Clone returns a deep copy for lock-free readers
func (s *CrawlState) Clone() *CrawlState {
	out := *s
	out.CollectedIDs = make(IDSet, len(s.CollectedIDs))
	for id := range s.CollectedIDs {
		out.CollectedIDs[id] = struct{}{}
	}
	out.FailedItems = make([]FailedItem, len(s.FailedItems))
	copy(out.FailedItems, s.FailedItems)
	return &out
}
