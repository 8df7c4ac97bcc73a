package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nurimarket/bidwatch/pkg/bidnotice"
)

// JSONConfig configures the JSON file repository
type JSONConfig struct {
	OutputDir       string `json:"output_dir" yaml:"output_dir"`
	Filename        string `json:"filename" yaml:"filename"`
	IndividualFiles bool   `json:"individual_files" yaml:"individual_files"`
	Pretty          bool   `json:"pretty" yaml:"pretty"`
	FlushThreshold  int    `json:"flush_threshold" yaml:"flush_threshold"`
	Strict          bool   `json:"strict" yaml:"strict"`
}

// DefaultJSONConfig returns the JSON repository defaults
func DefaultJSONConfig(outputDir string) *JSONConfig {
	return &JSONConfig{
		OutputDir:      outputDir,
		Filename:       "bid_notices.json",
		Pretty:         true,
		FlushThreshold: 10,
	}
}

// JSONRepository persists notices as a single top-level JSON array (or one
// file per id in individual-files mode). Existing records are kept as raw
// JSON so unknown fields survive a round-trip. An in-memory id cache backs
// Exists; a small write buffer amortizes file writes.
type JSONRepository struct {
	mu      sync.Mutex
	config  *JSONConfig
	buffer  []*bidnotice.BidNoticeDetail
	idCache map[string]struct{}
	metrics MetricsCollector
}

// NewJSONRepository opens (or creates) the store and hydrates the id cache
// from any existing data
func NewJSONRepository(config *JSONConfig, metrics MetricsCollector) (*JSONRepository, error) {
	if config == nil {
		config = DefaultJSONConfig("data")
	}
	if config.Filename == "" {
		config.Filename = "bid_notices.json"
	}
	if config.FlushThreshold <= 0 {
		config.FlushThreshold = 10
	}

	if err := os.MkdirAll(config.OutputDir, 0755); err != nil {
		return nil, &RepositoryError{Op: "init", Err: err}
	}

	r := &JSONRepository{
		config:  config,
		idCache: make(map[string]struct{}),
		metrics: metrics,
	}
	r.hydrateIDCache()
	return r, nil
}

func (r *JSONRepository) outputFile() string {
	return filepath.Join(r.config.OutputDir, r.config.Filename)
}

func (r *JSONRepository) hydrateIDCache() {
	raws, err := r.loadRaw()
	if err != nil {
		log.Warn().Err(err).Msg("ID cache hydration failed, starting empty")
		return
	}
	for _, raw := range raws {
		if id := rawID(raw); id != "" {
			r.idCache[id] = struct{}{}
		}
	}
	log.Debug().Int("ids", len(r.idCache)).Msg("ID cache loaded")
}

// rawID extracts bid_notice_id from a raw record without a full decode
func rawID(raw json.RawMessage) string {
	var probe struct {
		BidNoticeID string `json:"bid_notice_id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.BidNoticeID
}

func (r *JSONRepository) Save(detail *bidnotice.BidNoticeDetail) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save(detail)
}

func (r *JSONRepository) save(detail *bidnotice.BidNoticeDetail) (bool, error) {
	start := time.Now()
	id := detail.BidNoticeID

	if _, dup := r.idCache[id]; dup {
		if r.config.Strict {
			return false, &DuplicateError{ID: id}
		}
		log.Debug().Str("bid_notice_id", id).Msg("Skipping duplicate")
		return false, nil
	}

	if r.config.IndividualFiles {
		if err := r.writeIndividual(detail); err != nil {
			r.record("save", start, err)
			return false, err
		}
		r.idCache[id] = struct{}{}
		r.record("save", start, nil)
		return true, nil
	}

	r.buffer = append(r.buffer, detail)
	r.idCache[id] = struct{}{}

	if len(r.buffer) >= r.config.FlushThreshold {
		if err := r.flush(); err != nil {
			r.record("save", start, err)
			return true, err
		}
	}
	r.record("save", start, nil)
	return true, nil
}

func (r *JSONRepository) SaveBatch(details []*bidnotice.BidNoticeDetail) (int, error) {
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

func (r *JSONRepository) Exists(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.idCache[id]
	return ok
}

func (r *JSONRepository) FindByID(id string) (*bidnotice.BidNoticeDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.buffer {
		if d.BidNoticeID == id {
			return d, nil
		}
	}

	raws, err := r.loadRaw()
	if err != nil {
		return nil, &RepositoryError{Op: "find", Err: err}
	}
	for _, raw := range raws {
		if rawID(raw) != id {
			continue
		}
		var d bidnotice.BidNoticeDetail
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, &RepositoryError{Op: "find", Err: err}
		}
		return &d, nil
	}
	return nil, nil
}

func (r *JSONRepository) FindAll(limit int) ([]*bidnotice.BidNoticeDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	raws, err := r.loadRaw()
	if err != nil {
		return nil, &RepositoryError{Op: "find_all", Err: err}
	}

	out := make([]*bidnotice.BidNoticeDetail, 0, len(raws)+len(r.buffer))
	seen := make(map[string]struct{}, len(raws))
	for _, raw := range raws {
		var d bidnotice.BidNoticeDetail
		if err := json.Unmarshal(raw, &d); err != nil {
			log.Warn().Err(err).Msg("Skipping unreadable record")
			continue
		}
		seen[d.BidNoticeID] = struct{}{}
		out = append(out, &d)
	}
	for _, d := range r.buffer {
		if _, ok := seen[d.BidNoticeID]; !ok {
			out = append(out, d)
		}
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *JSONRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.idCache)
}

// Flush merges the buffer into the on-disk array, deduplicating against ids
// already durable. Safe to call repeatedly.
func (r *JSONRepository) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flush()
}

func (r *JSONRepository) flush() error {
	if r.config.IndividualFiles || len(r.buffer) == 0 {
		return nil
	}
	start := time.Now()

	existing, err := r.loadRaw()
	if err != nil {
		err = &RepositoryError{Op: "flush", Err: err}
		r.record("flush", start, err)
		return err
	}

	onDisk := make(map[string]struct{}, len(existing))
	for _, raw := range existing {
		if id := rawID(raw); id != "" {
			onDisk[id] = struct{}{}
		}
	}

	added := 0
	for _, d := range r.buffer {
		if _, dup := onDisk[d.BidNoticeID]; dup {
			continue
		}
		raw, err := json.Marshal(d)
		if err != nil {
			err = &RepositoryError{Op: "flush", Err: err}
			r.record("flush", start, err)
			return err
		}
		existing = append(existing, raw)
		onDisk[d.BidNoticeID] = struct{}{}
		added++
	}

	if err := r.writeRaw(existing); err != nil {
		err = &RepositoryError{Op: "flush", Err: err}
		r.record("flush", start, err)
		return err
	}

	log.Info().
		Int("new", added).
		Int("total", len(existing)).
		Str("path", r.outputFile()).
		Msg("JSON repository flushed")
	r.buffer = r.buffer[:0]
	r.record("flush", start, nil)
	return nil
}

// Close flushes the buffer and releases the repository
func (r *JSONRepository) Close() error {
	return r.Flush()
}

func (r *JSONRepository) loadRaw() ([]json.RawMessage, error) {
	if r.config.IndividualFiles {
		return r.loadIndividualRaw()
	}

	data, err := os.ReadFile(r.outputFile())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("parse %s: %w", r.outputFile(), err)
	}
	return raws, nil
}

func (r *JSONRepository) loadIndividualRaw() ([]json.RawMessage, error) {
	entries, err := os.ReadDir(r.config.OutputDir)
	if err != nil {
		return nil, err
	}
	var raws []json.RawMessage
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || name == r.config.Filename {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.config.OutputDir, name))
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("Skipping unreadable file")
			continue
		}
		raws = append(raws, json.RawMessage(data))
	}
	return raws, nil
}

func (r *JSONRepository) writeRaw(raws []json.RawMessage) error {
	if raws == nil {
		raws = []json.RawMessage{}
	}
	var (
		data []byte
		err  error
	)
	if r.config.Pretty {
		data, err = json.MarshalIndent(raws, "", "  ")
	} else {
		data, err = json.Marshal(raws)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(r.outputFile(), data, 0644)
}

func (r *JSONRepository) writeIndividual(detail *bidnotice.BidNoticeDetail) error {
	var (
		data []byte
		err  error
	)
	if r.config.Pretty {
		data, err = json.MarshalIndent(detail, "", "  ")
	} else {
		data, err = json.Marshal(detail)
	}
	if err != nil {
		return &RepositoryError{Op: "save", Err: err}
	}
	path := filepath.Join(r.config.OutputDir, detail.BidNoticeID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &RepositoryError{Op: "save", Err: err}
	}
	return nil
}

func (r *JSONRepository) record(op string, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordOperation(OperationMetric{
		Operation:  op,
		Backend:    "json",
		DurationNS: time.Since(start).Nanoseconds(),
		Success:    err == nil,
		Err:        err,
	})
}
