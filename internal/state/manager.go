package state

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Manager persists crawl state to a JSON file with a backup sidecar so an
// interrupted run can resume from its last checkpoint. All mutating methods
// are safe for concurrent use; the orchestrator is the single writer of the
// file itself.
type Manager struct {
	mu         sync.Mutex
	stateFile  string
	backupFile string
	state      *CrawlState
}

// NewManager creates a state manager for the given checkpoint file
func NewManager(stateFile string) *Manager {
	return &Manager{
		stateFile:  stateFile,
		backupFile: stateFile + ".backup",
	}
}

// Initialize loads or creates the run state. With resume=true an existing,
// uncompleted checkpoint keeps its progress, collected ids and statistics
// under the new run id; anything else starts fresh.
func (m *Manager) Initialize(runID string, resume bool) *CrawlState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if resume {
		if loaded := m.load(); loaded != nil && !loaded.IsCompleted {
			loaded.RunID = runID
			loaded.IsRunning = true
			m.state = loaded
			log.Info().
				Str("run_id", runID).
				Int("page", loaded.Progress.CurrentPage).
				Int("collected", loaded.Statistics.TotalCollected).
				Msg("Resuming from previous state")
			return loaded.Clone()
		}
	}

	m.state = NewCrawlState(runID)
	m.state.IsRunning = true
	log.Info().Str("run_id", runID).Msg("Starting new crawl state")
	return m.state.Clone()
}

// Load reads the checkpoint file without binding it to the manager. It
// returns nil when no usable state exists.
func (m *Manager) Load() *CrawlState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load()
}

func (m *Manager) load() *CrawlState {
	for _, path := range []string{m.stateFile, m.backupFile} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var s CrawlState
		if err := json.Unmarshal(data, &s); err != nil {
			log.Error().Err(err).Str("path", path).Msg("State file unreadable")
			continue
		}
		if s.CollectedIDs == nil {
			s.CollectedIDs = make(IDSet)
		}
		return &s
	}
	return nil
}

// Save writes the checkpoint, keeping the previous copy as a .backup sidecar
func (m *Manager) Save(force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(force)
}

func (m *Manager) save(force bool) error {
	if m.state == nil {
		if force {
			return fmt.Errorf("no state to save")
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(m.stateFile), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	if _, err := os.Stat(m.stateFile); err == nil {
		if err := copyFile(m.stateFile, m.backupFile); err != nil {
			log.Warn().Err(err).Msg("State backup failed")
		}
	}

	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp := m.stateFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, m.stateFile); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}

	log.Debug().Str("path", m.stateFile).Msg("State saved")
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// MarkCollected records an id; false means the id was a duplicate
func (m *Manager) MarkCollected(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.MarkCollected(id)
}

// IsCollected reports whether the id was already collected in this or a
// resumed prior run
func (m *Manager) IsCollected(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.IsCollected(id)
}

// RecordError counts an error, optionally logging the failed item
func (m *Manager) RecordError(msg string, info map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.RecordError(msg, info)
}

// RecordRetry counts one retry
func (m *Manager) RecordRetry() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.RecordRetry()
}

// RecordListCollected counts items seen on list pages
func (m *Manager) RecordListCollected(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Statistics.ListCollected += n
	m.state.touch()
}

// RecordDetailCollected counts one successfully scraped detail page
func (m *Manager) RecordDetailCollected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Statistics.DetailCollected++
	m.state.touch()
}

// UpdateProgress moves the progress pointer; negative values leave fields
// unchanged
func (m *Manager) UpdateProgress(page, index, totalPages int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.UpdateProgress(page, index, totalPages)
}

// CompletePage marks a page scanned and autosaves the checkpoint
func (m *Manager) CompletePage(page int) {
	m.mu.Lock()
	m.state.CompletePage(page)
	if err := m.save(false); err != nil {
		log.Error().Err(err).Int("page", page).Msg("Autosave after page failed")
	}
	m.mu.Unlock()
}

// MarkCompleted flags the run finished and force-saves
func (m *Manager) MarkCompleted() {
	m.mu.Lock()
	m.state.MarkCompleted()
	if err := m.save(true); err != nil {
		log.Error().Err(err).Msg("Final state save failed")
	}
	m.mu.Unlock()
}

// SetLastError records a terminal run error without counting an item error
func (m *Manager) SetLastError(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.LastError = msg
	m.state.IsRunning = false
	m.state.touch()
}

// ResumePoint returns the (page, index) pair a resumed run re-enters at
func (m *Manager) ResumePoint() (page, index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Progress.CurrentPage, m.state.Progress.CurrentIndex
}

// Statistics returns a snapshot of the counters
func (m *Manager) Statistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Statistics
}

// Snapshot returns a deep copy of the full state
func (m *Manager) Snapshot() *CrawlState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil
	}
	return m.state.Clone()
}

// CollectedCount returns the size of the collected-id set
func (m *Manager) CollectedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.CollectedIDs)
}

// Cleanup removes the checkpoint and its backup
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, path := range []string{m.stateFile, m.backupFile} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	m.state = nil
	log.Info().Str("path", m.stateFile).Msg("State files removed")
	return nil
}
