package server

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an inventory object does not exist.
var ErrNotFound = fmt.Errorf("object not found")

// Extension is a PBX extension.
type Extension struct {
	ID          string `json:"id"`
	DomainID    string `json:"domain_id"`
	Number      string `json:"number"`
	DisplayName string `json:"display_name,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// SIPProfile is a SIP listener profile.
type SIPProfile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Transport string `json:"transport"`
	Port      int    `json:"port"`
	Enabled   bool   `json:"enabled"`
}

// CallRecord is one CDR entry.
type CallRecord struct {
	ID          string        `json:"id"`
	DomainID    string        `json:"domain_id"`
	Caller      string        `json:"caller"`
	Callee      string        `json:"callee"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Disposition string        `json:"disposition"`
}

// Recording is call recording metadata. The media itself is not served
// here.
type Recording struct {
	ID        string        `json:"id"`
	CallID    string        `json:"call_id"`
	DomainID  string        `json:"domain_id"`
	Path      string        `json:"path"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// BackupJob is a requested configuration backup.
type BackupJob struct {
	ID          string    `json:"id"`
	Scope       string    `json:"scope"`
	Status      string    `json:"status"`
	RequestedBy string    `json:"requested_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Inventory is an in-memory store of PBX administration objects. It is
// safe for concurrent use.
type Inventory struct {
	mu         sync.RWMutex
	extensions map[string]*Extension
	profiles   map[string]*SIPProfile
	cdrs       map[string]*CallRecord
	recordings map[string]*Recording
	backups    map[string]*BackupJob

	now func() time.Time
}

// NewInventory creates an empty inventory.
func NewInventory() *Inventory {
	return &Inventory{
		extensions: make(map[string]*Extension),
		profiles:   make(map[string]*SIPProfile),
		cdrs:       make(map[string]*CallRecord),
		recordings: make(map[string]*Recording),
		backups:    make(map[string]*BackupJob),
		now:        time.Now,
	}
}

// PutExtension stores an extension, assigning an id when absent.
func (i *Inventory) PutExtension(ext *Extension) *Extension {
	i.mu.Lock()
	defer i.mu.Unlock()

	if ext.ID == "" {
		ext.ID = uuid.NewString()
	}
	stored := *ext
	i.extensions[stored.ID] = &stored

	out := stored
	return &out
}

// GetExtension fetches an extension by id.
func (i *Inventory) GetExtension(id string) (*Extension, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	ext, ok := i.extensions[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *ext
	return &out, nil
}

// ListExtensions returns all extensions ordered by number.
func (i *Inventory) ListExtensions() []*Extension {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]*Extension, 0, len(i.extensions))
	for _, ext := range i.extensions {
		copied := *ext
		out = append(out, &copied)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Number < out[b].Number })
	return out
}

// DeleteExtension removes an extension.
func (i *Inventory) DeleteExtension(id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.extensions[id]; !ok {
		return ErrNotFound
	}
	delete(i.extensions, id)
	return nil
}

// PutSIPProfile stores a SIP profile, assigning an id when absent.
func (i *Inventory) PutSIPProfile(profile *SIPProfile) *SIPProfile {
	i.mu.Lock()
	defer i.mu.Unlock()

	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	stored := *profile
	i.profiles[stored.ID] = &stored

	out := stored
	return &out
}

// GetSIPProfile fetches a SIP profile by id.
func (i *Inventory) GetSIPProfile(id string) (*SIPProfile, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	profile, ok := i.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *profile
	return &out, nil
}

// ListSIPProfiles returns all SIP profiles ordered by name.
func (i *Inventory) ListSIPProfiles() []*SIPProfile {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]*SIPProfile, 0, len(i.profiles))
	for _, profile := range i.profiles {
		copied := *profile
		out = append(out, &copied)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// DeleteSIPProfile removes a SIP profile.
func (i *Inventory) DeleteSIPProfile(id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.profiles[id]; !ok {
		return ErrNotFound
	}
	delete(i.profiles, id)
	return nil
}

// PutCallRecord stores a CDR entry, assigning an id when absent.
func (i *Inventory) PutCallRecord(record *CallRecord) *CallRecord {
	i.mu.Lock()
	defer i.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	stored := *record
	i.cdrs[stored.ID] = &stored

	out := stored
	return &out
}

// ListCallRecords returns CDR entries, newest first.
func (i *Inventory) ListCallRecords() []*CallRecord {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]*CallRecord, 0, len(i.cdrs))
	for _, record := range i.cdrs {
		copied := *record
		out = append(out, &copied)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].StartedAt.After(out[b].StartedAt) })
	return out
}

// PutRecording stores recording metadata, assigning an id when absent.
func (i *Inventory) PutRecording(rec *Recording) *Recording {
	i.mu.Lock()
	defer i.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = i.now()
	}
	stored := *rec
	i.recordings[stored.ID] = &stored

	out := stored
	return &out
}

// GetRecording fetches recording metadata by id.
func (i *Inventory) GetRecording(id string) (*Recording, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	rec, ok := i.recordings[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

// ListRecordings returns recording metadata, newest first.
func (i *Inventory) ListRecordings() []*Recording {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]*Recording, 0, len(i.recordings))
	for _, rec := range i.recordings {
		copied := *rec
		out = append(out, &copied)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out
}

// DeleteRecording removes recording metadata.
func (i *Inventory) DeleteRecording(id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.recordings[id]; !ok {
		return ErrNotFound
	}
	delete(i.recordings, id)
	return nil
}

// CreateBackup records a backup request in pending state.
func (i *Inventory) CreateBackup(scope, requestedBy string) *BackupJob {
	i.mu.Lock()
	defer i.mu.Unlock()

	job := &BackupJob{
		ID:          uuid.NewString(),
		Scope:       scope,
		Status:      "pending",
		RequestedBy: requestedBy,
		CreatedAt:   i.now(),
	}
	i.backups[job.ID] = job

	out := *job
	return &out
}

// ListBackups returns backup jobs, newest first.
func (i *Inventory) ListBackups() []*BackupJob {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]*BackupJob, 0, len(i.backups))
	for _, job := range i.backups {
		copied := *job
		out = append(out, &copied)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out
}
