package registry

import (
	"sync"
	"time"
)

// stalenessWindow is how long a health report keeps a service out of the
// unknown state. Reports older than this are ignored on read; records are
// never eagerly expired.
const stalenessWindow = 60 * time.Second

// Status of a service as known to the registry.
type Status string

const (
	// StatusUnknown means no fresh report exists for the service.
	StatusUnknown Status = "unknown"
	// StatusRunning means the service reported health within the staleness window.
	StatusRunning Status = "running"
	// StatusStopped means the service is known to have exited.
	StatusStopped Status = "stopped"
)

// Record is one service's last known state.
type Record struct {
	// Name is the short service name, e.g. "gateway".
	Name string `json:"name"`
	// Status is the effective status at snapshot time.
	Status Status `json:"status"`
	// RunningVersion is the version the service last reported.
	RunningVersion string `json:"running_version,omitempty"`
	// LatestKnownVersion is the newest release version resolved for the service.
	LatestKnownVersion string `json:"latest_known_version,omitempty"`
	// LastReport is when the service last reported health.
	LastReport time.Time `json:"last_report"`
}

// Registry is the in-memory table of per-service state. It is shared by the
// health listener, the version manager and the status surface, so all access
// goes through a reader/writer lock. Records are mutated only by partial
// merge and never deleted.
type Registry struct {
	mu       sync.RWMutex
	services map[string]Record
	now      func() time.Time
}

// Option customizes a Registry.
type Option func(*Registry)

// WithNow substitutes the clock, used by staleness tests.
func WithNow(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New returns a Registry seeded with an unknown record per known service,
// so status surfaces list every expected service before its first report.
func New(knownServices []string, opts ...Option) *Registry {
	r := &Registry{
		services: make(map[string]Record, len(knownServices)),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	for _, name := range knownServices {
		r.services[name] = Record{Name: name, Status: StatusUnknown}
	}

	return r
}

// RecordHealth upserts a periodic health report: the service is running the
// given version as of now. Other fields are left unchanged.
func (r *Registry) RecordHealth(name, version string) {
	r.upsert(name, func(record *Record) {
		record.Status = StatusRunning
		record.RunningVersion = version
		record.LastReport = r.now()
	})
}

// RecordStopped marks a service as exited, leaving version fields unchanged.
func (r *Registry) RecordStopped(name string) {
	r.upsert(name, func(record *Record) {
		record.Status = StatusStopped
		record.LastReport = r.now()
	})
}

// RecordLatestAvailable upserts only the newest release version known for
// the service. Status and report time are left untouched, so availability
// can be surfaced even for services that never reported health.
func (r *Registry) RecordLatestAvailable(name, version string) {
	r.upsert(name, func(record *Record) {
		record.LatestKnownVersion = version
	})
}

// StatusOf returns the effective status of a service: unknown when no record
// exists or the last report is older than the staleness window.
func (r *Registry) StatusOf(name string) Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.services[name]
	if !ok {
		return StatusUnknown
	}

	return r.effectiveStatus(record)
}

// Snapshot returns a point-in-time copy of every record with its effective
// status applied, safe for read-only consumers.
func (r *Registry) Snapshot() map[string]Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]Record, len(r.services))

	for name, record := range r.services {
		record.Status = r.effectiveStatus(record)
		snapshot[name] = record
	}

	return snapshot
}

func (r *Registry) upsert(name string, mutate func(*Record)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.services[name]
	if !ok {
		record = Record{Name: name, Status: StatusUnknown}
	}

	mutate(&record)
	r.services[name] = record
}

// effectiveStatus applies the staleness rule. Callers hold at least a read lock.
func (r *Registry) effectiveStatus(record Record) Status {
	if record.Status == StatusUnknown {
		return StatusUnknown
	}

	if r.now().Sub(record.LastReport) > stalenessWindow {
		return StatusUnknown
	}

	return record.Status
}
