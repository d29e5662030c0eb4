package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/backupwatch/backupwatch/internal/domain"
	"github.com/backupwatch/backupwatch/internal/repo"
)

var _ repo.JobStore = (*Store)(nil)
var _ repo.ScheduleStore = (*Store)(nil)
var _ repo.EpisodeStore = (*Store)(nil)
var _ repo.TaskRunStore = (*Store)(nil)
var _ repo.AuditStore = (*Store)(nil)

// Store keeps everything in maps. Used by tests and by DB-less runs; mutations
// hold one lock so they stay as atomic as the postgres transactions they mirror.
type Store struct {
	mu        sync.RWMutex
	jobs      map[domain.JobKey]domain.BackupJob
	runs      map[domain.JobKey][]domain.JobRun
	schedules map[domain.JobKey]domain.ScheduleConfig
	episodes  map[domain.JobKey]domain.NotificationRecord
	taskRuns  map[string]domain.TaskRunRecord
	audit     []domain.AuditEntry
}

func New() *Store {
	return &Store{
		jobs:      make(map[domain.JobKey]domain.BackupJob),
		runs:      make(map[domain.JobKey][]domain.JobRun),
		schedules: make(map[domain.JobKey]domain.ScheduleConfig),
		episodes:  make(map[domain.JobKey]domain.NotificationRecord),
		taskRuns:  make(map[string]domain.TaskRunRecord),
		audit:     make([]domain.AuditEntry, 0, 128),
	}
}

// ---- ingestion-side writers (test seam; the real rows come from the web process) ----

func (m *Store) AddJob(j domain.BackupJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j.Key == "" {
		j.Key = domain.MakeJobKey(j.ServerID, j.JobName)
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	m.jobs[j.Key] = j
}

func (m *Store) AddRun(r domain.JobRun) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.JobKey] = append(m.runs[r.JobKey], r)
}

func (m *Store) SetSchedule(c domain.ScheduleConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[c.JobKey] = c
}

// ---- JobStore ----

func (m *Store) ListJobs(ctx context.Context) ([]domain.BackupJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.BackupJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Key < out[k].Key })
	return out, nil
}

func (m *Store) SuccessTimes(ctx context.Context, key domain.JobKey, limit int) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ts []time.Time
	for _, r := range m.runs[key] {
		if r.Status == domain.RunSuccess {
			ts = append(ts, r.StartedAt)
		}
	}
	sort.Slice(ts, func(i, k int) bool { return ts[i].After(ts[k]) })
	if limit > 0 && len(ts) > limit {
		ts = ts[:limit]
	}
	return ts, nil
}

func (m *Store) LastRun(ctx context.Context, key domain.JobKey) (*domain.JobRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	runs := m.runs[key]
	if len(runs) == 0 {
		return nil, nil
	}
	last := runs[0]
	for _, r := range runs[1:] {
		if r.StartedAt.After(last.StartedAt) {
			last = r
		}
	}
	return &last, nil
}

// ---- ScheduleStore ----

func (m *Store) GetSchedule(ctx context.Context, key domain.JobKey) (*domain.ScheduleConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.schedules[key]
	if !ok {
		return nil, nil
	}
	cc := c
	return &cc, nil
}

// ---- EpisodeStore ----

func (m *Store) GetEpisode(ctx context.Context, key domain.JobKey) (*domain.NotificationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.episodes[key]
	if !ok {
		return nil, nil
	}
	rr := rec
	return &rr, nil
}

func (m *Store) Open(ctx context.Context, key domain.JobKey, startedAt time.Time, audit domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	at := startedAt
	m.episodes[key] = domain.NotificationRecord{JobKey: key, EpisodeStartedAt: &at}
	m.audit = append(m.audit, audit)
	return nil
}

func (m *Store) MarkNotified(ctx context.Context, key domain.JobKey, at time.Time, audit domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.episodes[key]
	rec.JobKey = key
	t := at
	rec.NotifiedAt = &t
	m.episodes[key] = rec
	m.audit = append(m.audit, audit)
	return nil
}

func (m *Store) Clear(ctx context.Context, key domain.JobKey, audit domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.episodes[key] = domain.NotificationRecord{JobKey: key}
	m.audit = append(m.audit, audit)
	return nil
}

// ---- TaskRunStore ----

func (m *Store) GetTaskRun(ctx context.Context, taskName string) (*domain.TaskRunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.taskRuns[taskName]
	if !ok {
		return nil, nil
	}
	rr := rec
	return &rr, nil
}

func (m *Store) SetTaskRun(ctx context.Context, rec domain.TaskRunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taskRuns[rec.TaskName] = rec
	return nil
}

// ---- AuditStore ----

func (m *Store) Append(ctx context.Context, e domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, e)
	return nil
}

// AuditEntries returns a copy of everything appended so far (test helper).
func (m *Store) AuditEntries() []domain.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.AuditEntry, len(m.audit))
	copy(out, m.audit)
	return out
}
