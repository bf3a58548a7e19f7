package store

import (
	"context"
	"maps"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MKhiriev/go-pos-sync/models"
)

type entityKey struct {
	entity models.EntityName
	id     string
}

// Memory is an in-process implementation of every repository of the sync
// store. It enforces the same constraints as the PostgreSQL schema.
//
// All operations are serialized; a transaction holds the store exclusively
// until it commits or rolls back. Rollback restores a snapshot taken at the
// start of the transaction.
type Memory struct {
	mu sync.Mutex

	mutations map[string]models.MutationRecord
	conflicts map[string]models.ConflictRecord
	sessions  map[string]models.SyncSession
	entities  map[entityKey]models.EntityRecord
	audit     []models.ConflictAudit
	changes   []models.ServerChange

	unavailable atomic.Bool
	faults      atomic.Int64
}

type memoryTxKey struct{}

type memorySnapshot struct {
	mutations map[string]models.MutationRecord
	conflicts map[string]models.ConflictRecord
	sessions  map[string]models.SyncSession
	entities  map[entityKey]models.EntityRecord
	audit     int
	changes   int
}

// NewMemory constructs an empty [Memory].
func NewMemory() *Memory {
	return &Memory{
		mutations: make(map[string]models.MutationRecord),
		conflicts: make(map[string]models.ConflictRecord),
		sessions:  make(map[string]models.SyncSession),
		entities:  make(map[entityKey]models.EntityRecord),
	}
}

// NewMemoryStorages wires a fresh [Memory] into [Storages].
func NewMemoryStorages() *Storages {
	return NewMemory().Storages()
}

// Storages exposes m through the [Storages] bundle.
func (m *Memory) Storages() *Storages {
	return &Storages{
		Transactor: m,
		Pinger:     m,
		Classifier: NewPostgresErrorClassifier(),
		Mutations:  m,
		Conflicts:  m,
		Sessions:   m,
		Entities:   m,
		Changes:    m,
	}
}

// SetUnavailable makes every subsequent operation fail with
// [ErrStoreUnavailable] until it is called with false.
func (m *Memory) SetUnavailable(unavailable bool) {
	m.unavailable.Store(unavailable)
}

// FailEntityWrites makes the next n entity writes fail with
// [ErrStoreUnavailable] while Ping keeps succeeding.
func (m *Memory) FailEntityWrites(n int) {
	m.faults.Store(int64(n))
}

func (m *Memory) lock(ctx context.Context) (func(), error) {
	if m.unavailable.Load() {
		return nil, ErrStoreUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ctx.Value(memoryTxKey{}) != nil {
		return func() {}, nil
	}
	m.mu.Lock()
	return m.mu.Unlock, nil
}

func (m *Memory) entityFault() error {
	for {
		n := m.faults.Load()
		if n <= 0 {
			return nil
		}
		if m.faults.CompareAndSwap(n, n-1) {
			return ErrStoreUnavailable
		}
	}
}

// Ping implements [Pinger].
func (m *Memory) Ping(_ context.Context) error {
	if m.unavailable.Load() {
		return ErrStoreUnavailable
	}
	return nil
}

// WithinTransaction implements [Transactor].
func (m *Memory) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(memoryTxKey{}) != nil {
		return fn(ctx)
	}
	unlock, err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	snap := memorySnapshot{
		mutations: maps.Clone(m.mutations),
		conflicts: maps.Clone(m.conflicts),
		sessions:  maps.Clone(m.sessions),
		entities:  maps.Clone(m.entities),
		audit:     len(m.audit),
		changes:   len(m.changes),
	}
	defer func() {
		if p := recover(); p != nil {
			m.restore(snap)
			panic(p)
		}
		if err != nil {
			m.restore(snap)
		}
	}()

	return fn(context.WithValue(ctx, memoryTxKey{}, true))
}

func (m *Memory) restore(snap memorySnapshot) {
	m.mutations = snap.mutations
	m.conflicts = snap.conflicts
	m.sessions = snap.sessions
	m.entities = snap.entities
	m.audit = m.audit[:snap.audit]
	m.changes = m.changes[:snap.changes]
}

// ── mutations ─────────────────────────────────────────────────────────────────

func (m *Memory) InsertMutations(ctx context.Context, records ...models.MutationRecord) error {
	unlock, err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	for _, r := range records {
		if _, ok := m.mutations[r.ID]; ok {
			continue
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now().UTC()
		}
		m.mutations[r.ID] = r
	}
	return nil
}

func (m *Memory) GetMutations(ctx context.Context, ids ...string) ([]models.MutationRecord, error) {
	unlock, err := m.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	records := make([]models.MutationRecord, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if r, ok := m.mutations[id]; ok {
			records = append(records, r)
		}
	}
	sortMutations(records)
	return records, nil
}

func (m *Memory) UpdateMutation(ctx context.Context, record models.MutationRecord) error {
	unlock, err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	current, ok := m.mutations[record.ID]
	if !ok {
		return ErrMutationNotFound
	}
	if record.Status == models.MutationStatusApplied && record.DuplicateOf == nil {
		for id, other := range m.mutations {
			if id != record.ID && other.DeviceID == current.DeviceID && other.Checksum == current.Checksum &&
				other.Status == models.MutationStatusApplied && other.DuplicateOf == nil {
				return ErrDuplicateApplication
			}
		}
	}

	current.SessionID = record.SessionID
	current.Status = record.Status
	current.AttemptCount = record.AttemptCount
	current.LastAttemptAt = record.LastAttemptAt
	current.Error = record.Error
	current.AppliedVersion = record.AppliedVersion
	current.DuplicateOf = record.DuplicateOf
	m.mutations[record.ID] = current
	return nil
}

func (m *Memory) FindAppliedByChecksum(ctx context.Context, deviceID, checksum string) (models.MutationRecord, error) {
	unlock, err := m.lock(ctx)
	if err != nil {
		return models.MutationRecord{}, err
	}
	defer unlock()

	for _, r := range m.mutations {
		if r.DeviceID == deviceID && r.Checksum == checksum && r.Status == models.MutationStatusApplied && r.DuplicateOf == nil {
			return r, nil
		}
	}
	return models.MutationRecord{}, ErrMutationNotFound
}

func (m *Memory) ListCarryOver(ctx context.Context, deviceID string) ([]models.MutationRecord, error) {
	return m.filterMutations(ctx, func(r models.MutationRecord) bool {
		if r.DeviceID != deviceID {
			return false
		}
		switch r.Status {
		case models.MutationStatusPending, models.MutationStatusProcessing:
			return true
		case models.MutationStatusError:
			return r.Error != nil && r.Error.Retryable && !r.Error.Permanent
		}
		return false
	}, sortMutations)
}

func (m *Memory) ListFailed(ctx context.Context, filter FailedFilter) ([]models.MutationRecord, error) {
	records, err := m.filterMutations(ctx, func(r models.MutationRecord) bool {
		if r.Status != models.MutationStatusError || (filter.DeviceID != "" && r.DeviceID != filter.DeviceID) {
			return false
		}
		return r.Error == nil || r.Error.Permanent || !r.Error.Retryable
	}, func(records []models.MutationRecord) {
		sort.SliceStable(records, func(i, j int) bool {
			a, b := records[i].LastAttemptAt, records[j].LastAttemptAt
			switch {
			case a == nil || b == nil:
				return a != nil
			case !a.Equal(*b):
				return a.After(*b)
			}
			return records[i].ID < records[j].ID
		})
	})
	if err != nil {
		return nil, err
	}
	if filter.Limit > 0 && uint64(len(records)) > filter.Limit {
		records = records[:filter.Limit]
	}
	return records, nil
}

func (m *Memory) RevertProcessing(ctx context.Context, filter RevertFilter) (int64, error) {
	unlock, err := m.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var reverted int64
	for id, r := range m.mutations {
		if r.Status != models.MutationStatusProcessing ||
			(filter.SessionID != "" && r.SessionID != filter.SessionID) ||
			(filter.DeviceID != "" && r.DeviceID != filter.DeviceID) {
			continue
		}
		if !filter.OlderThan.IsZero() && (r.LastAttemptAt == nil || !r.LastAttemptAt.Before(filter.OlderThan)) {
			continue
		}
		r.Status = models.MutationStatusPending
		m.mutations[id] = r
		reverted++
	}
	return reverted, nil
}

func (m *Memory) filterMutations(ctx context.Context, keep func(models.MutationRecord) bool, order func([]models.MutationRecord)) ([]models.MutationRecord, error) {
	unlock, err := m.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var records []models.MutationRecord
	for _, r := range m.mutations {
		if keep(r) {
			records = append(records, r)
		}
	}
	order(records)
	return records, nil
}

func sortMutations(records []models.MutationRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].ClientCreatedAt.Equal(records[j].ClientCreatedAt) {
			return records[i].ClientCreatedAt.Before(records[j].ClientCreatedAt)
		}
		return records[i].ID < records[j].ID
	})
}

// ── conflicts ─────────────────────────────────────────────────────────────────

func (m *Memory) InsertConflict(ctx context.Context, conflict models.ConflictRecord) error {
	unlock, err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if conflict.Pending() {
		for _, c := range m.conflicts {
			if c.MutationID == conflict.MutationID && c.Pending() {
				return ErrPendingConflictExists
			}
		}
	}
	if conflict.CreatedAt.IsZero() {
		conflict.CreatedAt = time.Now().UTC()
	}
	m.conflicts[conflict.ID] = conflict
	return nil
}

func (m *Memory) GetConflict(ctx context.Context, id string) (models.ConflictRecord, error) {
	unlock, err := m.lock(ctx)
	if err != nil {
		return models.ConflictRecord{}, err
	}
	defer unlock()

	c, ok := m.conflicts[id]
	if !ok {
		return models.ConflictRecord{}, ErrConflictNotFound
	}
	return c, nil
}

func (m *Memory) PendingConflictForMutation(ctx context.Context, mutationID string) (models.ConflictRecord, error) {
	unlock, err := m.lock(ctx)
	if err != nil {
		return models.ConflictRecord{}, err
	}
	defer unlock()

	for _, c := range m.conflicts {
		if c.MutationID == mutationID && c.Pending() {
			return c, nil
		}
	}
	return models.ConflictRecord{}, ErrConflictNotFound
}

func (m *Memory) ListConflicts(ctx context.Context, filter models.ConflictFilter) ([]models.ConflictRecord, error) {
	unlock, err := m.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	conflicts := make([]models.ConflictRecord, 0)
	for _, c := range m.conflicts {
		if (filter.Resolution != "" && c.Resolution != filter.Resolution) ||
			(filter.DeviceID != "" && c.DeviceID != filter.DeviceID) ||
			(filter.Entity != "" && c.Entity != filter.Entity) {
			continue
		}
		conflicts = append(conflicts, c)
	}
	sort.Slice(conflicts, func(i, j int) bool {
		if !conflicts[i].CreatedAt.Equal(conflicts[j].CreatedAt) {
			return conflicts[i].CreatedAt.Before(conflicts[j].CreatedAt)
		}
		return conflicts[i].ID < conflicts[j].ID
	})
	if filter.Limit > 0 && uint64(len(conflicts)) > filter.Limit {
		conflicts = conflicts[:filter.Limit]
	}
	return conflicts, nil
}

func (m *Memory) UpdateResolution(ctx context.Context, conflict models.ConflictRecord) error {
	unlock, err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	current, ok := m.conflicts[conflict.ID]
	if !ok || !current.Pending() {
		return ErrConflictAlreadyResolved
	}
	current.Resolution = conflict.Resolution
	current.ResolvedBy = conflict.ResolvedBy
	current.ResolvedAt = conflict.ResolvedAt
	current.Notes = conflict.Notes
	m.conflicts[conflict.ID] = current
	return nil
}

func (m *Memory) AppendAudit(ctx context.Context, audit models.ConflictAudit) error {
	unlock, err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := m.conflicts[audit.ConflictID]; !ok {
		return ErrConflictNotFound
	}
	audit.ID = int64(len(m.audit) + 1)
	m.audit = append(m.audit, audit)
	return nil
}

func (m *Memory) ListAudit(ctx context.Context, conflictID string) ([]models.ConflictAudit, error) {
	unlock, err := m.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	trail := make([]models.ConflictAudit, 0)
	for _, a := range m.audit {
		if a.ConflictID == conflictID {
			trail = append(trail, a)
		}
	}
	return trail, nil
}

// ── sessions ──────────────────────────────────────────────────────────────────

func (m *Memory) CreateSession(ctx context.Context, session models.SyncSession) error {
	unlock, err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	m.sessions[session.ID] = session
	return nil
}

func (m *Memory) GetSession(ctx context.Context, id string) (models.SyncSession, error) {
	unlock, err := m.lock(ctx)
	if err != nil {
		return models.SyncSession{}, err
	}
	defer unlock()

	s, ok := m.sessions[id]
	if !ok {
		return models.SyncSession{}, ErrSessionNotFound
	}
	return s, nil
}

func (m *Memory) UpdateSession(ctx context.Context, session models.SyncSession) error {
	unlock, err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	current, ok := m.sessions[session.ID]
	if !ok {
		return ErrSessionNotFound
	}
	if current.Completed() {
		return ErrSessionCompleted
	}
	session.DeviceID = current.DeviceID
	session.UserID = current.UserID
	session.Type = current.Type
	session.StartedAt = current.StartedAt
	m.sessions[session.ID] = session
	return nil
}

func (m *Memory) LastCompletedSession(ctx context.Context, deviceID string) (models.SyncSession, error) {
	unlock, err := m.lock(ctx)
	if err != nil {
		return models.SyncSession{}, err
	}
	defer unlock()

	var (
		last  models.SyncSession
		found bool
	)
	for _, s := range m.sessions {
		if s.DeviceID != deviceID || !s.Completed() || s.EndedAt == nil {
			continue
		}
		if !found || s.EndedAt.After(*last.EndedAt) {
			last, found = s, true
		}
	}
	if !found {
		return models.SyncSession{}, ErrSessionNotFound
	}
	return last, nil
}

// ── entities ──────────────────────────────────────────────────────────────────

func (m *Memory) GetEntity(ctx context.Context, entity models.EntityName, id string) (models.EntityRecord, error) {
	unlock, err := m.lock(ctx)
	if err != nil {
		return models.EntityRecord{}, err
	}
	defer unlock()

	r, ok := m.entities[entityKey{entity, id}]
	if !ok {
		return models.EntityRecord{}, ErrEntityNotFound
	}
	return r, nil
}

func (m *Memory) FindByNaturalKey(ctx context.Context, entity models.EntityName, key string) (models.EntityRecord, error) {
	if key == "" {
		return models.EntityRecord{}, ErrEntityNotFound
	}
	unlock, err := m.lock(ctx)
	if err != nil {
		return models.EntityRecord{}, err
	}
	defer unlock()

	if r, ok := m.naturalKeyHolder(entity, key, ""); ok {
		return r, nil
	}
	return models.EntityRecord{}, ErrEntityNotFound
}

func (m *Memory) InsertEntity(ctx context.Context, record models.EntityRecord) error {
	unlock, err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err = m.entityFault(); err != nil {
		return err
	}
	if _, ok := m.entities[entityKey{record.Entity, record.ID}]; ok {
		return ErrEntityAlreadyExists
	}
	if !record.Deleted && record.NaturalKey != "" {
		if _, taken := m.naturalKeyHolder(record.Entity, record.NaturalKey, record.ID); taken {
			return ErrNaturalKeyTaken
		}
	}
	if record.Revision == 0 {
		record.Revision = 1
	}
	m.entities[entityKey{record.Entity, record.ID}] = record
	return nil
}

func (m *Memory) UpdateEntity(ctx context.Context, record models.EntityRecord, expectedRevision int64) error {
	unlock, err := m.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err = m.entityFault(); err != nil {
		return err
	}
	key := entityKey{record.Entity, record.ID}
	current, ok := m.entities[key]
	if !ok || current.Revision != expectedRevision {
		return ErrVersionConflict
	}
	if !record.Deleted && record.NaturalKey != "" {
		if _, taken := m.naturalKeyHolder(record.Entity, record.NaturalKey, record.ID); taken {
			return ErrNaturalKeyTaken
		}
	}

	current.NaturalKey = record.NaturalKey
	current.Document = record.Document
	current.Revision = expectedRevision + 1
	current.UpdatedAt = record.UpdatedAt
	current.UpdatedByDevice = record.UpdatedByDevice
	current.Deleted = record.Deleted
	m.entities[key] = current
	return nil
}

func (m *Memory) naturalKeyHolder(entity models.EntityName, key, exceptID string) (models.EntityRecord, bool) {
	for k, r := range m.entities {
		if k.entity == entity && k.id != exceptID && !r.Deleted && r.NaturalKey == key {
			return r, true
		}
	}
	return models.EntityRecord{}, false
}

// ── change feed ───────────────────────────────────────────────────────────────

func (m *Memory) AppendChange(ctx context.Context, change models.ServerChange) (int64, error) {
	unlock, err := m.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	change.ID = int64(len(m.changes) + 1)
	m.changes = append(m.changes, change)
	return change.ID, nil
}

func (m *Memory) FieldsChangedSince(ctx context.Context, entity models.EntityName, id string, since time.Time) ([]string, error) {
	unlock, err := m.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var lists []jsonList
	for _, c := range m.changes {
		if c.Entity == entity && c.EntityID == id && c.ChangedAt.After(since) {
			lists = append(lists, c.ChangedFields)
		}
	}
	return unionFields(lists), nil
}

func (m *Memory) ChangesSince(ctx context.Context, filter models.ChangeFilter) ([]models.ServerChange, int64, error) {
	unlock, err := m.lock(ctx)
	if err != nil {
		return nil, filter.AfterID, err
	}
	defer unlock()

	cursor := filter.AfterID
	changes := make([]models.ServerChange, 0)
	var scanned uint64
	for _, c := range m.changes {
		if c.ID <= filter.AfterID {
			continue
		}
		if filter.Limit > 0 && scanned == filter.Limit {
			break
		}
		scanned++
		cursor = c.ID
		if filter.ExcludeDevice != "" && c.SourceDeviceID == filter.ExcludeDevice {
			continue
		}
		changes = append(changes, c)
	}
	return changes, cursor, nil
}
