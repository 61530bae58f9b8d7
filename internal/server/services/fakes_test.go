package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dsemenov/datavault/internal/common"
	"github.com/dsemenov/datavault/internal/dbx"
	"github.com/dsemenov/datavault/internal/logging"
	"github.com/dsemenov/datavault/internal/server/eventbus"
	"github.com/dsemenov/datavault/internal/server/models"
	"github.com/dsemenov/datavault/internal/server/repositories/data"
	"github.com/dsemenov/datavault/internal/server/repositories/tokens"
	"github.com/dsemenov/datavault/internal/server/repositories/usage"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

type noopLogger struct{}

func (noopLogger) Info(context.Context, string, ...any)  {}
func (noopLogger) Warn(context.Context, string, ...any)  {}
func (noopLogger) Error(context.Context, string, ...any) {}
func (l noopLogger) With(...any) logging.Logger          { return l }

type recordingBus struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (b *recordingBus) Publish(topic string, e eventbus.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e.Topic = topic
	b.events = append(b.events, e)
}

func (b *recordingBus) Subscribe(string, eventbus.Filter) (<-chan eventbus.Event, func()) {
	ch := make(chan eventbus.Event)
	return ch, func() {}
}

func (b *recordingBus) byTopic(topic string) []eventbus.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []eventbus.Event
	for _, e := range b.events {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

// fakeLedger is an in-memory ledger assigning sequential identifiers.
type fakeLedger struct {
	mu       sync.Mutex
	objects  map[string][]byte
	writes   int
	writeErr error
	readErr  error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{objects: map[string][]byte{}}
}

func (l *fakeLedger) Write(_ context.Context, payload []byte) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeErr != nil {
		return "", l.writeErr
	}
	l.writes++
	id := fmt.Sprintf("tx-%d", l.writes)
	l.objects[id] = append([]byte(nil), payload...)
	return id, nil
}

func (l *fakeLedger) Read(_ context.Context, id string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readErr != nil {
		return nil, l.readErr
	}
	b, ok := l.objects[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

type fakeDataRepo struct {
	mu        sync.Mutex
	seq       int64
	records   map[string]*models.Data
	createErr error
}

func newFakeDataRepo() *fakeDataRepo {
	return &fakeDataRepo{records: map[string]*models.Data{}}
}

func (r *fakeDataRepo) Create(_ context.Context, record *models.Data) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.records[record.ID]; ok {
		return common.ErrConstraintViolation
	}
	r.seq++
	record.Seq = r.seq
	now := time.Now()
	record.CreatedAt, record.UpdatedAt = now, now
	clone := *record
	r.records[record.ID] = &clone
	return nil
}

func (r *fakeDataRepo) GetByID(_ context.Context, id string) (*models.Data, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (r *fakeDataRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.Data, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeDataRepo) UpdatePermissions(_ context.Context, id string, level models.PermissionLevel, allowedUsers []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return common.ErrNotFound
	}
	rec.PermissionLevel = level
	rec.AllowedUsers = allowedUsers
	rec.UpdatedAt = time.Now()
	return nil
}

func (r *fakeDataRepo) matches(rec *models.Data, filter data.QueryFilter) bool {
	if filter.Type != nil && rec.Type != *filter.Type {
		return false
	}
	if filter.Creator != nil && rec.Creator != *filter.Creator {
		return false
	}
	if filter.Viewer != nil && !rec.CanRead(*filter.Viewer) {
		return false
	}
	return true
}

func (r *fakeDataRepo) Query(_ context.Context, filter data.QueryFilter) ([]*models.Data, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Data
	for _, rec := range r.records {
		if rec.Seq <= filter.AfterSeq || !r.matches(rec, filter) {
			continue
		}
		clone := *rec
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *fakeDataRepo) Count(_ context.Context, filter data.QueryFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, rec := range r.records {
		if r.matches(rec, filter) {
			n++
		}
	}
	return n, nil
}

type fakeUsageRepo struct {
	mu        sync.Mutex
	entries   []*models.Usage
	createErr error
}

func (r *fakeUsageRepo) Create(_ context.Context, record *models.Usage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	record.CreatedAt = time.Now()
	clone := *record
	r.entries = append(r.entries, &clone)
	return nil
}

func (r *fakeUsageRepo) ListByData(_ context.Context, dataID string, limit int) ([]*models.Usage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Usage
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if r.entries[i].DataID == dataID {
			clone := *r.entries[i]
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeUsageRepo) byData(dataID string) []*models.Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Usage
	for _, e := range r.entries {
		if e.DataID == dataID {
			out = append(out, e)
		}
	}
	return out
}

type fakeTokensRepo struct {
	mu        sync.Mutex
	balances  map[string]decimal.Decimal
	entries   []*models.TokenTransaction
	ensureErr error
	appendErr error
}

func newFakeTokensRepo() *fakeTokensRepo {
	return &fakeTokensRepo{balances: map[string]decimal.Decimal{}}
}

func (r *fakeTokensRepo) setBalance(userID string, amount string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[userID] = decimal.RequireFromString(amount)
}

func (r *fakeTokensRepo) balance(userID string) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances[userID]
}

func (r *fakeTokensRepo) EnsureAccount(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ensureErr != nil {
		return r.ensureErr
	}
	if _, ok := r.balances[userID]; !ok {
		r.balances[userID] = decimal.Zero
	}
	return nil
}

func (r *fakeTokensRepo) GetAccount(_ context.Context, userID string) (*models.TokenAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	balance, ok := r.balances[userID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &models.TokenAccount{UserID: userID, Balance: balance}, nil
}

func (r *fakeTokensRepo) GetBalanceForUpdate(_ context.Context, userID string) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	balance, ok := r.balances[userID]
	if !ok {
		return decimal.Zero, common.ErrNotFound
	}
	return balance, nil
}

func (r *fakeTokensRepo) AddBalance(_ context.Context, userID string, delta decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	balance, ok := r.balances[userID]
	if !ok {
		return common.ErrNotFound
	}
	r.balances[userID] = balance.Add(delta)
	return nil
}

func (r *fakeTokensRepo) AppendTransaction(_ context.Context, entry *models.TokenTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	entry.CreatedAt = time.Now()
	clone := *entry
	r.entries = append(r.entries, &clone)
	return nil
}

func (r *fakeTokensRepo) ListTransactions(_ context.Context, userID string, limit, offset int) ([]*models.TokenTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*models.TokenTransaction
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].UserID == userID {
			clone := *r.entries[i]
			all = append(all, &clone)
		}
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *fakeTokensRepo) byUser(userID string) []*models.TokenTransaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.TokenTransaction
	for _, e := range r.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

type fakeRepoManager struct {
	data   *fakeDataRepo
	usage  *fakeUsageRepo
	tokens *fakeTokensRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		data:   newFakeDataRepo(),
		usage:  &fakeUsageRepo{},
		tokens: newFakeTokensRepo(),
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Data(dbx.DBTX) data.Repository               { return m.data }
func (m *fakeRepoManager) Usage(dbx.DBTX) usage.Repository             { return m.usage }
func (m *fakeRepoManager) Tokens(dbx.DBTX) tokens.Repository           { return m.tokens }
