package services

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/dsemenov/datavault/internal/common"
	"github.com/dsemenov/datavault/internal/cryptox"
	"github.com/dsemenov/datavault/internal/dbx"
	"github.com/dsemenov/datavault/internal/logging"
	"github.com/dsemenov/datavault/internal/server/eventbus"
	"github.com/dsemenov/datavault/internal/server/ledger"
	"github.com/dsemenov/datavault/internal/server/models"
	"github.com/dsemenov/datavault/internal/server/repositories/data"
	"github.com/dsemenov/datavault/internal/server/repositories/repomanager"
)

// appNameTag is attached to every ledger transaction.
const appNameTag = "datavault"

// storeRewardReason labels the incentive entry credited per successful store.
const storeRewardReason = "data contribution"

// batchConcurrency bounds how many items of one batch store run at once.
const batchConcurrency = 4

// DataService orchestrates the store/retrieve pipeline: encryption for
// private payloads, the ledger write/read, metadata persistence, permission
// checks and usage tracking.
type DataService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	ledger      ledger.Client
	bus         eventbus.Bus
	tokens      *TokenService
	reward      decimal.Decimal
	logger      logging.Logger
}

// NewDataService constructs a DataService. reward is the token amount
// credited per successful store; zero disables the incentive.
func NewDataService(db *sql.DB, m repomanager.RepositoryManager, lc ledger.Client, bus eventbus.Bus, tokens *TokenService, reward decimal.Decimal, logger logging.Logger) *DataService {
	return &DataService{
		db:          db,
		repomanager: m,
		ledger:      lc,
		bus:         bus,
		tokens:      tokens,
		reward:      reward,
		logger:      logger.With("module", "data_service"),
	}
}

// StoreInput is one store request. Payload is an arbitrary JSON document.
type StoreInput struct {
	Payload         json.RawMessage `json:"data"`
	Type            string          `json:"type"`
	PermissionLevel string          `json:"permissions"`
	AllowedUsers    []string        `json:"allowedUsers,omitempty"`
	Tags            []models.Tag    `json:"tags,omitempty"`
	Extra           map[string]any  `json:"metadata,omitempty"`
}

// RetrieveResult bundles the decrypted payload with its metadata record.
type RetrieveResult struct {
	Record  *models.Data    `json:"metadata"`
	Payload json.RawMessage `json:"data"`
}

// Store writes one payload through the pipeline and returns its metadata
// record.
//
// PRIVATE payloads are sealed under a fresh key before they leave the
// process; PUBLIC and SHARED payloads go to the ledger as-is. The ledger
// write is not idempotent: a retry of an already-succeeded write may yield a
// new identifier, and whichever identifier comes back is authoritative.
//
// If the metadata insert fails after the ledger accepted the payload, Store
// returns *common.PartialWriteError carrying the ledger identifier: the
// bytes are durable and the caller may retry metadata persistence.
func (s *DataService) Store(ctx context.Context, in StoreInput, actorID string) (*models.Data, error) {
	dataType, ok := models.ParseDataType(in.Type)
	if !ok {
		return nil, fmt.Errorf("%w: unknown data type %q", common.ErrValidation, in.Type)
	}
	level, ok := models.ParsePermissionLevel(in.PermissionLevel)
	if !ok {
		return nil, fmt.Errorf("%w: unknown permission level %q", common.ErrValidation, in.PermissionLevel)
	}
	if len(in.Payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", common.ErrValidation)
	}

	payload := []byte(in.Payload)
	var encryption *models.EncryptionMeta

	if level == models.PermissionPrivate {
		key := cryptox.GenerateKey()
		ciphertext, nonce, tag, err := cryptox.Encrypt(payload, key)
		if err != nil {
			return nil, fmt.Errorf("encrypt error: %w", err)
		}
		payload = ciphertext
		encryption = &models.EncryptionMeta{
			IV:  hex.EncodeToString(nonce),
			Tag: hex.EncodeToString(tag),
			Key: hex.EncodeToString(key),
		}
	}

	id, err := s.ledger.Write(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("ledger write error: %w", err)
	}

	var allowedUsers []string
	if level == models.PermissionShared {
		allowedUsers = in.AllowedUsers
	}

	record := &models.Data{
		ID:              id,
		Creator:         actorID,
		Type:            dataType,
		PermissionLevel: level,
		AllowedUsers:    allowedUsers,
		Metadata: models.DataMetadata{
			Size:       int64(len(payload)),
			Hash:       id,
			Tags:       s.ledgerTags(dataType, level, actorID, in.Tags),
			Extra:      in.Extra,
			Encryption: encryption,
		},
	}

	if err := s.repomanager.Data(s.db).Create(ctx, record); err != nil {
		// The ledger already holds the payload durably; surface the
		// identifier so the metadata row can be repaired.
		return nil, &common.PartialWriteError{LedgerID: id, Err: err}
	}

	if s.reward.IsPositive() {
		if _, err := s.tokens.Award(ctx, actorID, s.reward, storeRewardReason); err != nil {
			s.logger.Warn(ctx, "store reward failed", "user", actorID, "error", err.Error())
		}
	}

	s.bus.Publish(eventbus.TopicDataUpdated, eventbus.Event{
		DataID:   record.ID,
		DataType: string(record.Type),
		UserID:   actorID,
		Payload:  record,
	})

	return record, nil
}

// BatchFailure reports one failed item of a batch store.
type BatchFailure struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// BatchResult partitions a batch store into succeeded records and per-item
// failures.
type BatchResult struct {
	Succeeded []*models.Data `json:"succeeded"`
	Failed    []BatchFailure `json:"failed"`
}

// StoreBatch applies Store to each item independently. A failed item never
// rolls back or blocks the others.
func (s *DataService) StoreBatch(ctx context.Context, items []StoreInput, actorID string) *BatchResult {
	records := make([]*models.Data, len(items))
	failures := make([]error, len(items))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)

	for i, item := range items {
		g.Go(func() error {
			record, err := s.Store(ctx, item, actorID)
			if err != nil {
				failures[i] = err
				return nil
			}
			records[i] = record
			return nil
		})
	}
	_ = g.Wait()

	result := &BatchResult{}
	for i := range items {
		if failures[i] != nil {
			result.Failed = append(result.Failed, BatchFailure{Index: i, Reason: failures[i].Error()})
			continue
		}
		result.Succeeded = append(result.Succeeded, records[i])
	}
	return result
}

// Retrieve fetches one record's payload for actorID, enforcing the
// permission matrix: PUBLIC is open, PRIVATE is creator-only, SHARED adds
// the allow-list.
//
// The usage row is appended as soon as the permission check passes, so a
// failed ledger fetch or a tampered ciphertext still leaves an audit entry.
// Denied access leaves none.
func (s *DataService) Retrieve(ctx context.Context, id, actorID string) (*RetrieveResult, error) {
	record, err := s.repomanager.Data(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !record.CanRead(actorID) {
		return nil, common.ErrAccessDenied
	}

	s.appendUsage(ctx, record, actorID, models.AccessRead, nil)

	payload, err := s.ledger.Read(ctx, record.ID)
	if err != nil {
		return nil, fmt.Errorf("ledger read error: %w", err)
	}

	if enc := record.Metadata.Encryption; enc != nil {
		payload, err = decryptPayload(payload, enc)
		if err != nil {
			return nil, err
		}
	}

	return &RetrieveResult{Record: redactForViewer(record, actorID), Payload: payload}, nil
}

// redactForViewer strips the encryption descriptor from records the viewer
// did not create. The payload key never leaves the index for anyone but the
// creator.
func redactForViewer(record *models.Data, viewerID string) *models.Data {
	if record.Creator == viewerID || record.Metadata.Encryption == nil {
		return record
	}
	clone := *record
	clone.Metadata.Encryption = nil
	return &clone
}

func decryptPayload(ciphertext []byte, enc *models.EncryptionMeta) ([]byte, error) {
	key, err := hex.DecodeString(enc.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: bad key encoding", common.ErrDecode)
	}
	nonce, err := hex.DecodeString(enc.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: bad iv encoding", common.ErrDecode)
	}
	tag, err := hex.DecodeString(enc.Tag)
	if err != nil {
		return nil, fmt.Errorf("%w: bad tag encoding", common.ErrDecode)
	}
	return cryptox.Decrypt(ciphertext, key, nonce, tag)
}

// QueryInput narrows and pages a metadata listing.
type QueryInput struct {
	Type    string
	Creator string
	Limit   int
	Cursor  string
}

// QueryResult is one page of records in stable insertion order.
type QueryResult struct {
	Items      []*models.Data `json:"items"`
	HasMore    bool           `json:"hasMore"`
	NextCursor string         `json:"nextCursor,omitempty"`
	Total      int64          `json:"total"`
}

// Query lists metadata records matching the filter, paged by an opaque
// cursor. Chaining cursors until HasMore is false yields every matching
// record exactly once, in insertion order, even under concurrent inserts.
//
// Listings are scoped to the caller's own records unless another creator is
// named explicitly, and never surface records the caller may not read.
func (s *DataService) Query(ctx context.Context, in QueryInput, actorID string) (*QueryResult, error) {
	if in.Creator == "" {
		in.Creator = actorID
	}

	filter, err := buildFilter(in)
	if err != nil {
		return nil, err
	}
	filter.Viewer = &actorID

	limit := in.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	filter.Limit = limit + 1 // one extra row decides hasMore

	repo := s.repomanager.Data(s.db)

	items, err := repo.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	total, err := repo.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query count error: %w", err)
	}

	result := &QueryResult{Total: total}
	if len(items) > limit {
		items = items[:limit]
		result.HasMore = true
		result.NextCursor = encodeCursor(items[limit-1].Seq)
	}

	result.Items = make([]*models.Data, 0, len(items))
	for _, item := range items {
		result.Items = append(result.Items, redactForViewer(item, actorID))
		s.appendUsage(ctx, item, actorID, models.AccessQuery, nil)
	}

	return result, nil
}

func buildFilter(in QueryInput) (data.QueryFilter, error) {
	var filter data.QueryFilter

	if in.Type != "" {
		dataType, ok := models.ParseDataType(in.Type)
		if !ok {
			return filter, fmt.Errorf("%w: unknown data type %q", common.ErrValidation, in.Type)
		}
		filter.Type = &dataType
	}
	if in.Creator != "" {
		creator := in.Creator
		filter.Creator = &creator
	}

	afterSeq, err := decodeCursor(in.Cursor)
	if err != nil {
		return filter, err
	}
	filter.AfterSeq = afterSeq

	return filter, nil
}

// UpdatePermissions changes a record's access-control metadata. Only the
// creator may do so; the update is serialized per identifier via a row lock.
//
// The encryption descriptor always describes the immutable ledger bytes and
// is never added or removed here: switching an unencrypted record to PRIVATE
// restricts metadata access only, and the previously published plaintext
// remains fetchable from the ledger by its identifier. Callers must treat
// the permission level as access control for the index, not ledger-level
// confidentiality.
func (s *DataService) UpdatePermissions(ctx context.Context, id, levelStr string, allowedUsers []string, actorID string) (*models.Data, error) {
	level, ok := models.ParsePermissionLevel(levelStr)
	if !ok {
		return nil, fmt.Errorf("%w: unknown permission level %q", common.ErrValidation, levelStr)
	}
	if level != models.PermissionShared {
		allowedUsers = nil
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Data(tx)

		record, err := repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if record.Creator != actorID {
			return common.ErrAccessDenied
		}
		return repo.UpdatePermissions(ctx, id, level, allowedUsers)
	})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrAccessDenied) {
			return nil, err
		}
		return nil, fmt.Errorf("permission update error: %w", err)
	}

	record, err := s.repomanager.Data(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.bus.Publish(eventbus.TopicDataUpdated, eventbus.Event{
		DataID:   record.ID,
		DataType: string(record.Type),
		UserID:   actorID,
		Payload:  record,
	})

	return record, nil
}

// TrackUsage appends an explicit usage event against a record the actor can
// read.
func (s *DataService) TrackUsage(ctx context.Context, id, actorID, accessTypeStr string, metadata map[string]any) (*models.Usage, error) {
	accessType, ok := models.ParseAccessType(accessTypeStr)
	if !ok {
		return nil, fmt.Errorf("%w: unknown access type %q", common.ErrValidation, accessTypeStr)
	}

	record, err := s.repomanager.Data(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !record.CanRead(actorID) {
		return nil, common.ErrAccessDenied
	}

	entry := &models.Usage{
		ID:         uuid.NewString(),
		DataID:     record.ID,
		UserID:     actorID,
		AccessType: accessType,
		Metadata:   metadata,
	}
	if err := s.repomanager.Usage(s.db).Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("usage error: %w", err)
	}

	s.publishUsage(entry, record)
	return entry, nil
}

// appendUsage records an access event, best effort: a failed audit insert is
// logged and does not fail the read that triggered it.
func (s *DataService) appendUsage(ctx context.Context, record *models.Data, actorID string, accessType models.AccessType, metadata map[string]any) {
	entry := &models.Usage{
		ID:         uuid.NewString(),
		DataID:     record.ID,
		UserID:     actorID,
		AccessType: accessType,
		Metadata:   metadata,
	}
	if err := s.repomanager.Usage(s.db).Create(ctx, entry); err != nil {
		s.logger.Warn(ctx, "usage tracking failed", "data", record.ID, "user", actorID, "error", err.Error())
		return
	}
	s.publishUsage(entry, record)
}

func (s *DataService) publishUsage(entry *models.Usage, record *models.Data) {
	s.bus.Publish(eventbus.TopicUsageTracked, eventbus.Event{
		DataID:   record.ID,
		DataType: string(record.Type),
		UserID:   entry.UserID,
		Payload:  entry,
	})
}

func (s *DataService) ledgerTags(dataType models.DataType, level models.PermissionLevel, actorID string, extra []models.Tag) []models.Tag {
	tags := []models.Tag{
		{Name: "App-Name", Value: appNameTag},
		{Name: "Content-Type", Value: "application/json"},
		{Name: "Type", Value: string(dataType)},
		{Name: "Creator", Value: actorID},
		{Name: "Permission-Level", Value: string(level)},
	}
	return append(tags, extra...)
}

func encodeCursor(seq int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(seq, 10)))
}

func decodeCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("%w: bad cursor", common.ErrValidation)
	}
	seq, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || seq < 0 {
		return 0, fmt.Errorf("%w: bad cursor", common.ErrValidation)
	}
	return seq, nil
}
