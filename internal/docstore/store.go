package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrDocumentNotFound indicates that a write targeted a key that does not exist.
	ErrDocumentNotFound = errors.New("docstore: document not found")
	// ErrInvalidField indicates that a partial write named a missing or mistyped field.
	ErrInvalidField = errors.New("docstore: invalid field")
	// ErrInvalidInput indicates an empty collection, empty key or a non-object body.
	ErrInvalidInput = errors.New("docstore: invalid input")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries an operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opStoreNew = "docstore.store.new"
	opGet      = "docstore.get"
	opList     = "docstore.list"
	opCommit   = "docstore.commit"
	opClear    = "docstore.clear"
	opNotify   = "docstore.notify"

	fieldCollection = "collection"
	fieldDocKey     = "doc_key"
	fieldOperation  = "op"

	queryCollection    = "collection = ?"
	queryCollectionKey = "collection = ? AND doc_key = ?"
	orderCreated       = "created_seq ASC, doc_key ASC"

	reasonMissingDatabase      = "missing_database"
	reasonMissingIDProvider    = "missing_id_provider"
	reasonMissingCollection    = "missing_collection"
	reasonMissingKey           = "missing_key"
	reasonDocumentNotFound     = "document_not_found"
	reasonDocumentLookupFailed = "document_lookup_failed"
	reasonDocumentSaveFailed   = "document_save_failed"
	reasonDocumentDeleteFailed = "document_delete_failed"
	reasonBodyInvalid          = "body_invalid"
	reasonUnknownOperation     = "unknown_operation"
	reasonIDGenerationFailed   = "id_generation_failed"
	reasonChangeInsertFailed   = "change_insert_failed"
	reasonQueryFailed          = "query_failed"
	reasonRelayPublishFailed   = "relay_publish_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Relay forwards change messages to other processes sharing the database.
type Relay interface {
	Publish(ctx context.Context, message ChangeMessage) error
}

type Config struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Dispatcher *Dispatcher
	Relay      Relay
	Origin     string
	Logger     *zap.Logger
}

// Store is a realtime document store over SQLite. Every committed batch
// publishes one ChangeMessage for its collection.
type Store struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	dispatcher *Dispatcher
	relay      Relay
	origin     string
	logger     *zap.Logger
}

// Record is one document as read from a collection.
type Record struct {
	Key       string
	Body      json.RawMessage
	Version   int64
	UpdatedAt time.Time
}

// Decode unmarshals the document body into target.
func (record Record) Decode(target any) error {
	return json.Unmarshal(record.Body, target)
}

// Snapshot is the full content of a collection at a change sequence.
type Snapshot struct {
	Collection string
	Records    []Record
	Sequence   int64
	ReadAt     time.Time
}

func NewStore(cfg Config) (*Store, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opStoreNew, reasonMissingDatabase, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opStoreNew, reasonMissingIDProvider, errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = NewDispatcher()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	origin := strings.TrimSpace(cfg.Origin)
	if origin == "" {
		generated, err := cfg.IDProvider.NewID()
		if err != nil {
			return nil, newServiceError(opStoreNew, reasonIDGenerationFailed, err)
		}
		origin = generated
	}

	return &Store{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		dispatcher: dispatcher,
		relay:      cfg.Relay,
		origin:     origin,
		logger:     logger,
	}, nil
}

// Origin identifies this store instance in relayed change messages.
func (store *Store) Origin() string {
	return store.origin
}

// Dispatcher exposes the in-process change fan-out.
func (store *Store) Dispatcher() *Dispatcher {
	return store.dispatcher
}

// Get returns the document stored under key.
func (store *Store) Get(ctx context.Context, collection, key string) (Record, error) {
	if collection == "" {
		return Record{}, newServiceError(opGet, reasonMissingCollection, ErrInvalidInput)
	}
	var document Document
	err := store.db.WithContext(ctx).Where(queryCollectionKey, collection, key).Take(&document).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, newServiceError(opGet, reasonDocumentNotFound, ErrDocumentNotFound)
	}
	if err != nil {
		store.logError(opGet, reasonQueryFailed, err,
			zap.String(fieldCollection, collection),
			zap.String(fieldDocKey, key))
		return Record{}, newServiceError(opGet, reasonQueryFailed, err)
	}
	return toRecord(document), nil
}

// List reads every document of collection in creation order together with
// the latest change sequence.
func (store *Store) List(ctx context.Context, collection string) (Snapshot, error) {
	if collection == "" {
		return Snapshot{}, newServiceError(opList, reasonMissingCollection, ErrInvalidInput)
	}

	snapshot := Snapshot{Collection: collection, Records: []Record{}}
	err := store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var documents []Document
		if err := tx.Where(queryCollection, collection).Order(orderCreated).Find(&documents).Error; err != nil {
			return err
		}
		var sequence int64
		if err := tx.Model(&DocumentChange{}).
			Where(queryCollection, collection).
			Select("COALESCE(MAX(sequence), 0)").
			Scan(&sequence).Error; err != nil {
			return err
		}
		for _, document := range documents {
			snapshot.Records = append(snapshot.Records, toRecord(document))
		}
		snapshot.Sequence = sequence
		return nil
	})
	if err != nil {
		store.logError(opList, reasonQueryFailed, err, zap.String(fieldCollection, collection))
		return Snapshot{}, newServiceError(opList, reasonQueryFailed, err)
	}
	snapshot.ReadAt = store.clock().UTC()
	return snapshot, nil
}

// Set replaces the document under key, creating it when absent.
func (store *Store) Set(ctx context.Context, collection, key string, body any) error {
	return store.Commit(ctx, collection, []Write{SetWrite(key, body)})
}

// Update merges top-level fields into an existing document.
func (store *Store) Update(ctx context.Context, collection, key string, fields map[string]any) error {
	return store.Commit(ctx, collection, []Write{UpdateWrite(key, fields)})
}

// ArrayAppend appends values to an array field of an existing document.
func (store *Store) ArrayAppend(ctx context.Context, collection, key, field string, values ...any) error {
	return store.Commit(ctx, collection, []Write{AppendWrite(key, field, values...)})
}

// Delete removes the document under key. Deleting a missing key is a no-op.
func (store *Store) Delete(ctx context.Context, collection, key string) error {
	return store.Commit(ctx, collection, []Write{DeleteWrite(key)})
}

// Commit applies writes atomically: either every write lands or none does.
func (store *Store) Commit(ctx context.Context, collection string, writes []Write) error {
	if collection == "" {
		return newServiceError(opCommit, reasonMissingCollection, ErrInvalidInput)
	}
	if len(writes) == 0 {
		return nil
	}

	appliedAt := store.clock().UTC()
	changed := false
	err := store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, write := range writes {
			applied, err := store.applyWrite(tx, collection, write, appliedAt)
			if err != nil {
				return err
			}
			changed = changed || applied
		}
		return nil
	})
	if err != nil {
		return err
	}
	if changed {
		store.notify(ctx, collection, appliedAt)
	}
	return nil
}

// Clear deletes every document of collection and returns how many were removed.
func (store *Store) Clear(ctx context.Context, collection string) (int, error) {
	if collection == "" {
		return 0, newServiceError(opClear, reasonMissingCollection, ErrInvalidInput)
	}

	var keys []string
	if err := store.db.WithContext(ctx).Model(&Document{}).
		Where(queryCollection, collection).
		Order(orderCreated).
		Pluck("doc_key", &keys).Error; err != nil {
		store.logError(opClear, reasonQueryFailed, err, zap.String(fieldCollection, collection))
		return 0, newServiceError(opClear, reasonQueryFailed, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	writes := make([]Write, 0, len(keys))
	for _, key := range keys {
		writes = append(writes, DeleteWrite(key))
	}
	if err := store.Commit(ctx, collection, writes); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Subscribe streams a snapshot of collection immediately and again after
// every committed change. A failed reload sends one error and ends the
// stream; both channels close when the subscription ends.
func (store *Store) Subscribe(ctx context.Context, collection string) (<-chan Snapshot, <-chan error) {
	snapshots := make(chan Snapshot, 1)
	errs := make(chan error, 1)
	changes, cleanup := store.dispatcher.Subscribe(ctx, collection)

	go func() {
		defer cleanup()
		defer close(snapshots)
		defer close(errs)

		for {
			snapshot, err := store.List(ctx, collection)
			if err != nil {
				if ctx.Err() == nil {
					errs <- err
				}
				return
			}
			select {
			case snapshots <- snapshot:
			case <-ctx.Done():
				return
			}
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
			}
		}
	}()

	return snapshots, errs
}

func (store *Store) applyWrite(tx *gorm.DB, collection string, write Write, appliedAt time.Time) (bool, error) {
	key := strings.TrimSpace(write.Key)
	fields := []zap.Field{
		zap.String(fieldCollection, collection),
		zap.String(fieldDocKey, key),
		zap.String(fieldOperation, string(write.Operation)),
	}
	if key == "" {
		return false, newServiceError(opCommit, reasonMissingKey, ErrInvalidInput)
	}

	var existing Document
	found := true
	err := tx.Where(queryCollectionKey, collection, key).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		found = false
	} else if err != nil {
		store.logError(opCommit, reasonDocumentLookupFailed, err, fields...)
		return false, newServiceError(opCommit, reasonDocumentLookupFailed, err)
	}

	if write.Operation == OperationDelete {
		if !found {
			return false, nil
		}
		if err := tx.Where(queryCollectionKey, collection, key).Delete(&Document{}).Error; err != nil {
			store.logError(opCommit, reasonDocumentDeleteFailed, err, fields...)
			return false, newServiceError(opCommit, reasonDocumentDeleteFailed, err)
		}
		previous := existing.Version
		if _, err := store.recordChange(tx, collection, key, write.Operation, &previous, nil, appliedAt); err != nil {
			return false, err
		}
		return true, nil
	}

	var body []byte
	switch write.Operation {
	case OperationSet:
		body, err = encodeBody(write.Body)
	case OperationUpdate:
		if !found {
			return false, newServiceError(opCommit, reasonDocumentNotFound, ErrDocumentNotFound)
		}
		body, err = mergeFields(existing.Body, write.Fields)
	case OperationArrayAppend:
		if !found {
			return false, newServiceError(opCommit, reasonDocumentNotFound, ErrDocumentNotFound)
		}
		body, err = appendValues(existing.Body, write.Field, write.Values)
	default:
		return false, newServiceError(opCommit, reasonUnknownOperation, ErrInvalidInput)
	}
	if err != nil {
		store.logError(opCommit, reasonBodyInvalid, err, fields...)
		return false, newServiceError(opCommit, reasonBodyInvalid, err)
	}

	var previous *int64
	if found {
		version := existing.Version
		previous = &version
	}
	next := existing.Version + 1
	change, err := store.recordChange(tx, collection, key, write.Operation, previous, &next, appliedAt)
	if err != nil {
		return false, err
	}

	document := existing
	if !found {
		document = Document{
			Collection:      collection,
			DocKey:          key,
			CreatedSequence: change.Sequence,
		}
	}
	document.Body = datatypes.JSON(body)
	document.Version = next
	document.UpdatedAtSeconds = appliedAt.Unix()

	var saveErr error
	if found {
		saveErr = tx.Save(&document).Error
	} else {
		saveErr = tx.Create(&document).Error
	}
	if saveErr != nil {
		store.logError(opCommit, reasonDocumentSaveFailed, saveErr, fields...)
		return false, newServiceError(opCommit, reasonDocumentSaveFailed, saveErr)
	}
	return true, nil
}

func (store *Store) recordChange(tx *gorm.DB, collection, key string, operation Operation, previous, next *int64, appliedAt time.Time) (DocumentChange, error) {
	changeID, err := store.idProvider.NewID()
	if err != nil {
		store.logError(opCommit, reasonIDGenerationFailed, err,
			zap.String(fieldCollection, collection),
			zap.String(fieldDocKey, key))
		return DocumentChange{}, newServiceError(opCommit, reasonIDGenerationFailed, err)
	}
	change := DocumentChange{
		ChangeID:         changeID,
		Collection:       collection,
		DocKey:           key,
		Operation:        operation,
		PreviousVersion:  previous,
		NewVersion:       next,
		AppliedAtSeconds: appliedAt.Unix(),
	}
	if err := tx.Create(&change).Error; err != nil {
		store.logError(opCommit, reasonChangeInsertFailed, err,
			zap.String(fieldCollection, collection),
			zap.String(fieldDocKey, key))
		return DocumentChange{}, newServiceError(opCommit, reasonChangeInsertFailed, err)
	}
	return change, nil
}

func (store *Store) notify(ctx context.Context, collection string, appliedAt time.Time) {
	message := ChangeMessage{Collection: collection, Origin: store.origin, Timestamp: appliedAt}
	store.dispatcher.Publish(message)
	if store.relay == nil {
		return
	}
	if err := store.relay.Publish(ctx, message); err != nil {
		store.logError(opNotify, reasonRelayPublishFailed, err, zap.String(fieldCollection, collection))
	}
}

func toRecord(document Document) Record {
	body := make(json.RawMessage, len(document.Body))
	copy(body, document.Body)
	return Record{
		Key:       document.DocKey,
		Body:      body,
		Version:   document.Version,
		UpdatedAt: time.Unix(document.UpdatedAtSeconds, 0).UTC(),
	}
}

func (store *Store) loggerOrDefault() *zap.Logger {
	if store == nil || store.logger == nil {
		return noOpLogger
	}
	return store.logger
}

func (store *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	store.loggerOrDefault().Error("docstore error", attrs...)
}
