package docstore

import "gorm.io/datatypes"

// Operation enumerates the write kinds recorded in the change log.
type Operation string

const (
	// OperationSet replaces a whole document, creating it when absent.
	OperationSet Operation = "set"
	// OperationUpdate merges top-level fields into an existing document.
	OperationUpdate Operation = "update"
	// OperationArrayAppend appends values to an array field of an existing document.
	OperationArrayAppend Operation = "array_append"
	// OperationDelete removes a document.
	OperationDelete Operation = "delete"
)

// Document stores one JSON object under its collection and key.
type Document struct {
	Collection       string         `gorm:"column:collection;primaryKey;size:190;not null;index:idx_documents_collection_created,priority:1"`
	DocKey           string         `gorm:"column:doc_key;primaryKey;size:190;not null"`
	Body             datatypes.JSON `gorm:"column:body;not null"`
	Version          int64          `gorm:"column:version;not null;default:1"`
	CreatedSequence  int64          `gorm:"column:created_seq;not null;index:idx_documents_collection_created,priority:2"`
	UpdatedAtSeconds int64          `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Document) TableName() string {
	return "documents"
}

// DocumentChange captures an append-only trail of applied writes. Its
// sequence orders snapshots of a collection.
type DocumentChange struct {
	Sequence         int64     `gorm:"column:sequence;primaryKey;autoIncrement"`
	ChangeID         string    `gorm:"column:change_id;size:190;not null;uniqueIndex"`
	Collection       string    `gorm:"column:collection;size:190;not null;index:idx_document_changes_collection"`
	DocKey           string    `gorm:"column:doc_key;size:190;not null"`
	Operation        Operation `gorm:"column:op;size:32;not null"`
	PreviousVersion  *int64    `gorm:"column:prev_version"`
	NewVersion       *int64    `gorm:"column:new_version"`
	AppliedAtSeconds int64     `gorm:"column:applied_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (DocumentChange) TableName() string {
	return "document_changes"
}
