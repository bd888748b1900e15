package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/roomboard/internal/docstore"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const migrationNormalizeRoomLists = "2026-10-01_normalize_room_lists"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeRoomLists, apply: normalizeRoomLists},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeRoomLists rewrites rooms whose occupants or tags are null or absent
// into empty arrays. Documents without a rooms array are left alone.
func normalizeRoomLists(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var documents []docstore.Document
		if err := tx.Find(&documents).Error; err != nil {
			return err
		}
		for _, document := range documents {
			body, changed, err := normalizeRooms(document.Body)
			if err != nil {
				return fmt.Errorf("document %s/%s: %w", document.Collection, document.DocKey, err)
			}
			if !changed {
				continue
			}
			if err := tx.Model(&docstore.Document{}).
				Where("collection = ? AND doc_key = ?", document.Collection, document.DocKey).
				Update("body", body).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func normalizeRooms(raw datatypes.JSON) (datatypes.JSON, bool, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, false, err
	}
	roomsRaw, ok := body["rooms"]
	if !ok {
		return raw, false, nil
	}
	var rooms []map[string]json.RawMessage
	if err := json.Unmarshal(roomsRaw, &rooms); err != nil {
		// Not an array of objects; nothing this migration understands.
		return raw, false, nil
	}

	changed := false
	for _, room := range rooms {
		for _, field := range []string{"occupants", "tags"} {
			value, present := room[field]
			if present && string(value) != "null" {
				continue
			}
			room[field] = json.RawMessage("[]")
			changed = true
		}
	}
	if !changed {
		return raw, false, nil
	}

	encodedRooms, err := json.Marshal(rooms)
	if err != nil {
		return nil, false, err
	}
	body["rooms"] = encodedRooms
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, false, err
	}
	return datatypes.JSON(encoded), true, nil
}
