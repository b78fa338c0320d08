package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SchemaVersion is stored in ExtensionInfo when the schema is created.
const SchemaVersion = 1

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&ExtensionInfo{},
	&Session{},
	&SnapshotRecord{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// ExtensionInfo describes the extension that created the database.
type ExtensionInfo struct {
	gorm.Model
	SchemaVersion    int    `json:"schemaVersion"`
	ExtensionVersion string `json:"extensionVersion" gorm:"size:32"`
}

func (*ExtensionInfo) TableName() string {
	return "extension_infos"
}

////////////////////////
// HISTORY MODELS
////////////////////////

// Session is one login of a character.
type Session struct {
	gorm.Model
	CharacterName string       `json:"characterName" gorm:"size:64;index:idx_session_character"`
	World         string       `json:"world" gorm:"size:64"`
	LoginTime     time.Time    `json:"loginTime" gorm:"index:idx_session_login_time"`
	LogoutTime    sql.NullTime `json:"logoutTime"`

	Snapshots []SnapshotRecord `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignKey:SessionID"`
}

func (*Session) TableName() string {
	return "sessions"
}

// SnapshotRecord is a published snapshot. Aggregates are stored as columns
// for querying; the raw slots are kept as JSON.
type SnapshotRecord struct {
	ID                  uint           `json:"id" gorm:"primarykey;autoIncrement"`
	SessionID           uint           `json:"sessionId" gorm:"index:idx_snapshot_session_id"`
	Time                time.Time      `json:"time" gorm:"index:idx_snapshot_time"`
	LowestCondition     float32        `json:"lowestCondition"`
	LowestConditionSlot int            `json:"lowestConditionSlot"`
	HighestSpiritbond   float32        `json:"highestSpiritbond"`
	LowestSpiritbond    float32        `json:"lowestSpiritbond"`
	Equipped            int            `json:"equipped"`
	Slots               datatypes.JSON `json:"slots"`
}

func (*SnapshotRecord) TableName() string {
	return "snapshot_records"
}

// SlotJSON is the stored form of one equipment slot.
type SlotJSON struct {
	Slot       int    `json:"slot"`
	ItemID     uint32 `json:"itemId"`
	Condition  uint16 `json:"condition"`
	Spiritbond uint16 `json:"spiritbond"`
}
