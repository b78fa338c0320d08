// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/RepairMe/extension/internal/model"
	"github.com/RepairMe/extension/pkg/core"
	"gorm.io/datatypes"
)

// slotsToJSON converts the equipped slots to datatypes.JSON for DB storage.
// Empty slots are left out.
func slotsToJSON(slots core.Slots) (datatypes.JSON, error) {
	out := make([]model.SlotJSON, 0, core.SlotCount)
	for i, s := range slots {
		if s.Empty() {
			continue
		}
		out = append(out, model.SlotJSON{
			Slot:       i,
			ItemID:     s.ItemID,
			Condition:  s.Condition,
			Spiritbond: s.Spiritbond,
		})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

// CoreToSession converts a core.Session to a GORM model.Session
func CoreToSession(s core.Session) model.Session {
	out := model.Session{
		CharacterName: s.Character.Name,
		World:         s.Character.World,
		LoginTime:     s.LoginTime,
		LogoutTime:    sql.NullTime{Time: s.LogoutTime, Valid: !s.LogoutTime.IsZero()},
	}
	out.ID = s.ID
	return out
}

// CoreToSnapshotRecord converts a snapshot recorded in a session to a GORM model.SnapshotRecord
func CoreToSnapshotRecord(s *core.Snapshot, sessionID uint) (model.SnapshotRecord, error) {
	slots, err := slotsToJSON(s.Slots())
	if err != nil {
		return model.SnapshotRecord{}, fmt.Errorf("failed to encode slots: %w", err)
	}
	return model.SnapshotRecord{
		SessionID:           sessionID,
		Time:                s.CapturedAt(),
		LowestCondition:     s.LowestConditionPercent(),
		LowestConditionSlot: s.LowestConditionSlot(),
		HighestSpiritbond:   s.HighestSpiritbondPercent(),
		LowestSpiritbond:    s.LowestSpiritbondPercent(),
		Equipped:            s.Equipped(),
		Slots:               slots,
	}, nil
}
