package convert

import (
	"encoding/json"
	"fmt"

	"github.com/RepairMe/extension/internal/model"
	"github.com/RepairMe/extension/pkg/core"
)

// SessionToCore converts a GORM model.Session to a core.Session
func SessionToCore(s model.Session) core.Session {
	out := core.Session{
		ID: s.ID,
		Character: core.Character{
			Name:  s.CharacterName,
			World: s.World,
		},
		LoginTime: s.LoginTime,
	}
	if s.LogoutTime.Valid {
		out.LogoutTime = s.LogoutTime.Time
	}
	return out
}

// SnapshotRecordToCore rebuilds the snapshot stored in a record. The
// aggregates are recomputed from the slots.
func SnapshotRecordToCore(r model.SnapshotRecord) (*core.Snapshot, error) {
	var stored []model.SlotJSON
	if len(r.Slots) > 0 {
		if err := json.Unmarshal(r.Slots, &stored); err != nil {
			return nil, fmt.Errorf("failed to decode slots of record %d: %w", r.ID, err)
		}
	}

	var slots core.Slots
	for _, s := range stored {
		if s.Slot < 0 || s.Slot >= core.SlotCount {
			return nil, fmt.Errorf("record %d: slot index %d out of range", r.ID, s.Slot)
		}
		slots[s.Slot] = core.Slot{
			ItemID:     s.ItemID,
			Condition:  s.Condition,
			Spiritbond: s.Spiritbond,
		}
	}
	return core.NewSnapshot(slots, r.Time), nil
}
