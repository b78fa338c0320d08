package overlay

import (
	"fmt"

	"github.com/RepairMe/extension/pkg/core"
	"github.com/RepairMe/extension/pkg/host"
)

// DebugRow is one line of the per-slot debug table.
type DebugRow struct {
	Index      int
	ItemID     uint32
	Name       string
	Condition  float32
	Spiritbond float32
}

func (r DebugRow) String() string {
	name := r.Name
	if name == "" {
		name = "-"
	}
	return fmt.Sprintf("%2d %8d %-32s %6.2f %6.2f", r.Index, r.ItemID, name, r.Condition, r.Spiritbond)
}

// DebugRows lists every slot of the snapshot. names may be nil.
func DebugRows(s *core.Snapshot, names host.GameData) []DebugRow {
	if s == nil {
		return nil
	}
	rows := make([]DebugRow, core.SlotCount)
	for i := range rows {
		slot := s.Slot(i)
		rows[i] = DebugRow{
			Index:      i,
			ItemID:     slot.ItemID,
			Condition:  slot.ConditionPercent(),
			Spiritbond: slot.SpiritbondPercent(),
		}
		if names != nil && !slot.Empty() {
			rows[i].Name, _ = names.ItemName(slot.ItemID)
		}
	}
	return rows
}
