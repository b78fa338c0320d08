package v1

import (
	"math"
	"time"

	"github.com/RepairMe/extension/pkg/core"
)

// SessionData contains all the data needed to build an export
type SessionData struct {
	Session          core.Session
	ExtensionVersion string
	Snapshots        []*core.Snapshot
}

type sample struct {
	itemID     uint32
	condition  float32
	spiritbond float32
}

// Build creates an Export from the session data
func Build(data *SessionData) Export {
	summary := core.NewSessionSummary(data.Session)

	export := Export{
		FormatVersion:    FormatVersion,
		ExtensionVersion: data.ExtensionVersion,
		CharacterName:    data.Session.Character.Name,
		World:            data.Session.Character.World,
		LoginTime:        data.Session.LoginTime.UTC().Format(time.RFC3339),
		Slots:            make([]Slot, core.SlotCount),
	}
	if !data.Session.Active() {
		export.LogoutTime = data.Session.LogoutTime.UTC().Format(time.RFC3339)
	}

	var last [core.SlotCount]*sample
	for i := range export.Slots {
		export.Slots[i] = Slot{Index: i, Samples: make([][]any, 0)}
	}

	for _, snap := range data.Snapshots {
		summary.Add(snap)
		offset := secondsSince(data.Session.LoginTime, snap.CapturedAt())

		for i := 0; i < core.SlotCount; i++ {
			slot := snap.Slot(i)
			cur := sample{}
			if !slot.Empty() {
				cur = sample{
					itemID:     slot.ItemID,
					condition:  round2(slot.ConditionPercent()),
					spiritbond: round2(slot.SpiritbondPercent()),
				}
			}

			prev := last[i]
			if prev == nil && slot.Empty() {
				continue
			}
			if prev != nil && *prev == cur {
				continue
			}
			export.Slots[i].Samples = append(export.Slots[i].Samples,
				[]any{offset, cur.itemID, cur.condition, cur.spiritbond})
			last[i] = &cur
		}
	}

	export.Snapshots = summary.Snapshots
	export.LowestCondition = summary.LowestCondition
	export.HighestSpiritbond = summary.HighestSpiritbond
	return export
}

// secondsSince returns the offset of at from start, rounded to a tenth of a second.
func secondsSince(start, at time.Time) float64 {
	return math.Round(at.Sub(start).Seconds()*10) / 10
}

func round2(v float32) float32 {
	return float32(math.Round(float64(v)*100) / 100)
}
