// pkg/core/snapshot.go
package core

import "time"

// Snapshot is an immutable capture of every slot plus the aggregates derived
// from them. Build it with NewSnapshot.
type Snapshot struct {
	slots      Slots
	capturedAt time.Time

	lowestCondition     float32
	lowestConditionSlot int
	highestSpiritbond   float32
	lowestSpiritbond    float32
	spiritbond          [SlotCount]float32
	equipped            int
}

// NewSnapshot computes the aggregates for slots. Empty slots are left out of
// every aggregate; a loadout with nothing equipped reports 100% condition,
// 0% spiritbond and a lowest-condition slot of -1.
func NewSnapshot(slots Slots, at time.Time) *Snapshot {
	s := &Snapshot{
		slots:               slots,
		capturedAt:          at,
		lowestCondition:     100,
		lowestConditionSlot: -1,
	}

	first := true
	for i, slot := range slots {
		if slot.Empty() {
			s.spiritbond[i] = -1
			continue
		}
		s.equipped++

		cond := slot.ConditionPercent()
		if s.lowestConditionSlot == -1 || cond < s.lowestCondition {
			s.lowestCondition = cond
			s.lowestConditionSlot = i
		}

		sb := slot.SpiritbondPercent()
		s.spiritbond[i] = sb
		if first {
			s.highestSpiritbond, s.lowestSpiritbond = sb, sb
			first = false
			continue
		}
		s.highestSpiritbond = max(s.highestSpiritbond, sb)
		s.lowestSpiritbond = min(s.lowestSpiritbond, sb)
	}

	return s
}

// Slots returns a copy of the raw slot values.
func (s *Snapshot) Slots() Slots {
	return s.slots
}

// Slot returns the raw values at index i.
func (s *Snapshot) Slot(i int) Slot {
	return s.slots[i]
}

// CapturedAt is the scan time the snapshot was built at.
func (s *Snapshot) CapturedAt() time.Time {
	return s.capturedAt
}

func (s *Snapshot) LowestConditionPercent() float32 {
	return s.lowestCondition
}

// LowestConditionSlot is the index holding the lowest condition, or -1.
func (s *Snapshot) LowestConditionSlot() int {
	return s.lowestConditionSlot
}

func (s *Snapshot) HighestSpiritbondPercent() float32 {
	return s.highestSpiritbond
}

func (s *Snapshot) LowestSpiritbondPercent() float32 {
	return s.lowestSpiritbond
}

// SpiritbondPercent returns the spiritbond at index i, or -1 for an empty slot.
func (s *Snapshot) SpiritbondPercent(i int) float32 {
	return s.spiritbond[i]
}

// SpiritbondPercents returns the per-slot spiritbond with -1 for empty slots.
func (s *Snapshot) SpiritbondPercents() [SlotCount]float32 {
	return s.spiritbond
}

// SpiritbondPoints returns the spiritbond of every equipped item as a 0..1
// fraction, in slot order.
func (s *Snapshot) SpiritbondPoints() []float32 {
	points := make([]float32, 0, s.equipped)
	for _, sb := range s.spiritbond {
		if sb < 0 {
			continue
		}
		points = append(points, sb/100)
	}
	return points
}

// Equipped is the number of non-empty slots.
func (s *Snapshot) Equipped() int {
	return s.equipped
}
