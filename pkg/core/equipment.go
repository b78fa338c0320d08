// pkg/core/equipment.go
package core

// SlotCount is the number of slots in the equipped-items container.
const SlotCount = 13

// Raw value ceilings reported by the client.
const (
	MaxCondition  = 30000
	MaxSpiritbond = 10000
)

// WaistSlot has been unused by the game since the belt slot was removed; it
// always reads as empty.
const WaistSlot = 5

// Slot is one equipped-item position as read from the client.
type Slot struct {
	ItemID     uint32
	Condition  uint16
	Spiritbond uint16
}

// Empty reports whether nothing is equipped in the slot.
func (s Slot) Empty() bool {
	return s.ItemID == 0
}

// ConditionPercent converts the raw durability to 0..100.
func (s Slot) ConditionPercent() float32 {
	return float32(s.Condition) * 100 / MaxCondition
}

// SpiritbondPercent converts the raw spiritbond to 0..100.
func (s Slot) SpiritbondPercent() float32 {
	return float32(s.Spiritbond) * 100 / MaxSpiritbond
}

// Slots is a full read of the container. It is a value type: assigning it
// copies every slot.
type Slots [SlotCount]Slot

// Diff returns the indices whose item, condition or spiritbond differ.
func (s *Slots) Diff(other *Slots) []int {
	var changed []int
	for i := range s {
		if s[i] != other[i] {
			changed = append(changed, i)
		}
	}
	return changed
}
