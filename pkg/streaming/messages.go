// Package streaming defines the messages exchanged with a history server over
// WebSocket.
package streaming

import (
	"encoding/json"
	"time"

	"github.com/RepairMe/extension/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeSnapshot     = "snapshot"
	TypeAck          = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload identifies the character a session records.
type StartSessionPayload struct {
	ID            uint      `json:"id"`
	CharacterName string    `json:"characterName"`
	World         string    `json:"world"`
	LoginTime     time.Time `json:"loginTime"`
}

// EndSessionPayload closes the session started last.
type EndSessionPayload struct {
	LogoutTime time.Time `json:"logoutTime"`
}

// SlotPayload is one equipped slot of a snapshot.
type SlotPayload struct {
	Slot       int     `json:"slot"`
	ItemID     uint32  `json:"itemId"`
	Condition  float32 `json:"condition"`
	Spiritbond float32 `json:"spiritbond"`
}

// SnapshotPayload carries the aggregates and equipped slots of a snapshot.
type SnapshotPayload struct {
	Time                time.Time     `json:"time"`
	LowestCondition     float32       `json:"lowestCondition"`
	LowestConditionSlot int           `json:"lowestConditionSlot"`
	HighestSpiritbond   float32       `json:"highestSpiritbond"`
	LowestSpiritbond    float32       `json:"lowestSpiritbond"`
	Slots               []SlotPayload `json:"slots"`
}

// NewStartSessionPayload converts a session.
func NewStartSessionPayload(s *core.Session) StartSessionPayload {
	return StartSessionPayload{
		ID:            s.ID,
		CharacterName: s.Character.Name,
		World:         s.Character.World,
		LoginTime:     s.LoginTime,
	}
}

// NewSnapshotPayload converts a snapshot, leaving out empty slots.
func NewSnapshotPayload(s *core.Snapshot) SnapshotPayload {
	p := SnapshotPayload{
		Time:                s.CapturedAt(),
		LowestCondition:     s.LowestConditionPercent(),
		LowestConditionSlot: s.LowestConditionSlot(),
		HighestSpiritbond:   s.HighestSpiritbondPercent(),
		LowestSpiritbond:    s.LowestSpiritbondPercent(),
		Slots:               make([]SlotPayload, 0, s.Equipped()),
	}
	for i := 0; i < core.SlotCount; i++ {
		slot := s.Slot(i)
		if slot.Empty() {
			continue
		}
		p.Slots = append(p.Slots, SlotPayload{
			Slot:       i,
			ItemID:     slot.ItemID,
			Condition:  slot.ConditionPercent(),
			Spiritbond: slot.SpiritbondPercent(),
		})
	}
	return p
}
