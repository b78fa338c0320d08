// Package v1 contains the v1 export format for recorded equipment sessions.
package v1

// FormatVersion is written into every export.
const FormatVersion = 1

// Export is the root JSON structure for v1 format
type Export struct {
	FormatVersion     int     `json:"formatVersion"`
	ExtensionVersion  string  `json:"extensionVersion"`
	CharacterName     string  `json:"characterName"`
	World             string  `json:"world"`
	LoginTime         string  `json:"loginTime"`
	LogoutTime        string  `json:"logoutTime,omitempty"`
	Snapshots         int     `json:"snapshots"`
	LowestCondition   float32 `json:"lowestCondition"`
	HighestSpiritbond float32 `json:"highestSpiritbond"`
	Slots             []Slot  `json:"slots"`
}

// Slot is the recorded timeline of one equipment slot.
//
// Each sample is [secondsSinceLogin, itemID, condition, spiritbond]. A sample
// is only written when one of the values changes; an item ID of 0 marks the
// slot being emptied.
type Slot struct {
	Index   int     `json:"index"`
	Samples [][]any `json:"samples"`
}
