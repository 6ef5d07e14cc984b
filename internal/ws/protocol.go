package ws

import (
	"github.com/skillsprint/backend/internal/progression"
)

type MessageType string

const (
	MsgProgress MessageType = "progress"
	MsgUnlocks  MessageType = "unlocks"
)

type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// UnlocksPayload carries the notifications one event triggered plus the XP
// summary after the event, so a client can render unlock banners and the
// level bar from a single push.
type UnlocksPayload struct {
	Unlocks []progression.Unlock  `json:"unlocks"`
	XP      progression.XPSummary `json:"xp"`
}

type ProgressPayload struct {
	Progress progression.ProgressView `json:"progress"`
}
