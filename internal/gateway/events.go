package gateway

import (
	"encoding/json"
	"time"
)

// RoomEvent is the wire format pushed to spectator connections.
type RoomEvent struct {
	ID        string          `json:"id"`        // Event UUID
	Room      string          `json:"room"`      // Room code
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Room document snapshot
}

// EventType identifies what happened to the room document.
type EventType string

const (
	EventTypeRoomUpdated EventType = "RoomUpdated"
	EventTypeRoomDeleted EventType = "RoomDeleted"
)
