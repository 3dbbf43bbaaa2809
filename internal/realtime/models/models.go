package models

import (
	"encoding/json"
	"strings"
)

// Event names on the socket.
const (
	EventJoin   = "join"
	EventLeave  = "leave"
	EventJoined = "joined"
	EventError  = "error"
)

// Frame is the envelope for every websocket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals data into a Frame.
func NewFrame(event string, data any) (Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: raw}, nil
}

// RoomRequest is the payload of join and leave.
type RoomRequest struct {
	UID      string `json:"uid"`
	MetaData string `json:"_metaData,omitempty"`
	Practice string `json:"practice,omitempty"`
	Patient  string `json:"patient,omitempty"`
}

func (r *RoomRequest) Normalize() {
	r.UID = strings.TrimSpace(r.UID)
	r.Practice = strings.TrimSpace(r.Practice)
	r.Patient = strings.TrimSpace(r.Patient)
}

// InboundKind tags session messages.
type InboundKind int

const (
	InboundJoin InboundKind = iota + 1
	InboundLeave
	InboundDisconnect
)

func (k InboundKind) String() string {
	switch k {
	case InboundJoin:
		return EventJoin
	case InboundLeave:
		return EventLeave
	case InboundDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Inbound is one decoded client action handed from the read pump to the session.
type Inbound struct {
	Kind    InboundKind
	Request RoomRequest
}
