// Package frames holds the socket message shape shared by the e2e context and
// its step packages.
package frames

import "encoding/json"

// Frame is a decoded socket message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
