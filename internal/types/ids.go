// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

type StreamKey string
type EntryID string
type MonitorID string

func NewEntryID() EntryID {
	return EntryID(uuid.New().String())
}

func NewMonitorID() MonitorID {
	return MonitorID(uuid.New().String())
}

func NewStreamKey(parts ...string) StreamKey {
	return StreamKey(strings.Join(parts, ":"))
}
