package session

import (
	"time"

	"github.com/google/uuid"
)

// Slot identifies one of the two alternating recording destinations.
type Slot int

const (
	// SlotA and SlotB alternate as the active recording destination so
	// capture stays gap-free while closed chunks upload.
	SlotA Slot = iota
	SlotB

	// SlotExternal marks chunks that did not come from the rotator, such
	// as files picked up from a spool directory.
	SlotExternal Slot = -1
)

func (s Slot) String() string {
	switch s {
	case SlotA:
		return "a"
	case SlotB:
		return "b"
	case SlotExternal:
		return "external"
	default:
		return "unknown"
	}
}

// Other returns the alternate recording slot.
func (s Slot) Other() Slot {
	if s == SlotA {
		return SlotB
	}
	return SlotA
}

// ChunkHandle identifies a closed recording pending upload. The language
// tag is fixed at close time; later language changes do not affect it.
type ChunkHandle struct {
	ID       uuid.UUID
	Slot     Slot
	Path     string
	Language string
	Seq      uint64
	ClosedAt time.Time
}

// ChunkSink receives closed chunks for upload. Submit must not block the
// caller; the rotation tick hands the chunk off and returns immediately.
type ChunkSink interface {
	Submit(chunk ChunkHandle)
}
