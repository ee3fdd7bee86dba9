package model

import (
	"errors"
	"strconv"
)

// SubhaloID identifies a subhalo in the group catalogue of one snapshot.
type SubhaloID int64

func (id SubhaloID) String() string { return strconv.FormatInt(int64(id), 10) }

// Slot is one position in a scattered work chunk. Padding slots have Valid == false
// and carry no subhalo.
type Slot struct {
	ID    SubhaloID `json:"id"`
	Valid bool      `json:"valid"`
}

// Item returns a slot holding id.
func Item(id SubhaloID) Slot { return Slot{ID: id, Valid: true} }

// Padding returns an empty slot.
func Padding() Slot { return Slot{} }

// Item-level error classes. Processors wrap these so the worker loop can tell
// what went wrong without inspecting messages.
var (
	ErrMissingData = errors.New("missing data")
	ErrTransient   = errors.New("transient failure")
)

// Structural errors abort a whole run.
var (
	ErrEmptyWorkList = errors.New("work list is empty")
	ErrInvalidSize   = errors.New("invalid worker count")
	ErrNegativeID    = errors.New("negative subhalo id")
	ErrDuplicateID   = errors.New("duplicate subhalo id")
	ErrRowMismatch   = errors.New("gathered row count does not match work list")
	ErrCollision     = errors.New("subhalo reported by more than one worker")
)
