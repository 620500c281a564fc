package service

import "github.com/google/uuid"

// Origin identifies this node on the event bus. Every published event
// carries it; consumers on message topics compare it against their own to
// skip work the producing node already did inline.
type Origin string

func NewOrigin() Origin {
	return Origin(uuid.NewString())
}

func (o Origin) String() string { return string(o) }
