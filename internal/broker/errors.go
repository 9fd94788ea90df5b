package broker

import "errors"

var (
	// ErrHostActive is returned by RegisterHost and ClaimHost when the room
	// already has a host with a live transport.
	ErrHostActive = errors.New("room already has an active host")

	ErrRoomNotFound = errors.New("room not found")

	// ErrNoActiveHost is returned by JoinRoom when the room exists but its
	// recorded host has no live transport.
	ErrNoActiveHost = errors.New("room has no active host")

	ErrTargetNotFound = errors.New("target peer not connected")

	// ErrIdentityExhausted is returned when repeated peer id mints all
	// collided, which should never happen with 8 bytes of entropy.
	ErrIdentityExhausted = errors.New("failed to allocate unique peer id")
)
