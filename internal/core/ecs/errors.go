package ecs

import "errors"

var (
	ErrNotAlive         = errors.New("entity is not alive")
	ErrAlreadySeated    = errors.New("entity slot already seated")
	ErrUnknownComponent = errors.New("component id is not registered")
)
