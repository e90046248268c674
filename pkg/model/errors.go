package model

import "errors"

var (
	ErrUnknownMode     = errors.New("unknown repository mode")
	ErrCcbExists       = errors.New("change bundle already open")
	ErrImplementerHeld = errors.New("client already holds an implementer")
)
