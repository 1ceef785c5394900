package queue

import "errors"

var (
	ErrNotFound = errors.New("pending record not found")
)
