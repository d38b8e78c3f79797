package store

import "errors"

// ErrNotFound is returned by ReadObject/WriteObject/RemoveObject when the
// target object does not exist. Gateway code maps this to wire.NotFound.
var ErrNotFound = errors.New("store: object not found")
