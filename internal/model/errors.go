package model

import "errors"

// ErrNotFound is returned by storage lookups that matched no row for the
// tenant. Shared here so services can test for it without binding to a
// particular store implementation.
var ErrNotFound = errors.New("record not found")
