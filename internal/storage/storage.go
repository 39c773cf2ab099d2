// Package storage holds what the memory, postgres and valkey backends share.
package storage

import "errors"

var ErrNotFound = errors.New("not found")
