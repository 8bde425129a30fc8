// Package kv defines the key-value contract used by the embedding cache.
package kv

import "errors"

// ErrKeyNotFound signals a missing key.
var ErrKeyNotFound = errors.New("kv: key not found")
