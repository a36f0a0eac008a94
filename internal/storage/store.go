// Package storage is the durable local key-value layer the draft cache writes through to.
// Callers see synchronous get/set/delete over opaque byte values; what the bytes mean is up
// to them.
package storage

import (
	"errors"

	"github.com/rs/zerolog"
)

var (
	ErrNotFound = errors.New("storage: key not found")
	ErrWrite    = errors.New("storage: write failed")
)

type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Close() error
}

var storageLogger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	storageLogger = l
}
