// Package idgen provides pluggable ID generation for the daemon.
//
// Everything that names a thing at runtime — profiling sessions ("sess_"),
// backend connections ("conn_"), IPC requests ("req_"), observability rows
// ("evt_", "audit_", "hb_") — takes a Generator, so the ID strategy is a
// constructor argument rather than a hard-coded choice.
package idgen

import (
	"crypto/rand"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator producing RFC 9562 UUID v7 strings:
// time-sortable and globally unique, so observability rows written with
// these IDs cluster by insertion time.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// NanoID returns a Generator producing base-36 IDs of the given length.
// Shorter than a UUID; use where IDs appear in logs constantly and 36
// chars of entropy is overkill.
func NanoID(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i, b := range buf {
			buf[i] = alphabet[int(b)%len(alphabet)]
		}
		return string(buf)
	}
}

// Prefixed wraps a Generator and prepends a fixed type tag to every ID,
// so an identifier alone says what it names ("sess_…", "conn_…").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is the package default: UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}
