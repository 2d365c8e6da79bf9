// Package id generates document identifiers for purchases and notifications.
package id

import "github.com/google/uuid"

// Generator produces unique document ids.
type Generator interface {
	NewID() string
}

// UUIDGenerator issues random UUIDv4 ids.
type UUIDGenerator struct{}

func NewUUIDGenerator() UUIDGenerator { return UUIDGenerator{} }

func (UUIDGenerator) NewID() string { return uuid.NewString() }
