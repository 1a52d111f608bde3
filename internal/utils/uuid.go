package utils

import "github.com/google/uuid"

// UUIDGenerator produces time-ordered identifiers for change records and
// conflicts. UUIDv7 keeps identifiers roughly sortable by creation time,
// which helps when eyeballing the change log.
type UUIDGenerator struct {
}

func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

func (g *UUIDGenerator) Generate() string {
	v7, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return v7.String()
}
