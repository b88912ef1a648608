package testutil

import (
	"encoding/json"
	"testing"

	"github.com/jbctechsolutions/invsync/internal/domain/entity"
)

// NewLaptop creates a laptop fixture.
func NewLaptop(id, brand, model string) *entity.Laptop {
	return &entity.Laptop{ID: id, Brand: brand, Model: model}
}

// NewPerson creates a person fixture.
func NewPerson(id, name, email string) *entity.Person {
	return &entity.Person{ID: id, Name: name, Email: email}
}

// CollectionJSON encodes records the way the desktop app writes a
// collection file.
func CollectionJSON(t testing.TB, records ...entity.Record) string {
	t.Helper()
	if records == nil {
		records = []entity.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		t.Fatalf("failed to encode collection: %v", err)
	}
	return string(data) + "\n"
}
