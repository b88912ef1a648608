package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jbctechsolutions/invsync/internal/domain/errors"
)

// Record is the capability every typed inventory record provides to the
// reconciliation engine.
type Record interface {
	Kind() Kind
	RecordID() string
	Payload() Payload
	ModifiedAt() time.Time
}

// metaFields are stored alongside a record but are not part of its content.
var metaFields = []string{"id", "updated_at"}

// payloadOf converts a typed record into its content payload.
func payloadOf(r any) Payload {
	raw, err := json.Marshal(r)
	if err != nil {
		return Payload{}
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}
	}
	for _, f := range metaFields {
		delete(p, f)
	}
	return p
}

// New returns an empty typed record for kind.
func New(kind Kind) (Record, error) {
	switch kind {
	case KindLaptop:
		return &Laptop{}, nil
	case KindAccessory:
		return &Accessory{}, nil
	case KindPackage:
		return &Package{}, nil
	case KindPerson:
		return &Person{}, nil
	case KindTool:
		return &Tool{}, nil
	case KindToolkit:
		return &Toolkit{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownKind, kind)
	}
}

// Decode parses one JSON object into a typed record of the given kind.
// Fields of the wrong type are a parse error; unknown fields are ignored.
func Decode(kind Kind, data []byte) (Record, error) {
	rec, err := New(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrInvalidPayload, kind, err)
	}
	if strings.TrimSpace(rec.RecordID()) == "" {
		return nil, fmt.Errorf("%w: %s record without id", errors.ErrInvalidPayload, kind)
	}
	return rec, nil
}

// DecodeCollection parses a JSON array of records. Empty input is an empty
// collection.
func DecodeCollection(kind Kind, data []byte) ([]Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("%w: %s collection: %v", errors.ErrInvalidPayload, kind, err)
	}
	records := make([]Record, 0, len(raws))
	for i, raw := range raws {
		rec, err := Decode(kind, raw)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// FromPayload builds a typed record from an id and a payload. It is used to
// project remote payloads onto the local schema: unknown remote fields are
// dropped and mistyped ones fail.
func FromPayload(kind Kind, id string, p Payload) (Record, error) {
	m := make(map[string]any, len(p)+1)
	for k, v := range p {
		m[k] = v
	}
	m["id"] = id
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return Decode(kind, raw)
}

// Laptop is a tracked laptop asset.
type Laptop struct {
	ID           string    `json:"id"`
	AssetTag     string    `json:"asset_tag,omitempty"`
	Brand        string    `json:"brand,omitempty"`
	Model        string    `json:"model,omitempty"`
	SerialNumber string    `json:"serial_number,omitempty"`
	Status       string    `json:"status,omitempty"`
	AssignedTo   string    `json:"assigned_to,omitempty"`
	PurchaseDate string    `json:"purchase_date,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitzero"`
}

func (l *Laptop) Kind() Kind            { return KindLaptop }
func (l *Laptop) RecordID() string      { return l.ID }
func (l *Laptop) Payload() Payload      { return payloadOf(l) }
func (l *Laptop) ModifiedAt() time.Time { return l.UpdatedAt }

// Accessory is a peripheral, optionally attached to a laptop.
type Accessory struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Category  string    `json:"category,omitempty"`
	Quantity  int       `json:"quantity,omitempty"`
	LaptopID  string    `json:"laptop_id,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

func (a *Accessory) Kind() Kind            { return KindAccessory }
func (a *Accessory) RecordID() string      { return a.ID }
func (a *Accessory) Payload() Payload      { return payloadOf(a) }
func (a *Accessory) ModifiedAt() time.Time { return a.UpdatedAt }

// Package is a shipment of laptops and accessories to a recipient.
type Package struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Description  string    `json:"description,omitempty"`
	RecipientID  string    `json:"recipient_id,omitempty"`
	LaptopIDs    []string  `json:"laptop_ids,omitempty"`
	AccessoryIDs []string  `json:"accessory_ids,omitempty"`
	Status       string    `json:"status,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitzero"`
}

func (p *Package) Kind() Kind            { return KindPackage }
func (p *Package) RecordID() string      { return p.ID }
func (p *Package) Payload() Payload      { return payloadOf(p) }
func (p *Package) ModifiedAt() time.Time { return p.UpdatedAt }

// Person is someone who can be assigned equipment.
type Person struct {
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	Email      string    `json:"email,omitempty"`
	Department string    `json:"department,omitempty"`
	Role       string    `json:"role,omitempty"`
	Location   string    `json:"location,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitzero"`
}

func (p *Person) Kind() Kind            { return KindPerson }
func (p *Person) RecordID() string      { return p.ID }
func (p *Person) Payload() Payload      { return payloadOf(p) }
func (p *Person) ModifiedAt() time.Time { return p.UpdatedAt }

// Tool is a software tool or license.
type Tool struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Category  string    `json:"category,omitempty"`
	Vendor    string    `json:"vendor,omitempty"`
	License   string    `json:"license,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

func (t *Tool) Kind() Kind            { return KindTool }
func (t *Tool) RecordID() string      { return t.ID }
func (t *Tool) Payload() Payload      { return payloadOf(t) }
func (t *Tool) ModifiedAt() time.Time { return t.UpdatedAt }

// Toolkit is a named bundle of tools for a role.
type Toolkit struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	Role        string    `json:"role,omitempty"`
	ToolIDs     []string  `json:"tool_ids,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

func (t *Toolkit) Kind() Kind            { return KindToolkit }
func (t *Toolkit) RecordID() string      { return t.ID }
func (t *Toolkit) Payload() Payload      { return payloadOf(t) }
func (t *Toolkit) ModifiedAt() time.Time { return t.UpdatedAt }
