// Package entity provides the inventory record types reconciled by invsync.
package entity

import (
	"fmt"
	"strings"

	"github.com/jbctechsolutions/invsync/internal/domain/errors"
)

// Kind identifies a category of business record.
type Kind string

const (
	KindLaptop    Kind = "laptop"
	KindAccessory Kind = "accessory"
	KindPackage   Kind = "package"
	KindPerson    Kind = "person"
	KindTool      Kind = "tool"
	KindToolkit   Kind = "toolkit"
)

// collections maps each kind to the name of its collection, used both as the
// local file stem and as the default remote collection name.
var collections = map[Kind]string{
	KindLaptop:    "laptops",
	KindAccessory: "accessories",
	KindPackage:   "packages",
	KindPerson:    "people",
	KindTool:      "tools",
	KindToolkit:   "toolkits",
}

// AllKinds returns every known kind in a stable order.
func AllKinds() []Kind {
	return []Kind{KindLaptop, KindAccessory, KindPackage, KindPerson, KindTool, KindToolkit}
}

// CoreKinds returns the kinds that are always synchronized. Tools and
// toolkits are opt-in.
func CoreKinds() []Kind {
	return []Kind{KindLaptop, KindAccessory, KindPackage, KindPerson}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := collections[k]
	return ok
}

// Collection returns the plural collection name for the kind.
func (k Kind) Collection() string {
	return collections[k]
}

func (k Kind) String() string {
	return string(k)
}

// ParseKind parses a kind name. Matching is case-insensitive and accepts the
// collection (plural) form, so "Laptops" and "people" both parse.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for kind, collection := range collections {
		if name == string(kind) || name == collection {
			return kind, nil
		}
	}
	return "", fmt.Errorf("%w: %q", errors.ErrUnknownKind, s)
}

// ParseKinds parses a list of kind names, dropping duplicates while keeping
// the first-seen order.
func ParseKinds(names []string) ([]Kind, error) {
	seen := make(map[Kind]bool, len(names))
	kinds := make([]Kind, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		kind, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		if seen[kind] {
			continue
		}
		seen[kind] = true
		kinds = append(kinds, kind)
	}
	return kinds, nil
}
