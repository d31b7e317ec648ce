package catalog

import (
	"fmt"
	"strings"
)

// Kind is one of the item categories, each scoped to its own storage bucket.
type Kind string

const (
	KindInstruments Kind = "instruments"
	KindParts       Kind = "parts"
	KindMachines    Kind = "machines"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{KindInstruments, KindParts, KindMachines}

func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindInstruments:
		return KindInstruments, nil
	case KindParts:
		return KindParts, nil
	case KindMachines:
		return KindMachines, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, value)
	}
}

// HasMetadata reports whether entries of this kind carry a structured metadata document.
func (k Kind) HasMetadata() bool {
	return k == KindMachines
}

func (k Kind) String() string {
	return string(k)
}
