package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/salience/internal/ir"
)

// marshalDescriptor converts a package descriptor to canonical JSON TEXT
// for storage. The bytes are the ones ir.PackageHash hashes.
func marshalDescriptor(descr *ir.PackageDescr) (string, error) {
	raw, err := json.Marshal(descr)
	if err != nil {
		return "", fmt.Errorf("marshal descriptor: %w", err)
	}
	val, err := ir.UnmarshalIRValue(raw)
	if err != nil {
		return "", fmt.Errorf("marshal descriptor: %w", err)
	}
	data, err := ir.MarshalCanonical(val)
	if err != nil {
		return "", fmt.Errorf("marshal descriptor: %w", err)
	}
	return string(data), nil
}

// unmarshalDescriptor parses stored TEXT and checks it against hash.
func unmarshalDescriptor(data, hash string) (*ir.PackageDescr, error) {
	var descr ir.PackageDescr
	if err := json.Unmarshal([]byte(data), &descr); err != nil {
		return nil, fmt.Errorf("unmarshal descriptor: %w", err)
	}
	got, err := ir.PackageHash(&descr)
	if err != nil {
		return nil, fmt.Errorf("unmarshal descriptor: %w", err)
	}
	if got != hash {
		return nil, fmt.Errorf("%w: package %s stored as %s, content hashes to %s", ErrCorrupt, descr.Name, hash, got)
	}
	return &descr, nil
}
