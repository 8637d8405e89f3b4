package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for changing the algorithm later.
const (
	DomainPackage = "salience/package/v1"
	DomainRule    = "salience/rule/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalize turns any JSON-marshalable descriptor into canonical bytes.
func canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	val, err := UnmarshalIRValue(raw)
	if err != nil {
		return nil, err
	}
	return MarshalCanonical(val)
}

// PackageHash computes the content hash of a package descriptor. Two
// descriptors with the same hash build identical packages.
func PackageHash(p *PackageDescr) (string, error) {
	canonical, err := canonicalize(p)
	if err != nil {
		return "", fmt.Errorf("PackageHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPackage, canonical), nil
}

// RuleHash computes the content hash of one rule within a package.
func RuleHash(pkg string, r RuleDescr) (string, error) {
	canonical, err := canonicalize(map[string]any{
		"package": pkg,
		"rule":    r,
	})
	if err != nil {
		return "", fmt.Errorf("RuleHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRule, canonical), nil
}

// MustPackageHash is like PackageHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustPackageHash(p *PackageDescr) string {
	h, err := PackageHash(p)
	if err != nil {
		panic(err)
	}
	return h
}
