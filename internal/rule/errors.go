package rule

import "errors"

// Extraction failures. Callers wrap these with the declaration name.
var (
	// ErrNoFact means the tuple has no handle at the declaration's offset.
	ErrNoFact = errors.New("no fact bound at pattern offset")

	// ErrRetracted means the bound fact was retracted after matching.
	ErrRetracted = errors.New("fact was retracted")

	// ErrTypeChanged means the bound fact is no longer of the pattern's type.
	ErrTypeChanged = errors.New("fact no longer matches pattern type")

	// ErrFieldMissing means a field the declaration reads is absent.
	ErrFieldMissing = errors.New("field missing from fact")

	// ErrFieldKind means a field holds a value of the wrong kind.
	ErrFieldKind = errors.New("field has unexpected kind")
)
