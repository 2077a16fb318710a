package domain

import dErrors "custodian/pkg/domain-errors"

// Visibility is the sharing exposure level an asset can be moved to by a
// change-visibility remediation.
// Invariant: the value must be one of the supported visibility levels.
//
// Usage: construct via ParseVisibility at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type Visibility string

// Supported target visibilities. "private" strips all link sharing, "domain"
// restricts sharing to the owning organization.
const (
	VisibilityPrivate Visibility = "private"
	VisibilityDomain  Visibility = "domain"
	VisibilityPublic  Visibility = "public"
)

// validVisibilities is the single source of truth for valid visibility levels.
var validVisibilities = map[Visibility]bool{
	VisibilityPrivate: true,
	VisibilityDomain:  true,
	VisibilityPublic:  true,
}

// ParseVisibility constructs a Visibility from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported; no
// other errors are expected.
func ParseVisibility(s string) (Visibility, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "visibility cannot be empty")
	}
	v := Visibility(s)
	if !v.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid visibility")
	}
	return v, nil
}

// IsValid checks if the visibility is one of the supported enum values.
func (v Visibility) IsValid() bool {
	return validVisibilities[v]
}

// String returns the string representation of the visibility.
func (v Visibility) String() string {
	return string(v)
}
