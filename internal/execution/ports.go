// Package execution turns an approved governance action into exactly one
// platform call and records the outcome. It owns the single-writer claim
// that keeps two concurrent execute calls from both reaching the platform.
package execution

import (
	"context"
	"errors"

	id "custodian/pkg/domain"
)

// Credentials carry the caller-supplied platform authorization for one
// execution. Token refresh and encryption-at-rest live with the credential
// subsystem, not here.
type Credentials struct {
	AccessToken string
}

//go:generate mockgen -source=ports.go -destination=mocks/capability-mocks.go -package=mocks Capability

// Capability is the external interface through which an approved action's
// effect is carried out against the asset's owning platform. One
// implementation per platform; injected, never a package-level global, so
// the dispatcher's claim semantics are testable with mocks.
type Capability interface {
	Delete(ctx context.Context, creds Credentials, assetExternalID string) error
	ChangeVisibility(ctx context.Context, creds Credentials, assetExternalID string, visibility id.Visibility) error
	RemovePermission(ctx context.Context, creds Credentials, assetExternalID, permissionID string) error
	TransferOwnership(ctx context.Context, creds Credentials, assetExternalID, newOwnerEmail string) error
}

// PlatformError is a failure reported by the owning platform. The dispatcher
// recovers it into a failed outcome; it never propagates as an engine error.
type PlatformError struct {
	Message string
	Err     error
}

func (e *PlatformError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *PlatformError) Unwrap() error { return e.Err }

// NewPlatformError wraps a platform failure with a human-readable message.
func NewPlatformError(message string, err error) *PlatformError {
	return &PlatformError{Message: message, Err: err}
}

// AsPlatformError extracts a PlatformError from err's chain.
func AsPlatformError(err error) (*PlatformError, bool) {
	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
