package domain

import (
	"github.com/google/uuid"

	dErrors "custodian/pkg/domain-errors"
)

// Typed UUID identifiers for the core entities. Distinct types prevent an
// action id from being passed where an approval id is expected; the compiler
// enforces what code review would otherwise have to catch.
//
// Invariant: IDs must be valid, non-empty, non-nil UUIDs. Parse functions
// enforce this at trust boundaries (HTTP handlers, store rows).
type (
	// ActionID identifies one governance action.
	ActionID uuid.UUID

	// ApprovalID identifies one approver's ballot on an action.
	ApprovalID uuid.UUID

	// UserID identifies the user that owns the asset under remediation.
	UserID uuid.UUID

	// AssetID identifies the discovered asset an action targets. The asset
	// record itself lives in the discovery subsystem; the workflow engine
	// only carries the reference.
	AssetID uuid.UUID
)

func NewActionID() ActionID     { return ActionID(uuid.New()) }
func NewApprovalID() ApprovalID { return ApprovalID(uuid.New()) }
func NewUserID() UserID         { return UserID(uuid.New()) }
func NewAssetID() AssetID       { return AssetID(uuid.New()) }

func (id ActionID) String() string   { return uuid.UUID(id).String() }
func (id ApprovalID) String() string { return uuid.UUID(id).String() }
func (id UserID) String() string     { return uuid.UUID(id).String() }
func (id AssetID) String() string    { return uuid.UUID(id).String() }

// MarshalText/UnmarshalText make the typed IDs render as canonical UUID
// strings in JSON and log output instead of raw byte arrays.
func (id ActionID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id ApprovalID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id UserID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id AssetID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }

func (id *ActionID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = ActionID(u)
	return nil
}

func (id *ApprovalID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = ApprovalID(u)
	return nil
}

func (id *UserID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = UserID(u)
	return nil
}

func (id *AssetID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = AssetID(u)
	return nil
}

func (id ActionID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ApprovalID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id AssetID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// ParseActionID validates and returns an ActionID.
func ParseActionID(s string) (ActionID, error) {
	u, err := parseUUID(s, "action id")
	if err != nil {
		return ActionID{}, err
	}
	return ActionID(u), nil
}

// ParseApprovalID validates and returns an ApprovalID.
func ParseApprovalID(s string) (ApprovalID, error) {
	u, err := parseUUID(s, "approval id")
	if err != nil {
		return ApprovalID{}, err
	}
	return ApprovalID(u), nil
}

// ParseUserID validates and returns a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

// ParseAssetID validates and returns an AssetID.
func ParseAssetID(s string) (AssetID, error) {
	u, err := parseUUID(s, "asset id")
	if err != nil {
		return AssetID{}, err
	}
	return AssetID(u), nil
}

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" must not be the nil UUID")
	}
	return u, nil
}
