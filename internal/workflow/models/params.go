package models

import (
	"encoding/json"
	"strings"

	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
)

// ActionParams is the tagged union of per-type remediation parameters. Each
// variant validates its own shape so malformed parameters are rejected at
// creation time, not discovered mid-execution.
type ActionParams interface {
	ActionType() ActionType
	Validate() error
}

// DeleteParams carries no parameters; deletion needs only the asset itself.
type DeleteParams struct{}

func (DeleteParams) ActionType() ActionType { return ActionTypeDelete }
func (DeleteParams) Validate() error        { return nil }

// ChangeVisibilityParams names the visibility the asset is moved to.
type ChangeVisibilityParams struct {
	TargetVisibility id.Visibility `json:"target_visibility"`
}

func (ChangeVisibilityParams) ActionType() ActionType { return ActionTypeChangeVisibility }

func (p ChangeVisibilityParams) Validate() error {
	if !p.TargetVisibility.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "change_visibility requires a valid target_visibility")
	}
	return nil
}

// RemovePermissionParams names the platform-side permission to revoke.
type RemovePermissionParams struct {
	PermissionID string `json:"permission_id"`
}

func (RemovePermissionParams) ActionType() ActionType { return ActionTypeRemovePermission }

func (p RemovePermissionParams) Validate() error {
	if strings.TrimSpace(p.PermissionID) == "" {
		return dErrors.New(dErrors.CodeValidation, "remove_permission requires a permission_id")
	}
	return nil
}

// TransferOwnershipParams names the new owner.
type TransferOwnershipParams struct {
	NewOwnerEmail string `json:"new_owner_email"`
}

func (TransferOwnershipParams) ActionType() ActionType { return ActionTypeTransferOwnership }

func (p TransferOwnershipParams) Validate() error {
	email := strings.TrimSpace(p.NewOwnerEmail)
	if email == "" {
		return dErrors.New(dErrors.CodeValidation, "transfer_ownership requires a new_owner_email")
	}
	if !strings.Contains(email, "@") {
		return dErrors.New(dErrors.CodeValidation, "new_owner_email is not a valid email address")
	}
	return nil
}

// EncodeParams serializes params for persistence. The action type column is
// the discriminator; the JSON carries only the variant fields.
func EncodeParams(params ActionParams) ([]byte, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "marshal action params")
	}
	return raw, nil
}

// DecodeParams deserializes the variant selected by actionType. Unknown
// fields in the payload are ignored; a missing payload decodes to the zero
// variant, which Validate will reject for types that require fields.
func DecodeParams(actionType ActionType, raw []byte) (ActionParams, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	switch actionType {
	case ActionTypeDelete:
		var p DeleteParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "unmarshal delete params")
		}
		return p, nil
	case ActionTypeChangeVisibility:
		var p ChangeVisibilityParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "unmarshal change_visibility params")
		}
		return p, nil
	case ActionTypeRemovePermission:
		var p RemovePermissionParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "unmarshal remove_permission params")
		}
		return p, nil
	case ActionTypeTransferOwnership:
		var p TransferOwnershipParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "unmarshal transfer_ownership params")
		}
		return p, nil
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "unsupported action type: "+string(actionType))
	}
}
