package handler

import (
	"encoding/json"
	"strings"

	"custodian/internal/workflow/models"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
)

// CreateActionRequest is the HTTP request body for POST /actions.
type CreateActionRequest struct {
	AssetID         string          `json:"asset_id"`
	AssetExternalID string          `json:"asset_external_id"`
	ActionType      string          `json:"action_type"`
	Reason          string          `json:"reason"`
	ApproverEmails  []string        `json:"approver_emails"`
	Params          json.RawMessage `json:"params"`

	// Parsed values (populated by Validate)
	parsedAssetID id.AssetID
	parsedType    models.ActionType
	parsedParams  models.ActionParams
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *CreateActionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	assetID, err := id.ParseAssetID(strings.TrimSpace(r.AssetID))
	if err != nil {
		return err
	}
	r.parsedAssetID = assetID

	if strings.TrimSpace(r.AssetExternalID) == "" {
		return dErrors.New(dErrors.CodeValidation, "asset_external_id is required")
	}

	actionType, err := models.ParseActionType(strings.TrimSpace(r.ActionType))
	if err != nil {
		return err
	}
	r.parsedType = actionType

	params, err := models.DecodeParams(actionType, r.Params)
	if err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}
	r.parsedParams = params

	// Remaining fields (reason, approver list shape) are revalidated by the
	// service; no point duplicating those rules here.
	return nil
}

func (r *CreateActionRequest) ParsedAssetID() id.AssetID { return r.parsedAssetID }

func (r *CreateActionRequest) ParsedType() models.ActionType { return r.parsedType }

func (r *CreateActionRequest) ParsedParams() models.ActionParams { return r.parsedParams }

// DecideRequest is the HTTP request body for POST /approvals/{approvalID}/decide.
type DecideRequest struct {
	Decision string `json:"decision"`
	Comment  string `json:"comment"`

	parsedDecision models.Decision
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *DecideRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	decision, err := models.ParseDecision(strings.TrimSpace(r.Decision))
	if err != nil {
		return err
	}
	r.parsedDecision = decision
	return nil
}

func (r *DecideRequest) ParsedDecision() models.Decision { return r.parsedDecision }
