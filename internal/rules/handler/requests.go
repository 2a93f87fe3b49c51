package handler

import (
	dErrors "govengine/pkg/domain-errors"
)

type EvaluateRequest struct {
	Payload map[string]any `json:"payload"`
}

func (r *EvaluateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Payload == nil {
		return dErrors.New(dErrors.CodeValidation, "payload is required")
	}
	return nil
}
