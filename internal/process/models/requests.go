package models

import (
	"regexp"
	"strings"
	"unicode/utf8"

	dErrors "govengine/pkg/domain-errors"
)

const (
	MaxArtifactTypeLength = 200
	MaxRefLength          = 500
	DefaultListLimit      = 50
	MaxListLimit          = 200
)

var sha256Hex = regexp.MustCompile(`^[0-9a-f]{64}$`)

type CreateInstanceRequest struct {
	TemplateKey string `json:"template_key"`
	Title       string `json:"title"`
}

func (r *CreateInstanceRequest) Normalize() {
	if r == nil {
		return
	}
	r.TemplateKey = strings.TrimSpace(r.TemplateKey)
	r.Title = strings.TrimSpace(r.Title)
}

// Follows validation order: Size -> Required.
func (r *CreateInstanceRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}

	if utf8.RuneCountInString(r.TemplateKey) > MaxTitleLength {
		return dErrors.New(dErrors.CodeValidation, "template_key must be 200 characters or less")
	}
	if utf8.RuneCountInString(r.Title) > MaxTitleLength {
		return dErrors.New(dErrors.CodeValidation, "title must be 200 characters or less")
	}

	if r.TemplateKey == "" {
		return dErrors.New(dErrors.CodeValidation, "template_key is required")
	}
	if r.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	return nil
}

type SubmitArtifactRequest struct {
	ArtifactType string `json:"artifact_type"`
	Title        string `json:"title,omitempty"`
	RefURL       string `json:"ref_url,omitempty"`
	RefText      string `json:"ref_text,omitempty"`
	SHA256       string `json:"sha256,omitempty"`
}

func (r *SubmitArtifactRequest) Normalize() {
	if r == nil {
		return
	}
	r.ArtifactType = strings.TrimSpace(r.ArtifactType)
	r.Title = strings.TrimSpace(r.Title)
	r.RefURL = strings.TrimSpace(r.RefURL)
	r.RefText = strings.TrimSpace(r.RefText)
	r.SHA256 = strings.ToLower(strings.TrimSpace(r.SHA256))
}

// Follows validation order: Size -> Required -> Syntax.
func (r *SubmitArtifactRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}

	if utf8.RuneCountInString(r.ArtifactType) > MaxArtifactTypeLength {
		return dErrors.New(dErrors.CodeValidation, "artifact_type must be 200 characters or less")
	}
	if utf8.RuneCountInString(r.Title) > MaxTitleLength {
		return dErrors.New(dErrors.CodeValidation, "title must be 200 characters or less")
	}
	if utf8.RuneCountInString(r.RefURL) > MaxRefLength {
		return dErrors.New(dErrors.CodeValidation, "ref_url must be 500 characters or less")
	}
	if utf8.RuneCountInString(r.RefText) > MaxRefLength {
		return dErrors.New(dErrors.CodeValidation, "ref_text must be 500 characters or less")
	}

	if r.ArtifactType == "" {
		return dErrors.New(dErrors.CodeValidation, "artifact_type is required")
	}
	if r.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if r.RefURL == "" && r.RefText == "" {
		return dErrors.New(dErrors.CodeValidation, "either ref_url or ref_text is required")
	}

	if r.SHA256 != "" && !sha256Hex.MatchString(r.SHA256) {
		return dErrors.New(dErrors.CodeValidation, "sha256 must be 64 hex characters")
	}
	return nil
}

// ListInstancesRequest filters the instance listing. Q matches title or
// template key case-insensitively.
type ListInstancesRequest struct {
	Q     string
	Limit int
}

func (r *ListInstancesRequest) Normalize() {
	if r == nil {
		return
	}
	r.Q = strings.TrimSpace(r.Q)
	r.Limit = ClampLimit(r.Limit, DefaultListLimit, MaxListLimit)
}

// ClampLimit applies def when limit is unset and bounds it to 1..max.
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return limit
}
