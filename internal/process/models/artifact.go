package models

import (
	"time"

	id "govengine/pkg/domain"
)

// Artifact is evidence submitted against the current step of an instance.
// Types outside the step's required set are stored but never count toward
// closure.
type Artifact struct {
	ID                  id.ArtifactID `json:"id"`
	InstanceID          id.InstanceID `json:"instance_id"`
	StepID              string        `json:"step_id"`
	ArtifactType        string        `json:"artifact_type"`
	CountsTowardClosure bool          `json:"counts_toward_closure"`
	Title               string        `json:"title,omitempty"`
	RefURL              string        `json:"ref_url,omitempty"`
	RefText             string        `json:"ref_text,omitempty"`
	SHA256              string        `json:"sha256,omitempty"`
	SubmittedBy         string        `json:"submitted_by"`
	SubmittedAt         time.Time     `json:"submitted_at"`
}

// SeenTypes collects the distinct artifact types of one step.
func SeenTypes(artifacts []Artifact, stepID string) map[string]struct{} {
	seen := make(map[string]struct{}, len(artifacts))
	for _, a := range artifacts {
		if a.StepID == stepID {
			seen[a.ArtifactType] = struct{}{}
		}
	}
	return seen
}
