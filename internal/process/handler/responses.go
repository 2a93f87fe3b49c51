package handler

import (
	"govengine/internal/audit"
	"govengine/internal/process/models"
)

type detailResponse struct {
	Instance  *models.Instance      `json:"instance"`
	Steps     []models.StepProgress `json:"steps"`
	Artifacts []models.Artifact     `json:"artifacts"`
	Events    []audit.EventView     `json:"events"`
}

func toDetailResponse(d *models.InstanceDetail) detailResponse {
	return detailResponse{
		Instance:  d.Instance,
		Steps:     d.Steps,
		Artifacts: d.Artifacts,
		Events:    audit.NewEventViews(d.Events),
	}
}
