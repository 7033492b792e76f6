// Package model holds the records shared between the pipeline, the run
// store and the HTTP API.
package model

import "time"

// RunStatus represents the current state of an analysis run.
type RunStatus string

const (
	RunStatusQueued      RunStatus = "queued"
	RunStatusResolving   RunStatus = "resolving"
	RunStatusMasking     RunStatus = "masking"
	RunStatusCompositing RunStatus = "compositing"
	RunStatusClassifying RunStatus = "classifying"
	RunStatusExporting   RunStatus = "exporting"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
)

// Parameters is the immutable snapshot of the analysis configuration a run
// was started with. Runs are pure functions of these values, so a stored
// run can be reproduced exactly.
type Parameters struct {
	CenterLng       float64   `json:"center_lng"`
	CenterLat       float64   `json:"center_lat"`
	SimplifyMeters  float64   `json:"simplify_meters"`
	StartDate       string    `json:"start_date"`
	EndDate         string    `json:"end_date"`
	MonthFrom       int       `json:"month_from"`
	MonthTo         int       `json:"month_to"`
	MaxCloudPercent float64   `json:"max_cloud_percent"`
	UrbanClass      int       `json:"urban_class"`
	ClassBreaks     []float64 `json:"class_breaks"`
	MeanScale       float64   `json:"mean_scale"`
	MaxPixels       int64     `json:"max_pixels"`
	ExportScale     float64   `json:"export_scale"`
	ExportCRS       string    `json:"export_crs"`
}

// Run represents a single analysis run.
type Run struct {
	ID        string     `json:"id"`
	Params    Parameters `json:"params"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ClassCount is the pixel tally for one intensity class.
type ClassCount struct {
	Class  int    `json:"class"`
	Label  string `json:"label"`
	Pixels int64  `json:"pixels"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	Region           []string      `json:"region"`
	LandcoverScenes  int           `json:"landcover_scenes"`
	ThermalScenes    int           `json:"thermal_scenes"`
	MeanKelvin       float64       `json:"mean_kelvin"`
	MeanPixels       int64         `json:"mean_pixels"`
	UrbanPixels      int64         `json:"urban_pixels"`
	ClassifiedPixels int64         `json:"classified_pixels"`
	ClassCounts      []ClassCount  `json:"class_counts"`
	ExportPath       string        `json:"export_path,omitempty"`
	Phases           []PhaseResult `json:"phases"`
	Error            string        `json:"error,omitempty"`
}

// PhaseStatus represents the state of one pipeline phase.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
)

// RunPhase represents a phase within a stored run.
type RunPhase struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      string       `json:"name"`
	Status    PhaseStatus  `json:"status"`
	Result    *PhaseResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// PhaseResult holds the outcome of one pipeline phase.
type PhaseResult struct {
	Name     string         `json:"name"`
	Status   PhaseStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
