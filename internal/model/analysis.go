package model

import "time"

// File types stored in analysis_results.file_type.
const (
	FileTypeImage = "image"
	FileTypeVideo = "video"
)

// AnalysisResult represents one completed analysis.
type AnalysisResult struct {
	ID             int64     `json:"id"`
	Filename       string    `json:"filename"`
	FileType       string    `json:"file_type"`
	PeopleCount    int       `json:"people_count"`
	Confidence     float64   `json:"confidence"`
	CreatedAt      time.Time `json:"created_at"`
	ProcessingTime float64   `json:"processing_time"`
	ImagePath      *string   `json:"image_path"`
	LocationID     *int64    `json:"location_id,omitempty"`
	SessionID      *int64    `json:"session_id,omitempty"`
	IsOvercrowded  bool      `json:"is_overcrowded"`
}

// AnalysisResultInput holds the fields supplied when a result is created.
// ID and CreatedAt are assigned by the store.
type AnalysisResultInput struct {
	Filename       string
	FileType       string
	PeopleCount    int
	Confidence     float64
	ProcessingTime float64
	ImagePath      *string
	LocationID     *int64
	SessionID      *int64
	IsOvercrowded  bool
}
