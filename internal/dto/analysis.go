package dto

import "time"

// AnalysisResponse is returned by POST /analyze/.
type AnalysisResponse struct {
	Success        bool    `json:"success"`
	PeopleCount    int     `json:"people_count"`
	ProcessingTime float64 `json:"processing_time"`
	ResultID       int64   `json:"result_id"`
	ImageURL       *string `json:"image_url"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// LiveEvent is pushed to live feed viewers when a result is persisted.
type LiveEvent struct {
	ResultID      int64     `json:"result_id"`
	Filename      string    `json:"filename"`
	FileType      string    `json:"file_type"`
	PeopleCount   int       `json:"people_count"`
	Confidence    float64   `json:"confidence"`
	IsOvercrowded bool      `json:"is_overcrowded"`
	LocationID    *int64    `json:"location_id,omitempty"`
	SessionID     *int64    `json:"session_id,omitempty"`
	ImageURL      *string   `json:"image_url"`
	CreatedAt     time.Time `json:"created_at"`
}
