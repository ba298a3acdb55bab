package model

import "time"

// Location is a monitored place that results and sessions can belong to.
type Location struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	MaxCapacity int       `json:"max_capacity"`
	Code        string    `json:"location_code"`
	CreatedAt   time.Time `json:"created_at"`
}

// AnalysisSession groups results recorded at one location over a period of time.
type AnalysisSession struct {
	ID              int64      `json:"id"`
	LocationID      int64      `json:"location_id"`
	Name            string     `json:"session_name"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	TotalAnalyses   int        `json:"total_analyses"`
	AvgPeopleCount  float64    `json:"avg_people_count"`
	PeakPeopleCount int        `json:"peak_people_count"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Overcrowded reports whether count exceeds the location capacity.
// A non-positive capacity means the location has no limit.
func (l *Location) Overcrowded(count int) bool {
	return l.MaxCapacity > 0 && count > l.MaxCapacity
}
