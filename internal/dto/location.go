package dto

// CreateLocationRequest is the body of POST /locations/.
type CreateLocationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	MaxCapacity int    `json:"max_capacity"`
	Code        string `json:"location_code"`
}

// CreateSessionRequest is the body of POST /sessions/.
type CreateSessionRequest struct {
	LocationID int64  `json:"location_id"`
	Name       string `json:"session_name"`
}
