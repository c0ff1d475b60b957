package api

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type TrackResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

type VerifyRequest struct {
	Key string `json:"key"`
}

type VerifyResponse struct {
	Valid bool `json:"valid"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}
