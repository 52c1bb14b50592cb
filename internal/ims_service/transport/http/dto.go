package http

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DeleteResponse confirms a deleted subscriber.
type DeleteResponse struct {
	Message     string `json:"message"`
	PhoneNumber string `json:"phoneNumber"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}
