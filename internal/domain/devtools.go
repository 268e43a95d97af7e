package domain

// ============================================================
// Dev Tools: endpoints for development/testing
// ============================================================

// DevProStatusRequest is the body for POST /v1/dev/accounts/{accountId}/pro-status.
type DevProStatusRequest struct {
	Approved bool `json:"approved"`
}

// DevProStatusResponse is returned by POST /v1/dev/accounts/{accountId}/pro-status.
type DevProStatusResponse struct {
	Success bool     `json:"success"`
	Account *Account `json:"account"`
	Message string   `json:"message"`
}
