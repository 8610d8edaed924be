package nutrition

// Response statuses shared by the lookup service and its client
const (
	StatusFound        = "found"
	StatusNotFound     = "not_found"
	StatusOK           = "ok"
	StatusLimitReached = "limit_reached"
	StatusError        = "error"
)

// LookupRequest asks the service to resolve a code
type LookupRequest struct {
	Code   Code   `json:"code"`
	UserID string `json:"user_id,omitempty"`
}

// Response is the envelope for lookup and analyze answers
type Response struct {
	Status  string   `json:"status"`
	Product *Product `json:"product,omitempty"`
	Limit   int      `json:"limit,omitempty"`
	Used    int      `json:"used,omitempty"`
	Error   string   `json:"error,omitempty"`
}
