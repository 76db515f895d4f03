package fax

// Status is the backend-reported state of a fax job. The backend owns the
// vocabulary; values here are the ones observed, and unknown values pass
// through for display.
type Status string

const (
	StatusQueued         Status = "queued"
	StatusMediaProcessed Status = "media.processed"
	StatusSending        Status = "sending"
	StatusDelivered      Status = "delivered"
	StatusFailed         Status = "failed"
	StatusReceiving      Status = "receiving"
	StatusReceived       Status = "received"
	StatusCanceled       Status = "canceled"
)

// Job is one fax transmission as reported by the backend. Records are
// fetched fresh on every lookup and displayed verbatim; only field names are
// normalized (see Normalize), not values. Timestamps stay strings because
// the backend emits more than one format.
type Job struct {
	ID        string `json:"id"`
	Direction string `json:"direction,omitempty"`
	Status    Status `json:"status"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`

	PageCount     int    `json:"page_count,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	MediaURL      string `json:"media_url,omitempty"`
	PreviewURL    string `json:"preview_url,omitempty"`

	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}
