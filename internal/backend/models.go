package backend

import "fmt"

// All backend responses use a {data, message?} envelope. A non-2xx status or
// a 2xx without data is an error; the backend message is surfaced when present.

// TokenResponse is the payload of POST /telnyx/webrtc/token.
type TokenResponse struct {
	LoginToken string      `json:"login_token"`
	ICEServers []ICEServer `json:"ice_servers,omitempty"`
}

type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// SendFaxRequest is the body of POST /fax/send.
type SendFaxRequest struct {
	To       string `json:"to"`
	MediaURL string `json:"mediaUrl"`
	From     string `json:"from,omitempty"`
}

// APIError is a backend-reported failure: a non-2xx status, or a success
// status whose envelope carried no data.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend: %s (status %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("backend: request failed (status %d)", e.Status)
}
