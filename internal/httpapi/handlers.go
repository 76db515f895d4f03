package httpapi

import (
	"errors"
	"net/http"

	"telnyx-agent/internal/backend"
	"telnyx-agent/internal/fax"
	"telnyx-agent/internal/journal"
	"telnyx-agent/internal/session"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Session *session.Controller
	Fax     *fax.Service
	Journal *journal.Service
}

/* ===================== CALL CONTROL ===================== */

type placeCallRequest struct {
	To string `json:"to"`
}

func (h Handlers) PlaceCall(c *gin.Context) {
	var req placeCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Session.PlaceCall(c.Request.Context(), req.To); err != nil {
		abortWithSessionError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, h.Session.Snapshot())
}

func (h Handlers) Answer(c *gin.Context) {
	if err := h.Session.Answer(c.Request.Context()); err != nil {
		abortWithSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Session.Snapshot())
}

func (h Handlers) Reject(c *gin.Context) {
	if err := h.Session.Reject(c.Request.Context()); err != nil {
		abortWithSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Session.Snapshot())
}

func (h Handlers) Hangup(c *gin.Context) {
	if err := h.Session.Hangup(c.Request.Context()); err != nil {
		abortWithSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Session.Snapshot())
}

type muteRequest struct {
	Muted bool `json:"muted"`
}

func (h Handlers) SetMute(c *gin.Context) {
	var req muteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Session.SetMute(c.Request.Context(), req.Muted); err != nil {
		abortWithSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Session.Snapshot())
}

type dtmfRequest struct {
	Digit string `json:"digit"`
}

func (h Handlers) SendDTMF(c *gin.Context) {
	var req dtmfRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Session.SendDTMF(c.Request.Context(), req.Digit); err != nil {
		abortWithSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": req.Digit})
}

func (h Handlers) CallState(c *gin.Context) {
	c.JSON(http.StatusOK, h.Session.Snapshot())
}

/* ===================== FAX ===================== */

type sendFaxRequest struct {
	To       string `json:"to"`
	MediaURL string `json:"mediaUrl"`
	From     string `json:"from,omitempty"`
}

func (h Handlers) SendFax(c *gin.Context) {
	var req sendFaxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	id, err := h.Fax.Send(c.Request.Context(), req.To, req.MediaURL, req.From)
	if err != nil {
		abortWithFaxError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"fax_id": id})
}

func (h Handlers) FaxStatus(c *gin.Context) {
	job, err := h.Fax.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithFaxError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h Handlers) FaxList(c *gin.Context) {
	jobs, err := h.Fax.List(c.Request.Context())
	if err != nil {
		abortWithFaxError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"faxes": jobs})
}

/* ===================== JOURNAL ===================== */

func (h Handlers) JournalRecent(c *gin.Context) {
	if h.Journal == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "journal not configured"})
		return
	}
	entries, err := h.Journal.Recent(c.Request.Context(), 50)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "journal read failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

/* ===================== ERROR MAPPING ===================== */

func abortWithSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrEmptyDestination), errors.Is(err, session.ErrInvalidDigit):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrNotReady),
		errors.Is(err, session.ErrCallInProgress),
		errors.Is(err, session.ErrNoIncomingCall),
		errors.Is(err, session.ErrNoActiveCall):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrDisposed):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

func abortWithFaxError(c *gin.Context, err error) {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, fax.ErrRecipientRequired),
		errors.Is(err, fax.ErrMediaURLRequired),
		errors.Is(err, fax.ErrIDRequired):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound:
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
