package main

import (
	"net/http"

	"telnyx-agent/internal/fax"
	"telnyx-agent/internal/httpapi"
	"telnyx-agent/internal/journal"
	"telnyx-agent/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, ctrl *session.Controller, faxSvc *fax.Service, jrnl *journal.Service) {
	h := httpapi.Handlers{
		Session: ctrl,
		Fax:     faxSvc,
		Journal: jrnl,
	}

	r.GET("/healthz", func(c *gin.Context) {
		snap := ctrl.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"connection": snap.Connection,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	call := r.Group("/call")
	{
		call.GET("/state", h.CallState)
		call.POST("/place", h.PlaceCall)
		call.POST("/answer", h.Answer)
		call.POST("/reject", h.Reject)
		call.POST("/hangup", h.Hangup)
		call.POST("/mute", h.SetMute)
		call.POST("/dtmf", h.SendDTMF)
	}

	faxGroup := r.Group("/fax")
	{
		faxGroup.GET("", h.FaxList)
		faxGroup.POST("/send", h.SendFax)
		faxGroup.GET("/:id", h.FaxStatus)
	}

	r.GET("/journal", h.JournalRecent)
}
