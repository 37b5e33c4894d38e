package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"fridgemind/internal/inventory"
	"fridgemind/internal/shared"
)

func (s *server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *server) vapidPublicKey(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"publicKey": s.publicKey})
}

type subscribeRequest struct {
	Email        string          `json:"email"`
	Subscription json.RawMessage `json:"subscription"`
}

func (s *server) subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || !hasValue(req.Subscription) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and subscription required"})
		return
	}

	if err := s.store.UpsertSubscription(c.Request.Context(), req.Email, req.Subscription); err != nil {
		s.fail(c, err, "save subscription")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type upsertItemsRequest struct {
	Email string            `json:"email"`
	Items *[]inventory.Item `json:"items"`
}

func (s *server) upsertItems(c *gin.Context) {
	var req upsertItemsRequest
	// Items is a pointer so a missing or non-array field is rejected
	// while an explicit empty array still clears the ledger.
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Items == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and items[] required"})
		return
	}

	if err := s.store.UpsertItems(c.Request.Context(), req.Email, *req.Items); err != nil {
		s.fail(c, err, "save items")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type sendNowRequest struct {
	Email string `json:"email"`
}

func (s *server) sendNow(c *gin.Context) {
	var req sendNowRequest
	// The body is optional: no target means dispatch for everyone.
	_ = c.ShouldBindJSON(&req)

	if req.Email != "" {
		sent, err := s.dispatcher.SendToUser(c.Request.Context(), req.Email)
		if err != nil {
			if shared.IsNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"error": "user or subscription not found"})
				return
			}
			s.fail(c, err, "send for user")
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "sent": sent})
		return
	}

	sent, err := s.dispatcher.SendAll(c.Request.Context())
	if err != nil {
		s.fail(c, err, "send for all users")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "sent": sent})
}

type notifyRequest struct {
	Email string `json:"email"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (s *server) notify(c *gin.Context) {
	var req notifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email required"})
		return
	}

	err := s.dispatcher.NotifyDirect(c.Request.Context(), req.Email, req.Title, req.Body)
	if err != nil {
		if shared.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no subscription found for this email"})
			return
		}
		s.fail(c, err, "direct notify")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type visionRequest struct {
	Image string `json:"image"`
}

func (s *server) vision(c *gin.Context) {
	var req visionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Image == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no image provided"})
		return
	}
	if s.labeler == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "vision labeling unavailable"})
		return
	}

	labels, err := s.labeler.Annotate(c.Request.Context(), req.Image)
	if err != nil {
		s.log.Error("vision request failed", "error", err)
		c.JSON(statusForError(err), gin.H{"error": "vision request failed"})
		return
	}
	if labels == nil {
		labels = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"labels": labels})
}

// fail logs the error and answers with a status derived from its kind.
func (s *server) fail(c *gin.Context, err error, op string) {
	s.log.Error(op+" failed", "error", err)
	c.JSON(statusForError(err), gin.H{"error": op + " failed"})
}

func statusForError(err error) int {
	switch shared.KindOf(err) {
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindUpstream, shared.KindTransport:
		return http.StatusBadGateway
	case shared.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// hasValue reports whether a raw JSON field is present and not null.
func hasValue(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
