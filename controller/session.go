package controller

import (
	"net/http"
	"os"

	"seqquest/service"

	"github.com/gin-gonic/gin"
)

var sessionService = service.SessionService{}
var tokenService = service.TokenService{}

// SessionController exposes the administrative surface: inspecting and
// deactivating sessions and conversations.
type SessionController struct{}

// Token exchanges the shared service secret for a bearer token.
func (ctrl SessionController) Token(c *gin.Context) {
	var input struct {
		Secret string `json:"secret" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	if input.Secret != os.Getenv("ACCESS_SECRET") {
		logger.Warnf("[%s] Token request with wrong secret", c.GetString("requestId"))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid secret"})
		return
	}

	td, err := tokenService.CreateToken()
	if err != nil {
		logger.Warnf("[%s] Failed to create token: %s", c.GetString("requestId"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": td.AccessToken})
}

func (ctrl SessionController) List(c *gin.Context) {
	sessions, err := sessionService.ActiveSessions()
	if err != nil {
		logger.Warnf("[%s] Failed to list sessions: %s", c.GetString("requestId"), err)
		status, msg := statusFor(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (ctrl SessionController) Messages(c *gin.Context) {
	conversationID := c.Param("id")
	conversation, messages, err := sessionService.History(conversationID)
	if err != nil {
		logger.Warnf("[%s] Failed to fetch history for conversation %s: %s",
			c.GetString("requestId"), conversationID, err)
		status, msg := statusFor(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation": conversation,
		"messages":     messages,
	})
}

func (ctrl SessionController) Deactivate(c *gin.Context) {
	sessionID := c.Param("id")
	if err := sessionService.Deactivate(sessionID); err != nil {
		logger.Warnf("[%s] Failed to deactivate session %s: %s", c.GetString("requestId"), sessionID, err)
		status, msg := statusFor(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	logger.Infof("[%s] Session %s deactivated", c.GetString("requestId"), sessionID)
	c.JSON(http.StatusOK, gin.H{"message": "Session deactivated"})
}

func (ctrl SessionController) DeactivateConversation(c *gin.Context) {
	conversationID := c.Param("id")
	if err := sessionService.DeactivateConversation(conversationID); err != nil {
		logger.Warnf("[%s] Failed to deactivate conversation %s: %s",
			c.GetString("requestId"), conversationID, err)
		status, msg := statusFor(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	logger.Infof("[%s] Conversation %s deactivated", c.GetString("requestId"), conversationID)
	c.JSON(http.StatusOK, gin.H{"message": "Conversation deactivated"})
}
