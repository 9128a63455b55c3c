package controller

import (
	"errors"
	"net/http"
	"time"

	"seqquest/model"
	"seqquest/platform"
	"seqquest/service"

	"github.com/gin-gonic/gin"
)

var logger = platform.Logger

var reconcileService = service.ReconcileService{}

// orchestrator is package-level so tests can swap the generator and index.
var orchestrator = &service.OrchestratorService{
	Generator: &service.QuestionService{},
	Index:     &service.VectorService{},
}

// QuestionController ...
type QuestionController struct{}

type questionInput struct {
	UserID             string                `json:"user_id"`
	Context            string                `json:"context"`
	SessionID          string                `json:"session_id"`
	ConversationID     string                `json:"conversation_id"`
	PreviousMessages   []service.MessageItem `json:"previous_messages"`
	AutoHandleFollowUp *bool                 `json:"auto_handle_follow_up"`
	MaxRounds          int                   `json:"max_rounds"`
}

func (in *questionInput) request() *service.QuestionRequest {
	return &service.QuestionRequest{
		UserID:           in.UserID,
		Context:          in.Context,
		SessionID:        in.SessionID,
		ConversationID:   in.ConversationID,
		PreviousMessages: in.PreviousMessages,
	}
}

func (in *questionInput) autoFollowUp() bool {
	if in.AutoHandleFollowUp == nil {
		return true
	}
	return *in.AutoHandleFollowUp
}

func validMessages(messages []service.MessageItem) bool {
	for _, m := range messages {
		if m.Role != model.RoleUser && m.Role != model.RoleAssistant {
			return false
		}
		if m.Content == "" {
			return false
		}
	}
	return true
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrUpstream):
		// upstream detail stays in the logs
		return http.StatusBadGateway, service.ErrUpstream.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func singleRoundResponse(resolved *service.Resolved, result *service.RunResult) gin.H {
	round := result.Initial
	if round == nil {
		// generator had no relevant question; exhaustion is not an error
		round = &service.RoundResult{Questions: []service.Question{}}
	}
	return gin.H{
		"current_question":          round.CurrentQuestion,
		"questions":                 round.Questions,
		"conversation_id":           resolved.Conversation.ID,
		"session_id":                resolved.Session.ID,
		"current_question_number":   round.StartingNumber,
		"total_questions_in_batch":  len(round.Questions),
		"total_questions_estimated": round.EstimatedTotal,
		"next_batch_needed":         round.NextBatchNeeded,
		"metadata": gin.H{
			"fallback_generation": round.Fallback,
			"timestamp":           time.Now().Format(time.RFC3339),
		},
	}
}

// Generate handles a single round of question generation.
func (ctrl QuestionController) Generate(c *gin.Context) {
	logger.Infof("[%s] Handling question generation request", c.GetString("requestId"))

	var input questionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		logger.Warnf("[%s] Invalid input, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	if !validMessages(input.PreviousMessages) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "previous_messages entries need a user or assistant role and content"})
		return
	}

	resolved, err := reconcileService.Resolve(input.request())
	if err != nil {
		logger.Warnf("[%s] Reconciliation failed: %s", c.GetString("requestId"), err)
		status, msg := statusFor(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	result, err := orchestrator.Run(c.Request.Context(), resolved, input.Context, service.RunOptions{
		MaxRounds:    1,
		AutoFollowUp: false,
	})
	if err != nil {
		logger.Warnf("[%s] Generation failed for conversation %s: %s",
			c.GetString("requestId"), resolved.Conversation.ID, err)
		status, msg := statusFor(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	logger.Infof("[%s] Generated %d questions for conversation %s",
		c.GetString("requestId"), result.TotalQuestions, resolved.Conversation.ID)
	c.JSON(http.StatusOK, singleRoundResponse(resolved, result))
}

// FollowUp handles a single follow-up round; it requires an existing
// conversation and the user's answers.
func (ctrl QuestionController) FollowUp(c *gin.Context) {
	logger.Infof("[%s] Handling follow-up questions request", c.GetString("requestId"))

	var input questionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		logger.Warnf("[%s] Invalid input, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	if input.ConversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation_id is required for follow-up questions"})
		return
	}
	if len(input.PreviousMessages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "previous_messages with user answers are required for follow-up questions"})
		return
	}
	if !validMessages(input.PreviousMessages) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "previous_messages entries need a user or assistant role and content"})
		return
	}

	resolved, err := reconcileService.Resolve(input.request())
	if err != nil {
		logger.Warnf("[%s] Reconciliation failed for conversation %s: %s",
			c.GetString("requestId"), input.ConversationID, err)
		status, msg := statusFor(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	result, err := orchestrator.Run(c.Request.Context(), resolved, input.Context, service.RunOptions{
		MaxRounds:    1,
		AutoFollowUp: false,
	})
	if err != nil {
		logger.Warnf("[%s] Follow-up generation failed for conversation %s: %s",
			c.GetString("requestId"), resolved.Conversation.ID, err)
		status, msg := statusFor(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, singleRoundResponse(resolved, result))
}

// Automatic handles the multi-round flow: up to max_rounds rounds in one
// call, each fed the previous round's question as history.
func (ctrl QuestionController) Automatic(c *gin.Context) {
	logger.Infof("[%s] Handling automatic questioning request", c.GetString("requestId"))

	var input questionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		logger.Warnf("[%s] Invalid input, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	if !validMessages(input.PreviousMessages) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "previous_messages entries need a user or assistant role and content"})
		return
	}

	resolved, err := reconcileService.Resolve(input.request())
	if err != nil {
		logger.Warnf("[%s] Reconciliation failed: %s", c.GetString("requestId"), err)
		status, msg := statusFor(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	result, err := orchestrator.Run(c.Request.Context(), resolved, input.Context, service.RunOptions{
		MaxRounds:    input.MaxRounds,
		AutoFollowUp: input.autoFollowUp(),
	})
	if err != nil {
		logger.Warnf("[%s] Automatic generation failed for conversation %s: %s",
			c.GetString("requestId"), resolved.Conversation.ID, err)
		status, msg := statusFor(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	logger.Infof("[%s] Automatic flow produced %d questions over %d rounds for conversation %s",
		c.GetString("requestId"), result.TotalQuestions, result.RoundsGenerated, resolved.Conversation.ID)
	c.JSON(http.StatusOK, gin.H{
		"initial_questions":      result.Initial,
		"follow_up_questions":    result.FollowUps,
		"all_questions_combined": result.AllCombined,
		"conversation_id":        resolved.Conversation.ID,
		"session_id":             resolved.Session.ID,
		"total_questions":        result.TotalQuestions,
		"metadata": gin.H{
			"rounds_generated": result.RoundsGenerated,
			"partial":          result.Partial,
			"auto_follow_up":   input.autoFollowUp(),
			"timestamp":        time.Now().Format(time.RFC3339),
		},
	})
}
