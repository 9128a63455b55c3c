package service

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"seqquest/model"
)

type SessionService struct {
}

func (s *SessionService) ActiveSessions() ([]model.Session, error) {
	sessions, err := model.ListActiveSessions()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", ErrStore)
	}
	return sessions, nil
}

// History returns the full ordered message log of a conversation.
func (s *SessionService) History(conversationID string) (*model.Conversation, []model.Message, error) {
	conversation, err := model.GetConversation(conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("conversation %s: %w", conversationID, ErrStore)
	}
	if conversation == nil {
		return nil, nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	messages, err := model.GetMessages(conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("message log for conversation %s: %w", conversationID, ErrStore)
	}
	return conversation, messages, nil
}

func (s *SessionService) Deactivate(sessionID string) error {
	session, err := model.DeactivateSession(sessionID)
	if err != nil {
		return fmt.Errorf("deactivate session %s: %w", sessionID, ErrStore)
	}
	if session == nil {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

func (s *SessionService) DeactivateConversation(conversationID string) error {
	conversation, err := model.DeactivateConversation(conversationID)
	if err != nil {
		return fmt.Errorf("deactivate conversation %s: %w", conversationID, ErrStore)
	}
	if conversation == nil {
		return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	return nil
}

// CleanupIdle deactivates sessions with no activity inside the window.
func (s *SessionService) CleanupIdle(idleFor time.Duration) (int64, error) {
	count, err := model.DeactivateIdleSessions(time.Now().Add(-idleFor))
	if err != nil {
		return 0, fmt.Errorf("idle cleanup: %w", ErrStore)
	}
	return count, nil
}

// CleanupIdleSessionsTask is the scheduled entry point wired into cron.
func CleanupIdleSessionsTask() {
	logger.Infof("[%s] Start scheduled task CleanupIdleSessionsTask", "scheduled task")
	startTime := time.Now()

	idleHours := 72
	if v := os.Getenv("SESSION_IDLE_HOURS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			idleHours = parsed
		}
	}

	sessionService := SessionService{}
	count, err := sessionService.CleanupIdle(time.Duration(idleHours) * time.Hour)
	if err != nil {
		logger.Warnf("[%s] idle session cleanup error, %s", "scheduled task", err)
		return
	}

	logger.Infof("[%s] Finished scheduled task CleanupIdleSessionsTask, deactivated %d sessions, cost %v",
		"scheduled task", count, time.Since(startTime))
}
