package service

import (
	"fmt"

	"seqquest/model"
	"seqquest/platform"
)

var logger = platform.Logger

// MessageItem is one inbound turn supplied by the caller.
type MessageItem struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// QuestionRequest carries the caller-supplied continuation fields. Every
// field is optional; the reconciliation rules decide what gets created
// and what gets reused.
type QuestionRequest struct {
	UserID           string        `json:"user_id"`
	Context          string        `json:"context"`
	SessionID        string        `json:"session_id"`
	ConversationID   string        `json:"conversation_id"`
	PreviousMessages []MessageItem `json:"previous_messages"`
}

// Resolved is the outcome of reconciliation: the owning entities plus the
// full ordered message log after merging the caller's history.
type Resolved struct {
	Session      *model.Session
	Conversation *model.Conversation
	History      []model.Message
}

type ReconcileService struct {
}

// Resolve reconciles the request into a (session, conversation, history)
// triple, creating at most one of each and appending only the suffix of
// previous_messages not already stored. A request carrying only a
// conversation_id anchors the session from the conversation's owner; a
// fresh session is minted only when no anchor exists at all.
func (s *ReconcileService) Resolve(req *QuestionRequest) (*Resolved, error) {
	conversation, err := s.lookupConversation(req)
	if err != nil {
		return nil, err
	}

	session, err := s.resolveSession(req, conversation)
	if err != nil {
		return nil, err
	}

	if conversation == nil {
		conversation, err = s.createConversation(req, session)
		if err != nil {
			return nil, err
		}
	} else if conversation.SessionID != session.ID {
		// a conversation cannot be reassigned to a different session
		return nil, fmt.Errorf("conversation %s belongs to session %s: %w",
			conversation.ID, conversation.SessionID, ErrConflict)
	}

	history, err := model.GetMessages(conversation.ID)
	if err != nil {
		return nil, fmt.Errorf("message log for conversation %s: %w", conversation.ID, ErrStore)
	}

	newEntries := missingSuffix(history, req.PreviousMessages)
	if len(newEntries) > 0 {
		appended, err := model.AppendMessages(conversation.ID, newEntries)
		if err != nil {
			return nil, fmt.Errorf("append to conversation %s: %w", conversation.ID, ErrStore)
		}
		history = append(history, appended...)
	}

	return &Resolved{
		Session:      session,
		Conversation: conversation,
		History:      history,
	}, nil
}

func (s *ReconcileService) lookupConversation(req *QuestionRequest) (*model.Conversation, error) {
	if req.ConversationID == "" {
		return nil, nil
	}
	conversation, err := model.GetConversation(req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", req.ConversationID, ErrStore)
	}
	if conversation == nil {
		return nil, fmt.Errorf("conversation %s: %w", req.ConversationID, ErrNotFound)
	}
	return conversation, nil
}

func (s *ReconcileService) resolveSession(req *QuestionRequest, conversation *model.Conversation) (*model.Session, error) {
	if req.SessionID != "" {
		session, err := model.GetSession(req.SessionID)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", req.SessionID, ErrStore)
		}
		if session == nil {
			return nil, fmt.Errorf("session %s: %w", req.SessionID, ErrNotFound)
		}
		return session, nil
	}

	if req.UserID != "" {
		session, err := model.GetActiveSessionByUser(req.UserID)
		if err != nil {
			return nil, fmt.Errorf("session for user %s: %w", req.UserID, ErrStore)
		}
		if session != nil {
			return session, nil
		}
	}

	// a known conversation anchors its owning session, so continuing by
	// conversation_id alone never mints a fresh session
	if conversation != nil {
		session, err := model.GetSession(conversation.SessionID)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", conversation.SessionID, ErrStore)
		}
		if session == nil {
			return nil, fmt.Errorf("session %s: %w", conversation.SessionID, ErrNotFound)
		}
		return session, nil
	}

	session := &model.Session{
		UserIdentifier: req.UserID,
		Context:        req.Context,
		IsActive:       true,
	}
	if err := model.CreateSession(session); err != nil {
		return nil, fmt.Errorf("create session: %w", ErrStore)
	}
	logger.Infof("Created new session %s for user %q", session.ID, req.UserID)
	return session, nil
}

func (s *ReconcileService) createConversation(req *QuestionRequest, session *model.Session) (*model.Conversation, error) {
	conversation := &model.Conversation{
		SessionID: session.ID,
		Topic:     topicFromContext(req.Context),
		IsActive:  true,
	}
	if err := model.CreateConversation(conversation); err != nil {
		return nil, fmt.Errorf("create conversation: %w", ErrStore)
	}
	logger.Infof("Created new conversation %s under session %s", conversation.ID, session.ID)
	return conversation, nil
}

func topicFromContext(context string) string {
	if context == "" {
		return "New conversation"
	}
	if len(context) > 50 {
		return context[:50]
	}
	return context
}

// missingSuffix returns the entries of incoming that are not already the
// trailing entries of stored, matched by role and content. A client that
// resends exactly the history it was given produces an empty result, so
// the merge is idempotent under repeated identical suffixes.
func missingSuffix(stored []model.Message, incoming []MessageItem) []model.Message {
	overlap := 0
	limit := len(incoming)
	if len(stored) < limit {
		limit = len(stored)
	}
	for n := limit; n > 0; n-- {
		if suffixMatches(stored, incoming[:n]) {
			overlap = n
			break
		}
	}

	entries := make([]model.Message, 0, len(incoming)-overlap)
	for _, item := range incoming[overlap:] {
		entries = append(entries, model.Message{
			Role:    item.Role,
			Content: item.Content,
		})
	}
	return entries
}

func suffixMatches(stored []model.Message, head []MessageItem) bool {
	offset := len(stored) - len(head)
	for i, item := range head {
		if stored[offset+i].Role != item.Role || stored[offset+i].Content != item.Content {
			return false
		}
	}
	return true
}
