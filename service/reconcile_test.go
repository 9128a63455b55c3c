package service

import (
	"testing"

	"seqquest/model"
	"seqquest/platform"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	platform.InitTestDB()
	model.InstallDB()
}

func seedConversation(t *testing.T, userID string, messages []MessageItem) (*model.Session, *model.Conversation) {
	t.Helper()
	session := &model.Session{UserIdentifier: userID, IsActive: true}
	require.NoError(t, model.CreateSession(session))
	conversation := &model.Conversation{SessionID: session.ID, IsActive: true}
	require.NoError(t, model.CreateConversation(conversation))

	entries := make([]model.Message, 0, len(messages))
	for _, m := range messages {
		entries = append(entries, model.Message{Role: m.Role, Content: m.Content})
	}
	if len(entries) > 0 {
		_, err := model.AppendMessages(conversation.ID, entries)
		require.NoError(t, err)
	}
	return session, conversation
}

func TestResolveCreatesSessionAndConversation(t *testing.T) {
	setupTestDB(t)
	svc := ReconcileService{}

	resolved, err := svc.Resolve(&QuestionRequest{UserID: "u1", Context: "trip planning"})
	require.NoError(t, err)

	assert.NotEmpty(t, resolved.Session.ID)
	assert.Equal(t, "u1", resolved.Session.UserIdentifier)
	assert.NotEmpty(t, resolved.Conversation.ID)
	assert.Equal(t, resolved.Session.ID, resolved.Conversation.SessionID)
	assert.Equal(t, "trip planning", resolved.Conversation.Topic)
	assert.Empty(t, resolved.History)
}

func TestResolveReusesActiveSessionForUser(t *testing.T) {
	setupTestDB(t)
	session, _ := seedConversation(t, "u1", nil)
	svc := ReconcileService{}

	resolved, err := svc.Resolve(&QuestionRequest{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, session.ID, resolved.Session.ID)
}

func TestResolveSessionNotFound(t *testing.T) {
	setupTestDB(t)
	svc := ReconcileService{}

	_, err := svc.Resolve(&QuestionRequest{SessionID: "ghost"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "ghost")
}

func TestResolveConversationNotFound(t *testing.T) {
	setupTestDB(t)
	session, _ := seedConversation(t, "u1", nil)
	svc := ReconcileService{}

	_, err := svc.Resolve(&QuestionRequest{SessionID: session.ID, ConversationID: "ghost"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "ghost")
}

func TestResolveConversationConflict(t *testing.T) {
	setupTestDB(t)
	_, conversation := seedConversation(t, "u1", nil)
	other := &model.Session{UserIdentifier: "u2", IsActive: true}
	require.NoError(t, model.CreateSession(other))
	svc := ReconcileService{}

	_, err := svc.Resolve(&QuestionRequest{
		SessionID:      other.ID,
		ConversationID: conversation.ID,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), conversation.ID)
}

func TestResolveExactResendAppendsNothing(t *testing.T) {
	setupTestDB(t)
	history := []MessageItem{
		{Role: model.RoleUser, Content: "I need help planning my schedule."},
		{Role: model.RoleAssistant, Content: "What are your main goals?"},
	}
	session, conversation := seedConversation(t, "u1", history)
	svc := ReconcileService{}

	resolved, err := svc.Resolve(&QuestionRequest{
		SessionID:        session.ID,
		ConversationID:   conversation.ID,
		PreviousMessages: history,
	})
	require.NoError(t, err)
	assert.Len(t, resolved.History, 2)

	messages, err := model.GetMessages(conversation.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestResolveBareConversationIDAnchorsOwningSession(t *testing.T) {
	setupTestDB(t)
	session, conversation := seedConversation(t, "u1", []MessageItem{
		{Role: model.RoleAssistant, Content: "Q1"},
	})
	svc := ReconcileService{}

	// conversation_id alone must resolve the owning session, not mint
	// a fresh one and then trip the ownership check
	resolved, err := svc.Resolve(&QuestionRequest{
		ConversationID: conversation.ID,
		PreviousMessages: []MessageItem{
			{Role: model.RoleAssistant, Content: "Q1"},
			{Role: model.RoleUser, Content: "A1"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, session.ID, resolved.Session.ID)
	require.Len(t, resolved.History, 2)
	assert.Equal(t, "A1", resolved.History[1].Content)
	assert.Equal(t, 2, resolved.History[1].SequenceNumber)

	sessions, err := model.ListActiveSessions()
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestResolveAppendsOnlyNewSuffix(t *testing.T) {
	setupTestDB(t)
	session, conversation := seedConversation(t, "u1", []MessageItem{
		{Role: model.RoleAssistant, Content: "Q1"},
	})
	svc := ReconcileService{}

	resolved, err := svc.Resolve(&QuestionRequest{
		SessionID:      session.ID,
		ConversationID: conversation.ID,
		PreviousMessages: []MessageItem{
			{Role: model.RoleAssistant, Content: "Q1"},
			{Role: model.RoleUser, Content: "A1"},
		},
	})
	require.NoError(t, err)
	require.Len(t, resolved.History, 2)
	assert.Equal(t, "A1", resolved.History[1].Content)
	assert.Equal(t, 2, resolved.History[1].SequenceNumber)
}

func TestResolveAppendsExtendingEntriesWithGaplessSequence(t *testing.T) {
	setupTestDB(t)
	stored := []MessageItem{
		{Role: model.RoleUser, Content: "m1"},
		{Role: model.RoleAssistant, Content: "m2"},
		{Role: model.RoleUser, Content: "m3"},
	}
	session, conversation := seedConversation(t, "u1", stored)
	svc := ReconcileService{}

	resolved, err := svc.Resolve(&QuestionRequest{
		SessionID:      session.ID,
		ConversationID: conversation.ID,
		PreviousMessages: append(stored,
			MessageItem{Role: model.RoleAssistant, Content: "m4"},
			MessageItem{Role: model.RoleUser, Content: "m5"},
		),
	})
	require.NoError(t, err)
	require.Len(t, resolved.History, 5)
	for i, m := range resolved.History {
		assert.Equal(t, i+1, m.SequenceNumber)
	}
	assert.Equal(t, "m4", resolved.History[3].Content)
	assert.Equal(t, "m5", resolved.History[4].Content)
}

func TestMissingSuffix(t *testing.T) {
	stored := []model.Message{
		{Role: model.RoleUser, Content: "a"},
		{Role: model.RoleAssistant, Content: "b"},
	}

	cases := []struct {
		name     string
		incoming []MessageItem
		want     []string
	}{
		{"empty incoming", nil, nil},
		{"exact resend", []MessageItem{{Role: "user", Content: "a"}, {Role: "assistant", Content: "b"}}, nil},
		{"trailing overlap", []MessageItem{{Role: "assistant", Content: "b"}, {Role: "user", Content: "c"}}, []string{"c"}},
		{"no overlap", []MessageItem{{Role: "user", Content: "x"}}, []string{"x"}},
		{"repeated content appends once", []MessageItem{{Role: "assistant", Content: "b"}, {Role: "assistant", Content: "b"}}, []string{"b"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entries := missingSuffix(stored, tc.incoming)
			got := make([]string, 0, len(entries))
			for _, e := range entries {
				got = append(got, e.Content)
			}
			if len(tc.want) == 0 {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}
