package service

import (
	"context"
	"strings"
	"testing"

	"seqquest/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type generateCall struct {
	history       []MessageItem
	promptContext string
	startNumber   int
}

type fakeGenerator struct {
	batches []*Batch
	errs    []error
	calls   []generateCall
}

func (g *fakeGenerator) Generate(ctx context.Context, history []MessageItem, promptContext string, startNumber int) (*Batch, error) {
	g.calls = append(g.calls, generateCall{
		history:       append([]MessageItem(nil), history...),
		promptContext: promptContext,
		startNumber:   startNumber,
	})
	i := len(g.calls) - 1
	if i < len(g.errs) && g.errs[i] != nil {
		return nil, g.errs[i]
	}
	batch := g.batches[i]
	for j := range batch.Questions {
		batch.Questions[j].Number = startNumber + j
	}
	return batch, nil
}

type fakeIndex struct {
	hints   []string
	indexed []string
}

func (f *fakeIndex) SimilarContexts(ctx context.Context, text string, limit int) []string {
	return f.hints
}

func (f *fakeIndex) IndexQuestion(ctx context.Context, text, conversationID, sessionID string) {
	f.indexed = append(f.indexed, text)
}

func batchOf(next bool, texts ...string) *Batch {
	questions := make([]Question, 0, len(texts))
	for _, text := range texts {
		questions = append(questions, Question{Text: text})
	}
	return &Batch{Questions: questions, NextBatchNeeded: next, EstimatedTotal: 8}
}

func resolve(t *testing.T, req *QuestionRequest) *Resolved {
	t.Helper()
	svc := ReconcileService{}
	resolved, err := svc.Resolve(req)
	require.NoError(t, err)
	return resolved
}

func TestClampRounds(t *testing.T) {
	cases := map[int]int{0: 2, -5: 1, 1: 1, 2: 2, 3: 3, 7: 3, 100: 3}
	for in, want := range cases {
		assert.Equal(t, want, ClampRounds(in), "requested %d", in)
	}
}

func TestRunSingleRound(t *testing.T) {
	setupTestDB(t)
	resolved := resolve(t, &QuestionRequest{UserID: "u1", Context: "trip planning"})
	gen := &fakeGenerator{batches: []*Batch{batchOf(false, "Q1", "Q2")}}
	orch := &OrchestratorService{Generator: gen, Index: &fakeIndex{}}

	result, err := orch.Run(context.Background(), resolved, "trip planning", RunOptions{MaxRounds: 2, AutoFollowUp: true})
	require.NoError(t, err)

	assert.Equal(t, 1, result.RoundsGenerated)
	assert.False(t, result.Partial)
	assert.Equal(t, 2, result.TotalQuestions)
	assert.Equal(t, "1. Q1\n2. Q2", result.AllCombined)
	assert.Empty(t, result.FollowUps)

	// the primary question is the only assistant turn appended
	messages, err := model.GetMessages(resolved.Conversation.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, model.RoleAssistant, messages[0].Role)
	assert.Equal(t, "Q1", messages[0].Content)
}

func TestRunMultiRoundGlobalNumbering(t *testing.T) {
	setupTestDB(t)
	resolved := resolve(t, &QuestionRequest{UserID: "u1", Context: "trip planning"})
	gen := &fakeGenerator{batches: []*Batch{
		batchOf(true, "Q1", "Q2"),
		batchOf(false, "Q3", "Q4"),
	}}
	orch := &OrchestratorService{Generator: gen, Index: &fakeIndex{}}

	result, err := orch.Run(context.Background(), resolved, "trip planning", RunOptions{MaxRounds: 2, AutoFollowUp: true})
	require.NoError(t, err)

	assert.Equal(t, 2, result.RoundsGenerated)
	assert.Equal(t, 4, result.TotalQuestions)
	assert.Equal(t, "1. Q1\n2. Q2\n3. Q3\n4. Q4", result.AllCombined)
	require.Len(t, result.FollowUps, 1)
	assert.Equal(t, 3, result.FollowUps[0].StartingNumber)

	// round two works from the first round's own question, no fabricated
	// user turn in between
	require.Len(t, gen.calls, 2)
	secondHistory := gen.calls[1].history
	require.NotEmpty(t, secondHistory)
	last := secondHistory[len(secondHistory)-1]
	assert.Equal(t, model.RoleAssistant, last.Role)
	assert.Equal(t, "Q1", last.Content)
}

func TestRunPartialOnLaterRoundFailure(t *testing.T) {
	setupTestDB(t)
	resolved := resolve(t, &QuestionRequest{UserID: "u1", Context: "trip planning"})
	gen := &fakeGenerator{
		batches: []*Batch{batchOf(true, "Q1"), nil},
		errs:    []error{nil, ErrUpstream},
	}
	orch := &OrchestratorService{Generator: gen, Index: &fakeIndex{}}

	result, err := orch.Run(context.Background(), resolved, "trip planning", RunOptions{MaxRounds: 2, AutoFollowUp: true})
	require.NoError(t, err)

	assert.True(t, result.Partial)
	assert.Equal(t, 1, result.RoundsGenerated)
	assert.Equal(t, 1, result.TotalQuestions)
	assert.Equal(t, "1. Q1", result.AllCombined)
}

func TestRunFirstRoundFailureFailsRequest(t *testing.T) {
	setupTestDB(t)
	resolved := resolve(t, &QuestionRequest{UserID: "u1", Context: "trip planning"})
	gen := &fakeGenerator{batches: []*Batch{nil}, errs: []error{ErrUpstream}}
	orch := &OrchestratorService{Generator: gen, Index: &fakeIndex{}}

	_, err := orch.Run(context.Background(), resolved, "trip planning", RunOptions{MaxRounds: 3, AutoFollowUp: true})
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestRunStopsOnExhaustion(t *testing.T) {
	setupTestDB(t)
	resolved := resolve(t, &QuestionRequest{UserID: "u1", Context: "trip planning"})
	gen := &fakeGenerator{batches: []*Batch{batchOf(false, "Q1")}}
	orch := &OrchestratorService{Generator: gen, Index: &fakeIndex{}}

	result, err := orch.Run(context.Background(), resolved, "trip planning", RunOptions{MaxRounds: 3, AutoFollowUp: true})
	require.NoError(t, err)

	assert.Equal(t, 1, result.RoundsGenerated)
	assert.False(t, result.Partial)
	assert.Len(t, gen.calls, 1)
}

func TestRunHonorsAutoFollowUpOff(t *testing.T) {
	setupTestDB(t)
	resolved := resolve(t, &QuestionRequest{UserID: "u1", Context: "trip planning"})
	gen := &fakeGenerator{batches: []*Batch{batchOf(true, "Q1")}}
	orch := &OrchestratorService{Generator: gen, Index: &fakeIndex{}}

	result, err := orch.Run(context.Background(), resolved, "trip planning", RunOptions{MaxRounds: 3, AutoFollowUp: false})
	require.NoError(t, err)

	assert.Equal(t, 1, result.RoundsGenerated)
	assert.Len(t, gen.calls, 1)
}

func TestRunContinuesNumberingFromStoredQuestions(t *testing.T) {
	setupTestDB(t)
	resolved := resolve(t, &QuestionRequest{UserID: "u1", Context: "trip planning"})
	_, err := model.AppendMessages(resolved.Conversation.ID, []model.Message{
		{Role: model.RoleAssistant, Content: "old Q1"},
		{Role: model.RoleUser, Content: "old A1"},
		{Role: model.RoleAssistant, Content: "old Q2"},
	})
	require.NoError(t, err)

	gen := &fakeGenerator{batches: []*Batch{batchOf(false, "Q3")}}
	orch := &OrchestratorService{Generator: gen, Index: &fakeIndex{}}

	resolved.History, err = model.GetMessages(resolved.Conversation.ID)
	require.NoError(t, err)

	result, err := orch.Run(context.Background(), resolved, "trip planning", RunOptions{MaxRounds: 1, AutoFollowUp: false})
	require.NoError(t, err)

	require.Len(t, gen.calls, 1)
	assert.Equal(t, 3, gen.calls[0].startNumber)
	assert.Equal(t, "3. Q3", result.AllCombined)
}

func TestRunEnhancesContextWithSimilarityHints(t *testing.T) {
	setupTestDB(t)
	resolved := resolve(t, &QuestionRequest{UserID: "u1", Context: "trip planning"})
	_, err := model.AppendMessages(resolved.Conversation.ID, []model.Message{
		{Role: model.RoleUser, Content: "I want to visit Kyoto."},
	})
	require.NoError(t, err)
	resolved.History, err = model.GetMessages(resolved.Conversation.ID)
	require.NoError(t, err)

	index := &fakeIndex{hints: []string{"Kyoto is best in autumn."}}
	gen := &fakeGenerator{batches: []*Batch{batchOf(false, "Q1")}}
	orch := &OrchestratorService{Generator: gen, Index: index}

	_, err = orch.Run(context.Background(), resolved, "trip planning", RunOptions{MaxRounds: 1, AutoFollowUp: false})
	require.NoError(t, err)

	require.Len(t, gen.calls, 1)
	assert.True(t, strings.Contains(gen.calls[0].promptContext, "Additional relevant information"))
	assert.True(t, strings.Contains(gen.calls[0].promptContext, "Kyoto is best in autumn."))
	assert.Equal(t, []string{"Q1"}, index.indexed)
}
