package service

import (
	"context"
	"fmt"
	"strings"

	"seqquest/model"
)

const (
	minRounds     = 1
	maxRounds     = 3
	defaultRounds = 2
)

// RunOptions control one orchestrated multi-round generation.
type RunOptions struct {
	MaxRounds    int
	AutoFollowUp bool
}

// RoundResult is the outcome of a single generation round.
type RoundResult struct {
	Questions       []Question `json:"questions"`
	CurrentQuestion string     `json:"current_question"`
	StartingNumber  int        `json:"current_question_number"`
	NextBatchNeeded bool       `json:"next_batch_needed"`
	EstimatedTotal  int        `json:"total_questions_estimated"`
	Fallback        bool       `json:"fallback_generation,omitempty"`
}

// RunResult aggregates every round, with questions numbered globally
// across round boundaries.
type RunResult struct {
	Initial         *RoundResult
	FollowUps       []*RoundResult
	AllCombined     string
	TotalQuestions  int
	RoundsGenerated int
	Partial         bool
}

// OrchestratorService drives up to three rounds of question generation
// against a reconciled conversation.
type OrchestratorService struct {
	Generator Generator
	Index     SimilarityIndex
}

// ClampRounds forces the requested round count into [1,3]; zero selects
// the default of 2. Out-of-range values are clamped, not rejected.
func ClampRounds(requested int) int {
	if requested == 0 {
		return defaultRounds
	}
	if requested < minRounds {
		return minRounds
	}
	if requested > maxRounds {
		return maxRounds
	}
	return requested
}

// Run generates up to opts.MaxRounds rounds of questions for the resolved
// conversation. Each round's primary question is appended to the message
// log as an assistant turn and fed forward as the next round's history;
// no user turn is fabricated in between. A failure on round one fails the
// request; a failure on a later round returns the rounds completed so far
// with Partial set.
func (o *OrchestratorService) Run(ctx context.Context, resolved *Resolved, requestContext string, opts RunOptions) (*RunResult, error) {
	rounds := ClampRounds(opts.MaxRounds)

	history := historyItems(resolved.History)
	promptContext := o.enhanceContext(ctx, requestContext, history)

	questionCount, err := model.CountQuestions(resolved.Conversation.ID)
	if err != nil {
		return nil, fmt.Errorf("question count for conversation %s: %w", resolved.Conversation.ID, ErrStore)
	}
	nextNumber := questionCount + 1

	result := &RunResult{}
	var allQuestions []Question

	for round := 1; round <= rounds; round++ {
		batch, err := o.Generator.Generate(ctx, history, promptContext, nextNumber)
		if err != nil {
			if round == 1 {
				return nil, err
			}
			logger.Warnf("round %d generation failed for conversation %s, returning partial result: %s",
				round, resolved.Conversation.ID, err)
			result.Partial = true
			break
		}
		if len(batch.Questions) == 0 {
			// an empty batch is exhaustion, not an error
			break
		}

		primary := batch.Questions[0].Text
		if _, err := model.AppendMessages(resolved.Conversation.ID, []model.Message{
			{Role: model.RoleAssistant, Content: primary, Metadata: questionMetadata(batch.Questions[0])},
		}); err != nil {
			return nil, fmt.Errorf("append question to conversation %s: %w", resolved.Conversation.ID, ErrStore)
		}
		for _, q := range batch.Questions {
			o.Index.IndexQuestion(ctx, q.Text, resolved.Conversation.ID, resolved.Session.ID)
		}

		roundResult := &RoundResult{
			Questions:       batch.Questions,
			CurrentQuestion: renderNumbered(batch.Questions),
			StartingNumber:  nextNumber,
			NextBatchNeeded: batch.NextBatchNeeded,
			EstimatedTotal:  batch.EstimatedTotal,
			Fallback:        batch.Fallback,
		}
		if round == 1 {
			result.Initial = roundResult
		} else {
			result.FollowUps = append(result.FollowUps, roundResult)
		}
		result.RoundsGenerated++
		allQuestions = append(allQuestions, batch.Questions...)
		nextNumber += len(batch.Questions)

		if !opts.AutoFollowUp || !batch.NextBatchNeeded {
			break
		}
		history = append(history, MessageItem{Role: model.RoleAssistant, Content: primary})
	}

	result.AllCombined = renderNumbered(allQuestions)
	result.TotalQuestions = len(allQuestions)
	return result, nil
}

// enhanceContext appends similarity hints for the last user turn. Hints
// only apply when the request carries both history and a context.
func (o *OrchestratorService) enhanceContext(ctx context.Context, requestContext string, history []MessageItem) string {
	if requestContext == "" || len(history) == 0 {
		return requestContext
	}
	lastUser := ""
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == model.RoleUser {
			lastUser = history[i].Content
			break
		}
	}
	if lastUser == "" {
		return requestContext
	}

	hints := o.Index.SimilarContexts(ctx, lastUser, 3)
	if len(hints) == 0 {
		return requestContext
	}
	lines := make([]string, 0, len(hints))
	for _, hint := range hints {
		lines = append(lines, "- "+hint)
	}
	return requestContext + "\n\nAdditional relevant information:\n" + strings.Join(lines, "\n")
}

func historyItems(messages []model.Message) []MessageItem {
	items := make([]MessageItem, 0, len(messages))
	for _, m := range messages {
		items = append(items, MessageItem{Role: m.Role, Content: m.Content})
	}
	return items
}

func renderNumbered(questions []Question) string {
	lines := make([]string, 0, len(questions))
	for _, q := range questions {
		lines = append(lines, fmt.Sprintf("%d. %s", q.Number, q.Text))
	}
	return strings.Join(lines, "\n")
}

func questionMetadata(q Question) string {
	return fmt.Sprintf(`{"generated":true,"question_number":%d}`, q.Number)
}
