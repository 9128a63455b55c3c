package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"seqquest/platform"

	"github.com/openai/openai-go"
)

const initialSystemPrompt = `You are an expert question generator for a sequential questioning system.
Your goal is to generate a batch of thoughtful, relevant questions based on the provided context.

These questions should:
1. Be clear, specific, and designed to gather useful information
2. Follow a logical progression, with each question building on previous ones
3. Cover different aspects of the topic to get a comprehensive understanding
4. Be diverse in nature (avoid repetition)
5. Be numbered sequentially
6. Be designed for the user to answer all questions in a single response

For each question, also provide:
- An explanation of why this question is important to ask
- A suggestion for what kind of information to look for in the answer

The user will see all questions at once in a numbered list format, and will be expected to answer all of them in a single response using the same numbering format.`

const followUpProbePrompt = `Based on the context and questions generated so far, determine:
1. Whether more question batches would likely be needed after this one
2. Approximately how many total questions might be appropriate for this topic

Return your answer as JSON with these fields:
- next_batch_needed: boolean
- total_questions_estimated: integer`

const (
	initialBatchSize  = 5
	followUpBatchSize = 3
	// soft budget for a whole conversation, used when the probe fails
	questionBudget = 8
)

// Question is one generated question with its position in the global
// numbering of the conversation.
type Question struct {
	Text       string `json:"question_text"`
	Number     int    `json:"question_number"`
	Importance string `json:"importance_explanation,omitempty"`
	LookFor    string `json:"information_to_look_for,omitempty"`
}

// Batch is the outcome of one generation round.
type Batch struct {
	Questions       []Question
	NextBatchNeeded bool
	EstimatedTotal  int
	Fallback        bool
}

// Generator produces one batch of questions from the conversation so far.
// An exhausted generator reports NextBatchNeeded false rather than an
// error.
type Generator interface {
	Generate(ctx context.Context, history []MessageItem, promptContext string, startNumber int) (*Batch, error)
}

// QuestionService generates question batches through an OpenAI-compatible
// chat completion API.
type QuestionService struct {
	Timeout time.Duration
}

func (s *QuestionService) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return 30 * time.Second
}

func (s *QuestionService) Generate(ctx context.Context, history []MessageItem, promptContext string, startNumber int) (*Batch, error) {
	batchSize := initialBatchSize
	if len(history) > 0 {
		batchSize = followUpBatchSize
	}
	if promptContext == "" {
		promptContext = "General conversation"
	}

	userPrompt := fmt.Sprintf(
		"Context: %s\n\nPrevious messages (if any):\n%s\n\n"+
			"Generate %d sequential questions starting with question #%d. "+
			"Format your response as a JSON array of question objects, each with 'question_text', "+
			"'importance_explanation', and 'information_to_look_for' fields.",
		promptContext, formatHistory(history), batchSize, startNumber)

	content, err := s.complete(ctx, initialSystemPrompt, userPrompt)
	if err != nil {
		logger.Warnf("generation call failed: %s", err)
		return nil, fmt.Errorf("round starting at question %d: %w", startNumber, ErrUpstream)
	}

	questions, parseErr := parseBatch(content, startNumber, batchSize, promptContext)
	batch := &Batch{
		Questions: questions,
		Fallback:  parseErr != nil,
	}
	if parseErr != nil {
		logger.Warnf("unparseable generation output, using fallback questions: %s", parseErr)
		batch.Questions = fallbackQuestions(promptContext, startNumber, batchSize)
	}

	s.probeFollowUp(ctx, batch, promptContext, history, startNumber)
	return batch, nil
}

// probeFollowUp asks the model whether another round is worthwhile. The
// probe is advisory: on any failure the defaults are derived from the
// position against the question budget.
func (s *QuestionService) probeFollowUp(ctx context.Context, batch *Batch, promptContext string, history []MessageItem, startNumber int) {
	endNumber := startNumber + len(batch.Questions) - 1
	batch.NextBatchNeeded = endNumber < questionBudget
	batch.EstimatedTotal = questionBudget
	if endNumber+2 > questionBudget {
		batch.EstimatedTotal = endNumber + 2
	}

	listed := make([]string, 0, len(batch.Questions))
	for _, q := range batch.Questions {
		listed = append(listed, fmt.Sprintf("%d. %s", q.Number, q.Text))
	}
	userPrompt := fmt.Sprintf(
		"Context: %s\n\nPrevious messages:\n%s\n\n"+
			"Current batch of questions (questions %d to %d):\n%s\n\n"+
			"Provide metadata about whether more questions would be needed:",
		promptContext, formatHistory(history), startNumber, endNumber, strings.Join(listed, "\n"))

	content, err := s.complete(ctx, followUpProbePrompt, userPrompt)
	if err != nil {
		logger.Warnf("follow-up probe failed, using defaults: %s", err)
		return
	}

	var probe struct {
		NextBatchNeeded *bool `json:"next_batch_needed"`
		EstimatedTotal  *int  `json:"total_questions_estimated"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &probe); err != nil {
		logger.Warnf("unparseable follow-up probe output, using defaults: %s", err)
		return
	}
	if probe.NextBatchNeeded != nil {
		batch.NextBatchNeeded = *probe.NextBatchNeeded
	}
	if probe.EstimatedTotal != nil {
		batch.EstimatedTotal = *probe.EstimatedTotal
	}
}

func (s *QuestionService) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Messages:    openai.F([]openai.ChatCompletionMessageParamUnion{}),
		Model:       openai.F(platform.LLMModel()),
		Temperature: openai.F(0.7),
	}
	for _, message := range []struct {
		role    openai.ChatCompletionMessageParamRole
		content string
	}{
		{openai.ChatCompletionMessageParamRoleSystem, systemPrompt},
		{openai.ChatCompletionMessageParamRoleUser, userPrompt},
	} {
		var content any = message.content
		params.Messages.Value = append(params.Messages.Value, openai.ChatCompletionMessageParam{
			Role:    openai.F(message.role),
			Content: openai.F(content),
		})
	}

	completion, err := platform.LLMClient.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("empty completion")
	}
	return completion.Choices[0].Message.Content, nil
}

func formatHistory(history []MessageItem) string {
	if len(history) == 0 {
		return "No previous messages"
	}
	lines := make([]string, 0, len(history))
	for _, item := range history {
		role := item.Role
		if role != "" {
			role = strings.ToUpper(role[:1]) + role[1:]
		}
		lines = append(lines, fmt.Sprintf("%s: %s", role, item.Content))
	}
	return strings.Join(lines, "\n")
}

// parseBatch tolerates the usual LLM deviations: fenced output, an object
// wrapping the array under "questions", missing numbering, short or
// overlong batches.
func parseBatch(content string, startNumber, batchSize int, promptContext string) ([]Question, error) {
	payload := stripCodeFence(content)

	var questions []Question
	if err := json.Unmarshal([]byte(payload), &questions); err != nil {
		var wrapper struct {
			Questions []Question `json:"questions"`
		}
		if err := json.Unmarshal([]byte(payload), &wrapper); err != nil || len(wrapper.Questions) == 0 {
			return nil, fmt.Errorf("no question array in output")
		}
		questions = wrapper.Questions
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("empty question array in output")
	}

	for i := range questions {
		if questions[i].Text == "" {
			questions[i].Text = fmt.Sprintf("Question #%d", startNumber+i)
		}
		questions[i].Number = startNumber + i
	}
	if len(questions) > batchSize {
		questions = questions[:batchSize]
	}
	for len(questions) < batchSize {
		questions = append(questions, Question{
			Text:       fmt.Sprintf("Can you provide more details about your %s?", firstWord(promptContext)),
			Number:     startNumber + len(questions),
			Importance: "This will help gather more specific information.",
			LookFor:    "Additional context and clarification.",
		})
	}
	return questions, nil
}

func stripCodeFence(content string) string {
	if idx := strings.Index(content, "```json"); idx >= 0 {
		content = content[idx+len("```json"):]
		if end := strings.Index(content, "```"); end >= 0 {
			content = content[:end]
		}
	} else if idx := strings.Index(content, "```"); idx >= 0 {
		content = content[idx+len("```"):]
		if end := strings.Index(content, "```"); end >= 0 {
			content = content[:end]
		}
	}
	return strings.TrimSpace(content)
}

func firstWord(context string) string {
	fields := strings.Fields(context)
	if len(fields) == 0 {
		return "goals"
	}
	return fields[0]
}

func fallbackQuestions(promptContext string, startNumber, batchSize int) []Question {
	templates := []string{
		fmt.Sprintf("What are your main goals related to %s?", firstWord(promptContext)),
		"What challenges do you anticipate in achieving these goals?",
		"What resources do you have available to help you with these goals?",
		"How will you measure your progress toward these goals?",
	}
	questions := make([]Question, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		text := fmt.Sprintf("What else would you like to share about your %s?", firstWord(promptContext))
		if i < len(templates) {
			text = templates[i]
		}
		questions = append(questions, Question{
			Text:       text,
			Number:     startNumber + i,
			Importance: "This is an essential question to understand your situation.",
			LookFor:    "Specific details and context.",
		})
	}
	return questions
}
