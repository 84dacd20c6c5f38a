package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"nyayasetu-backend/generation"
	"nyayasetu-backend/logger"
	"nyayasetu-backend/metrics"
	"nyayasetu-backend/models"
)

const (
	StrategyRAG    = "rag"
	StrategyDirect = "direct"
	StrategyStatic = "static"

	contextSeparator = "\n\n---\n\n"
	maxSources       = 5
)

var (
	ErrNoContext      = errors.New("no relevant context retrieved")
	ErrBudgetExceeded = errors.New("answer budget exhausted")
)

// AnswerRequest is one chat turn
type AnswerRequest struct {
	Query   string
	Context *models.ConversationContext
}

// Attempt is the outcome of one strategy. Skipped means its precondition
// was not met; Err means it ran and failed. Either falls through.
type Attempt struct {
	Response *models.ChatResponse
	Err      error
	Skipped  bool
}

// Strategy is one named rung of the answer ladder
type Strategy struct {
	Name string
	Run  func(ctx context.Context, in answerInput) Attempt
}

type answerInput struct {
	query  string // as asked, used for suggestions and the static table
	prompt string // query plus conversation context
}

// AnswerService answers chat questions through the rag, direct and static
// strategies in that order; the first one to succeed answers.
type AnswerService struct {
	source      SnapshotSource
	generator   generation.Generator
	topK        int
	temperature float32
	maxTokens   int
	callTimeout time.Duration
	queryBudget time.Duration
	minBudget   time.Duration
	logger      zerolog.Logger
	metrics     *metrics.Metrics

	ladder []Strategy
}

type AnswerOption func(*AnswerService)

// AnswerWithGenerator sets the generator; nil disables rag and direct
func AnswerWithGenerator(g generation.Generator) AnswerOption {
	return func(s *AnswerService) {
		s.generator = g
	}
}

func AnswerWithTopK(k int) AnswerOption {
	return func(s *AnswerService) {
		if k > 0 {
			s.topK = k
		}
	}
}

func AnswerWithGenerationParams(temperature float32, maxTokens int) AnswerOption {
	return func(s *AnswerService) {
		s.temperature = temperature
		s.maxTokens = maxTokens
	}
}

// AnswerWithBudgets sets the per-call timeout, the whole-answer budget and
// the least remaining time worth starting a generator call with
func AnswerWithBudgets(call, query, minRemaining time.Duration) AnswerOption {
	return func(s *AnswerService) {
		if call > 0 {
			s.callTimeout = call
		}
		if query > 0 {
			s.queryBudget = query
		}
		if minRemaining >= 0 {
			s.minBudget = minRemaining
		}
	}
}

func AnswerWithLogger(l zerolog.Logger) AnswerOption {
	return func(s *AnswerService) {
		s.logger = logger.Component(l, "answer")
	}
}

func AnswerWithMetrics(m *metrics.Metrics) AnswerOption {
	return func(s *AnswerService) {
		s.metrics = m
	}
}

// NewAnswerService creates an answer service reading from source
func NewAnswerService(source SnapshotSource, opts ...AnswerOption) *AnswerService {
	s := &AnswerService{
		source:      source,
		topK:        5,
		temperature: 0.3,
		maxTokens:   4000,
		callTimeout: 30 * time.Second,
		queryBudget: 60 * time.Second,
		minBudget:   2 * time.Second,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ladder = []Strategy{
		{Name: StrategyRAG, Run: s.retrievalAugmented},
		{Name: StrategyDirect, Run: s.direct},
		{Name: StrategyStatic, Run: s.static},
	}
	return s
}

// Answer never fails: errors from rag and direct fall through to the next
// strategy and the last one is reported in the response's Error field.
func (s *AnswerService) Answer(ctx context.Context, req AnswerRequest) *models.ChatResponse {
	ctx, cancel := context.WithTimeout(ctx, s.queryBudget)
	defer cancel()

	in := answerInput{
		query:  strings.TrimSpace(req.Query),
		prompt: withConversationContext(strings.TrimSpace(req.Query), req.Context),
	}

	var lastErr error
	for _, st := range s.ladder {
		if st.Name != StrategyStatic && !s.hasBudget(ctx) {
			lastErr = errors.Join(lastErr, fmt.Errorf("%w before %s", ErrBudgetExceeded, st.Name))
			s.recordFailure(st.Name, "budget")
			continue
		}

		att := st.Run(ctx, in)
		if att.Skipped {
			s.logger.Debug().Str("strategy", st.Name).Msg("strategy precondition not met")
			continue
		}
		if att.Err != nil {
			lastErr = att.Err
			s.logger.Warn().Err(att.Err).Str("strategy", st.Name).Msg("strategy failed, falling through")
			s.recordFailure(st.Name, failureReason(att.Err))
			continue
		}

		resp := att.Response
		resp.Success = true
		resp.Strategy = st.Name
		if lastErr != nil {
			msg := lastErr.Error()
			resp.Error = &msg
		}
		if s.metrics != nil {
			s.metrics.RecordAnswer(st.Name)
		}
		return resp
	}

	// static is unconditional, so reaching this is a defect
	s.logger.Error().Err(lastErr).Msg("answer ladder exhausted")
	msg := "answer ladder exhausted"
	if lastErr != nil {
		msg = lastErr.Error()
	}
	return &models.ChatResponse{
		Success:     false,
		Message:     "I encountered an error processing your request.",
		Sources:     []models.Source{},
		Suggestions: []string{},
		Error:       &msg,
	}
}

func (s *AnswerService) hasBudget(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < s.minBudget {
		return false
	}
	return true
}

func (s *AnswerService) retrievalAugmented(ctx context.Context, in answerInput) Attempt {
	if s.generator == nil {
		return Attempt{Skipped: true}
	}
	pin := s.source.Pin()
	if pin.Index == nil {
		return Attempt{Skipped: true}
	}

	retrieveCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	hits, err := pin.Index.Query(retrieveCtx, in.prompt, s.topK)
	cancel()
	if err != nil {
		return Attempt{Err: fmt.Errorf("failed to retrieve context: %w", err)}
	}
	if len(hits) == 0 {
		return Attempt{Err: ErrNoContext}
	}

	blocks := make([]string, len(hits))
	sources := make([]models.Source, 0, min(len(hits), maxSources))
	for i, h := range hits {
		title := firstNonEmpty(h.Metadata["title"], "Unknown")
		docType := firstNonEmpty(h.Metadata["doc_type"], "unknown")
		blocks[i] = fmt.Sprintf("**%s** (%s)\n%s", title, docType, h.Text)
		if i < maxSources {
			sources = append(sources, models.Source{
				Title:     title,
				Content:   excerpt(h.Text, excerptChars),
				DocType:   docType,
				Source:    firstNonEmpty(h.Metadata["source"], "unknown"),
				Score:     h.Similarity,
				Relevance: fmt.Sprintf("%.0f%%", math.Round(h.Similarity*100)),
			})
		}
	}

	text, err := s.generate(ctx, ragSystemPrompt(strings.Join(blocks, contextSeparator)), in.prompt)
	if err != nil {
		return Attempt{Err: err}
	}
	return Attempt{Response: &models.ChatResponse{
		Message:     text,
		Sources:     sources,
		Suggestions: FollowUps(in.query),
	}}
}

func (s *AnswerService) direct(ctx context.Context, in answerInput) Attempt {
	if s.generator == nil {
		return Attempt{Skipped: true}
	}
	text, err := s.generate(ctx, domainSystemPrompt, in.prompt)
	if err != nil {
		return Attempt{Err: err}
	}
	return Attempt{Response: &models.ChatResponse{
		Message:     text,
		Sources:     []models.Source{},
		Suggestions: FollowUps(in.query),
	}}
}

func (s *AnswerService) static(_ context.Context, in answerInput) Attempt {
	return Attempt{Response: staticAnswer(in.query)}
}

func (s *AnswerService) generate(ctx context.Context, system, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	start := time.Now()
	text, err := s.generator.Generate(callCtx, generation.Request{
		System:      system,
		Prompt:      prompt,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	})
	if s.metrics != nil {
		s.metrics.RecordGeneration(s.generator.Name(), time.Since(start))
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", s.generator.Name(), err)
	}
	return text, nil
}

func (s *AnswerService) recordFailure(strategy, reason string) {
	if s.metrics != nil {
		s.metrics.RecordStrategyFailure(strategy, reason)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrNoContext):
		return "no_context"
	default:
		return "error"
	}
}

func withConversationContext(query string, c *models.ConversationContext) string {
	if c == nil {
		return query
	}
	var info strings.Builder
	if c.CompanyName != "" {
		fmt.Fprintf(&info, "\nCompany: %s", c.CompanyName)
	}
	if len(c.Founders) > 0 {
		fmt.Fprintf(&info, "\nFounders: %d founders", len(c.Founders))
	}
	if c.MatterType != "" {
		fmt.Fprintf(&info, "\nDocument Type: %s", c.MatterType)
	}
	if info.Len() == 0 {
		return query
	}
	return query + "\n\nContext:" + info.String()
}

// DocumentAssistance gives drafting guidance for a matter type. Founder
// agreements get a generated walkthrough; other types a short notice.
func (s *AnswerService) DocumentAssistance(ctx context.Context, matterType string, c *models.ConversationContext) *models.ChatResponse {
	if matterType != "founder_agreement" {
		return &models.ChatResponse{
			Success:     true,
			Message:     fmt.Sprintf("Document assistance for %s is available.", matterType),
			Sources:     []models.Source{},
			Suggestions: []string{"What clauses should I include?", "What are common mistakes to avoid?"},
			Strategy:    StrategyStatic,
		}
	}

	company, state, founders := "Unknown", "Unknown", 0
	if c != nil {
		company = firstNonEmpty(c.CompanyName, company)
		state = firstNonEmpty(c.State, state)
		founders = len(c.Founders)
	}
	prompt := fmt.Sprintf(`I need help generating a Founder Agreement for:
- Company: %s
- State: %s
- Number of Founders: %d

Please provide guidance on:
1. Key clauses to include
2. Important considerations for this specific setup
3. Common pitfalls to avoid`, company, state, founders)

	return s.Answer(ctx, AnswerRequest{Query: prompt, Context: c})
}
