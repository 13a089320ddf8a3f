package agentloop

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/martinemde/ssnake/llm"
)

// SessionState is the loop's state machine.
type SessionState string

const (
	StateIdle    SessionState = "idle"
	StateRunning SessionState = "running"
	StateStopped SessionState = "stopped"
)

// StopReason records why a run ended.
type StopReason string

const (
	ReasonTaskComplete     StopReason = "task_complete"
	ReasonModelUnavailable StopReason = "model_unavailable"
	ReasonEmptyResponse    StopReason = "empty_response"
	ReasonBudgetExhausted  StopReason = "budget_exhausted"
	ReasonCancelled        StopReason = "cancelled"
)

// CompletionMarker is printed when a run ends, whatever the reason.
const CompletionMarker = "--- Agent finished ---"

// Completer is the model call the loop depends on. *llm.Client satisfies it.
// A nil response with a nil error is treated as no response.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// SessionConfig holds the loop limits.
type SessionConfig struct {
	MaxIterations       int           `json:"max_iterations"`
	Pacing              time.Duration `json:"pacing"` // minimum gap between model calls; 0 disables
	Verbose             bool          `json:"verbose"`
	EnableLoopDetection bool          `json:"enable_loop_detection"`
	LoopDetectionWindow int           `json:"loop_detection_window"`

	// Output receives model text, usage lines and the completion marker.
	Output io.Writer    `json:"-"`
	Logger *slog.Logger `json:"-"`
}

// DefaultSessionConfig returns the default limits.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxIterations:       50,
		Pacing:              time.Second,
		EnableLoopDetection: true,
		LoopDetectionWindow: DefaultLoopWindow,
	}
}

// RunResult summarizes a finished run.
type RunResult struct {
	Reason     StopReason `json:"reason"`
	Iterations int        `json:"iterations"` // model calls issued
	Usage      llm.Usage  `json:"usage"`

	// Cause is set for model_unavailable and empty_response.
	Cause error `json:"-"`
}

// Session owns one conversation with the model and drives the loop.
type Session struct {
	id         string
	profile    Profile
	client     Completer
	dispatcher *Dispatcher
	config     SessionConfig
	emitter    *EventEmitter
	out        io.Writer
	logger     *slog.Logger
	system     string

	history []Turn
	state   SessionState
	mu      sync.Mutex
}

// NewSession creates a session. A nil config uses DefaultSessionConfig.
func NewSession(profile Profile, client Completer, dispatcher *Dispatcher, config *SessionConfig) *Session {
	cfg := DefaultSessionConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultSessionConfig().MaxIterations
	}
	if cfg.LoopDetectionWindow <= 0 {
		cfg.LoopDetectionWindow = DefaultLoopWindow
	}

	out := cfg.Output
	if out == nil {
		out = io.Discard
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.New().String()
	return &Session{
		id:         id,
		profile:    profile,
		client:     client,
		dispatcher: dispatcher,
		config:     cfg,
		emitter:    NewEventEmitter(id, 256),
		out:        out,
		logger:     logger.With("session_id", id),
		system:     profile.BuildSystemPrompt(dispatcher.Root()),
		state:      StateIdle,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// SystemPrompt returns the instructions sent with every request.
func (s *Session) SystemPrompt() string { return s.system }

// State returns the current state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a copy of the conversation history.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := make([]Turn, len(s.history))
	copy(h, s.history)
	return h
}

// Events returns the event channel for the host application.
func (s *Session) Events() <-chan SessionEvent {
	return s.emitter.Events()
}

// Close closes the event channel.
func (s *Session) Close() {
	s.emitter.Close()
}

func (s *Session) appendTurn(t Turn) {
	s.mu.Lock()
	s.history = append(s.history, t)
	s.mu.Unlock()
}

// Run drives the loop for prompt until the model calls task_complete, the
// model fails, the iteration budget runs out, or ctx is done. Only ctx
// cancellation is returned as an error; every other ending is reported in
// the RunResult.
func (s *Session) Run(ctx context.Context, prompt string) (*RunResult, error) {
	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		return nil, ErrSessionBusy
	}
	s.state = StateRunning
	s.history = []Turn{NewUserTurn(prompt)}
	s.mu.Unlock()

	s.emitter.Emit(EventSessionStart, map[string]interface{}{
		"model":          s.profile.Model,
		"provider":       s.profile.Provider,
		"max_iterations": s.config.MaxIterations,
	})
	s.emitter.Emit(EventUserInput, map[string]interface{}{"content": prompt})
	s.logger.Info("agent run started", "model", s.profile.Model, "max_iterations", s.config.MaxIterations)

	result, err := s.loop(ctx)

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()

	fmt.Fprintf(s.out, "\n%s\n", CompletionMarker)
	s.emitter.Emit(EventSessionEnd, map[string]interface{}{
		"reason":     string(result.Reason),
		"iterations": result.Iterations,
	})
	s.logger.Info("agent run finished",
		"reason", result.Reason,
		"iterations", result.Iterations,
		"input_tokens", result.Usage.InputTokens,
		"output_tokens", result.Usage.OutputTokens,
		"events_dropped", s.emitter.Dropped(),
	)
	return result, err
}

// newLimiter spaces model calls at least Pacing apart, measured start to
// start. Time spent in the model and in tools counts toward the gap.
func (s *Session) newLimiter() *rate.Limiter {
	if s.config.Pacing <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(s.config.Pacing), 1)
}

func (s *Session) loop(ctx context.Context) (*RunResult, error) {
	result := &RunResult{}
	remaining := s.config.MaxIterations
	limiter := s.newLimiter()

	cancelled := func(err error) (*RunResult, error) {
		result.Reason = ReasonCancelled
		s.emitter.Emit(EventError, map[string]interface{}{"error": err.Error()})
		return result, err
	}

	for {
		// The limiter starts with one token, so the first call is immediate.
		if err := limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return cancelled(ctxErr)
			}
			return cancelled(err)
		}

		resp, err := s.client.Complete(ctx, s.buildRequest())
		result.Iterations++
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return cancelled(ctxErr)
			}
			return s.stop(result, ReasonModelUnavailable, fmt.Errorf("%w: %w", ErrModelUnavailable, err),
				"AGENT STOPPING: Model returned no response."), nil
		}
		if resp == nil {
			return s.stop(result, ReasonModelUnavailable, ErrModelUnavailable,
				"AGENT STOPPING: Model returned no response."), nil
		}
		result.Usage = result.Usage.Add(resp.Usage)

		candidate, ok := resp.First()
		if !ok {
			return s.stop(result, ReasonModelUnavailable, ErrModelUnavailable,
				"AGENT STOPPING: Model returned no response."), nil
		}
		if candidate.Message.IsEmpty() && candidate.FinishReason != llm.FinishToolCalls {
			return s.stop(result, ReasonEmptyResponse,
				fmt.Errorf("%w: finish reason %s", ErrEmptyTerminalResponse, candidate.FinishReason),
				fmt.Sprintf("AGENT STOPPING: Model returned empty content. Finish Reason: %s", candidate.FinishReason)), nil
		}

		s.appendTurn(NewAssistantTurn(candidate.Message))
		s.printText(candidate.Message)

		if calls := candidate.Message.ToolCalls(); len(calls) > 0 {
			envelopes, stopped := s.dispatchAll(ctx, calls)
			if stopped {
				result.Reason = ReasonTaskComplete
				return result, nil
			}
			s.appendTurn(NewToolTurn(envelopes))
			s.checkLoop()
		}

		if s.config.Verbose {
			fmt.Fprintf(s.out, "Prompt tokens: %d\n", resp.Usage.InputTokens)
			fmt.Fprintf(s.out, "Response tokens: %d\n", resp.Usage.OutputTokens)
		}

		remaining--
		if remaining <= 0 {
			s.emitter.Emit(EventTurnLimit, map[string]interface{}{"iterations": result.Iterations})
			s.logger.Warn("iteration budget exhausted", "max_iterations", s.config.MaxIterations)
			result.Reason = ReasonBudgetExhausted
			return result, nil
		}
	}
}

// stop records a loop-fatal model outcome.
func (s *Session) stop(result *RunResult, reason StopReason, cause error, message string) *RunResult {
	result.Reason = reason
	result.Cause = cause
	fmt.Fprintln(s.out, message)
	s.emitter.Emit(EventError, map[string]interface{}{
		"reason": string(reason),
		"error":  cause.Error(),
	})
	s.logger.Warn("agent stopping", "reason", reason, "error", cause)
	return result
}

func (s *Session) buildRequest() llm.Request {
	req := llm.Request{
		Model:      s.profile.Model,
		Provider:   s.profile.Provider,
		System:     s.system,
		Messages:   ConvertHistoryToMessages(s.History()),
		ToolDefs:   s.dispatcher.Registry().LLMDefinitions(),
		ToolChoice: &llm.ToolChoice{Mode: "auto"},
	}
	if s.profile.MaxTokens > 0 {
		n := s.profile.MaxTokens
		req.MaxTokens = &n
	}
	return req
}

// printText prints each non-empty text part, trimmed.
func (s *Session) printText(msg llm.Message) {
	for _, part := range msg.Content {
		if part.Kind != llm.ContentText {
			continue
		}
		text := strings.TrimSpace(part.Text)
		if text == "" {
			continue
		}
		fmt.Fprintln(s.out, text)
		s.emitter.Emit(EventAssistantText, map[string]interface{}{"text": text})
	}
}

// dispatchAll runs calls in order. It reports stopped as soon as one
// returns Stop; later calls are not run.
func (s *Session) dispatchAll(ctx context.Context, calls []llm.ToolCall) ([]Envelope, bool) {
	envelopes := make([]Envelope, 0, len(calls))
	for _, call := range calls {
		s.emitter.Emit(EventToolCallStart, map[string]interface{}{
			"tool_name": call.Name,
			"call_id":   call.ID,
		})

		env := s.dispatcher.Dispatch(ctx, call)

		end := map[string]interface{}{
			"tool_name": call.Name,
			"call_id":   call.ID,
		}
		if env.IsError() {
			end["error"] = env.Err.Error()
		} else {
			end["output"] = env.Text()
		}
		s.emitter.Emit(EventToolCallEnd, end)

		if env.IsStop() {
			s.logger.Info("stop signal received", "tool", call.Name)
			return envelopes, true
		}
		envelopes = append(envelopes, env)
	}
	return envelopes, false
}

// checkLoop warns when recent tool calls repeat. History is left as is.
func (s *Session) checkLoop() {
	if !s.config.EnableLoopDetection {
		return
	}
	window := s.config.LoopDetectionWindow
	if !DetectLoop(s.History(), window) {
		return
	}
	msg := fmt.Sprintf("the last %d tool calls follow a repeating pattern", window)
	s.logger.Warn("loop detected", "window", window)
	s.emitter.Emit(EventLoopDetection, map[string]interface{}{"message": msg})
}
