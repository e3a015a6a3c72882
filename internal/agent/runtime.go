// Package agent implements the governed run loop: one user message in, one
// final text out, with budget admission, retries, a single tool-dispatch
// round, circuit accounting, and usage billing around the model calls.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/droverhq/drover/internal/budget"
	"github.com/droverhq/drover/internal/circuit"
	"github.com/droverhq/drover/internal/health"
	"github.com/droverhq/drover/internal/llm"
	"github.com/droverhq/drover/internal/metrics"
	"github.com/droverhq/drover/internal/retry"
	"github.com/droverhq/drover/internal/tool"
)

// User-facing fallback texts. Run never returns an error; every failure mode
// degrades to one of these.
const (
	textBlocked     = "This request cannot be processed right now: the agent is paused or over budget. Please try again later."
	textCallFailed  = "The model call failed after all retries. The issue has been recorded; please try again later."
	textNoProvider  = "No model provider is configured for this agent. Check the LLM_* environment variables."
	textEmptyResult = "The model returned an empty response."
)

// Runtime drives a single named agent. It is safe for concurrent use; all
// shared state lives in the injected collaborators.
type Runtime struct {
	name         string
	model        string
	systemPrompt string

	provider     llm.Provider
	registry     *tool.Registry
	governor     *budget.Governor
	breaker      *circuit.Breaker
	health       *health.Registry
	interactions *InteractionLog
	metrics      *metrics.Metrics
	attempts     int
}

// Options carries the collaborators for NewRuntime. registry, governor,
// breaker, health, interactions, and metrics may be nil; the runtime degrades
// to an unguarded call loop without them.
type Options struct {
	Name         string
	Model        string
	SystemPrompt string
	Provider     llm.Provider
	Registry     *tool.Registry
	Governor     *budget.Governor
	Breaker      *circuit.Breaker
	Health       *health.Registry
	Interactions *InteractionLog
	Metrics      *metrics.Metrics
	// Attempts overrides the retry attempt count. Zero means the default.
	Attempts int
}

// NewRuntime wires a runtime from options.
func NewRuntime(opts Options) *Runtime {
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = retry.DefaultAttempts
	}
	return &Runtime{
		name:         opts.Name,
		model:        opts.Model,
		systemPrompt: opts.SystemPrompt,
		provider:     opts.Provider,
		registry:     opts.Registry,
		governor:     opts.Governor,
		breaker:      opts.Breaker,
		health:       opts.Health,
		interactions: opts.Interactions,
		metrics:      opts.Metrics,
		attempts:     attempts,
	}
}

// Name returns the agent's name.
func (r *Runtime) Name() string { return r.name }

// Run executes one governed interaction and returns the final text. It never
// returns an error: blocked, failed, and empty outcomes all surface as
// explanatory text, and every outcome is written to the interaction log.
func (r *Runtime) Run(ctx context.Context, userMessage, contextNote string) string {
	start := time.Now()

	if r.provider == nil {
		log.Printf("[Agent:%s] No provider configured", r.name)
		return textNoProvider
	}

	messages := r.buildMessages(userMessage, contextNote)
	estimate := estimateMessages(messages)

	if r.governor != nil && !r.governor.CheckBudget(r.name, estimate) {
		r.metrics.ModelCall(r.name, "blocked")
		r.logInteraction(InteractionRecord{
			Status:    StatusBlocked,
			Message:   truncate(userMessage, 500),
			Response:  textBlocked,
			LatencyMs: time.Since(start).Milliseconds(),
		})
		return textBlocked
	}

	tools := r.toolDefinitions()

	resp, err := retry.Do(ctx, r.attempts, func(ctx context.Context) (llm.Response, error) {
		return r.provider.CallWithTools(ctx, messages, tools)
	})
	if err != nil {
		return r.fail(start, userMessage, err, 0, 0)
	}
	r.metrics.ModelCall(r.name, "ok")

	usage := resp.Usage
	toolCalls := len(resp.Message.ToolCalls)

	// A single dispatch round: execute the requested tools, feed the results
	// back, and ask for the final answer without offering tools again.
	if toolCalls > 0 {
		messages = append(messages, resp.Message)
		messages = append(messages, r.executeTools(ctx, resp.Message.ToolCalls)...)

		followUp, err := retry.Do(ctx, r.attempts, func(ctx context.Context) (llm.Response, error) {
			return r.provider.Call(ctx, messages)
		})
		if err != nil {
			// The first call's tokens were really consumed; bill them and
			// carry them on the failed record so ledger and log agree.
			prompt, completion := r.recordUsage(messages, "", usage, estimate)
			return r.fail(start, userMessage, err, prompt, completion)
		}
		r.metrics.ModelCall(r.name, "ok")
		usage.PromptTokens += followUp.Usage.PromptTokens
		usage.CompletionTokens += followUp.Usage.CompletionTokens
		resp = followUp
	}

	text := resp.Message.Content
	if text == "" {
		text = textEmptyResult
	}

	prompt, completion := r.recordUsage(messages, text, usage, estimate)
	r.recordHealth()
	r.logInteraction(InteractionRecord{
		Status:           StatusOK,
		PromptTokens:     prompt,
		CompletionTokens: completion,
		CostUSD:          r.costOf(prompt + completion),
		ToolCalls:        toolCalls,
		Message:          truncate(userMessage, 500),
		Response:         truncate(text, 2000),
		LatencyMs:        time.Since(start).Milliseconds(),
	})
	return text
}

// buildMessages assembles the prompt: system prompt, optional context note as
// a second system message, then the user message.
func (r *Runtime) buildMessages(userMessage, contextNote string) []llm.Message {
	messages := make([]llm.Message, 0, 3)
	if r.systemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: r.systemPrompt})
	}
	if contextNote != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: "Context: " + contextNote})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userMessage})
	return messages
}

func (r *Runtime) toolDefinitions() []llm.ToolDefinition {
	if r.registry == nil {
		return nil
	}
	return r.registry.GenerateToolDefinitions()
}

// executeTools runs each requested tool sequentially and returns one tool
// message per call. Unknown tools and execution errors become error text in
// the tool message so the follow-up call can explain the failure.
func (r *Runtime) executeTools(ctx context.Context, calls []llm.ToolCall) []llm.Message {
	results := make([]llm.Message, 0, len(calls))
	for _, call := range calls {
		content := r.executeOne(ctx, call)
		results = append(results, llm.Message{
			Role:       llm.RoleTool,
			Content:    content,
			Name:       call.Name,
			ToolCallID: call.ID,
		})
	}
	return results
}

func (r *Runtime) executeOne(ctx context.Context, call llm.ToolCall) (content string) {
	// A panicking tool must not take the run down with it.
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[Agent:%s] Tool %q panicked: %v", r.name, call.Name, rec)
			r.metrics.ToolExecution(call.Name, false)
			content = fmt.Sprintf("Error: tool %q failed unexpectedly", call.Name)
		}
	}()

	if r.registry == nil {
		return fmt.Sprintf("Error: no tools are available to this agent (requested %q)", call.Name)
	}
	t, ok := r.registry.Get(call.Name)
	if !ok {
		r.metrics.ToolExecution(call.Name, false)
		return fmt.Sprintf("Error: unknown tool %q", call.Name)
	}

	log.Printf("[Agent:%s] Executing tool %q", r.name, call.Name)
	result, err := t.Execute(ctx, call.Arguments)
	if err != nil {
		r.metrics.ToolExecution(call.Name, false)
		log.Printf("[Agent:%s] Tool %q failed: %v", r.name, call.Name, err)
		return fmt.Sprintf("Error executing %q: %v", call.Name, err)
	}
	if result.Error != "" {
		r.metrics.ToolExecution(call.Name, false)
		return fmt.Sprintf("Error from %q: %s", call.Name, result.Error)
	}
	r.metrics.ToolExecution(call.Name, true)
	return result.Output
}

// fail records one failed run: circuit accounting, metrics, interaction log.
// prompt and completion carry any usage already billed before the failure
// (zero when the run never got a response).
func (r *Runtime) fail(start time.Time, userMessage string, err error, prompt, completion int) string {
	log.Printf("[Agent:%s] Model call failed after retries: %v", r.name, err)
	r.metrics.ModelCall(r.name, "failed")
	// Caller cancellation is advisory, not an agent failure; the breaker
	// counts only real call failures.
	if r.breaker != nil && !errors.Is(err, context.Canceled) {
		r.breaker.RecordFailure(r.name)
	}
	r.logInteraction(InteractionRecord{
		Status:           StatusFailed,
		PromptTokens:     prompt,
		CompletionTokens: completion,
		CostUSD:          r.costOf(prompt + completion),
		Message:          truncate(userMessage, 500),
		Response:         textCallFailed,
		Error:            err.Error(),
		LatencyMs:        time.Since(start).Milliseconds(),
	})
	return textCallFailed
}

// recordUsage bills the run. API-reported usage wins; when the provider
// reports nothing the heuristic estimate stands in (prompt side from the
// pre-call estimate, completion side from the response text).
func (r *Runtime) recordUsage(messages []llm.Message, responseText string, usage llm.Usage, estimate int) (prompt, completion int) {
	prompt = usage.PromptTokens
	completion = usage.CompletionTokens
	if usage.IsZero() {
		prompt = estimate
		completion = estimateTokens(responseText)
	}
	if r.governor != nil {
		r.governor.RecordUsage(r.name, prompt, completion, r.model)
	}
	return prompt, completion
}

func (r *Runtime) recordHealth() {
	if r.health == nil {
		return
	}
	var tokensToday int64
	if r.governor != nil {
		tokensToday = r.governor.TodaySpend(r.name).Tokens
	}
	r.health.RecordRun(r.name, tokensToday)
}

func (r *Runtime) costOf(tokens int) float64 {
	if r.governor == nil {
		return 0
	}
	// The governor already billed this run; recompute for the log record only.
	return r.governor.CostOf(r.model, tokens)
}

func (r *Runtime) logInteraction(rec InteractionRecord) {
	rec.Agent = r.name
	rec.Model = r.model
	r.interactions.Record(rec)
}
