package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/deskwise/deskwise/internal/log"
)

// Result is the recorded outcome of one tool invocation.
type Result struct {
	Tool   string
	Output any
	Err    error // tool-level failure; surfaced to the model, not retried
}

// Executor runs tool requests against a Registry and enforces the
// at-most-once rule for side-effecting tools: within one iteration key,
// repeating a side-effecting call with the same input replays the
// recorded Result instead of invoking the tool again. Idempotent tools
// always run.
type Executor struct {
	registry *Registry
	logger   log.Logger

	mu   sync.Mutex
	memo map[string]Result
}

// NewExecutor creates an Executor. A nil logger discards output.
func NewExecutor(registry *Registry, logger log.Logger) *Executor {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Executor{
		registry: registry,
		logger:   logger,
		memo:     make(map[string]Result),
	}
}

// Execute runs one tool request. iterationKey scopes the memoization:
// callers pass a value unique per orchestrator iteration (e.g.
// "{session}:{turn}:{iteration}") so a retried LLM call replays the same
// side effects instead of repeating them.
//
// Unknown tool names return ErrUnknownTool. A tool-level failure is
// returned inside the Result with a nil error, so the caller can feed it
// back to the model for an explicit next decision.
func (e *Executor) Execute(ctx context.Context, iterationKey, name string, input any) (Result, error) {
	tool, err := e.registry.Get(name)
	if err != nil {
		return Result{}, err
	}

	var key string
	if tool.Idempotency() == SideEffecting {
		key, err = memoKey(iterationKey, name, input)
		if err != nil {
			return Result{}, fmt.Errorf("tool %s: %w", name, err)
		}
		e.mu.Lock()
		if prior, ok := e.memo[key]; ok {
			e.mu.Unlock()
			e.logger.Debug("replaying side-effecting tool result",
				"tool", name, "iteration", iterationKey)
			return prior, nil
		}
		e.mu.Unlock()
	}

	output, execErr := tool.Execute(ctx, input)
	result := Result{Tool: name, Output: output, Err: execErr}

	if tool.Idempotency() == SideEffecting {
		e.mu.Lock()
		e.memo[key] = result
		e.mu.Unlock()
	}

	if execErr != nil {
		e.logger.Warn("tool execution failed", "tool", name, "error", execErr)
	} else {
		e.logger.Debug("tool executed", "tool", name, "iteration", iterationKey)
	}
	return result, nil
}

// Forget drops memoized results for an iteration key prefix, typically
// after a turn completes.
func (e *Executor) Forget(iterationKeyPrefix string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k := range e.memo {
		if len(k) >= len(iterationKeyPrefix) && k[:len(iterationKeyPrefix)] == iterationKeyPrefix {
			delete(e.memo, k)
		}
	}
}

// memoKey builds a stable key from the iteration, tool name, and
// canonical JSON of the input.
func memoKey(iterationKey, name string, input any) (string, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("canonicalizing input: %w", err)
	}
	return iterationKey + "\x00" + name + "\x00" + string(raw), nil
}
