// Package orchestrator drives one conversation turn through an explicit
// state machine: ROUTE → RETRIEVE → GENERATE ⇄ TOOL_EXECUTE → DONE/ABORTED.
//
// Every transition appends exactly one message (or a tool-call/tool-result
// pair) to the conversation store before moving on, so the stored log is a
// total order of the interaction. The loop guard bounds tool-call cycles:
// when the iteration budget runs out the turn is forced terminal with a
// best-effort answer instead of an error.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/deskwise/deskwise/internal/log"
	"github.com/deskwise/deskwise/internal/retrieve"
	"github.com/deskwise/deskwise/internal/router"
	"github.com/deskwise/deskwise/internal/session"
	"github.com/deskwise/deskwise/internal/tools"
)

// State names the orchestrator's states. Stored in message metadata for
// auditability.
type State string

const (
	StateRoute       State = "ROUTE"
	StateRetrieve    State = "RETRIEVE"
	StateGenerate    State = "GENERATE"
	StateToolExecute State = "TOOL_EXECUTE"
	StateDone        State = "DONE"
	StateAborted     State = "ABORTED"
)

// NoKnowledgeResponse is the canned answer for a routing miss.
const NoKnowledgeResponse = "No matching knowledge available for this question."

// abortedResponse is the best-effort answer when a budget guard trips.
const abortedResponse = "I could not complete this request within the allotted budget. Please try again or rephrase."

// Defaults applied by New when Config fields are zero.
const (
	DefaultMaxIterations = 4
	DefaultTurnTimeout   = 60 * time.Second
	DefaultTopK          = 5
)

// CategoryRouter classifies a query against the known categories.
type CategoryRouter interface {
	Route(ctx context.Context, query string, known []string) (router.Decision, error)
}

// Retriever fetches deduplicated chunks for a routed category.
type Retriever interface {
	Retrieve(ctx context.Context, category, query string, topK int) ([]retrieve.Result, error)
}

// CategoryLister exposes the known category set per owner.
type CategoryLister interface {
	Categories(ctx context.Context, ownerID string) ([]string, error)
}

// Request is one user turn.
type Request struct {
	OwnerID   string
	SessionID uuid.UUID // Nil starts a new session
	Message   string
	Reset     bool // clear the session's message log before this turn
}

// Citation points at a chunk the answer drew on.
type Citation struct {
	ChunkID string
	Snippet string
}

// Turn is the immutable record of one completed turn.
type Turn struct {
	SessionID    uuid.UUID
	State        State // StateDone or StateAborted
	Answer       string
	Category     string // routed category, "" on a miss
	Routed       bool
	Citations    []Citation
	ToolsInvoked []string
	Iterations   int
}

// Config bounds a turn.
type Config struct {
	MaxIterations int           // GENERATE passes before forcing terminal
	TurnTimeout   time.Duration // covers the whole ROUTE…DONE chain
	TopK          int           // retrieval depth
}

// Orchestrator runs turns. Safe for concurrent use across sessions; a
// single turn's steps run sequentially so message ordering stays
// deterministic.
type Orchestrator struct {
	g          *genkit.Genkit
	model      ai.Model
	router     CategoryRouter
	retriever  Retriever
	categories CategoryLister
	sessions   session.Store
	registry   *tools.Registry
	executor   *tools.Executor
	cfg        Config
	logger     log.Logger
}

// New creates an Orchestrator. Zero Config fields take defaults; a nil
// logger discards output.
func New(
	g *genkit.Genkit,
	model ai.Model,
	categoryRouter CategoryRouter,
	retriever Retriever,
	categories CategoryLister,
	sessions session.Store,
	registry *tools.Registry,
	executor *tools.Executor,
	cfg Config,
	logger log.Logger,
) *Orchestrator {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = DefaultTurnTimeout
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Orchestrator{
		g:          g,
		model:      model,
		router:     categoryRouter,
		retriever:  retriever,
		categories: categories,
		sessions:   sessions,
		registry:   registry,
		executor:   executor,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run executes one turn end to end and returns its record. Component
// failures inside the state machine degrade to terminal states; only
// persistence failures and caller cancellation surface as errors.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Turn, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("empty message")
	}
	if req.SessionID == uuid.Nil {
		req.SessionID = uuid.New()
	}

	sess, err := o.sessions.GetOrCreate(ctx, req.OwnerID, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}
	if req.Reset {
		if err := o.sessions.Reset(ctx, req.OwnerID, sess.ID); err != nil {
			return nil, fmt.Errorf("resetting session: %w", err)
		}
	}

	history, err := o.sessions.Messages(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	// The turn timeout covers the whole ROUTE…DONE chain.
	turnCtx, cancel := context.WithTimeout(ctx, o.cfg.TurnTimeout)
	defer cancel()

	userMsg, err := o.sessions.Append(ctx, sess.ID, session.Message{
		Role:    session.RoleUser,
		Content: req.Message,
	})
	if err != nil {
		return nil, fmt.Errorf("appending user message: %w", err)
	}

	turn := &Turn{SessionID: sess.ID}
	run := &turnRun{
		o:       o,
		ctx:     turnCtx,
		req:     req,
		sess:    sess,
		history: history,
		turnKey: fmt.Sprintf("%s:%d", sess.ID, userMsg.Sequence),
		turn:    turn,
	}
	defer o.executor.Forget(run.turnKey)

	if err := run.execute(); err != nil {
		return nil, err
	}
	return turn, nil
}

// turnRun carries the mutable state of one in-flight turn.
type turnRun struct {
	o       *Orchestrator
	ctx     context.Context
	req     Request
	sess    session.Session
	history []session.Message
	turnKey string
	turn    *Turn

	results  []retrieve.Result
	toolMsgs []*ai.Message // tool results fed into the next GENERATE
}

// execute walks the state machine to a terminal state.
func (r *turnRun) execute() error {
	state := StateRoute
	for {
		var err error
		switch state {
		case StateRoute:
			state, err = r.route()
		case StateRetrieve:
			state, err = r.doRetrieve()
		case StateGenerate:
			state, err = r.generate()
		case StateDone, StateAborted:
			r.turn.State = state
			return nil
		default:
			return fmt.Errorf("invalid state %q", state)
		}
		if err != nil {
			return err
		}
	}
}

// route classifies the query. A miss (or router degradation) short-circuits
// to the canned DONE response without touching the index or any tool.
func (r *turnRun) route() (State, error) {
	known, err := r.o.categories.Categories(r.ctx, r.req.OwnerID)
	if err != nil {
		return "", fmt.Errorf("listing categories: %w", err)
	}

	decision, err := r.o.router.Route(r.ctx, r.req.Message, known)
	if err != nil {
		if r.budgetExceeded(err) {
			return r.abort()
		}
		return "", fmt.Errorf("routing: %w", err)
	}

	if err := r.append(session.Message{
		Role:    session.RoleSystem,
		Content: routeContent(decision),
		Metadata: session.Metadata{
			Category: decision.Category,
			State:    string(StateRoute),
		},
	}); err != nil {
		return "", err
	}

	if decision.None {
		r.o.logger.Debug("routing miss", "session", r.sess.ID, "rationale", decision.Rationale)
		return r.done(NoKnowledgeResponse)
	}

	r.turn.Category = decision.Category
	r.turn.Routed = true
	return StateRetrieve, nil
}

// doRetrieve fetches context chunks for the routed category.
func (r *turnRun) doRetrieve() (State, error) {
	results, err := r.o.retriever.Retrieve(r.ctx, r.turn.Category, r.req.Message, r.o.cfg.TopK)
	if err != nil {
		if r.budgetExceeded(err) {
			return r.abort()
		}
		return "", fmt.Errorf("retrieving: %w", err)
	}
	r.results = results

	chunkIDs := make([]string, len(results))
	for i, res := range results {
		chunkIDs[i] = res.ChunkID
		r.turn.Citations = append(r.turn.Citations, Citation{
			ChunkID: res.ChunkID,
			Snippet: snippet(res.Content),
		})
	}

	if err := r.append(session.Message{
		Role:    session.RoleSystem,
		Content: fmt.Sprintf("retrieved %d chunks from %q", len(results), r.turn.Category),
		Metadata: session.Metadata{
			Category:      r.turn.Category,
			CitedChunkIDs: chunkIDs,
			State:         string(StateRetrieve),
		},
	}); err != nil {
		return "", err
	}

	// An empty category behaves like a routing miss: canned answer, no
	// model call, no tools.
	if len(results) == 0 {
		r.o.logger.Debug("empty retrieval", "session", r.sess.ID, "category", r.turn.Category)
		return r.done(NoKnowledgeResponse)
	}
	return StateGenerate, nil
}

// generate runs one GENERATE pass. Tool requests transition to
// TOOL_EXECUTE (handled inline) and loop back; a plain answer is DONE.
func (r *turnRun) generate() (State, error) {
	r.turn.Iterations++
	if r.turn.Iterations > r.o.cfg.MaxIterations {
		r.o.logger.Warn("iteration budget exceeded",
			"session", r.sess.ID, "iterations", r.turn.Iterations-1)
		return r.abort()
	}

	resp, err := r.generateOnce()
	if err != nil {
		if r.budgetExceeded(err) {
			return r.abort()
		}
		return "", fmt.Errorf("generating: %w", err)
	}

	requests := resp.ToolRequests()
	if len(requests) == 0 {
		return r.done(resp.Text())
	}
	return r.executeTools(requests, resp.Text())
}

// generateOnce calls the model, retrying once on failure. The retry is
// safe: tool calls derived from a prior response within this iteration
// are replayed from the executor's memo, never re-invoked.
func (r *turnRun) generateOnce() (*ai.ModelResponse, error) {
	opts := []ai.GenerateOption{
		ai.WithModel(r.o.model),
		ai.WithSystem(r.systemPrompt()),
		ai.WithMessages(r.modelMessages()...),
		ai.WithReturnToolRequests(true),
	}
	if refs := r.o.registry.Refs(r.o.g); len(refs) > 0 {
		opts = append(opts, ai.WithTools(refs...))
	}

	resp, err := genkit.Generate(r.ctx, r.o.g, opts...)
	if err == nil {
		return resp, nil
	}
	if r.ctx.Err() != nil {
		return nil, err
	}

	r.o.logger.Warn("model call failed, retrying once", "session", r.sess.ID, "error", err)
	return genkit.Generate(r.ctx, r.o.g, opts...)
}

// executeTools runs the TOOL_EXECUTE state: append the tool-call message,
// run every request through the executor, append the paired result
// message, and loop back to GENERATE.
func (r *turnRun) executeTools(requests []*ai.ToolRequest, modelText string) (State, error) {
	names := make([]string, len(requests))
	for i, req := range requests {
		names[i] = req.Name
	}

	if err := r.append(session.Message{
		Role:    session.RoleAssistant,
		Content: fmt.Sprintf("requesting tools: %s", strings.Join(names, ", ")),
		Metadata: session.Metadata{
			ToolName: strings.Join(names, ","),
			State:    string(StateToolExecute),
		},
	}); err != nil {
		return "", err
	}

	iterKey := fmt.Sprintf("%s:%d", r.turnKey, r.turn.Iterations)
	var resultParts []string
	for _, req := range requests {
		result, err := r.o.executor.Execute(r.ctx, iterKey, req.Name, req.Input)
		if err != nil {
			// Unknown tool names are programming errors in the tool
			// definitions, not model misbehavior.
			return "", fmt.Errorf("executing tool %q: %w", req.Name, err)
		}
		r.turn.ToolsInvoked = append(r.turn.ToolsInvoked, req.Name)
		resultParts = append(resultParts, formatToolResult(result))
	}

	resultText := strings.Join(resultParts, "\n")
	if err := r.append(session.Message{
		Role:    session.RoleTool,
		Content: resultText,
		Metadata: session.Metadata{
			ToolName: strings.Join(names, ","),
			State:    string(StateToolExecute),
		},
	}); err != nil {
		return "", err
	}

	// Feed the results into the next GENERATE pass. The model-facing role
	// is user so every provider treats it as fresh turn input.
	if modelText != "" {
		r.toolMsgs = append(r.toolMsgs, modelMessage(modelText))
	}
	r.toolMsgs = append(r.toolMsgs, ai.NewUserMessage(ai.NewTextPart(
		"Tool results:\n"+resultText+"\nAnswer the original question using these results.")))
	return StateGenerate, nil
}

// done appends the final assistant message and terminates the machine.
func (r *turnRun) done(answer string) (State, error) {
	r.turn.Answer = answer
	if err := r.append(session.Message{
		Role:    session.RoleAssistant,
		Content: answer,
		Metadata: session.Metadata{
			Category:      r.turn.Category,
			CitedChunkIDs: citedIDs(r.turn.Citations),
			State:         string(StateDone),
		},
	}); err != nil {
		return "", err
	}
	return StateDone, nil
}

// abort emits the best-effort answer for a tripped budget guard. The
// message append runs outside the expired turn context so the log stays
// complete.
func (r *turnRun) abort() (State, error) {
	r.turn.Answer = abortedResponse
	if err := r.append(session.Message{
		Role:    session.RoleAssistant,
		Content: abortedResponse,
		Metadata: session.Metadata{
			Category: r.turn.Category,
			State:    string(StateAborted),
		},
	}); err != nil {
		return "", err
	}
	return StateAborted, nil
}

// budgetExceeded reports whether err is the turn timeout firing.
func (r *turnRun) budgetExceeded(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || r.ctx.Err() != nil
}

// append writes one message to the conversation store, surviving turn
// timeout so terminal messages always land.
func (r *turnRun) append(msg session.Message) error {
	appendCtx := context.WithoutCancel(r.ctx)
	if _, err := r.o.sessions.Append(appendCtx, r.sess.ID, msg); err != nil {
		return fmt.Errorf("appending %s message: %w", msg.Role, err)
	}
	return nil
}

// systemPrompt assembles the generation instructions with the retrieved
// context.
func (r *turnRun) systemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are a knowledge-base assistant. Answer strictly from the provided context chunks. ")
	sb.WriteString("Cite chunk ids for every claim. If the context does not contain the answer, say the knowledge base has no matching information. ")
	sb.WriteString("Use tools when the question needs computation or an action.\n\n")
	if len(r.results) == 0 {
		sb.WriteString("No context chunks were found for this question.")
		return sb.String()
	}
	sb.WriteString("Context chunks:\n")
	for _, res := range r.results {
		fmt.Fprintf(&sb, "[%s] %s\n", res.ChunkID, res.Content)
	}
	return sb.String()
}

// modelMessages builds the transcript for the model: prior user and
// assistant turns, the current question, then any tool-result feedback
// from this turn.
func (r *turnRun) modelMessages() []*ai.Message {
	var msgs []*ai.Message
	for _, m := range r.history {
		switch m.Role {
		case session.RoleUser:
			msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(m.Content)))
		case session.RoleAssistant:
			// Only surfaced answers matter for context; audit records
			// (tool requests, system transitions) stay out.
			if m.Metadata.State == string(StateDone) || m.Metadata.State == string(StateAborted) || m.Metadata.State == "" {
				msgs = append(msgs, modelMessage(m.Content))
			}
		}
	}
	msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(r.req.Message)))
	msgs = append(msgs, r.toolMsgs...)
	return msgs
}

func modelMessage(text string) *ai.Message {
	return &ai.Message{
		Role:    ai.RoleModel,
		Content: []*ai.Part{ai.NewTextPart(text)},
	}
}

func routeContent(d router.Decision) string {
	if d.None {
		return fmt.Sprintf("routing: none (%s)", d.Rationale)
	}
	return fmt.Sprintf("routing: %s (confidence %.2f)", d.Category, d.Confidence)
}

func citedIDs(citations []Citation) []string {
	if len(citations) == 0 {
		return nil
	}
	out := make([]string, len(citations))
	for i, c := range citations {
		out[i] = c.ChunkID
	}
	return out
}

// formatToolResult renders one executor result for the model and the log.
func formatToolResult(result tools.Result) string {
	if result.Err != nil {
		return fmt.Sprintf("%s: error: %v", result.Tool, result.Err)
	}
	raw, err := json.Marshal(result.Output)
	if err != nil {
		return fmt.Sprintf("%s: %v", result.Tool, result.Output)
	}
	return fmt.Sprintf("%s: %s", result.Tool, raw)
}

// snippet truncates chunk content for citation display, cutting on a
// rune boundary so multi-byte content stays valid UTF-8.
func snippet(content string) string {
	const maxLen = 200
	if len(content) <= maxLen {
		return content
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}
