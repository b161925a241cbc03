// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/silohub/chat/internal/history"
	"github.com/silohub/chat/internal/metrics"
	"github.com/silohub/chat/internal/model"
	"github.com/silohub/chat/internal/state"
	"github.com/silohub/chat/internal/stream"
	"github.com/silohub/chat/internal/transport"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Transport sends a prompt and returns the unread response.
type Transport interface {
	SendPrompt(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// Config holds controller settings.
type Config struct {
	// ExchangeTimeout cancels an exchange that runs longer (0 = no limit)
	ExchangeTimeout time.Duration

	// ChunkSize is the stream read size (0 = decoder default)
	ChunkSize int

	// MaxRecordSize bounds one stream record (0 = decoder default)
	MaxRecordSize int
}

// DeltaFunc receives assistant text as it streams in.
type DeltaFunc func(exchangeID, answerID, text string)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) {
		c.log = l.With().Str("component", "chat").Logger()
	}
}

// WithMetrics records exchange metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithConfig sets controller settings.
func WithConfig(cfg Config) Option {
	return func(c *Controller) {
		c.cfg = cfg
	}
}

// WithDeltaHandler streams assistant text to fn as it arrives.
func WithDeltaHandler(fn DeltaFunc) Option {
	return func(c *Controller) {
		c.onDelta = fn
	}
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller runs prompt exchanges against the completion service and merges
// their results into the state store.
//
// Send may be called concurrently. Each call owns its own aggregation state
// and cancellation; results are merged into the shared store in completion
// order.
type Controller struct {
	transport Transport
	store     *state.Store
	sync      *history.Sync
	log       zerolog.Logger
	metrics   *metrics.Metrics
	cfg       Config
	onDelta   DeltaFunc

	mu   sync.Mutex
	live map[string]*exchange
}

// NewController creates a controller. A nil sync keeps history in memory.
func NewController(t Transport, st *state.Store, hs *history.Sync, opts ...Option) *Controller {
	if hs == nil {
		hs = history.NewSync(nil, st)
	}
	c := &Controller{
		transport: t,
		store:     st,
		sync:      hs,
		log:       zerolog.Nop(),
		live:      make(map[string]*exchange),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the state store.
func (c *Controller) Store() *state.Store {
	return c.store
}

// Live returns the number of exchanges in flight.
func (c *Controller) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// Send runs one exchange. An empty conversationID starts a new conversation.
//
// Runtime failures never surface as the returned error; they are recorded in
// the conversation and reported through Result.Outcome. The error is reserved
// for invalid arguments.
func (c *Controller) Send(ctx context.Context, prompt model.Content, conversationID string) (*Result, error) {
	if prompt.IsEmpty() {
		return nil, ErrEmptyPrompt
	}

	serverSide := c.sync.ServerManaged()
	ex := &exchange{
		id:    model.NewID(),
		begin: time.Now(),
		user:  model.NewUserMessage(prompt),
		isNew: conversationID == "",
	}
	ex.agg = NewAggregator(c.store.SetExecResults, c.deltaSink(ex.id))
	log := c.log.With().Str("exchange", ex.id).Logger()

	// Sending
	ex.setState(StateSending)
	conv, ok := c.appendUser(ex, conversationID)
	if !ok {
		log.Warn().Str("conversation", conversationID).Msg("conversation not found, prompt dropped")
		return &Result{ExchangeID: ex.id, Outcome: OutcomeSkipped, State: StateIdle}, nil
	}

	exCtx, cancel := c.exchangeContext(ctx)
	ex.cancel = cancel
	c.register(ex)
	defer c.unregister(ex)

	c.store.SetLoading(true, true)
	c.metrics.ExchangeStarted()
	log.Debug().
		Str("conversation", ex.conversationID).
		Bool("new", ex.isNew).
		Bool("server_history", serverSide).
		Msg("sending prompt")

	req := transport.Request{Messages: conv.UpstreamMessages(), WithHistory: serverSide}
	if serverSide {
		if ex.isNew {
			// The server assigns the conversation and reports it in history_metadata.
			req.Messages = []*model.ChatMessage{ex.user}
		} else {
			req.ConversationID = ex.conversationID
		}
	}

	resp, err := c.transport.SendPrompt(exCtx, req)
	if err != nil {
		if aborted(exCtx, err) {
			return c.abort(ex, log), nil
		}
		return c.fail(ctx, ex, log, DefaultErrorMessage, err), nil
	}
	defer resp.Body.Close()

	if !resp.OK() {
		text := rejectedMessage(resp.ErrorMessage(), serverSide)
		return c.fail(ctx, ex, log, text, transport.StatusError(resp)), nil
	}

	// Streaming
	ex.setState(StateStreaming)
	dec := stream.NewDecoder(resp.Body, c.decoderOptions(log)...)
	err = dec.Process(exCtx, func(frag *stream.Fragment) error {
		if err := exCtx.Err(); err != nil {
			return err
		}
		ex.setMetadata(frag.HistoryMetadata)
		if ex.agg.Fold(frag) {
			c.metrics.FirstFragment(time.Since(ex.begin))
			// A delta handler may have stopped generation during the fold.
			if exCtx.Err() == nil {
				c.store.SetLoading(true, false)
			}
		}
		return nil
	})
	stats := dec.Stats()
	c.metrics.StreamConsumed(stats.Records, stats.Bytes)
	log.Debug().
		Int("records", stats.Records).
		Int("skipped", stats.Skipped).
		Int64("bytes", stats.Bytes).
		Msg("stream consumed")

	if err != nil {
		if aborted(exCtx, err) {
			return c.abort(ex, log), nil
		}
		return c.fail(ctx, ex, log, userMessage(err), err), nil
	}
	if errors.Is(exCtx.Err(), context.Canceled) {
		return c.abort(ex, log), nil
	}

	// Finalizing
	if ex.agg.Messages() == nil {
		return c.fail(ctx, ex, log, stream.NoContentMessage, stream.ErrNoContent), nil
	}
	return c.finalize(ctx, ex, log), nil
}

// appendUser adds the user message to the target conversation, creating it
// for new exchanges.
func (c *Controller) appendUser(ex *exchange, conversationID string) (*model.Conversation, bool) {
	if !ex.isNew {
		conv, ok := c.store.AppendMessages(conversationID, ex.user)
		if !ok {
			return nil, false
		}
		ex.conversationID = conv.ID
		return conv, true
	}

	conv := model.NewConversation("", model.TitleFromText(ex.user.Text()))
	conv.AddMessage(ex.user)
	c.store.ReplaceConversation(conv)
	ex.conversationID = conv.ID
	return conv, true
}

// finalize merges the answer into the conversation and persists it.
func (c *Controller) finalize(ctx context.Context, ex *exchange, log zerolog.Logger) *Result {
	ex.setState(StateFinalizing)

	if ex.isNew {
		c.adoptMetadata(ex)
	}

	msgs := ex.agg.Messages()
	conv, ok := c.store.AppendMessages(ex.conversationID, msgs...)
	if !ok {
		// Removed while streaming; nothing safe to append to.
		log.Warn().Str("conversation", ex.conversationID).Msg("conversation removed during exchange, answer dropped")
		return c.finish(ex, &Result{Outcome: OutcomeSkipped, State: StateFinalizing})
	}

	persisted, persistErr := c.sync.Persist(ctx, conv)
	if persisted != nil {
		conv = persisted
	}

	assistant, tool := ex.agg.Result()
	res := &Result{
		Outcome:      OutcomeSuccess,
		State:        StateFinalizing,
		Conversation: conv,
		Assistant:    assistant,
		Tool:         tool,
	}
	if persistErr != nil {
		res.Err = persistErr
		res.Kind = Classify(persistErr)
		c.metrics.StreamError(string(res.Kind))
	}

	log.Info().
		Str("conversation", conv.ID).
		Int("answer_len", len(assistant.Text())).
		Bool("tool", tool != nil).
		Dur("took", time.Since(ex.begin)).
		Msg("exchange complete")
	return c.finish(ex, res)
}

// adoptMetadata moves a new conversation to the id, title and date the
// server assigned.
func (c *Controller) adoptMetadata(ex *exchange) {
	meta := ex.metadata()
	if meta == nil {
		return
	}
	conv, ok := c.store.Conversation(ex.conversationID)
	if !ok {
		return
	}

	if meta.ConversationID != "" && meta.ConversationID != conv.ID {
		c.store.DeleteConversation(conv.ID)
		conv.ID = meta.ConversationID
	}
	if meta.Title != "" {
		conv.Title = meta.Title
	}
	if t := meta.Time(); !t.IsZero() {
		conv.CreatedAt = t
	}
	c.store.ReplaceConversation(conv)
	ex.conversationID = conv.ID
}

// fail records text as an error message and persists the conversation.
func (c *Controller) fail(ctx context.Context, ex *exchange, log zerolog.Logger, text string, cause error) *Result {
	ex.setState(StateErrored)
	kind := Classify(cause)
	c.metrics.StreamError(string(kind))
	log.Error().Err(cause).Str("kind", string(kind)).Msg("exchange failed")

	if ex.isNew {
		c.adoptMetadata(ex)
	}

	errMsg := model.NewErrorMessage(text)
	conv, ok := c.store.AppendMessages(ex.conversationID, errMsg)
	if !ok {
		if !ex.isNew {
			log.Warn().Str("conversation", ex.conversationID).Msg("conversation not found, error not recorded")
			return c.finish(ex, &Result{Outcome: OutcomeSkipped, State: StateErrored, Err: cause, Kind: kind})
		}
		// The first exchange of a conversation that is no longer held.
		conv = model.NewConversation(ex.conversationID, model.TitleFromText(ex.user.Text()))
		conv.AddMessage(ex.user, errMsg)
		c.store.ReplaceConversation(conv)
	}

	if persisted, _ := c.sync.Persist(ctx, conv); persisted != nil {
		conv = persisted
	}

	return c.finish(ex, &Result{
		Outcome:      OutcomeError,
		State:        StateErrored,
		Conversation: conv,
		Err:          cause,
		Kind:         kind,
	})
}

// abort discards partial content. The user message stays; nothing is
// recorded or persisted.
func (c *Controller) abort(ex *exchange, log zerolog.Logger) *Result {
	ex.setState(StateAborted)
	log.Info().Msg("exchange aborted")

	conv, _ := c.store.Conversation(ex.conversationID)
	return c.finish(ex, &Result{
		Outcome:      OutcomeAborted,
		State:        StateAborted,
		Conversation: conv,
		Kind:         KindCancelled,
	})
}

func (c *Controller) finish(ex *exchange, res *Result) *Result {
	res.ExchangeID = ex.id
	c.metrics.ExchangeFinished(res.Outcome.String(), time.Since(ex.begin))
	ex.setState(StateIdle)
	return res
}

// =============================================================================
// CANCELLATION
// =============================================================================

// StopGenerating cancels every live exchange and clears the loading flags
// at once, before the exchanges unwind.
func (c *Controller) StopGenerating() int {
	c.mu.Lock()
	n := len(c.live)
	for _, ex := range c.live {
		ex.cancel()
	}
	c.mu.Unlock()

	c.store.SetLoading(false, false)
	if n > 0 {
		c.log.Info().Int("exchanges", n).Msg("generation stopped")
	}
	return n
}

func (c *Controller) exchangeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.ExchangeTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.ExchangeTimeout)
	}
	return context.WithCancel(ctx)
}

func (c *Controller) register(ex *exchange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live[ex.id] = ex
}

func (c *Controller) unregister(ex *exchange) {
	ex.cancel()

	c.mu.Lock()
	delete(c.live, ex.id)
	idle := len(c.live) == 0
	c.mu.Unlock()

	if idle {
		c.store.SetLoading(false, false)
	}
}

// aborted reports whether err is the result of cancellation rather than a
// failure. Deadlines count as failures.
func aborted(ctx context.Context, err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	return errors.Is(ctx.Err(), context.Canceled)
}

// =============================================================================
// CONVERSATION ACTIONS
// =============================================================================

// NewChat deselects the current conversation so the next Send starts a new
// one.
func (c *Controller) NewChat() {
	c.store.SetCurrent("")
}

// ClearChat removes a conversation's messages. With remote history the
// backend is cleared first; otherwise only local state changes.
func (c *Controller) ClearChat(ctx context.Context, conversationID string) error {
	if c.sync.RemoteEnabled() {
		return c.sync.Clear(ctx, conversationID)
	}
	if !c.store.DeleteMessages(conversationID) {
		return history.ErrNotFound
	}
	return nil
}

// DeleteChat removes a conversation.
func (c *Controller) DeleteChat(ctx context.Context, conversationID string) error {
	return c.sync.Delete(ctx, conversationID)
}

// SetFeedback rates an answer.
func (c *Controller) SetFeedback(ctx context.Context, answerID string, fb model.Feedback) error {
	return c.sync.Feedback(ctx, answerID, fb)
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Controller) deltaSink(exchangeID string) DeltaSink {
	if c.onDelta == nil {
		return nil
	}
	return func(answerID, text string) {
		c.onDelta(exchangeID, answerID, text)
	}
}

func (c *Controller) decoderOptions(log zerolog.Logger) []stream.Option {
	opts := []stream.Option{stream.WithLogger(log)}
	if c.cfg.ChunkSize > 0 {
		opts = append(opts, stream.WithChunkSize(c.cfg.ChunkSize))
	}
	if c.cfg.MaxRecordSize > 0 {
		opts = append(opts, stream.WithMaxRecordSize(c.cfg.MaxRecordSize))
	}
	return opts
}
