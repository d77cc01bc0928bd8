// Package messaging provides the WhatsApp transports and the loop that feeds
// their inbound messages to the conversation dispatcher.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Alex3496/VetBot/internal/models"
	"github.com/Alex3496/VetBot/internal/store"
	"github.com/Alex3496/VetBot/internal/util"
)

const (
	// DefaultTurnTimeout bounds a single dispatch, outbound calls included.
	DefaultTurnTimeout = 60 * time.Second
	// DefaultSenderQueueSize is the number of pending turns buffered per sender.
	DefaultSenderQueueSize = 16
	// DefaultSenderIdle is how long a sender's worker waits for more turns before exiting.
	DefaultSenderIdle = 30 * time.Second
)

// ErrDuplicateMessage is returned by ProcessResponse for redelivered message ids.
var ErrDuplicateMessage = errors.New("duplicate inbound message")

// MessageHandler runs one conversation turn. flow.Dispatcher implements it.
type MessageHandler interface {
	Handle(ctx context.Context, msg models.InboundMessage) error
}

// InboundObserver receives transport-level events, typically to export metrics.
type InboundObserver interface {
	InboundMessage(transport string, t models.MessageType)
	DuplicateDelivery()
	ObserveDispatch(d time.Duration)
}

// ResponseHandlerOption configures a ResponseHandler.
type ResponseHandlerOption func(*ResponseHandler)

// WithDedup drops inbound messages whose id was already recorded in repo.
func WithDedup(repo store.DedupRepo) ResponseHandlerOption {
	return func(rh *ResponseHandler) { rh.dedup = repo }
}

// WithInboundObserver sets the observer notified of every inbound message.
func WithInboundObserver(o InboundObserver) ResponseHandlerOption {
	return func(rh *ResponseHandler) { rh.observer = o }
}

// WithTurnTimeout overrides DefaultTurnTimeout. Non-positive values disable the timeout.
func WithTurnTimeout(d time.Duration) ResponseHandlerOption {
	return func(rh *ResponseHandler) { rh.turnTimeout = d }
}

// WithSenderIdle overrides DefaultSenderIdle.
func WithSenderIdle(d time.Duration) ResponseHandlerOption {
	return func(rh *ResponseHandler) { rh.senderIdle = d }
}

// ResponseHandler consumes a Service's inbound messages. Each sender gets a FIFO
// queue drained by its own worker, so one sender's turns run in arrival order
// while different senders run concurrently.
type ResponseHandler struct {
	msgService  Service
	handler     MessageHandler
	dedup       store.DedupRepo
	observer    InboundObserver
	turnTimeout time.Duration
	senderIdle  time.Duration
	wg          sync.WaitGroup

	mu     sync.Mutex
	queues map[string]chan models.InboundMessage
}

// NewResponseHandler creates a ResponseHandler for msgService.
func NewResponseHandler(msgService Service, handler MessageHandler, opts ...ResponseHandlerOption) *ResponseHandler {
	rh := &ResponseHandler{
		msgService:  msgService,
		handler:     handler,
		turnTimeout: DefaultTurnTimeout,
		senderIdle:  DefaultSenderIdle,
		queues:      make(map[string]chan models.InboundMessage),
	}
	for _, opt := range opts {
		opt(rh)
	}
	return rh
}

// ProcessResponse runs one inbound message to completion.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, msg models.InboundMessage) error {
	transport := rh.msgService.Name()
	if rh.observer != nil {
		rh.observer.InboundMessage(transport, msg.Type)
	}

	if rh.dedup != nil && msg.MessageID != "" {
		fresh, err := rh.dedup.RecordInbound(msg.MessageID, msg.SenderID)
		switch {
		case err != nil:
			// Fail open: a lost dedup record is better than a lost turn.
			slog.Error("ResponseHandler.ProcessResponse: dedup record failed", "messageID", msg.MessageID, "error", err)
		case !fresh:
			slog.Info("ResponseHandler.ProcessResponse: duplicate delivery dropped", "from", msg.SenderID, "messageID", msg.MessageID)
			if rh.observer != nil {
				rh.observer.DuplicateDelivery()
			}
			return ErrDuplicateMessage
		}
	}

	if rh.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rh.turnTimeout)
		defer cancel()
	}

	turnID := uuid.NewString()
	start := time.Now()
	slog.Debug("ResponseHandler.ProcessResponse: turn started", "turn", turnID, "transport", transport, "from", msg.SenderID, "messageID", msg.MessageID, "type", msg.Type)
	err := rh.handler.Handle(ctx, msg)
	elapsed := time.Since(start)
	if rh.observer != nil {
		rh.observer.ObserveDispatch(elapsed)
	}
	if err != nil {
		slog.Error("ResponseHandler.ProcessResponse: turn failed", "turn", turnID, "from", msg.SenderID, "error", err)
		if rh.dedup != nil && msg.MessageID != "" {
			if ferr := rh.dedup.ForgetInbound(msg.MessageID); ferr != nil {
				slog.Warn("ResponseHandler.ProcessResponse: forget inbound failed", "messageID", msg.MessageID, "error", ferr)
			}
		}
		return fmt.Errorf("turn %s failed: %w", turnID, err)
	}
	slog.Debug("ResponseHandler.ProcessResponse: turn finished", "turn", turnID, "elapsed", elapsed)

	if rh.dedup != nil && msg.MessageID != "" {
		if err := rh.dedup.MarkProcessed(msg.MessageID); err != nil {
			slog.Warn("ResponseHandler.ProcessResponse: mark processed failed", "messageID", msg.MessageID, "error", err)
		}
	}
	return nil
}

// Start begins processing responses from the messaging service.
// This should be called once to start the response processing loop.
func (rh *ResponseHandler) Start(ctx context.Context) {
	slog.Info("ResponseHandler starting response processing", "transport", rh.msgService.Name())

	rh.wg.Add(1)
	go func() {
		defer rh.wg.Done()
		defer slog.Info("ResponseHandler stopped response processing")
		defer rh.closeQueues()

		for {
			select {
			case msg, ok := <-rh.msgService.Responses():
				if !ok {
					slog.Debug("ResponseHandler responses channel closed")
					return
				}
				rh.enqueue(ctx, msg)

			case <-ctx.Done():
				slog.Debug("ResponseHandler stopping due to context cancellation")
				return
			}
		}
	}()
}

// enqueue appends msg to its sender's queue, starting a worker when the sender
// has none. A full queue blocks the loop until the worker catches up.
func (rh *ResponseHandler) enqueue(ctx context.Context, msg models.InboundMessage) {
	key := util.NormalizeSenderID(msg.SenderID)
	rh.mu.Lock()
	defer rh.mu.Unlock()
	q, ok := rh.queues[key]
	if !ok {
		q = make(chan models.InboundMessage, DefaultSenderQueueSize)
		rh.queues[key] = q
		rh.wg.Add(1)
		go rh.drain(ctx, key, q)
	}
	select {
	case q <- msg:
	case <-ctx.Done():
		slog.Warn("ResponseHandler.enqueue: dropped message on shutdown", "from", msg.SenderID, "messageID", msg.MessageID)
	}
}

// drain runs the sender's turns one at a time until the queue is closed or has
// stayed empty for senderIdle.
func (rh *ResponseHandler) drain(ctx context.Context, key string, q chan models.InboundMessage) {
	defer rh.wg.Done()
	for {
		select {
		case msg, ok := <-q:
			if !ok {
				return
			}
			if err := rh.ProcessResponse(ctx, msg); err != nil && !errors.Is(err, ErrDuplicateMessage) {
				slog.Error("ResponseHandler failed to process response", "error", err, "from", msg.SenderID)
			}
		case <-time.After(rh.senderIdle):
			// enqueue sends while holding mu, so an empty queue seen under mu stays empty.
			rh.mu.Lock()
			if len(q) == 0 && rh.queues[key] == q {
				delete(rh.queues, key)
				rh.mu.Unlock()
				return
			}
			rh.mu.Unlock()
		}
	}
}

// closeQueues lets every worker finish its pending turns and exit.
func (rh *ResponseHandler) closeQueues() {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	for key, q := range rh.queues {
		close(q)
		delete(rh.queues, key)
	}
}

// activeSenders reports how many sender workers are running.
func (rh *ResponseHandler) activeSenders() int {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	return len(rh.queues)
}

// Wait blocks until the processing loop and every in-flight turn have returned.
func (rh *ResponseHandler) Wait() {
	rh.wg.Wait()
}
