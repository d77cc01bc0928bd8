package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/Alex3496/VetBot/internal/flow"
	"github.com/Alex3496/VetBot/internal/models"
)

// Constants for messaging service configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for the responses channel
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
	// MinRecipientDigits is the shortest accepted phone number after canonicalization
	MinRecipientDigits = 6
)

var (
	// ErrServiceStopped is returned by sends after Stop.
	ErrServiceStopped = errors.New("messaging service stopped")
	// ErrUnsupportedMediaType is returned for media kinds the transport cannot send.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	// ErrTemplatesUnsupported is returned by transports without template messages.
	ErrTemplatesUnsupported = errors.New("template messages not supported by this transport")
)

// phoneNumberRegex matches every non-digit character.
var phoneNumberRegex = regexp.MustCompile(`\D`)

// Service defines a pluggable message delivery abstraction.
// It covers every outbound action the dispatcher issues and exposes inbound user
// messages on a channel.
type Service interface {
	flow.MessagingService

	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// Start begins any background processing (e.g., event handlers).
	Start(ctx context.Context) error

	// Stop stops background processing and closes the responses channel.
	Stop() error

	// Responses returns a channel of incoming user messages.
	Responses() <-chan models.InboundMessage

	// Name is the transport label used in logs and metrics.
	Name() string
}

// TemplateSender is implemented by transports that can send approved templates.
type TemplateSender interface {
	SendTemplate(ctx context.Context, to, name, language string) error
}

// canonicalizeRecipient strips every non-digit and enforces a minimum length.
func canonicalizeRecipient(service, recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < MinRecipientDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", canonical, MinRecipientDigits)
	}
	if canonical != recipient {
		slog.Debug(service+" canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// inbox owns the responses channel shared by every transport. Emits after
// close are dropped.
type inbox struct {
	name      string
	mu        sync.RWMutex
	stopped   bool
	responses chan models.InboundMessage
}

func newInbox(name string) *inbox {
	return &inbox{name: name, responses: make(chan models.InboundMessage, DefaultChannelBufferSize)}
}

func (b *inbox) isStopped() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stopped
}

// emit pushes msg into the responses channel, dropping it when the channel
// stays full past DefaultChannelTimeout.
func (b *inbox) emit(msg models.InboundMessage) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		slog.Warn(b.name+" dropping inbound message (service stopped)", "from", msg.SenderID, "messageID", msg.MessageID)
		return false
	}
	select {
	case b.responses <- msg:
		slog.Debug(b.name+" emitted inbound message", "from", msg.SenderID, "messageID", msg.MessageID, "type", msg.Type)
		return true
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(b.name+" responses channel blocked, dropping message", "from", msg.SenderID, "messageID", msg.MessageID)
		return false
	}
}

func (b *inbox) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	close(b.responses)
}
