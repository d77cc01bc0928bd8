// Package models defines the core data structures for VetBot.
//
// It includes inbound message shapes, sender profiles, appointment records and the
// API response envelope, which are shared across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// MessageType identifies the kind of inbound message delivered by a transport.
type MessageType string

const (
	// MessageTypeText is a plain text message typed by the user.
	MessageTypeText MessageType = "text"
	// MessageTypeInteractive is a reply to an interactive message (button or list).
	MessageTypeInteractive MessageType = "interactive"
	// MessageTypeOther covers every type the dispatcher does not handle (image, audio, sticker...).
	MessageTypeOther MessageType = "other"
)

// InteractiveType identifies the interactive reply variant.
type InteractiveType string

const (
	// InteractiveTypeButtonReply is a tap on a reply button.
	InteractiveTypeButtonReply InteractiveType = "button_reply"
	// InteractiveTypeListReply is a selection from a list message.
	InteractiveTypeListReply InteractiveType = "list_reply"
)

// Validation constants for outbound payloads
const (
	// MaxTextBodyLength defines the maximum allowed length for a text message body
	MaxTextBodyLength = 4096
	// MaxButtonTitleLength defines the maximum allowed length of a reply button title
	MaxButtonTitleLength = 20
	// MaxButtonsCount defines the maximum number of reply buttons per interactive message
	MaxButtonsCount = 3
)

// Error variables for better error handling and testability
var (
	ErrEmptyRecipient      = errors.New("recipient cannot be empty")
	ErrEmptyBody           = errors.New("body is required for text messages")
	ErrBodyTooLong         = errors.New("message body exceeds maximum length")
	ErrMissingButtons      = errors.New("interactive messages require at least one button")
	ErrTooManyButtons      = errors.New("too many reply buttons")
	ErrButtonTitleTooLong  = errors.New("button title exceeds maximum length")
	ErrEmptyButtonID       = errors.New("button id cannot be empty")
	ErrMissingTemplateName = errors.New("template name is required")
)

// SenderProfile carries optional transport-supplied details about the sender.
type SenderProfile struct {
	DisplayName string `json:"display_name,omitempty"`
	AccountID   string `json:"account_id,omitempty"`
}

// GreetingName returns the name used to personalize greetings.
// A nil profile yields an empty name.
func (p *SenderProfile) GreetingName() string {
	if p == nil {
		return ""
	}
	if name := strings.TrimSpace(p.DisplayName); name != "" {
		return name
	}
	return p.AccountID
}

// InteractiveReply is the payload of a button or list selection.
type InteractiveReply struct {
	Type  InteractiveType `json:"type"`
	ID    string          `json:"id"`
	Title string          `json:"title"`
}

// InboundMessage is a single user message normalized by a transport.
type InboundMessage struct {
	SenderID    string            `json:"sender_id"`
	MessageID   string            `json:"message_id"`
	Type        MessageType       `json:"type"`
	Text        string            `json:"text,omitempty"`
	Interactive *InteractiveReply `json:"interactive,omitempty"`
	Profile     *SenderProfile    `json:"profile,omitempty"`
	Timestamp   int64             `json:"timestamp,omitempty"`
}

// Button is a reply button offered in an interactive message.
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ValidateButtons checks reply buttons against the platform limits.
func ValidateButtons(buttons []Button) error {
	if len(buttons) == 0 {
		return ErrMissingButtons
	}
	if len(buttons) > MaxButtonsCount {
		return ErrTooManyButtons
	}
	for _, b := range buttons {
		if b.ID == "" {
			return ErrEmptyButtonID
		}
		if len([]rune(b.Title)) > MaxButtonTitleLength {
			return ErrButtonTitleTooLong
		}
	}
	return nil
}

// ContactCard is a contact shared with the user.
type ContactCard struct {
	FormattedName string `json:"formatted_name"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	Organization  string `json:"organization,omitempty"`
	Phone         string `json:"phone"`
	WaID          string `json:"wa_id,omitempty"`
	Email         string `json:"email,omitempty"`
	URL           string `json:"url,omitempty"`
	Address       string `json:"address,omitempty"`
}

// Location is a fixed place shared with the user.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
}

// MediaKind is the kind of media message.
type MediaKind string

const (
	MediaKindImage    MediaKind = "image"
	MediaKindVideo    MediaKind = "video"
	MediaKindAudio    MediaKind = "audio"
	MediaKindDocument MediaKind = "document"
)

// IsValidMediaKind checks if the given media kind is supported.
func IsValidMediaKind(k MediaKind) bool {
	switch k {
	case MediaKindImage, MediaKindVideo, MediaKindAudio, MediaKindDocument:
		return true
	default:
		return false
	}
}

// SendRequest is the payload accepted by the proactive send endpoint.
type SendRequest struct {
	To       string `json:"to"`
	Body     string `json:"body,omitempty"`
	Template string `json:"template,omitempty"`
	Language string `json:"language,omitempty"`
}

// Validate performs validation on a SendRequest.
func (r *SendRequest) Validate() error {
	if r.To == "" {
		return ErrEmptyRecipient
	}
	if r.Template != "" {
		return nil
	}
	if r.Body == "" {
		return ErrEmptyBody
	}
	if len(r.Body) > MaxTextBodyLength {
		return ErrBodyTooLong
	}
	return nil
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// Now is the clock used when stamping records; tests may replace it.
var Now = time.Now
