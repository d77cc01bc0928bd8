package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Alex3496/VetBot/internal/genai"
	"github.com/Alex3496/VetBot/internal/models"
	"github.com/Alex3496/VetBot/internal/util"
)

// DispatcherOpts holds optional collaborators for the Dispatcher.
type DispatcherOpts struct {
	Sink         AppointmentSink
	Assistant    genai.ClientInterface
	SystemPrompt string
	Clinic       *ClinicInfo
	Observer     Observer
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*DispatcherOpts)

// WithAppointmentSink sets where completed appointments are written.
func WithAppointmentSink(sink AppointmentSink) DispatcherOption {
	return func(o *DispatcherOpts) { o.Sink = sink }
}

// WithAssistant sets the language model used by the assistant flow.
func WithAssistant(ai genai.ClientInterface) DispatcherOption {
	return func(o *DispatcherOpts) { o.Assistant = ai }
}

// WithSystemPrompt overrides the assistant system prompt.
func WithSystemPrompt(prompt string) DispatcherOption {
	return func(o *DispatcherOpts) { o.SystemPrompt = prompt }
}

// WithClinicInfo overrides the clinic payloads.
func WithClinicInfo(info ClinicInfo) DispatcherOption {
	return func(o *DispatcherOpts) { o.Clinic = &info }
}

// WithObserver sets the conversation event observer.
func WithObserver(obs Observer) DispatcherOption {
	return func(o *DispatcherOpts) { o.Observer = obs }
}

// Dispatcher handles one inbound message per call: it classifies the message,
// drives the matching flow or menu action and sends the read receipt last.
type Dispatcher struct {
	states       StateManager
	messenger    MessagingService
	appointments *AppointmentFlow
	assistant    *AssistantFlow
	menu         *MenuResolver
	clinic       ClinicInfo
	observer     Observer
}

// NewDispatcher creates a Dispatcher over states and messenger.
func NewDispatcher(states StateManager, messenger MessagingService, opts ...DispatcherOption) *Dispatcher {
	var cfg DispatcherOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	clinic := DefaultClinicInfo()
	if cfg.Clinic != nil {
		clinic = *cfg.Clinic
	}
	obs := cfg.Observer
	if obs == nil {
		obs = noopObserver{}
	}

	appointments := NewAppointmentFlow(states, cfg.Sink)
	assistant := NewAssistantFlow(states, cfg.Assistant, cfg.SystemPrompt)
	return &Dispatcher{
		states:       states,
		messenger:    messenger,
		appointments: appointments,
		assistant:    assistant,
		menu:         NewMenuResolver(messenger, appointments, assistant, clinic, obs),
		clinic:       clinic,
		observer:     obs,
	}
}

// States exposes the session store, for admin endpoints and sweeping.
func (d *Dispatcher) States() StateManager {
	return d.states
}

// Handle processes one inbound message. Turns for the same sender are serialized.
// Messages that are neither text nor interactive are ignored without a read receipt.
func (d *Dispatcher) Handle(ctx context.Context, msg models.InboundMessage) error {
	from := util.NormalizeSenderID(msg.SenderID)
	if from == "" {
		slog.Warn("Dispatcher.Handle: dropping message without sender", "messageID", msg.MessageID)
		return nil
	}

	unlock := d.states.Lock(from)
	defer unlock()

	var err error
	switch msg.Type {
	case models.MessageTypeText:
		err = d.handleText(ctx, from, msg)
	case models.MessageTypeInteractive:
		if msg.Interactive == nil {
			slog.Warn("Dispatcher.Handle: interactive message without payload", "from", from, "messageID", msg.MessageID)
			return nil
		}
		err = d.menu.Resolve(ctx, from, ResolveInteractive(msg.Interactive))
	default:
		slog.Debug("Dispatcher.Handle: ignoring unsupported message type", "from", from, "type", msg.Type)
		return nil
	}

	d.markRead(ctx, from, msg.MessageID)
	if err != nil {
		return fmt.Errorf("dispatch %s from %s: %w", msg.MessageID, from, err)
	}
	return nil
}

func (d *Dispatcher) handleText(ctx context.Context, from string, msg models.InboundMessage) error {
	text := NormalizeText(msg.Text)
	session, err := d.states.Get(ctx, from)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	intent := Classify(text, session.Active())
	d.observer.IntentClassified(intent)
	slog.Debug("Dispatcher.handleText: classified", "from", from, "intent", intent)

	switch intent {
	case IntentGreeting:
		if session.Active() {
			slog.Info("Dispatcher.handleText: greeting discards active flow", "from", from, "flow", session.Flow, "step", session.Step)
			d.observer.FlowEvent(session.Flow, FlowAborted)
		}
		if err := d.states.Reset(ctx, from); err != nil {
			return fmt.Errorf("reset on greeting: %w", err)
		}
		d.sendText(ctx, from, WelcomeText(msg.Profile.GreetingName()), msg.MessageID)
		d.sendButtons(ctx, from, MsgWelcomeMenu, WelcomeButtons)
	case IntentMediaRequest:
		if err := d.messenger.SendMedia(ctx, from, d.clinic.WelcomeMediaKind, d.clinic.WelcomeMediaURL, d.clinic.WelcomeMediaCaption); err != nil {
			slog.Error("Dispatcher.handleText: send media failed", "from", from, "error", err)
			d.observer.CollaboratorFailure("send_media")
		}
	case IntentContinuation:
		return d.continueFlow(ctx, session, msg.Text)
	default:
		d.sendText(ctx, from, EchoText(msg.Text), msg.MessageID)
	}
	return nil
}

func (d *Dispatcher) continueFlow(ctx context.Context, session *models.Session, text string) error {
	to := session.SenderID
	switch session.Flow {
	case models.FlowTypeAppointment:
		res, err := d.appointments.Advance(ctx, session, text)
		if err != nil {
			return err
		}
		switch {
		case res.Completed:
			d.observer.FlowEvent(models.FlowTypeAppointment, FlowCompleted)
		case res.Aborted:
			d.observer.FlowEvent(models.FlowTypeAppointment, FlowAborted)
		}
		d.sendText(ctx, to, res.Reply, "")
	case models.FlowTypeAssistant:
		res, err := d.assistant.Answer(ctx, session, text)
		if err != nil {
			return err
		}
		if res.Failed || res.Aborted {
			d.observer.FlowEvent(models.FlowTypeAssistant, FlowAborted)
			if res.Failed {
				d.observer.CollaboratorFailure("assistant")
			}
			d.sendText(ctx, to, res.Answer, "")
			return nil
		}
		d.observer.FlowEvent(models.FlowTypeAssistant, FlowCompleted)
		d.sendText(ctx, to, res.Answer, "")
		d.sendButtons(ctx, to, MsgFollowUp, FollowUpButtons)
	default:
		slog.Warn("Dispatcher.continueFlow: unknown flow, resetting", "from", to, "flow", session.Flow)
		if err := d.states.Reset(ctx, to); err != nil {
			return fmt.Errorf("reset unknown flow: %w", err)
		}
		d.sendText(ctx, to, MsgSomethingWrong, "")
	}
	return nil
}

func (d *Dispatcher) sendText(ctx context.Context, to, body, inReplyTo string) {
	if err := d.messenger.SendText(ctx, to, body, inReplyTo); err != nil {
		slog.Error("Dispatcher.sendText: send failed", "to", to, "error", err)
		d.observer.CollaboratorFailure("send_text")
	}
}

func (d *Dispatcher) sendButtons(ctx context.Context, to, body string, buttons []models.Button) {
	if err := d.messenger.SendInteractiveButtons(ctx, to, body, buttons); err != nil {
		slog.Error("Dispatcher.sendButtons: send failed", "to", to, "error", err)
		d.observer.CollaboratorFailure("send_buttons")
	}
}

func (d *Dispatcher) markRead(ctx context.Context, from, messageID string) {
	if messageID == "" {
		return
	}
	if err := d.messenger.MarkRead(ctx, from, messageID); err != nil {
		slog.Warn("Dispatcher.markRead: read receipt failed", "from", from, "messageID", messageID, "error", err)
		d.observer.CollaboratorFailure("mark_read")
	}
}
