package flow

import (
	"context"
	"log/slog"

	"github.com/Alex3496/VetBot/internal/models"
)

// MenuOption is the closed set of selectable menu entries. The value doubles
// as the reply button id sent to the platform.
type MenuOption string

const (
	OptionUnknown         MenuOption = ""
	OptionBookAppointment MenuOption = "agendar_cita"
	OptionAskAssistant    MenuOption = "consultar"
	OptionLocation        MenuOption = "ubicacion"
	OptionEmergency       MenuOption = "emergencia"
	OptionCloseChat       MenuOption = "cerrar"
	OptionAnotherQuestion MenuOption = "otra_pregunta"
)

// optionTitles maps normalized button titles to options. Titles are what older
// clients and text transports send back, so they stay accepted.
var optionTitles = map[string]MenuOption{
	"agendar una cita":  OptionBookAppointment,
	"consultar":         OptionAskAssistant,
	"ubicación":         OptionLocation,
	"ubicacion":         OptionLocation,
	"emergencia":        OptionEmergency,
	"sí, gracias":       OptionCloseChat,
	"si, gracias":       OptionCloseChat,
	"no, otra pregunta": OptionAnotherQuestion,
}

var optionIDs = map[MenuOption]struct{}{
	OptionBookAppointment: {},
	OptionAskAssistant:    {},
	OptionLocation:        {},
	OptionEmergency:       {},
	OptionCloseChat:       {},
	OptionAnotherQuestion: {},
}

// WelcomeButtons is the menu sent after a greeting.
var WelcomeButtons = []models.Button{
	{ID: string(OptionBookAppointment), Title: "Agendar una cita"},
	{ID: string(OptionAskAssistant), Title: "Consultar"},
	{ID: string(OptionLocation), Title: "Ubicación"},
}

// FollowUpButtons is the menu sent after an assistant answer.
var FollowUpButtons = []models.Button{
	{ID: string(OptionCloseChat), Title: "Sí, gracias"},
	{ID: string(OptionAnotherQuestion), Title: "No, otra pregunta"},
	{ID: string(OptionEmergency), Title: "Emergencia"},
}

// ParseMenuOption resolves an option from its display title.
func ParseMenuOption(title string) MenuOption {
	return optionTitles[NormalizeText(title)]
}

// ResolveInteractive resolves an interactive reply. A known button id wins; the
// title is the fallback for replies that carry only text.
func ResolveInteractive(reply *models.InteractiveReply) MenuOption {
	if reply == nil {
		return OptionUnknown
	}
	if _, ok := optionIDs[MenuOption(reply.ID)]; ok {
		return MenuOption(reply.ID)
	}
	return ParseMenuOption(reply.Title)
}

// MenuResolver performs the action bound to a menu option.
type MenuResolver struct {
	messenger    MessagingService
	appointments *AppointmentFlow
	assistant    *AssistantFlow
	clinic       ClinicInfo
	observer     Observer
}

// NewMenuResolver creates a MenuResolver.
func NewMenuResolver(messenger MessagingService, appointments *AppointmentFlow, assistant *AssistantFlow, clinic ClinicInfo, observer Observer) *MenuResolver {
	if observer == nil {
		observer = noopObserver{}
	}
	return &MenuResolver{
		messenger:    messenger,
		appointments: appointments,
		assistant:    assistant,
		clinic:       clinic,
		observer:     observer,
	}
}

// Resolve runs the action for option on behalf of to. Only state store failures
// are returned; send failures are logged.
func (r *MenuResolver) Resolve(ctx context.Context, to string, option MenuOption) error {
	slog.Debug("MenuResolver.Resolve", "to", to, "option", option)
	r.observer.MenuOptionSelected(option)

	switch option {
	case OptionBookAppointment:
		prompt, err := r.appointments.Start(ctx, to)
		if err != nil {
			return err
		}
		r.observer.FlowEvent(models.FlowTypeAppointment, FlowStarted)
		r.sendText(ctx, to, prompt)
	case OptionAskAssistant, OptionAnotherQuestion:
		prompt, err := r.assistant.Start(ctx, to)
		if err != nil {
			return err
		}
		r.observer.FlowEvent(models.FlowTypeAssistant, FlowStarted)
		r.sendText(ctx, to, prompt)
	case OptionLocation:
		if err := r.messenger.SendLocation(ctx, to, r.clinic.Location); err != nil {
			slog.Error("MenuResolver.Resolve: send location failed", "to", to, "error", err)
			r.observer.CollaboratorFailure("send_location")
		}
	case OptionEmergency:
		if err := r.messenger.SendContact(ctx, to, r.clinic.EmergencyContact); err != nil {
			slog.Error("MenuResolver.Resolve: send contact failed", "to", to, "error", err)
			r.observer.CollaboratorFailure("send_contact")
		}
	case OptionCloseChat:
		r.sendText(ctx, to, MsgFarewell)
	default:
		r.sendText(ctx, to, MsgUnknownOption)
	}
	return nil
}

func (r *MenuResolver) sendText(ctx context.Context, to, body string) {
	if err := r.messenger.SendText(ctx, to, body, ""); err != nil {
		slog.Error("MenuResolver.sendText: send failed", "to", to, "error", err)
		r.observer.CollaboratorFailure("send_text")
	}
}
