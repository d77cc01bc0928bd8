package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Alex3496/VetBot/internal/genai"
	"github.com/Alex3496/VetBot/internal/models"
)

// VeterinarianSystemPrompt frames the language model as the clinic's vet.
const VeterinarianSystemPrompt = "Eres un veterinario con experiencia atendiendo consultas por WhatsApp. " +
	"Responde en español con frases cortas, claras y en lenguaje sencillo. " +
	"Da recomendaciones prácticas y evita párrafos largos. " +
	"Si la situación parece grave, recomienda acudir a urgencias. " +
	"No hagas preguntas de seguimiento."

// AssistantResult is the outcome of an assistant turn.
type AssistantResult struct {
	Answer  string
	Failed  bool
	Aborted bool
}

// AssistantFlow answers one free-form question through a language model.
type AssistantFlow struct {
	states       StateManager
	ai           genai.ClientInterface
	systemPrompt string
}

// NewAssistantFlow creates an AssistantFlow. An empty systemPrompt uses VeterinarianSystemPrompt.
func NewAssistantFlow(states StateManager, ai genai.ClientInterface, systemPrompt string) *AssistantFlow {
	if systemPrompt == "" {
		systemPrompt = VeterinarianSystemPrompt
	}
	return &AssistantFlow{states: states, ai: ai, systemPrompt: systemPrompt}
}

// Start opens the flow for senderID and returns the question prompt.
func (f *AssistantFlow) Start(ctx context.Context, senderID string) (string, error) {
	if _, err := f.states.Start(ctx, senderID, models.FlowTypeAssistant, models.StateQuestion); err != nil {
		return "", fmt.Errorf("start assistant flow: %w", err)
	}
	slog.Info("AssistantFlow.Start: flow started", "senderID", senderID)
	return MsgAskQuestion, nil
}

// Answer forwards text verbatim to the model. The session is removed whether or
// not the model call succeeds.
func (f *AssistantFlow) Answer(ctx context.Context, session *models.Session, text string) (AssistantResult, error) {
	if err := f.states.Reset(ctx, session.SenderID); err != nil {
		return AssistantResult{}, fmt.Errorf("reset assistant flow: %w", err)
	}
	if session.Step != models.StateQuestion {
		slog.Warn("AssistantFlow.Answer: aborting flow", "senderID", session.SenderID, "step", session.Step, "error", ErrUnknownStep)
		return AssistantResult{Answer: MsgSomethingWrong, Aborted: true}, nil
	}
	if f.ai == nil {
		slog.Error("AssistantFlow.Answer: no language model configured", "senderID", session.SenderID)
		return AssistantResult{Answer: MsgAssistantFailed, Failed: true}, nil
	}

	answer, err := f.ai.GeneratePromptWithContext(ctx, f.systemPrompt, text)
	if err != nil || answer == "" {
		slog.Error("AssistantFlow.Answer: completion failed", "senderID", session.SenderID, "error", err)
		return AssistantResult{Answer: MsgAssistantFailed, Failed: true}, nil
	}
	slog.Debug("AssistantFlow.Answer: answer generated", "senderID", session.SenderID, "length", len(answer))
	return AssistantResult{Answer: answer}, nil
}
