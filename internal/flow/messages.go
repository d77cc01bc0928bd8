package flow

import "fmt"

// User-facing texts.
const (
	MsgWelcomeMenu      = "Elige una opción"
	MsgAskOwnerName     = "Perfecto, vamos a agendar tu cita. ¿Cuál es tu nombre?"
	MsgAskQuestion      = "Escribe tu pregunta y con gusto te ayudamos."
	MsgUnknownOption    = "Lo siento, no entendí tu selección. Por favor elige una opción del menú."
	MsgSomethingWrong   = "Lo siento, algo salió mal. Escribe \"hola\" para comenzar de nuevo."
	MsgAssistantFailed  = "Lo siento, en este momento no puedo responder tu pregunta. Intenta de nuevo más tarde o elige \"Emergencia\" si es urgente."
	MsgFollowUp         = "¿Te fue útil la respuesta?"
	MsgFarewell         = "¡Gracias por contactarnos! Si necesitas algo más, escríbenos \"hola\"."
	echoPrefix          = "Echo: "
	welcomeWithName     = "¡Hola %s! Gracias por contactarnos. ¿En qué puedo ayudarte hoy?"
	welcomeWithoutName  = "¡Hola! Gracias por contactarnos. ¿En qué puedo ayudarte hoy?"
	askPetNameFormat    = "Gracias, %s. ¿Cuál es el nombre de tu mascota?"
	askPetSpeciesFormat = "%s, ¿qué tipo de animal es %s? (por ejemplo: perro, gato, ave)"
	askReasonFormat     = "¿Cuál es el motivo de la consulta para tu %s?"
	confirmationFormat  = "¡Gracias %s! Registramos tu cita para tu %s %s por el motivo: %s. Nos pondremos en contacto contigo pronto para confirmar el horario."
)

// WelcomeText returns the personalized greeting.
func WelcomeText(name string) string {
	if name == "" {
		return welcomeWithoutName
	}
	return fmt.Sprintf(welcomeWithName, name)
}

// EchoText returns the default reply for unclassified text.
func EchoText(body string) string {
	return echoPrefix + body
}
