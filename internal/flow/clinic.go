package flow

import "github.com/Alex3496/VetBot/internal/models"

// ClinicInfo holds the fixed payloads the bot shares with users.
type ClinicInfo struct {
	Name                string
	Location            models.Location
	EmergencyContact    models.ContactCard
	WelcomeMediaKind    models.MediaKind
	WelcomeMediaURL     string
	WelcomeMediaCaption string
}

// DefaultClinicInfo returns the MedPet clinic details.
func DefaultClinicInfo() ClinicInfo {
	return ClinicInfo{
		Name: "MedPet",
		Location: models.Location{
			Latitude:  19.432608,
			Longitude: -99.133209,
			Name:      "MedPet Clínica Veterinaria",
			Address:   "Calle Falsa 123, Ciudad, País.",
		},
		EmergencyContact: models.ContactCard{
			FormattedName: "MedPet Urgencias",
			FirstName:     "MedPet",
			LastName:      "Urgencias",
			Organization:  "MedPet",
			Phone:         "+525512345678",
			WaID:          "525512345678",
			Email:         "urgencias@medpet.example",
			URL:           "https://www.medpet.example",
			Address:       "Calle Falsa 123, Ciudad, País.",
		},
		WelcomeMediaKind:    models.MediaKindAudio,
		WelcomeMediaURL:     "https://s3.amazonaws.com/gndx.dev/medpet-audio.aac",
		WelcomeMediaCaption: "Bienvenida",
	}
}
