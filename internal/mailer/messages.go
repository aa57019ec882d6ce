package mailer

import (
	"fmt"
	"strings"

	"trekreg/internal/model"
)

func ConfirmationMessage(eventName string, form model.RegistrationForm) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", form.FullName)
	fmt.Fprintf(&b, "Thank you for registering for %s. We have received the following details:\n\n", eventName)

	rows := [][2]string{
		{"Full name", form.FullName},
		{"Email", form.Email},
		{"Phone", form.Phone},
		{"Age", fmt.Sprint(form.Age)},
		{"Gender", form.Gender},
		{"Fitness level", form.FitnessLevel},
		{"Trek experience", form.TrekExperience},
		{"Emergency contact", fmt.Sprintf("%s (%s), %s", form.EmergencyContactName, form.EmergencyContactRelation, form.EmergencyContactPhone)},
		{"Medical information", form.MedicalInfo},
		{"Height", form.Height},
		{"Weight", form.Weight},
		{"T-shirt size", form.TShirtSize},
		{"Dietary restrictions", form.DietaryRestrictions},
		{"Equipment needs", form.EquipmentNeeds},
		{"How you heard about us", form.HowHeard},
		{"Special requests", form.SpecialRequests},
	}
	for _, r := range rows {
		if r[1] == "" {
			continue
		}
		fmt.Fprintf(&b, "  %s: %s\n", r[0], r[1])
	}

	b.WriteString("\nPayment status: PENDING\n")
	b.WriteString("Complete the payment step to receive your ticket.\n")

	return Message{
		To:      []string{form.Email},
		Subject: fmt.Sprintf("%s: registration received, payment pending", eventName),
		Text:    b.String(),
	}
}

func ReminderMessage(eventName string, reg model.Registration) Message {
	return Message{
		To:      []string{reg.Email},
		Subject: fmt.Sprintf("%s: your payment is still pending", eventName),
		Text: fmt.Sprintf("Hello %s,\n\nYour registration for %s is saved, but the payment has not been completed yet.\n"+
			"Finish the payment step to secure your place and receive your ticket.\n", reg.FullName, eventName),
	}
}

func TicketMessage(eventName string, reg model.Registration, ticketURL string) Message {
	return Message{
		To:      []string{reg.Email},
		Subject: fmt.Sprintf("%s: your ticket %s", eventName, reg.Ticket()),
		Text: fmt.Sprintf("Hello %s,\n\nYour payment for %s is complete.\nTicket: %s\nScannable code: %s\n",
			reg.FullName, eventName, reg.Ticket(), ticketURL),
	}
}
