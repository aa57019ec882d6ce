package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// RegistrationForm is everything the participant submits. It is stored as
// the row's JSONB data blob.
type RegistrationForm struct {
	FullName                 string `json:"full_name" validate:"required,min=2,max=255"`
	Email                    string `json:"email" validate:"required,email"`
	Phone                    string `json:"phone" validate:"required,phone"`
	Age                      int    `json:"age" validate:"required,gte=1,lte=120"`
	Gender                   string `json:"gender" validate:"required,oneof=male female other"`
	FitnessLevel             string `json:"fitness_level" validate:"required,oneof=beginner intermediate advanced"`
	TrekExperience           string `json:"trek_experience" validate:"required,oneof=none beginner intermediate experienced"`
	EmergencyContactName     string `json:"emergency_contact_name" validate:"required,min=2"`
	EmergencyContactPhone    string `json:"emergency_contact_phone" validate:"required,phone"`
	EmergencyContactRelation string `json:"emergency_contact_relation" validate:"required,min=2"`
	MedicalInfo              string `json:"medical_info,omitempty"`
	Height                   string `json:"height,omitempty"`
	Weight                   string `json:"weight,omitempty"`
	TShirtSize               string `json:"tshirt_size" validate:"required,oneof=XS S M L XL XXL"`
	DietaryRestrictions      string `json:"dietary_restrictions,omitempty"`
	EquipmentNeeds           string `json:"equipment_needs,omitempty"`
	HowHeard                 string `json:"how_heard,omitempty"`
	SpecialRequests          string `json:"special_requests,omitempty"`
	TermsAccepted            bool   `json:"terms_accepted" validate:"accepted"`
}

// DefaultForm is the blank form a new participant starts from.
func DefaultForm() RegistrationForm {
	return RegistrationForm{
		FitnessLevel:   "beginner",
		TrekExperience: "none",
		TShirtSize:     "M",
	}
}

func (f RegistrationForm) Value() (driver.Value, error) {
	return json.Marshal(f)
}

func (f *RegistrationForm) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*f = RegistrationForm{}
		return nil
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		return fmt.Errorf("unsupported type %T for registration data", src)
	}
}
