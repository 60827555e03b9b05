package patient

import (
	"fmt"
	"strings"
	"time"

	"github.com/vitalink/platform/internal/shared/types"
)

// Patient is a person registered with the practice
type Patient struct {
	ID  types.ID  `json:"id"`
	MRN types.MRN `json:"mrn"`

	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DateOfBirth time.Time `json:"date_of_birth"`
	Gender      string    `json:"gender,omitempty"`

	Contact types.ContactInfo `json:"contact"`
	Address types.Address     `json:"address"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullName returns the patient's display name
func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Age returns the patient's age in whole years at the given time
func (p *Patient) Age(at time.Time) int {
	age := at.Year() - p.DateOfBirth.Year()
	if at.Month() < p.DateOfBirth.Month() ||
		(at.Month() == p.DateOfBirth.Month() && at.Day() < p.DateOfBirth.Day()) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

// New creates a patient record
func New(mrn types.MRN, firstName, lastName string, dateOfBirth time.Time, gender string, contact types.ContactInfo, address types.Address, now time.Time) (*Patient, error) {
	if !mrn.IsValid() {
		return nil, fmt.Errorf("invalid medical record number")
	}
	if firstName == "" || lastName == "" {
		return nil, fmt.Errorf("first and last name are required")
	}
	if dateOfBirth.IsZero() {
		return nil, fmt.Errorf("date of birth is required")
	}
	if dateOfBirth.After(now) {
		return nil, fmt.Errorf("date of birth is in the future")
	}

	return &Patient{
		ID:          types.NewID(),
		MRN:         mrn,
		FirstName:   firstName,
		LastName:    lastName,
		DateOfBirth: dateOfBirth,
		Gender:      gender,
		Contact:     contact,
		Address:     address,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// UpdateDemographics changes the mutable fields. The MRN and date of birth
// are fixed at registration.
func (p *Patient) UpdateDemographics(firstName, lastName, gender string, contact types.ContactInfo, address types.Address, now time.Time) error {
	if firstName == "" || lastName == "" {
		return fmt.Errorf("first and last name are required")
	}

	p.FirstName = firstName
	p.LastName = lastName
	p.Gender = gender
	p.Contact = contact
	p.Address = address
	p.UpdatedAt = now
	return nil
}

// CreatePatientRequest is the payload for registering a patient
type CreatePatientRequest struct {
	MRN         string            `json:"mrn"`
	FirstName   string            `json:"first_name"`
	LastName    string            `json:"last_name"`
	DateOfBirth string            `json:"date_of_birth"` // YYYY-MM-DD
	Gender      string            `json:"gender"`
	Contact     types.ContactInfo `json:"contact"`
	Address     types.Address     `json:"address"`
}

// UpdatePatientRequest is the payload for demographic updates
type UpdatePatientRequest struct {
	FirstName string            `json:"first_name"`
	LastName  string            `json:"last_name"`
	Gender    string            `json:"gender"`
	Contact   types.ContactInfo `json:"contact"`
	Address   types.Address     `json:"address"`
}

// ListFilter narrows patient queries
type ListFilter struct {
	Search string // matches name or MRN
	Limit  int
	Offset int
}
