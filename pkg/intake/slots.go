// Package intake models the applicant-side document upload flow: which
// documents a nationality requires, the order they are accepted in, and the
// per-document progress of one form visit.
package intake

import (
	"errors"
	"strings"
)

// Slot names one document requirement.
type Slot string

const (
	SlotPassport         Slot = "passport"
	SlotPassportFront    Slot = "passportFront"
	SlotPassportLastPage Slot = "passportLastPage"
	SlotPhoto            Slot = "photo"
)

// ErrUnknownSlot is returned for slot names outside the known set.
var ErrUnknownSlot = errors.New("unknown document slot")

// bothSidesNationalities lists nationalities whose passports carry
// applicant data on the last page as well as the photo page.
var bothSidesNationalities = map[string]bool{
	"india":  true,
	"indian": true,
}

// RequiresBothSides reports whether nationality needs front and last page uploads.
func RequiresBothSides(nationality string) bool {
	return bothSidesNationalities[strings.ToLower(strings.TrimSpace(nationality))]
}

// RequiredSlots returns the ordered document slots for a nationality.
// The photo is always last.
func RequiredSlots(nationality string) []Slot {
	if RequiresBothSides(nationality) {
		return []Slot{SlotPassportFront, SlotPassportLastPage, SlotPhoto}
	}
	return []Slot{SlotPassport, SlotPhoto}
}

// ParseSlot validates a slot name.
func ParseSlot(name string) (Slot, error) {
	switch s := Slot(strings.TrimSpace(name)); s {
	case SlotPassport, SlotPassportFront, SlotPassportLastPage, SlotPhoto:
		return s, nil
	default:
		return "", ErrUnknownSlot
	}
}

// IsPhoto reports whether the slot holds the applicant photo. Photos are
// never sent for extraction.
func (s Slot) IsPhoto() bool {
	return strings.Contains(strings.ToLower(string(s)), "photo")
}

// IsLastPage reports whether the slot holds the passport's last (back) page.
func (s Slot) IsLastPage() bool {
	lower := strings.ToLower(string(s))
	return strings.Contains(lower, "last") || strings.Contains(lower, "back")
}

// Contains reports whether slot is one of slots.
func Contains(slots []Slot, slot Slot) bool {
	for _, s := range slots {
		if s == slot {
			return true
		}
	}
	return false
}

func (s Slot) String() string {
	return string(s)
}
