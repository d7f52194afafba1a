package wizard

import (
	"strings"

	"bookingsync/internal/models"
)

// ManualAddress is an address typed by the customer instead of a map position.
type ManualAddress struct {
	ZoneID      string `json:"zone_id"`
	HouseNumber string `json:"house_number"`
	Street      string `json:"street"`
	Area        string `json:"area"`
	City        string `json:"city"`
	Pincode     string `json:"pincode"`
}

func (a ManualAddress) trimmed() ManualAddress {
	return ManualAddress{
		ZoneID:      strings.TrimSpace(a.ZoneID),
		HouseNumber: strings.TrimSpace(a.HouseNumber),
		Street:      strings.TrimSpace(a.Street),
		Area:        strings.TrimSpace(a.Area),
		City:        strings.TrimSpace(a.City),
		Pincode:     strings.TrimSpace(a.Pincode),
	}
}

func (a ManualAddress) validate() error {
	for _, f := range []struct{ name, value string }{
		{"house_number", a.HouseNumber},
		{"street", a.Street},
		{"area", a.Area},
		{"city", a.City},
	} {
		if f.value == "" {
			return invalid(f.name, "required")
		}
	}
	if !ValidPincode(a.Pincode) {
		return invalid("pincode", "must be 6 digits")
	}
	return nil
}

// String formats the address on one line.
func (a ManualAddress) String() string {
	return strings.Join([]string{a.HouseNumber, a.Street, a.Area, a.City}, ", ") + " - " + a.Pincode
}

// ValidPincode reports whether p is exactly six digits.
func ValidPincode(p string) bool {
	if len(p) != models.PincodeLength {
		return false
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
