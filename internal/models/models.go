package models

import (
	"strings"
	"time"
)

// WizardState is the persisted snapshot of one wizard session.
type WizardState struct {
	SessionID      string        `json:"session_id"`
	Step           WizardStep    `json:"step"`
	Draft          BookingDraft  `json:"draft"`
	Zones          []ServiceZone `json:"zones,omitempty"`
	OutOfZone      bool          `json:"out_of_zone"`
	ManualRequired bool          `json:"manual_required"`
	Result         *SubmitResult `json:"result,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Time slot periods.
const (
	PeriodMorning   = "morning"
	PeriodAfternoon = "afternoon"
	PeriodEvening   = "evening"
)

// TimeSlot is one bookable visit window.
type TimeSlot struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Period string `json:"period"`
}

// TimeSlots is the fixed slot catalog.
var TimeSlots = []TimeSlot{
	{ID: "08:00", Label: "8:00 AM - 9:00 AM", Period: PeriodMorning},
	{ID: "09:00", Label: "9:00 AM - 10:00 AM", Period: PeriodMorning},
	{ID: "10:00", Label: "10:00 AM - 11:00 AM", Period: PeriodMorning},
	{ID: "11:00", Label: "11:00 AM - 12:00 PM", Period: PeriodMorning},
	{ID: "12:00", Label: "12:00 PM - 1:00 PM", Period: PeriodAfternoon},
	{ID: "13:00", Label: "1:00 PM - 2:00 PM", Period: PeriodAfternoon},
	{ID: "14:00", Label: "2:00 PM - 3:00 PM", Period: PeriodAfternoon},
	{ID: "15:00", Label: "3:00 PM - 4:00 PM", Period: PeriodAfternoon},
	{ID: "16:00", Label: "4:00 PM - 5:00 PM", Period: PeriodEvening},
	{ID: "17:00", Label: "5:00 PM - 6:00 PM", Period: PeriodEvening},
	{ID: "18:00", Label: "6:00 PM - 7:00 PM", Period: PeriodEvening},
	{ID: "19:00", Label: "7:00 PM - 8:00 PM", Period: PeriodEvening},
}

// FindTimeSlot looks a slot up by id.
func FindTimeSlot(id string) (TimeSlot, bool) {
	id = strings.TrimSpace(id)
	for _, s := range TimeSlots {
		if s.ID == id {
			return s, true
		}
	}
	return TimeSlot{}, false
}

// SlotsByPeriod groups the catalog for display.
func SlotsByPeriod() map[string][]TimeSlot {
	out := make(map[string][]TimeSlot, 3)
	for _, s := range TimeSlots {
		out[s.Period] = append(out[s.Period], s)
	}
	return out
}

// LandmarkOther is the category that requires a free-text address instead of a name.
const LandmarkOther = "other"

// LandmarkCategories maps category ids to display labels.
var LandmarkCategories = map[string]string{
	"temple":      "Temple",
	"school":      "School",
	"hospital":    "Hospital",
	"market":      "Market",
	"petrol_pump": "Petrol Pump",
	"bus_stop":    "Bus Stop",
	"mall":        "Mall",
	"park":        "Park",
	LandmarkOther: "Other",
}
