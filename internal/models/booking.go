package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookingDraft is an in-progress booking request captured by the wizard.
type BookingDraft struct {
	ServiceID   string          `json:"service_id" validate:"required"`
	ServiceName string          `json:"service_name"`
	VehicleType string          `json:"vehicle_type"`
	Price       decimal.Decimal `json:"price"`
	Location    Location        `json:"location"`
	Schedule    Schedule        `json:"schedule"`
	Customer    Customer        `json:"customer"`
	Zone        *ZoneRef        `json:"zone,omitempty"`
}

// Location is where the service is performed.
type Location struct {
	Lat              *float64 `json:"lat" validate:"required,latitude"`
	Lng              *float64 `json:"lng" validate:"required,longitude"`
	Address          string   `json:"address"`
	ManualAddress    bool     `json:"manual_address,omitempty"`
	Source           string   `json:"source,omitempty"`
	Landmark         string   `json:"landmark" validate:"required,min=3"`
	LandmarkCategory string   `json:"landmark_category"`
	Notes            string   `json:"notes,omitempty"`
	Pincode          string   `json:"pincode,omitempty" validate:"omitempty,len=6,numeric"`
}

// Point returns the coordinate pair, or nil when either half is missing.
func (l Location) Point() *LatLng {
	if l.Lat == nil || l.Lng == nil {
		return nil
	}
	return &LatLng{Lat: *l.Lat, Lng: *l.Lng}
}

// Schedule is the chosen visit date and slot.
type Schedule struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	TimeSlot  string `json:"time_slot" validate:"required"`
	TimeLabel string `json:"time_label"`
}

// Day parses Date in the given location.
func (s Schedule) Day(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s.Date, loc)
}

// Customer is the person the booking is for.
type Customer struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Phone    string `json:"phone" validate:"required"`
	Language string `json:"language,omitempty"`
	Verified bool   `json:"verified"`
}

// SubmitResult reports what happened to a confirmed draft.
type SubmitResult struct {
	Mode     SubmitMode `json:"mode"`
	ServerID string     `json:"server_id,omitempty"`
	LocalID  string     `json:"local_id,omitempty"`
	Message  string     `json:"message,omitempty"`
}
