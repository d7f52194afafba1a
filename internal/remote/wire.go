package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"bookingsync/internal/models"
)

// CreateBookingRequest is the body of POST /booking/create.
type CreateBookingRequest struct {
	ServiceID   string       `json:"service_id"`
	ServiceName string       `json:"service_name"`
	VehicleType string       `json:"vehicle_type"`
	Price       json.Number  `json:"price"`
	Location    WireLocation `json:"location"`
	Schedule    WireSchedule `json:"schedule"`
	Customer    WireCustomer `json:"customer"`
	ZoneID      string       `json:"zone_id,omitempty"`

	OfflineBooking bool   `json:"offline_booking,omitempty"`
	LocalID        string `json:"local_id,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
}

type WireLocation struct {
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	Address      string  `json:"address"`
	Landmark     string  `json:"landmark"`
	LandmarkType string  `json:"landmark_type"`
	Notes        string  `json:"notes"`
	Pincode      string  `json:"pincode"`
}

type WireSchedule struct {
	Date      string `json:"date"`
	TimeSlot  string `json:"time_slot"`
	TimeLabel string `json:"time_label,omitempty"`
}

type WireCustomer struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Language string `json:"language"`
}

// OfflineMeta marks a request replayed from the offline queue.
type OfflineMeta struct {
	LocalID   string
	CreatedAt time.Time
}

// NewCreateBookingRequest translates a draft into the wire format. meta is nil
// on the direct path.
func NewCreateBookingRequest(d models.BookingDraft, meta *OfflineMeta) CreateBookingRequest {
	req := CreateBookingRequest{
		ServiceID:   d.ServiceID,
		ServiceName: d.ServiceName,
		VehicleType: d.VehicleType,
		Price:       json.Number(d.Price.StringFixed(2)),
		Location: WireLocation{
			Address:      d.Location.Address,
			Landmark:     d.Location.Landmark,
			LandmarkType: d.Location.LandmarkCategory,
			Notes:        d.Location.Notes,
			Pincode:      d.Location.Pincode,
		},
		Schedule: WireSchedule{
			Date:      d.Schedule.Date,
			TimeSlot:  d.Schedule.TimeSlot,
			TimeLabel: d.Schedule.TimeLabel,
		},
		Customer: WireCustomer{
			Name:     d.Customer.Name,
			Phone:    d.Customer.Phone,
			Language: d.Customer.Language,
		},
	}
	if p := d.Location.Point(); p != nil {
		req.Location.Lat = p.Lat
		req.Location.Lng = p.Lng
	}
	if d.Zone != nil {
		req.ZoneID = d.Zone.ID
	}
	if meta != nil {
		req.OfflineBooking = true
		req.LocalID = meta.LocalID
		req.CreatedAt = meta.CreatedAt.UTC().Format(time.RFC3339)
	}
	return req
}

type createBookingResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Booking struct {
		ID flexString `json:"id"`
	} `json:"booking"`
}

// CreateBookingResult is the accepted booking.
type CreateBookingResult struct {
	ServerID string
	Message  string
}

type zonesResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Zones []wireZone `json:"zones"`
	} `json:"data"`
}

type wireZone struct {
	ID          flexString  `json:"id"`
	Name        string      `json:"zone_name"`
	Coordinates []wirePoint `json:"coordinates"`
}

type wirePoint struct {
	Lat flexFloat `json:"lat"`
	Lng flexFloat `json:"lng"`
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("coordinate %q: %w", s, err)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

func (z wireZone) model() models.ServiceZone {
	poly := make([]models.LatLng, 0, len(z.Coordinates))
	for _, p := range z.Coordinates {
		poly = append(poly, models.LatLng{Lat: float64(p.Lat), Lng: float64(p.Lng)})
	}
	return models.ServiceZone{ID: string(z.ID), Name: z.Name, Polygon: poly}
}
