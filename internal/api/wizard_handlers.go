package api

import (
	"net/http"

	"bookingsync/internal/models"
	"bookingsync/internal/wizard"

	"github.com/shopspring/decimal"
)

type startRequest struct {
	ServiceID   string          `json:"service_id"`
	ServiceName string          `json:"service_name"`
	VehicleType string          `json:"vehicle_type"`
	Price       decimal.Decimal `json:"price"`
	Name        string          `json:"name"`
	Language    string          `json:"language"`
}

func (s *HTTPServer) handleWizardStart(w http.ResponseWriter, r *http.Request) {
	var body startRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.ServiceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "required", "field": "service_id"})
		return
	}
	state, err := s.deps.Wizard.Start(r.Context(), models.BookingDraft{
		ServiceID:   body.ServiceID,
		ServiceName: body.ServiceName,
		VehicleType: body.VehicleType,
		Price:       body.Price,
		Customer:    models.Customer{Name: body.Name, Language: body.Language},
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

func (s *HTTPServer) handleWizardGet(w http.ResponseWriter, r *http.Request) {
	s.respondState(w)(s.deps.Wizard.Get(r.Context(), r.PathValue("id")))
}

func (s *HTTPServer) handleWizardCancel(w http.ResponseWriter, r *http.Request) {
	s.respondState(w)(s.deps.Wizard.Cancel(r.Context(), r.PathValue("id")))
}

func (s *HTTPServer) handleWizardPosition(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Lat    *float64 `json:"lat"`
		Lng    *float64 `json:"lng"`
		Source string   `json:"source"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Lat == nil || body.Lng == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "lat and lng are required", "field": "location"})
		return
	}
	state, result, err := s.deps.Wizard.SetPosition(r.Context(), r.PathValue("id"), *body.Lat, *body.Lng, body.Source)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":       state,
		"constrained": result.Constrained,
		"in_zone":     result.Allowed(),
	})
}

func (s *HTTPServer) handleWizardManualAddress(w http.ResponseWriter, r *http.Request) {
	var body wizard.ManualAddress
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondState(w)(s.deps.Wizard.SetManualAddress(r.Context(), r.PathValue("id"), body))
}

func (s *HTTPServer) handleWizardLocation(w http.ResponseWriter, r *http.Request) {
	s.respondState(w)(s.deps.Wizard.SubmitLocation(r.Context(), r.PathValue("id")))
}

func (s *HTTPServer) handleWizardLandmark(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Category string `json:"category"`
		Name     string `json:"name"`
		Notes    string `json:"notes"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondState(w)(s.deps.Wizard.SubmitLandmark(r.Context(), r.PathValue("id"), body.Category, body.Name, body.Notes))
}

func (s *HTTPServer) handleWizardSchedule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Date     string `json:"date"`
		TimeSlot string `json:"time_slot"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondState(w)(s.deps.Wizard.SubmitSchedule(r.Context(), r.PathValue("id"), body.Date, body.TimeSlot))
}

func (s *HTTPServer) handleWizardOTPRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Phone string `json:"phone"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Wizard.RequestCode(r.Context(), r.PathValue("id"), body.Phone); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (s *HTTPServer) handleWizardOTPVerify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Phone string `json:"phone"`
		Code  string `json:"code"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondState(w)(s.deps.Wizard.VerifyCode(r.Context(), r.PathValue("id"), body.Phone, body.Code))
}

func (s *HTTPServer) handleWizardSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CustomerID string `json:"customer_id"`
		Name       string `json:"name"`
		Phone      string `json:"phone"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondState(w)(s.deps.Wizard.UseSession(r.Context(), r.PathValue("id"), body.CustomerID, body.Name, body.Phone))
}

func (s *HTTPServer) handleWizardBack(w http.ResponseWriter, r *http.Request) {
	s.respondState(w)(s.deps.Wizard.Back(r.Context(), r.PathValue("id")))
}

func (s *HTTPServer) handleWizardConfirm(w http.ResponseWriter, r *http.Request) {
	s.respondState(w)(s.deps.Wizard.Confirm(r.Context(), r.PathValue("id")))
}

// respondState writes the session or maps the error.
func (s *HTTPServer) respondState(w http.ResponseWriter) func(*models.WizardState, error) {
	return func(state *models.WizardState, err error) {
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}
