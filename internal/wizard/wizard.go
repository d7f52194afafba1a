// Package wizard implements the booking capture flow
// Location -> Landmark -> Schedule -> Confirm -> Success, with Cancelled
// reachable from any non-terminal step.
package wizard

import (
	"fmt"
	"strings"
	"time"

	"bookingsync/internal/geo"
	"bookingsync/internal/models"
)

// Options tune date handling.
type Options struct {
	MaxDaysAhead int
	Location     *time.Location
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxDaysAhead <= 0 {
		o.MaxDaysAhead = models.DefaultMaxDaysAhead
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Wizard holds one session. It is not safe for concurrent use; callers load,
// mutate and store it per request.
type Wizard struct {
	state models.WizardState
	opts  Options
}

// New opens a session. seed carries what is known up front (service,
// customer); location and schedule always start empty.
func New(sessionID string, seed models.BookingDraft, zones []models.ServiceZone, opts Options) *Wizard {
	opts = opts.withDefaults()
	now := opts.Now()
	seed.Location = models.Location{}
	seed.Schedule = models.Schedule{}
	seed.Zone = nil
	return &Wizard{
		opts: opts,
		state: models.WizardState{
			SessionID: sessionID,
			Step:      models.StepLocation,
			Draft:     seed,
			Zones:     zones,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// Restore rebuilds a wizard from a stored snapshot.
func Restore(state *models.WizardState, opts Options) *Wizard {
	return &Wizard{state: *cloneState(state), opts: opts.withDefaults()}
}

// Snapshot returns a copy of the session suitable for storage.
func (w *Wizard) Snapshot() *models.WizardState {
	return cloneState(&w.state)
}

func (w *Wizard) Step() models.WizardStep {
	return w.state.Step
}

func (w *Wizard) Draft() models.BookingDraft {
	return cloneState(&w.state).Draft
}

func (w *Wizard) Zones() []models.ServiceZone {
	return w.state.Zones
}

// SetPosition records a coordinate from the device or a map drag and runs the
// geofence. An out-of-zone position does not block, but makes a manual address
// mandatory before leaving the step.
func (w *Wizard) SetPosition(lat, lng float64, source string) (geo.Result, error) {
	if err := w.require(models.StepLocation); err != nil {
		return geo.Result{}, err
	}
	if lat < -90 || lat > 90 {
		return geo.Result{}, invalid("lat", "out of range")
	}
	if lng < -180 || lng > 180 {
		return geo.Result{}, invalid("lng", "out of range")
	}
	if source == "" {
		source = models.LocationSourceDevice
	}

	loc := &w.state.Draft.Location
	loc.Lat, loc.Lng = &lat, &lng
	loc.Source = source
	loc.ManualAddress = false
	loc.Address = ""
	loc.Pincode = ""

	result := geo.Result{}
	w.state.Draft.Zone = nil
	if geo.AnyConstrained(w.state.Zones) {
		result.Constrained = true
		if zone, ok := geo.FindZone(models.LatLng{Lat: lat, Lng: lng}, w.state.Zones); ok {
			result.Inside = true
			w.state.Draft.Zone = zone.Ref()
		}
	}
	w.state.OutOfZone = !result.Allowed()
	w.state.ManualRequired = w.state.OutOfZone
	w.touch()
	return result, nil
}

// SetManualAddress records a typed address. Without a usable coordinate the
// chosen zone's centroid is used.
func (w *Wizard) SetManualAddress(addr ManualAddress) error {
	if err := w.require(models.StepLocation); err != nil {
		return err
	}
	addr = addr.trimmed()
	if err := addr.validate(); err != nil {
		return err
	}

	var zone *models.ServiceZone
	if len(w.state.Zones) > 0 {
		if addr.ZoneID == "" {
			return invalid("zone_id", "required")
		}
		zone = w.findZone(addr.ZoneID)
		if zone == nil {
			return invalid("zone_id", "unknown zone")
		}
	}

	loc := &w.state.Draft.Location
	point := loc.Point()
	if w.state.OutOfZone || (point != nil && !geo.Check(point, zone).Allowed()) {
		point = nil
	}
	if point == nil && zone != nil {
		if c, ok := geo.Centroid(zone.Polygon); ok {
			point = &c
		}
	}
	if point == nil {
		return invalid("zone_id", "cannot resolve a position for this address")
	}

	lat, lng := point.Lat, point.Lng
	loc.Lat, loc.Lng = &lat, &lng
	loc.Address = addr.String()
	loc.Pincode = addr.Pincode
	loc.ManualAddress = true
	loc.Source = models.LocationSourceManual
	if zone != nil {
		w.state.Draft.Zone = zone.Ref()
	}
	w.state.OutOfZone = false
	w.state.ManualRequired = false
	w.touch()
	return nil
}

// SubmitLocation moves Location -> Landmark.
func (w *Wizard) SubmitLocation() error {
	if err := w.require(models.StepLocation); err != nil {
		return err
	}
	if w.state.Draft.Location.Point() == nil {
		return invalid("location", "a position is required")
	}
	if w.state.ManualRequired && !w.state.Draft.Location.ManualAddress {
		return invalid("address", "position is outside the service zone, enter the address manually")
	}
	w.advance(models.StepLandmark)
	return nil
}

// SubmitLandmark moves Landmark -> Schedule. For the "other" category name is
// a free-text address.
func (w *Wizard) SubmitLandmark(category, name, notes string) error {
	if err := w.require(models.StepLandmark); err != nil {
		return err
	}
	category = strings.TrimSpace(category)
	name = strings.TrimSpace(name)

	label, ok := models.LandmarkCategories[category]
	if !ok {
		return invalid("landmark_category", "unknown category")
	}

	var landmark string
	if category == models.LandmarkOther {
		if runeLen(name) < models.MinOtherAddressLength {
			return invalid("landmark", fmt.Sprintf("address must be at least %d characters", models.MinOtherAddressLength))
		}
		landmark = name
	} else {
		if runeLen(name) < models.MinLandmarkLength {
			return invalid("landmark", fmt.Sprintf("name must be at least %d characters", models.MinLandmarkLength))
		}
		landmark = label + ": " + name
	}

	loc := &w.state.Draft.Location
	loc.Landmark = landmark
	loc.LandmarkCategory = category
	loc.Notes = strings.TrimSpace(notes)
	w.advance(models.StepSchedule)
	return nil
}

// SubmitSchedule moves Schedule -> Confirm. date is YYYY-MM-DD in the
// configured time zone and must fall between today and the booking window.
func (w *Wizard) SubmitSchedule(date, slotID string) error {
	if err := w.require(models.StepSchedule); err != nil {
		return err
	}
	day, err := time.ParseInLocation(models.DateLayout, strings.TrimSpace(date), w.opts.Location)
	if err != nil {
		return invalid("date", "expected YYYY-MM-DD")
	}

	now := w.opts.Now().In(w.opts.Location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, w.opts.Location)
	if day.Before(today) {
		return invalid("date", "date is in the past")
	}
	if day.After(today.AddDate(0, 0, w.opts.MaxDaysAhead)) {
		return invalid("date", fmt.Sprintf("date is more than %d days ahead", w.opts.MaxDaysAhead))
	}

	slot, ok := models.FindTimeSlot(slotID)
	if !ok {
		return invalid("time_slot", "unknown time slot")
	}
	if day.Equal(today) {
		start, err := time.ParseInLocation("2006-01-02 15:04", day.Format(models.DateLayout)+" "+slot.ID, w.opts.Location)
		if err == nil && !start.After(now) {
			return invalid("time_slot", "time slot has already started")
		}
	}

	w.state.Draft.Schedule = models.Schedule{
		Date:      day.Format(models.DateLayout),
		TimeSlot:  slot.ID,
		TimeLabel: slot.Label,
	}
	w.advance(models.StepConfirm)
	return nil
}

// MarkVerified records a phone that passed the one-time code challenge.
func (w *Wizard) MarkVerified(phone string) error {
	if err := w.require(models.StepConfirm); err != nil {
		return err
	}
	if phone == "" {
		return invalid("phone", "required")
	}
	w.state.Draft.Customer.Phone = phone
	w.state.Draft.Customer.Verified = true
	w.touch()
	return nil
}

// UseSession records an already authenticated customer, which skips the code
// challenge.
func (w *Wizard) UseSession(customerID, name, phone string) error {
	if w.state.Step.Terminal() {
		return fmt.Errorf("%w: session is %s", ErrInvalidState, w.state.Step)
	}
	if customerID == "" {
		return invalid("customer_id", "required")
	}
	if phone == "" {
		return invalid("phone", "required")
	}
	c := &w.state.Draft.Customer
	c.ID = customerID
	c.Phone = phone
	if name != "" {
		c.Name = name
	}
	c.Verified = true
	w.touch()
	return nil
}

// Verified reports whether the draft carries a verified or pre-authenticated phone.
func (w *Wizard) Verified() bool {
	c := w.state.Draft.Customer
	return c.Phone != "" && (c.Verified || c.ID != "")
}

// Back returns to the previous data step.
func (w *Wizard) Back() error {
	prev, ok := map[models.WizardStep]models.WizardStep{
		models.StepLandmark: models.StepLocation,
		models.StepSchedule: models.StepLandmark,
		models.StepConfirm:  models.StepSchedule,
	}[w.state.Step]
	if !ok {
		return fmt.Errorf("%w: cannot go back from %s", ErrInvalidState, w.state.Step)
	}
	w.advance(prev)
	return nil
}

// Cancel aborts the session and drops everything captured so far.
func (w *Wizard) Cancel() error {
	if w.state.Step.Terminal() {
		return fmt.Errorf("%w: session is %s", ErrInvalidState, w.state.Step)
	}
	w.state.Draft = models.BookingDraft{}
	w.state.OutOfZone = false
	w.state.ManualRequired = false
	w.advance(models.StepCancelled)
	return nil
}

// Freeze gates Confirm -> Success and returns the draft to submit. The wizard
// stays on Confirm until Complete is called.
func (w *Wizard) Freeze() (models.BookingDraft, error) {
	if err := w.require(models.StepConfirm); err != nil {
		return models.BookingDraft{}, err
	}
	if !w.Verified() {
		return models.BookingDraft{}, invalid("phone", "phone is not verified")
	}
	draft := w.Draft()
	if err := models.ValidateDraft(&draft); err != nil {
		return models.BookingDraft{}, fmt.Errorf("%w: %w", ErrStepGate, err)
	}
	return draft, nil
}

// Complete records the submission outcome and ends the session.
func (w *Wizard) Complete(result models.SubmitResult) error {
	if err := w.require(models.StepConfirm); err != nil {
		return err
	}
	w.state.Result = &result
	w.advance(models.StepSuccess)
	return nil
}

func (w *Wizard) require(step models.WizardStep) error {
	if w.state.Step != step {
		return fmt.Errorf("%w: expected %s, at %s", ErrInvalidState, step, w.state.Step)
	}
	return nil
}

func (w *Wizard) advance(step models.WizardStep) {
	w.state.Step = step
	w.touch()
}

func (w *Wizard) touch() {
	w.state.UpdatedAt = w.opts.Now()
}

func (w *Wizard) findZone(id string) *models.ServiceZone {
	for i := range w.state.Zones {
		if w.state.Zones[i].ID == id {
			return &w.state.Zones[i]
		}
	}
	return nil
}

func cloneState(s *models.WizardState) *models.WizardState {
	c := *s
	if s.Draft.Location.Lat != nil {
		lat := *s.Draft.Location.Lat
		c.Draft.Location.Lat = &lat
	}
	if s.Draft.Location.Lng != nil {
		lng := *s.Draft.Location.Lng
		c.Draft.Location.Lng = &lng
	}
	if s.Draft.Zone != nil {
		z := *s.Draft.Zone
		c.Draft.Zone = &z
	}
	if s.Result != nil {
		r := *s.Result
		c.Result = &r
	}
	return &c
}

func runeLen(s string) int {
	return len([]rune(s))
}
