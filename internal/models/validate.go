package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrNotSubmittable is returned when a draft misses data required for submission.
var ErrNotSubmittable = errors.New("draft is not submittable")

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func draftValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		// Report json names in errors.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ValidateDraft checks that a draft carries location, landmark, schedule and a
// verified or pre-authenticated phone.
func ValidateDraft(d *BookingDraft) error {
	if d == nil {
		return fmt.Errorf("%w: draft is nil", ErrNotSubmittable)
	}
	if err := draftValidator().Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrNotSubmittable, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrNotSubmittable, err)
	}
	if !d.Customer.Verified && d.Customer.ID == "" {
		return fmt.Errorf("%w: phone is not verified", ErrNotSubmittable)
	}
	if d.Price.IsNegative() {
		return fmt.Errorf("%w: negative price", ErrNotSubmittable)
	}
	return nil
}
