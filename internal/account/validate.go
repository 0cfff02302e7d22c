package account

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/emuse/internal/model"
)

var localePattern = regexp.MustCompile(`^[a-z]{2}_[A-Z]{2}$`)

// SignupInput is the signup request body.
type SignupInput struct {
	Email       string `json:"email" validate:"required,email,max=320"`
	Password    string `json:"password" validate:"required,min=8,max=1024"`
	FirstName   string `json:"first_name" validate:"required,min=1,max=100"`
	Surname     string `json:"surname" validate:"required,min=1,max=100"`
	DisplayName string `json:"display_name" validate:"required,min=1,max=100"`
	DateOfBirth string `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
	Locale      string `json:"locale" validate:"locale"`
	Timezone    string `json:"timezone" validate:"timezone"`
}

func (in *SignupInput) normalize() {
	in.Email = model.NormalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.Surname = strings.TrimSpace(in.Surname)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	in.DateOfBirth = strings.TrimSpace(in.DateOfBirth)
	in.Locale = strings.TrimSpace(in.Locale)
	in.Timezone = strings.TrimSpace(in.Timezone)
	if in.Locale == "" {
		in.Locale = model.DefaultLocale
	}
	if in.Timezone == "" {
		in.Timezone = model.DefaultTimezone
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("locale", func(fl validator.FieldLevel) bool {
		return localePattern.MatchString(fl.Field().String())
	})
	return v
}

// validateSignup returns a *ValidationError for the first failing field and
// the parsed date of birth otherwise.
func (s *Service) validateSignup(in SignupInput) (time.Time, error) {
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return time.Time{}, fieldError(verrs[0])
		}
		return time.Time{}, fmt.Errorf("validate signup: %w", err)
	}

	dob, err := time.Parse(model.DateLayout, in.DateOfBirth)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date_of_birth", Message: "must be a date in YYYY-MM-DD form"}
	}
	if !dob.Before(time.Now().UTC().Truncate(24 * time.Hour)) {
		return time.Time{}, &ValidationError{Field: "date_of_birth", Message: "must be in the past"}
	}
	return dob, nil
}

func fieldError(fe validator.FieldError) *ValidationError {
	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "email":
		msg = "must be a valid email address"
	case "min":
		msg = fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		msg = fmt.Sprintf("must be at most %s characters", fe.Param())
	case "datetime":
		msg = "must be a date in YYYY-MM-DD form"
	case "locale":
		msg = "must look like en_US"
	case "timezone":
		msg = "must be an IANA time zone"
	default:
		msg = fmt.Sprintf("failed %s validation", fe.Tag())
	}
	return &ValidationError{Field: fe.Field(), Message: msg}
}
