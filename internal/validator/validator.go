package validator

import (
	"concord-backend/internal/models"
	"errors"
	"fmt"
	"regexp"

	govalidator "github.com/go-playground/validator/v10"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._+-]*[a-zA-Z0-9])?@[a-zA-Z0-9]([a-zA-Z0-9.-]*[a-zA-Z0-9])?\.[a-zA-Z]{2,}$`)
	lowercase  = regexp.MustCompile(`[a-z]`)
	uppercase  = regexp.MustCompile(`[A-Z]`)
	number     = regexp.MustCompile(`\d`)
)

func Email(email string) error {
	const maxlength = 64

	if len(email) > maxlength {
		return fmt.Errorf("long_email")
	}

	if !emailRegex.MatchString(email) {
		return fmt.Errorf("bad_format")
	}

	return nil
}

func Password(password string) error {
	length := len(password)
	if length < 6 {
		return fmt.Errorf("short_password")
	} else if length > 32 {
		return fmt.Errorf("long_password")
	}

	if !lowercase.MatchString(password) {
		return fmt.Errorf("no_lowercase")
	}
	if !uppercase.MatchString(password) {
		return fmt.Errorf("no_uppercase")
	}
	if !number.MatchString(password) {
		return fmt.Errorf("no_number")
	}
	return nil
}

// New returns a struct validator that knows the custom "emailaddr",
// "password" and "channeltype" tags used by the request models.
func New() *govalidator.Validate {
	validate := govalidator.New(govalidator.WithRequiredStructEnabled())

	_ = validate.RegisterValidation("emailaddr", func(fl govalidator.FieldLevel) bool {
		return Email(fl.Field().String()) == nil
	})
	_ = validate.RegisterValidation("password", func(fl govalidator.FieldLevel) bool {
		return Password(fl.Field().String()) == nil
	})
	_ = validate.RegisterValidation("channeltype", func(fl govalidator.FieldLevel) bool {
		return models.ChannelType(fl.Field().Int()).Valid()
	})

	return validate
}

// FieldErrors flattens validation errors into field name to failed tag.
// For the emailaddr and password tags the reason from Email or Password is
// reported instead.
func FieldErrors(err error) map[string]string {
	var validationErrors govalidator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}

	fields := make(map[string]string, len(validationErrors))
	for _, fe := range validationErrors {
		reason := fe.Tag()
		switch reason {
		case "emailaddr":
			if err := Email(fmt.Sprint(fe.Value())); err != nil {
				reason = err.Error()
			}
		case "password":
			if err := Password(fmt.Sprint(fe.Value())); err != nil {
				reason = err.Error()
			}
		}
		fields[fe.Field()] = reason
	}
	return fields
}
