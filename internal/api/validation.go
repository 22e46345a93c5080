package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"

	"github.com/hackgods/booking-engine/internal/apperror"
	"github.com/hackgods/booking-engine/internal/schedule"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	// hhmm is a start time: HH:MM strictly before midnight.
	must(v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		t, err := schedule.ParseTimeOfDay(fl.Field().String())
		return err == nil && t < schedule.MinutesPerDay
	}))
	must(v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		_, err := civil.ParseDate(fl.Field().String())
		return err == nil
	}))

	return v
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// decodeJSON decodes and validates a request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return apperror.Invalid("could not parse JSON body: %v", err)
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.Invalid("%v", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return apperror.Invalid("%s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "uuid":
		return fe.Field() + " must be a valid UUID"
	case "date":
		return fe.Field() + " must be a date in YYYY-MM-DD format"
	case "hhmm":
		return fe.Field() + " must be a time in HH:MM format"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}
