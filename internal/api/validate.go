package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/learnpath/gamify/internal/domain"
)

const notBlankTag = "notblank"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	var err error
	if validate, translator, err = newValidator(); err != nil {
		panic("api: " + err.Error())
	}
}

// newValidator builds the request validator with English messages and the
// notblank rule.
func newValidator() (*validator.Validate, ut.Translator, error) {
	v := validator.New()

	english := en.New()
	uni := ut.New(english, english)
	trans, ok := uni.GetTranslator("en")
	if !ok {
		return nil, nil, errors.New("english translator not found")
	}
	if err := en_translations.RegisterDefaultTranslations(v, trans); err != nil {
		return nil, nil, fmt.Errorf("register default translations: %w", err)
	}

	// Report JSON field names, not Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation(notBlankTag, notBlank); err != nil {
		return nil, nil, fmt.Errorf("register %s: %w", notBlankTag, err)
	}
	// The default translations are already registered, so a noop register
	// func satisfies RegisterTranslation.
	err := v.RegisterTranslation(notBlankTag, trans,
		func(ut.Translator) error { return nil },
		func(_ ut.Translator, fe validator.FieldError) string {
			return fe.Field() + " cannot be blank"
		})
	if err != nil {
		return nil, nil, fmt.Errorf("register %s translation: %w", notBlankTag, err)
	}
	return v, trans, nil
}

func notBlank(fl validator.FieldLevel) bool {
	if s, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// validateStruct runs tag validation and reports the first failing field.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if errors.As(err, &fields) && len(fields) > 0 {
		fe := fields[0]
		return &domain.ValidationError{Reason: fe.Translate(translator)}
	}
	return &domain.ValidationError{Reason: err.Error()}
}

// decodeBody decodes an optional JSON body into v and validates it. An
// empty body decodes to the zero value before validation.
func decodeBody(r *http.Request, v any) error {
	if r.Body != nil {
		dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
		if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				return &domain.ValidationError{
					Field:  typeErr.Field,
					Reason: "expected " + typeErr.Type.String(),
				}
			}
			return &domain.ValidationError{Reason: "malformed JSON body"}
		}
	}
	return validateStruct(v)
}

// ─── Request Bodies ─────────────────────────────────────────────────────────

type userBody struct {
	UserID string `json:"userId"`
}

type awardXPRequest struct {
	UserID      string `json:"userId"`
	Amount      *int64 `json:"amount" validate:"required"`
	Source      string `json:"source" validate:"notblank"`
	Description string `json:"description"`
}

type levelCheckRequest struct {
	UserID  string `json:"userId"`
	XPToAdd *int64 `json:"xpToAdd" validate:"required"`
}

type activityRequest struct {
	UserID       string `json:"userId"`
	ActivityType string `json:"activityType" validate:"notblank"`
}

type goalRequest struct {
	UserID         string                 `json:"userId"`
	DailyGoal      *int                   `json:"dailyGoal"`
	TimeCommitment *domain.TimeCommitment `json:"timeCommitment"`
}

type completeRequest struct {
	UserID   string `json:"userId"`
	LessonID string `json:"lessonId" validate:"notblank"`
}

type unlockRequest struct {
	UserID  string `json:"userId"`
	BadgeID string `json:"badgeId" validate:"notblank"`
}

type optInRequest struct {
	UserID string `json:"userId"`
	OptIn  *bool  `json:"optIn"`
}

type leagueXPRequest struct {
	UserID string `json:"userId"`
	Amount *int64 `json:"amount" validate:"required"`
}
