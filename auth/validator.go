package auth

import (
	"chat-relay/domain"
	"chat-relay/errors"
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	validate        = newValidator()
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		return usernamePattern.MatchString(name) && !strings.EqualFold(name, domain.Anonymous)
	})
	return v
}

type RegisterRequest struct {
	Username string `validate:"required,min=3,max=32,username"`
	Password string `validate:"required,min=8,max=72"`
}

// ValidateRegister returns ErrInvalidUsername or ErrInvalidPassword with the
// failed rule, checked before any expensive hashing.
func ValidateRegister(req RegisterRequest) error {
	if err := validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if !stderrors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
			return err
		}
		fe := fieldErrs[0]
		if fe.Field() == "Username" {
			return fmt.Errorf("%w: %s", errors.ErrInvalidUsername, describe(fe))
		}
		return fmt.Errorf("%w: %s", errors.ErrInvalidPassword, describe(fe))
	}

	if !isPasswordComplex(req.Password) {
		return fmt.Errorf("%w: needs at least one letter and one digit", errors.ErrInvalidPassword)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s needs at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s allows at most %s characters", field, fe.Param())
	case "username":
		return "letters, digits, '.', '_' and '-' only, and not a reserved name"
	default:
		return field + " is invalid"
	}
}

func isPasswordComplex(s string) bool {
	var hasLetter, hasNumber bool
	for _, char := range s {
		switch {
		case unicode.IsLetter(char):
			hasLetter = true
		case unicode.IsNumber(char):
			hasNumber = true
		}
	}
	return hasLetter && hasNumber
}
