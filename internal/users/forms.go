package users

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// RegistrationForm carries the fields submitted when creating an account.
type RegistrationForm struct {
	LoginID   string `validate:"required,alphanum,min=4,max=20"`
	Password  string `validate:"required,min=8,passwordcomplex"`
	FirstName string `validate:"required,max=64"`
	LastName  string `validate:"required,max=64"`
	Address   string `validate:"required"`
	Gender    string `validate:"required,oneof=male female other"`
	Phone     string `validate:"required,usphone"`
	Email     string `validate:"required,email,max=120"`
}

// ProfileForm carries the editable profile fields. The login identifier is
// immutable and the password is changed only through the reset flow.
type ProfileForm struct {
	FirstName string `validate:"required,max=64"`
	LastName  string `validate:"required,max=64"`
	Address   string `validate:"required"`
	Gender    string `validate:"required,oneof=male female other"`
	Phone     string `validate:"required,usphone"`
	Email     string `validate:"required,email,max=120"`
}

var (
	phonePattern    = regexp.MustCompile(`^\(\d{3}\) \d{3}-\d{4}$`)
	passwordLetter  = regexp.MustCompile(`[A-Za-z]`)
	passwordDigit   = regexp.MustCompile(`\d`)
	passwordSpecial = regexp.MustCompile(`[@$!%*#?&]`)
)

// NewValidator returns a validator with the custom form rules registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("usphone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("passwordcomplex", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return passwordLetter.MatchString(s) && passwordDigit.MatchString(s) && passwordSpecial.MatchString(s)
	})
	return v
}

// FieldErrors converts a validator error into a field -> message map suitable
// for redisplaying the form. Unknown fields fall back to a generic message.
func FieldErrors(err error) map[string]string {
	out := make(map[string]string)
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		out["general"] = "Please correct the highlighted fields."
		return out
	}
	for _, fe := range verrs {
		out[fe.Field()] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "LoginID":
		switch fe.Tag() {
		case "required":
			return "User ID is required"
		case "alphanum":
			return "User ID must be alphanumeric"
		default:
			return "User ID must be between 4 and 20 characters"
		}
	case "Password":
		switch fe.Tag() {
		case "required":
			return "Password is required"
		case "min":
			return "Password must be at least 8 characters"
		default:
			return "Password must include letters, numbers, and special characters"
		}
	case "FirstName":
		if fe.Tag() == "required" {
			return "First name is required"
		}
		return "First name must be at most 64 characters"
	case "LastName":
		if fe.Tag() == "required" {
			return "Last name is required"
		}
		return "Last name must be at most 64 characters"
	case "Address":
		return "Address is required"
	case "Gender":
		return "Please select a gender"
	case "Phone":
		if fe.Tag() == "required" {
			return "Phone number is required"
		}
		return "Phone number must be in format (XXX) XXX-XXXX"
	case "Email":
		switch fe.Tag() {
		case "required":
			return "Email is required"
		case "max":
			return "Email must be at most 120 characters"
		default:
			return "Please enter a valid email address"
		}
	default:
		return "Invalid value"
	}
}
