package auth

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Credentials identify a user on a Trac server.
type Credentials struct {
	URL      string `param:"url" validate:"required"`
	Username string `param:"username" validate:"required"`
	Password string `param:"password" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("param"); name != "" {
			return name
		}
		return strings.ToLower(f.Name)
	})
	return v
}

// missingParameter returns the name of the first absent credential field in
// the order url, username, password, or "" when all are present.
func (c Credentials) missingParameter() string {
	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Field()
	}
	return ""
}
