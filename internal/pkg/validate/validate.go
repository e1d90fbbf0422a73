package validate

import "github.com/go-playground/validator/v10"

// v is the package-level singleton validator, initialised once at package
// load time.
var v = validator.New()

// Email reports whether s is a syntactically valid email address, using the
// same rules as the `email` struct tag.
func Email(s string) bool {
	return v.Var(s, "email") == nil
}
