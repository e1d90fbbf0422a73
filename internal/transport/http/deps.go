package http

import (
	"github.com/bcbuzz/api/internal/infrastructure/dynamo"
	jwtinfra "github.com/bcbuzz/api/internal/infrastructure/jwt"
	"github.com/bcbuzz/api/internal/infrastructure/smtp"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo    *dynamo.UserRepo
	TesterRepo  *dynamo.TesterRepo
	AdminRepo   *dynamo.AdminRepo
	OTPRepo     *dynamo.OTPRepo
	Mailer      smtp.Mailer
	JWTProvider *jwtinfra.Provider
}
