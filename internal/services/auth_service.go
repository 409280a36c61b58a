// Package services – AuthService
//
// AuthService drives the session store through login, registration and
// logout. Local form validation runs before any gateway call; a form that
// fails validation leaves the session untouched.
package services

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/chatverse/internal/domain"
	"github.com/tbourn/chatverse/internal/store"
)

// AuthService coordinates authentication with the session store.
type AuthService struct {
	Session *store.SessionStore
	Gateway AuthGateway
}

// Login authenticates with the gateway and records the outcome. The gateway
// error is returned unchanged.
func (s *AuthService) Login(ctx context.Context, username, password string) (domain.User, error) {
	tr := otel.Tracer("services/AuthService")
	ctx, span := tr.Start(ctx, "Login",
		trace.WithAttributes(attribute.String("user.name", username)),
	)
	defer span.End()

	s.Session.BeginAuth()
	res, err := s.Gateway.Login(ctx, domain.Credentials{Username: username, Password: password})
	return s.complete(span, res, err)
}

// Register validates the form and, when it passes, registers with the gateway.
// Validation failures come back as *domain.ValidationError.
func (s *AuthService) Register(ctx context.Context, form RegistrationForm) (domain.User, error) {
	tr := otel.Tracer("services/AuthService")
	ctx, span := tr.Start(ctx, "Register",
		trace.WithAttributes(attribute.String("user.name", form.Username)),
	)
	defer span.End()

	if problems := form.Validate(); len(problems) > 0 {
		span.SetAttributes(attribute.Int("validation.problems", len(problems)))
		return domain.User{}, &domain.ValidationError{Problems: problems}
	}

	s.Session.BeginAuth()
	res, err := s.Gateway.Register(ctx, form.Registration())
	return s.complete(span, res, err)
}

func (s *AuthService) complete(span trace.Span, res domain.AuthResult, err error) (domain.User, error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.Session.FailAuth(err.Error())
		log.Debug().Err(err).Msg("authentication failed")
		return domain.User{}, err
	}
	s.Session.CompleteAuth(res.User)
	span.SetAttributes(attribute.String("user.id", res.User.ID))
	log.Info().Str("user_id", res.User.ID).Str("username", res.User.Username).Msg("authenticated")
	return res.User, nil
}

// ClearError dismisses the current session error.
func (s *AuthService) ClearError() {
	s.Session.ClearError()
}

// Logout resets the session. The gateway call is best effort: its failure is
// logged and the session is reset anyway.
func (s *AuthService) Logout(ctx context.Context) {
	tr := otel.Tracer("services/AuthService")
	ctx, span := tr.Start(ctx, "Logout")
	defer span.End()

	if err := s.Gateway.Logout(ctx); err != nil {
		span.RecordError(err)
		log.Warn().Err(err).Msg("gateway logout failed")
	}
	s.Session.Logout()
}
