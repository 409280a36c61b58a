package services

import (
	"errors"
	"regexp"
	"unicode/utf8"

	"github.com/tbourn/chatverse/internal/domain"
)

const (
	minUsernameRunes = 3
	minPasswordRunes = 6
)

var emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

// RegistrationForm is the sign-up form as typed by the user.
type RegistrationForm struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate returns every problem with the form, in display order. An empty
// email is allowed.
func (f RegistrationForm) Validate() []string {
	var problems []string
	if utf8.RuneCountInString(f.Username) < minUsernameRunes {
		problems = append(problems, "Username must be at least 3 characters long")
	}
	if utf8.RuneCountInString(f.Password) < minPasswordRunes {
		problems = append(problems, "Password must be at least 6 characters long")
	}
	if f.Password != f.ConfirmPassword {
		problems = append(problems, "Passwords do not match")
	}
	if f.Email != "" && !emailPattern.MatchString(f.Email) {
		problems = append(problems, "Please enter a valid email address")
	}
	return problems
}

// Registration converts a validated form into the gateway payload.
func (f RegistrationForm) Registration() domain.Registration {
	return domain.Registration{Username: f.Username, Password: f.Password, Email: f.Email}
}

// DisplayErrors returns the messages a sign-up or login screen shows.
// Validation problems replace the session error entirely; they are never
// merged with it.
func DisplayErrors(err error, s domain.Session) []string {
	var verr *domain.ValidationError
	if errors.As(err, &verr) && len(verr.Problems) > 0 {
		return append([]string(nil), verr.Problems...)
	}
	if s.LastError != "" {
		return []string{s.LastError}
	}
	return nil
}
