// Package auth drives the login/registration flow: one REST call per
// submission, session persisted on success.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/achuthan-s/oasis-chat-client/internal/domain"
	"github.com/achuthan-s/oasis-chat-client/internal/rest"
	"github.com/achuthan-s/oasis-chat-client/pkg/logger"
)

// ErrBusy is returned when a submission is already in flight. It is the
// equivalent of a disabled submit button: the caller should simply wait.
var ErrBusy = errors.New("authentication already in progress")

type Kind string

const (
	KindLogin    Kind = "login"
	KindRegister Kind = "register"
)

// Credentials are the raw form fields. Email is only used for registration.
type Credentials struct {
	Username string
	Email    string
	Password string
}

// API is the slice of the REST client the controller needs.
type API interface {
	Login(ctx context.Context, username, password string) (rest.AuthResult, error)
	Register(ctx context.Context, username, email, password string) (rest.AuthResult, error)
}

// SessionStore persists the session on success.
type SessionStore interface {
	Save(token string, user domain.User) error
}

type Controller struct {
	api      API
	store    SessionStore
	logger   logger.Logger
	inFlight atomic.Bool
}

func NewController(api API, store SessionStore, logg logger.Logger) *Controller {
	return &Controller{
		api:    api,
		store:  store,
		logger: logg.WithModule("auth"),
	}
}

// Submit performs one authentication attempt. While an attempt is pending,
// further calls return ErrBusy; the guard is released on every exit path.
//
// On success the session is persisted before returning, so a crash right
// after Submit still leaves the client logged in. On any failure nothing is
// persisted and the form remains usable.
func (c *Controller) Submit(ctx context.Context, kind Kind, creds Credentials) (domain.Session, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return domain.Session{}, ErrBusy
	}
	defer c.inFlight.Store(false)

	var (
		result rest.AuthResult
		err    error
	)
	switch kind {
	case KindLogin:
		result, err = c.api.Login(ctx, creds.Username, creds.Password)
	case KindRegister:
		result, err = c.api.Register(ctx, creds.Username, creds.Email, creds.Password)
	default:
		return domain.Session{}, fmt.Errorf("unknown auth kind %q", kind)
	}
	if err != nil {
		var apiErr *rest.APIError
		if errors.As(err, &apiErr) {
			c.logger.Infof("%s rejected: %s", kind, apiErr.Message)
		} else {
			c.logger.Warnf("%s request failed: %v", kind, err)
		}
		return domain.Session{}, err
	}

	if err := c.store.Save(result.Token, result.User); err != nil {
		return domain.Session{}, fmt.Errorf("failed to persist session: %w", err)
	}

	c.logger.Infof("%s succeeded for %s", kind, result.User.Username)
	return domain.Session{Token: result.Token, User: result.User}, nil
}

// Pending reports whether a submission is currently in flight.
func (c *Controller) Pending() bool {
	return c.inFlight.Load()
}

// Describe maps a Submit error to the inline message a form should show.
// Server-reported failures surface verbatim; anything else is the generic
// network message.
func Describe(err error) string {
	var apiErr *rest.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if errors.Is(err, ErrBusy) {
		return "Please wait for the previous attempt to finish."
	}
	return "Network error. Please try again."
}
