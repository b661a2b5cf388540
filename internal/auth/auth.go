// Package auth keeps the upload client's credentials usable before any
// activity is touched.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sstent/zwiftsync/internal/utils"
)

// ErrAuth is returned when no valid access token could be obtained. It is
// fatal for a run and never retried.
var ErrAuth = errors.New("authorization failed")

// Authorizer is the credential side of an upload client.
type Authorizer interface {
	IsAuthorized() bool
	RequestAuthCode(ctx context.Context) error
	RequestAccessToken(ctx context.Context, refresh bool) error
	IsAccessTokenValid() bool
}

// State is a step of the credential lifecycle.
type State int

const (
	Unauthorized State = iota
	AuthorizationRequested
	TokenObtained
	TokenExpired
	Refreshed
	TokenValid
)

func (s State) String() string {
	switch s {
	case Unauthorized:
		return "unauthorized"
	case AuthorizationRequested:
		return "authorization requested"
	case TokenObtained:
		return "token obtained"
	case TokenExpired:
		return "token expired"
	case Refreshed:
		return "refreshed"
	case TokenValid:
		return "token valid"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Manager drives an Authorizer to a valid access token.
type Manager struct {
	Log logrus.FieldLogger

	// OnTransition, when set, is called for every state the manager enters.
	OnTransition func(State)
}

// NewManager returns a Manager logging to log.
func NewManager(log logrus.FieldLogger) *Manager {
	return &Manager{Log: utils.OrDefault(log)}
}

func (m *Manager) enter(s State) {
	utils.OrDefault(m.Log).WithField("state", s.String()).Debug("Credential state changed")
	if m.OnTransition != nil {
		m.OnTransition(s)
	}
}

// EnsureValid authorizes a, refreshing its access token if needed. Calling it
// on an already valid authorizer makes no requests.
func (m *Manager) EnsureValid(ctx context.Context, a Authorizer) error {
	if !a.IsAuthorized() {
		m.enter(Unauthorized)
		if err := a.RequestAuthCode(ctx); err != nil {
			return fmt.Errorf("%w: failed to request authorization code: %v", ErrAuth, err)
		}
		m.enter(AuthorizationRequested)
		if err := a.RequestAccessToken(ctx, false); err != nil {
			return fmt.Errorf("%w: failed to request access token: %v", ErrAuth, err)
		}
		m.enter(TokenObtained)
	}

	if !a.IsAccessTokenValid() {
		m.enter(TokenExpired)
		if err := a.RequestAccessToken(ctx, true); err != nil {
			return fmt.Errorf("%w: failed to refresh access token: %v", ErrAuth, err)
		}
		if !a.IsAccessTokenValid() {
			return fmt.Errorf("%w: access token still invalid after refresh", ErrAuth)
		}
		m.enter(Refreshed)
	}

	m.enter(TokenValid)
	return nil
}

// EnsureValid runs a default Manager against a.
func EnsureValid(ctx context.Context, a Authorizer) error {
	return NewManager(nil).EnsureValid(ctx, a)
}
