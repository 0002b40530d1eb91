package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/auth"
)

type State int

const (
	Unauthenticated State = iota
	Validating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Validating:
		return "validating"
	case Authenticated:
		return "authenticated"
	}
	return "unauthenticated"
}

// Session tracks who is signed in to the dashboard. It never holds its lock
// across an API call, since a 401 from that call re-enters Teardown.
type Session struct {
	api    *API
	store  Store
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	state   State
	profile *auth.Profile
	hooks   []func()
}

// NewSession wires the session to api: a rejected token on any
// authenticated call tears the session down.
func NewSession(api *API, store Store, logger zerolog.Logger) *Session {
	s := &Session{
		api:    api,
		store:  store,
		logger: logger.With().Str("component", "session").Logger(),
		now:    time.Now,
	}
	api.SetOnExpired(func() {
		if err := s.Teardown(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("session teardown failed")
		}
	})
	return s
}

// OnTeardown registers fn to run after every teardown.
func (s *Session) OnTeardown(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Profile returns the signed-in profile, or nil.
func (s *Session) Profile() *auth.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return nil
	}
	cp := *s.profile
	return &cp
}

// Permissions are empty while signed out.
func (s *Session) Permissions() auth.Permissions {
	p := s.Profile()
	if p == nil {
		return auth.Permissions{}
	}
	return auth.PermissionsForRoles(p.Roles)
}

func (s *Session) set(state State, token string, profile *auth.Profile) {
	s.mu.Lock()
	s.state = state
	s.profile = profile
	s.mu.Unlock()
	s.api.SetToken(token)
}

// Restore resumes a persisted session. The stored token is checked against
// /auth/me: success signs the user in, a 401 tears the session down, and any
// other failure leaves the cached profile in place in the Validating state.
func (s *Session) Restore(ctx context.Context) error {
	p, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if p == nil || p.Token == "" {
		s.set(Unauthenticated, "", nil)
		return nil
	}
	if tokenExpired(p.Token, s.now()) {
		s.logger.Info().Msg("stored token expired")
		return s.Teardown(ctx)
	}

	cached := p.Profile
	s.set(Validating, p.Token, &cached)

	profile, err := s.api.Me(ctx)
	switch {
	case err == nil:
		s.set(Authenticated, p.Token, profile)
		return s.save(ctx, p.Token, profile)
	case errors.Is(err, ErrAuthExpired):
		s.logger.Info().Msg("stored token rejected")
		if terr := s.Teardown(ctx); terr != nil {
			return terr
		}
		return ErrAuthExpired
	default:
		s.logger.Warn().Err(err).Msg("could not validate session, keeping cached profile")
		return nil
	}
}

// Login signs in with credentials at the auth service.
func (s *Session) Login(ctx context.Context, email, password string) error {
	resp, err := s.api.Login(ctx, email, password)
	if err != nil {
		return err
	}
	s.set(Authenticated, resp.Token, &resp.User)
	s.logger.Info().Str("user_id", resp.User.ID.String()).Str("role", resp.User.Role).Msg("signed in")
	return s.save(ctx, resp.Token, &resp.User)
}

// UseToken signs in with a token issued out of band.
func (s *Session) UseToken(ctx context.Context, token string) error {
	s.api.SetToken(token)
	profile, err := s.api.Me(ctx)
	if err != nil {
		s.api.SetToken("")
		return err
	}
	s.set(Authenticated, token, profile)
	return s.save(ctx, token, profile)
}

// Logout revokes the token server side when it can, then tears down
// locally. A server that cannot be reached does not block sign-out.
func (s *Session) Logout(ctx context.Context) error {
	if s.api.Token() != "" {
		if err := s.api.Logout(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("server logout failed, signing out locally")
		}
	}
	return s.Teardown(ctx)
}

// Teardown forgets the token and profile, clears the store and runs the
// teardown hooks. It is safe to call more than once.
func (s *Session) Teardown(ctx context.Context) error {
	s.mu.Lock()
	s.state = Unauthenticated
	s.profile = nil
	hooks := append([]func(){}, s.hooks...)
	s.mu.Unlock()
	s.api.SetToken("")

	err := s.store.Clear(ctx)
	for _, h := range hooks {
		h()
	}
	if err != nil {
		return fmt.Errorf("teardown: %w", err)
	}
	return nil
}

func (s *Session) save(ctx context.Context, token string, profile *auth.Profile) error {
	if err := s.store.Save(ctx, &Persisted{Token: token, Profile: *profile, SavedAt: s.now()}); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// tokenExpired reads the exp claim without verifying the signature. The
// server still decides; this only avoids a round trip for tokens that are
// already dead.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && !claims.ExpiresAt.After(now)
}
