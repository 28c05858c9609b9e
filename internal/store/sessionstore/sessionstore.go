package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Ledu55/portfolio-tracker/data/session"
	"github.com/Ledu55/portfolio-tracker/internal/model"
	"github.com/Ledu55/portfolio-tracker/utils"
)

type AuthApi interface {
	Login(ctx context.Context, username, password string) (model.Token, error)
	Register(ctx context.Context, req model.UserCreate) (model.User, error)
	CurrentUser(ctx context.Context) (model.User, error)
	SetToken(token string)
	ClearToken()
}

type SessionStorage interface {
	GetSession(ctx context.Context) (model.StoredSession, error)
	SetSession(ctx context.Context, stored model.StoredSession) error
	DeleteSession(ctx context.Context) error
}

// SessionStore is the single source of truth for who is logged in and
// for the bearer credential every outgoing request carries. The
// durable record is written only by the login, restore and logout
// paths here. The mutex is never held across a gateway call: the 401
// hook re-enters the store via Evict while a call is still in flight.
type SessionStore struct {
	authApi AuthApi
	storage SessionStorage

	mu           sync.RWMutex
	session      model.Session
	restored     bool
	onSessionEnd []func()
}

func New(authApi AuthApi, storage SessionStorage) *SessionStore {
	return &SessionStore{authApi: authApi, storage: storage}
}

// OnSessionEnd registers a hook invoked whenever the session
// transitions to unauthenticated by logout or eviction. Dependent
// stores use it to drop user-owned caches.
func (s *SessionStore) OnSessionEnd(fn func()) {
	s.mu.Lock()
	s.onSessionEnd = append(s.onSessionEnd, fn)
	s.mu.Unlock()
}

func (s *SessionStore) Login(ctx context.Context, username, password string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "SessionStore.Login"

	slog.Debug("Login start", slog.String("rqID", rqID), slog.String("op", op), slog.String("username", username))
	defer func() {
		slog.Debug("Login finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("username", username))
	}()

	if s.IsAuthenticated() {
		return ErrAlreadyAuthenticated
	}

	token, err := s.authApi.Login(ctx, username, password)
	if err != nil {
		slog.Warn("got error from authApi.Login", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	s.authApi.SetToken(token.AccessToken)

	user, err := s.authApi.CurrentUser(ctx)
	if err != nil {
		slog.Error("got error from authApi.CurrentUser", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		s.authApi.ClearToken()
		return err
	}

	stored := model.StoredSession{
		CredentialToken: token.AccessToken,
		IsAuthenticated: true,
		User:            &user,
	}
	if err := s.storage.SetSession(ctx, stored); err != nil {
		// The in-memory session stays valid, only restoration after a
		// restart is lost.
		slog.Warn("can't persist session", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	s.mu.Lock()
	s.session = model.Session{
		User:            &user,
		CredentialToken: token.AccessToken,
		IsAuthenticated: true,
	}
	s.mu.Unlock()

	return nil
}

// Register creates the account and immediately logs in with the same
// credentials. A failed auto-login after a successful registration is
// reported as ErrAutoLoginFailed so the caller can tell it apart from
// a failed registration.
func (s *SessionStore) Register(ctx context.Context, req model.UserCreate) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "SessionStore.Register"

	slog.Debug("Register start", slog.String("rqID", rqID), slog.String("op", op), slog.String("username", req.Username))
	defer func() {
		slog.Debug("Register finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("username", req.Username))
	}()

	if s.IsAuthenticated() {
		return ErrAlreadyAuthenticated
	}

	if _, err := s.authApi.Register(ctx, req); err != nil {
		slog.Warn("got error from authApi.Register", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	if err := s.Login(ctx, req.Username, req.Password); err != nil {
		slog.Error("auto-login after registration failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return fmt.Errorf("%w: %w", ErrAutoLoginFailed, err)
	}

	return nil
}

// Logout clears the durable credential and resets the session. It
// never fails: storage errors are logged and the in-memory state is
// reset regardless.
func (s *SessionStore) Logout() {
	ctx := utils.CreateCtxWithRqID(context.Background())
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "SessionStore.Logout"

	slog.Debug("Logout start", slog.String("rqID", rqID), slog.String("op", op))

	if err := s.storage.DeleteSession(ctx); err != nil {
		slog.Warn("can't delete stored session", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	s.reset()

	slog.Debug("Logout finished", slog.String("rqID", rqID), slog.String("op", op))
}

// Evict is the target of the gateway's unauthorized hook: any 401
// response anywhere forces the session back to unauthenticated and
// drops the durable credential.
func (s *SessionStore) Evict() {
	ctx := utils.CreateCtxWithRqID(context.Background())
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "SessionStore.Evict"

	s.mu.RLock()
	active := s.session.IsAuthenticated || s.session.CredentialToken != ""
	s.mu.RUnlock()
	if !active {
		return
	}

	slog.Info("evicting session after unauthorized response", slog.String("rqID", rqID), slog.String("op", op))

	if err := s.storage.DeleteSession(ctx); err != nil {
		slog.Warn("can't delete stored session", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	s.reset()
}

// RestoreSession reads the durable record once at process start and
// validates the credential against the server. It is idempotent:
// repeated calls after the first restoration are no-ops.
func (s *SessionStore) RestoreSession(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "SessionStore.RestoreSession"

	slog.Debug("RestoreSession start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("RestoreSession finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	s.mu.Lock()
	if s.restored {
		s.mu.Unlock()
		return nil
	}
	s.restored = true
	s.mu.Unlock()

	stored, err := s.storage.GetSession(ctx)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil
		}
		slog.Error("got error from storage.GetSession", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		// Transient storage failure: allow a later retry.
		s.mu.Lock()
		s.restored = false
		s.mu.Unlock()
		return err
	}

	if stored.CredentialToken == "" {
		return nil
	}

	s.authApi.SetToken(stored.CredentialToken)

	user, err := s.authApi.CurrentUser(ctx)
	if err != nil {
		// Expired or otherwise rejected credential: restoration to an
		// empty session is still a successful restore. The 401 hook
		// has usually evicted already, Evict tolerates being called
		// twice.
		slog.Warn("stored credential rejected", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		s.authApi.ClearToken()
		if delErr := s.storage.DeleteSession(ctx); delErr != nil {
			slog.Warn("can't delete stored session", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", delErr.Error()))
		}
		s.mu.Lock()
		s.session = model.Session{}
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	s.session = model.Session{
		User:            &user,
		CredentialToken: stored.CredentialToken,
		IsAuthenticated: true,
	}
	s.mu.Unlock()

	return nil
}

func (s *SessionStore) Session() model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.session
	if s.session.User != nil {
		user := *s.session.User
		snapshot.User = &user
	}
	return snapshot
}

func (s *SessionStore) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.IsAuthenticated
}

func (s *SessionStore) reset() {
	s.authApi.ClearToken()

	s.mu.Lock()
	s.session = model.Session{}
	hooks := make([]func(), len(s.onSessionEnd))
	copy(hooks, s.onSessionEnd)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}
