package session

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Siva-Pavan02/Computer-Science-AI/config"
	"github.com/gorilla/sessions"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const idKey = "sid"

// Settings are the chat parameters that apply to every session. They can
// change at runtime through config reloads.
type Settings struct {
	MaxMemoryPrompts int
	DefaultRole      string
	WelcomeMessage   string
}

// SettingsFromConfig extracts Settings from the chat section.
func SettingsFromConfig(cfg config.ChatConfig) Settings {
	return Settings{
		MaxMemoryPrompts: cfg.MaxMemoryPrompts,
		DefaultRole:      cfg.DefaultRole,
		WelcomeMessage:   cfg.WelcomeMessage,
	}
}

// Manager loads the session for a request and saves it back.
type Manager struct {
	cookies    *sessions.CookieStore
	cookieName string
	store      Store
	logger     *zap.Logger

	mu       sync.RWMutex
	settings Settings
}

// NewManager creates a manager signing cookies with cfg.Session.Secret.
func NewManager(cfg *config.Config, store Store, logger *zap.Logger) (*Manager, error) {
	if cfg.Session.Secret == "" {
		return nil, fmt.Errorf("session secret is required")
	}
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cookies := sessions.NewCookieStore([]byte(cfg.Session.Secret))
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.Session.TTL / time.Second),
		HttpOnly: true,
		Secure:   cfg.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	}

	return &Manager{
		cookies:    cookies,
		cookieName: cfg.Session.CookieName,
		store:      store,
		logger:     logger,
		settings:   SettingsFromConfig(cfg.Chat),
	}, nil
}

// Settings returns the current chat settings.
func (m *Manager) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// SetSettings replaces the chat settings used by later requests.
func (m *Manager) SetSettings(s Settings) {
	m.mu.Lock()
	m.settings = s
	m.mu.Unlock()
}

// Store returns the backing store.
func (m *Manager) Store() Store {
	return m.store
}

// Load returns the session referenced by the request cookie. A missing,
// forged or expired cookie yields a new session. Only store failures are
// returned as errors.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	cs, err := m.cookies.Get(r, m.cookieName)
	if err != nil {
		// Undecodable cookie, typically after a secret rotation
		m.logger.Debug("discarding session cookie", zap.Error(err))
		return New(), nil
	}

	id, _ := cs.Values[idKey].(string)
	if id == "" {
		return New(), nil
	}
	if _, err := ulid.ParseStrict(id); err != nil {
		return New(), nil
	}

	s, err := m.store.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return s, nil
}

// Save writes s to the store and sets the session cookie on w. It must be
// called before the response body is written.
func (m *Manager) Save(w http.ResponseWriter, r *http.Request, s *Session) error {
	if err := m.store.Save(r.Context(), s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	// Get never fails hard: on a bad cookie it still returns a fresh session
	cs, _ := m.cookies.Get(r, m.cookieName)
	cs.Values[idKey] = s.ID
	if err := cs.Save(r, w); err != nil {
		return fmt.Errorf("write session cookie: %w", err)
	}
	s.isNew = false
	return nil
}
