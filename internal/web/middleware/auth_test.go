package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
)

// memoryRepo is an in-memory SessionRepository.
type memoryRepo struct {
	mu       sync.Mutex
	sessions map[string]*StoredSession
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{sessions: make(map[string]*StoredSession)}
}

func (m *memoryRepo) Save(_ context.Context, id, username string, createdAt, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = &StoredSession{ID: id, Username: username, CreatedAt: createdAt, ExpiresAt: expiresAt}
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id string) (*StoredSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || time.Now().After(s.ExpiresAt) {
		return nil, nil
	}
	return s, nil
}

func (m *memoryRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memoryRepo) DeleteExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if time.Now().After(s.ExpiresAt) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func TestNewSessionManager(t *testing.T) {
	sm := NewSessionManager("test-secret", nil)
	defer sm.Stop()

	if sm.sessions == nil {
		t.Error("sessions map is nil")
	}
}

func TestSessionManager_CreateSession(t *testing.T) {
	sm := NewSessionManager("test-secret", nil)
	defer sm.Stop()

	session, err := sm.CreateSession("admin")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if session.ID == "" {
		t.Error("session ID is empty")
	}
	if session.Username != "admin" {
		t.Errorf("Username = %s, want admin", session.Username)
	}
	if session.ExpiresAt.Before(time.Now()) {
		t.Error("session expires in the past")
	}
}

func TestSessionManager_GetSession(t *testing.T) {
	sm := NewSessionManager("test-secret", nil)
	defer sm.Stop()

	session, _ := sm.CreateSession("admin")

	retrieved := sm.GetSession(session.ID)
	if retrieved == nil {
		t.Fatal("GetSession() returned nil for existing session")
	}
	if retrieved.Username != "admin" {
		t.Errorf("Username = %s, want admin", retrieved.Username)
	}

	if sm.GetSession("nonexistent-id") != nil {
		t.Error("GetSession() should return nil for non-existing session")
	}
}

func TestSessionManager_ExpiredSession(t *testing.T) {
	sm := NewSessionManager("test-secret", nil)
	defer sm.Stop()

	session, _ := sm.CreateSession("admin")
	session.ExpiresAt = time.Now().Add(-time.Minute)

	if sm.GetSession(session.ID) != nil {
		t.Error("GetSession() should return nil for expired session")
	}
}

func TestSessionManager_DeleteSession(t *testing.T) {
	sm := NewSessionManager("test-secret", nil)
	defer sm.Stop()

	session, _ := sm.CreateSession("admin")
	sm.DeleteSession(session.ID)

	if sm.GetSession(session.ID) != nil {
		t.Error("GetSession() should return nil after deletion")
	}
}

func TestSessionManager_PersistsAcrossRestart(t *testing.T) {
	repo := newMemoryRepo()

	first := NewSessionManager("test-secret", repo)
	session, err := first.CreateSession("admin")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	first.Stop()

	second := NewSessionManager("test-secret", repo)
	defer second.Stop()

	retrieved := second.GetSession(session.ID)
	if retrieved == nil {
		t.Fatal("expected session to be restored from repository")
	}
	if retrieved.Username != "admin" {
		t.Errorf("Username = %s, want admin", retrieved.Username)
	}

	second.DeleteSession(session.ID)
	if s, _ := repo.Get(context.Background(), session.ID); s != nil {
		t.Error("expected session to be removed from repository")
	}
}

func TestSessionManager_CleanupExpired(t *testing.T) {
	repo := newMemoryRepo()
	sm := NewSessionManager("test-secret", repo)
	defer sm.Stop()

	session, _ := sm.CreateSession("admin")
	session.ExpiresAt = time.Now().Add(-time.Minute)
	repo.sessions[session.ID].ExpiresAt = session.ExpiresAt

	sm.cleanupExpired()

	sm.mu.RLock()
	_, ok := sm.sessions[session.ID]
	sm.mu.RUnlock()
	if ok {
		t.Error("expected expired session to be dropped from memory")
	}
	if len(repo.sessions) != 0 {
		t.Errorf("expected repository to be empty, got %d sessions", len(repo.sessions))
	}
}

func findSessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	t.Fatal("Session cookie not found")
	return nil
}

func TestSessionManager_SetAndGetSessionCookie(t *testing.T) {
	sm := NewSessionManager("test-secret", nil)
	defer sm.Stop()
	session, _ := sm.CreateSession("admin")

	w := httptest.NewRecorder()
	sm.SetSessionCookie(w, httptest.NewRequest(http.MethodPost, "/", nil), session)
	cookie := findSessionCookie(t, w)

	if cookie.Secure {
		t.Error("cookie should not be Secure over plain HTTP")
	}
	if !cookie.HttpOnly {
		t.Error("cookie should be HttpOnly")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)

	retrieved := sm.GetSessionFromRequest(req)
	if retrieved == nil {
		t.Fatal("GetSessionFromRequest() returned nil")
	}
	if retrieved.ID != session.ID {
		t.Errorf("Session ID = %s, want %s", retrieved.ID, session.ID)
	}
}

func TestSessionManager_SecureCookieBehindProxy(t *testing.T) {
	sm := NewSessionManager("test-secret", nil)
	defer sm.Stop()
	session, _ := sm.CreateSession("admin")

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()
	sm.SetSessionCookie(w, r, session)

	if !findSessionCookie(t, w).Secure {
		t.Error("cookie should be Secure behind an HTTPS proxy")
	}
}

func TestSessionManager_InvalidCookie(t *testing.T) {
	sm := NewSessionManager("test-secret", nil)
	defer sm.Stop()
	session, _ := sm.CreateSession("admin")

	tests := []struct {
		name  string
		value string
	}{
		{"bad signature", session.ID + ".invalid-signature"},
		{"no separator", session.ID},
		{"unknown session", "invalid-session.invalid-signature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: tt.value})

			if sm.GetSessionFromRequest(req) != nil {
				t.Error("GetSessionFromRequest() should return nil")
			}
		})
	}
}

func TestSessionManager_BearerAuth(t *testing.T) {
	sm := NewSessionManager("test-secret", nil)
	defer sm.Stop()
	session, _ := sm.CreateSession("admin")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+session.ID)

	retrieved := sm.GetSessionFromRequest(req)
	if retrieved == nil {
		t.Fatal("GetSessionFromRequest() returned nil for Bearer auth")
	}
	if retrieved.ID != session.ID {
		t.Errorf("Session ID = %s, want %s", retrieved.ID, session.ID)
	}
}

func TestRequireAuth(t *testing.T) {
	sm := NewSessionManager("test-secret", nil)
	defer sm.Stop()
	session, _ := sm.CreateSession("admin")

	handlerCalled := false
	protected := RequireAuth(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		if GetSessionFromContext(r.Context()) == nil {
			t.Error("Session not found in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid session", func(t *testing.T) {
		handlerCalled = false
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+session.ID)

		protected.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		if !handlerCalled {
			t.Error("Handler was not called")
		}
	})

	t.Run("no session", func(t *testing.T) {
		handlerCalled = false
		w := httptest.NewRecorder()

		protected.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))

		if w.Code != http.StatusUnauthorized {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if !strings.Contains(w.Body.String(), "unauthorized") {
			t.Errorf("unexpected body %s", w.Body.String())
		}
		if handlerCalled {
			t.Error("Handler should not be called for unauthorized request")
		}
	})
}

func TestRequireAdmin(t *testing.T) {
	sm := NewSessionManager("test-secret", nil)
	defer sm.Stop()
	adminSession, _ := sm.CreateSession("admin")
	otherSession, _ := sm.CreateSession("former-admin")

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name   string
		admin  config.AdminConfig
		token  string
		status int
	}{
		{"auth disabled", config.AdminConfig{Username: "admin"}, "", http.StatusOK},
		{"admin session", config.AdminConfig{Username: "admin", PasswordHash: "hash"}, adminSession.ID, http.StatusOK},
		{"no session", config.AdminConfig{Username: "admin", PasswordHash: "hash"}, "", http.StatusUnauthorized},
		{"other user", config.AdminConfig{Username: "admin", PasswordHash: "hash"}, otherSession.ID, http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/students", nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			w := httptest.NewRecorder()

			RequireAdmin(sm, &tc.admin)(ok).ServeHTTP(w, req)

			if w.Code != tc.status {
				t.Errorf("Status = %d, want %d", w.Code, tc.status)
			}
		})
	}
}

func TestGetSessionFromContext(t *testing.T) {
	ctx := SetSessionInContext(context.Background(), &Session{ID: "test123"})

	retrieved := GetSessionFromContext(ctx)
	if retrieved == nil || retrieved.ID != "test123" {
		t.Fatalf("GetSessionFromContext() = %v, want test123", retrieved)
	}

	if GetSessionFromContext(context.Background()) != nil {
		t.Error("GetSessionFromContext() should return nil for empty context")
	}
}

func TestSessionManager_ClearSessionCookie(t *testing.T) {
	sm := NewSessionManager("test-secret", nil)
	defer sm.Stop()

	w := httptest.NewRecorder()
	sm.ClearSessionCookie(w)

	if got := findSessionCookie(t, w).MaxAge; got != -1 {
		t.Errorf("MaxAge = %d, want -1 (expired)", got)
	}
}

func TestSession_MarshalJSON(t *testing.T) {
	session := &Session{
		ID:        "test123",
		Username:  "admin",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}

	data, err := session.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}

	jsonStr := string(data)
	if !strings.Contains(jsonStr, `"session_id":"test123"`) {
		t.Errorf("JSON should contain session_id, got %s", jsonStr)
	}
	if strings.Contains(jsonStr, "created_at") {
		t.Error("JSON should not contain created_at")
	}
}
