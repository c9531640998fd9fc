package user

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/SanteonNL/bptrafficlight/lib/logging"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

const cookieName = "sid"

// SessionManager keeps user sessions in memory. Sessions expire after the configured lifetime, which is extended on every access.
type SessionManager[T any] struct {
	cache    *ttlcache.Cache[string, T]
	lifetime time.Duration
}

// NewSessionManager creates a new session manager with the given session lifetime.
func NewSessionManager[T any](lifetime time.Duration) *SessionManager[T] {
	return &SessionManager[T]{
		cache: ttlcache.New[string, T](
			ttlcache.WithTTL[string, T](lifetime),
		),
		lifetime: lifetime,
	}
}

// Start runs the expiry loop until ctx is cancelled.
func (m *SessionManager[T]) Start(ctx context.Context) {
	go m.cache.Start()
	<-ctx.Done()
	m.cache.Stop()
}

// OnExpire registers a callback that is invoked when a session expires or is destroyed.
func (m *SessionManager[T]) OnExpire(fn func(id string, data T)) {
	m.cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, T]) {
		slog.Info("User session ended",
			slog.String(logging.FieldKey, item.Key()),
			slog.Int("reason", int(reason)))
		fn(item.Key(), item.Value())
	})
}

// Create creates a new session and sets a session cookie.
// The given values are stored in the session, which can be retrieved later using Get.
func (m *SessionManager[T]) Create(response http.ResponseWriter, values T) string {
	id := uuid.NewString()
	m.cache.Set(id, values, ttlcache.DefaultTTL)
	http.SetCookie(response, &http.Cookie{
		Name:     cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(m.lifetime),
	})
	return id
}

// Get retrieves the session for the given request.
// The session is retrieved using the session cookie.
// If no session is found, nil is returned.
func (m *SessionManager[T]) Get(request *http.Request) *T {
	cookie, err := request.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	return m.Lookup(cookie.Value)
}

// Lookup retrieves a session by its ID.
func (m *SessionManager[T]) Lookup(id string) *T {
	item := m.cache.Get(id)
	if item == nil {
		return nil
	}
	value := item.Value()
	return &value
}

// Destroy removes the session of the request (if any) and clears the session cookie.
func (m *SessionManager[T]) Destroy(response http.ResponseWriter, request *http.Request) {
	if cookie, err := request.Cookie(cookieName); err == nil && cookie.Value != "" {
		m.Delete(cookie.Value)
	} else {
		slog.Warn("No session to destroy")
	}
	http.SetCookie(response, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Now().Add(-time.Minute),
	})
}

// Delete removes a session by its ID.
func (m *SessionManager[T]) Delete(id string) {
	m.cache.Delete(id)
}

// PruneSessions removes expired sessions.
func (m *SessionManager[T]) PruneSessions() {
	m.cache.DeleteExpired()
}

func (m *SessionManager[T]) Len() int {
	return m.cache.Len()
}
