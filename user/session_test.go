package user

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSession struct {
	PatientID string
}

// Test_SessionManager_SessionLifecycle creates a session, retrieves it, deletes it and verifies that it is deleted.
func Test_SessionManager_SessionLifecycle(t *testing.T) {
	sessionManager := NewSessionManager[testSession](time.Minute)
	response := httptest.NewRecorder()

	sessionManager.Create(response, testSession{PatientID: "1"})
	require.Equal(t, 1, sessionManager.Len())

	request := httptest.NewRequest("GET", "/", nil)

	// Get session without cookie returns nil data
	require.Nil(t, sessionManager.Get(request))

	request.Header.Set("Cookie", response.Header().Get("Set-Cookie"))
	sessionData := sessionManager.Get(request)
	require.NotNil(t, sessionData)
	require.Equal(t, "1", sessionData.PatientID)

	// Create new session to validate that delete only deletes the session in request
	response = httptest.NewRecorder()
	secondID := sessionManager.Create(response, testSession{PatientID: "2"})
	require.Equal(t, 2, sessionManager.Len())

	response = httptest.NewRecorder()
	sessionManager.Destroy(response, request)

	parts := strings.Split(response.Header().Get("Set-Cookie"), ";")
	require.Equal(t, "sid=", parts[0])
	require.Nil(t, sessionManager.Get(request))
	require.Equal(t, 1, sessionManager.Len())
	require.Equal(t, "2", sessionManager.Lookup(secondID).PatientID)
}

func Test_SessionManager_Expiry(t *testing.T) {
	sessionManager := NewSessionManager[testSession](10 * time.Millisecond)
	var mux sync.Mutex
	var expired []string
	sessionManager.OnExpire(func(_ string, data testSession) {
		mux.Lock()
		defer mux.Unlock()
		expired = append(expired, data.PatientID)
	})
	id := sessionManager.Create(httptest.NewRecorder(), testSession{PatientID: "1"})

	time.Sleep(20 * time.Millisecond)
	sessionManager.PruneSessions()

	assert.Nil(t, sessionManager.Lookup(id))
	assert.Eventually(t, func() bool {
		mux.Lock()
		defer mux.Unlock()
		return len(expired) == 1 && expired[0] == "1"
	}, time.Second, 5*time.Millisecond)
}

func Test_SessionFromHttpResponse(t *testing.T) {
	sessionManager := NewSessionManager[testSession](time.Minute)
	recorder := httptest.NewRecorder()
	sessionManager.Create(recorder, testSession{PatientID: "3"})

	actual := SessionFromHttpResponse(sessionManager, &http.Response{Header: recorder.Header()})

	require.NotNil(t, actual)
	assert.Equal(t, "3", actual.PatientID)
}
