package user

import (
	"net/http"
	"net/http/httptest"
	"strings"
)

// SessionFromHttpResponse returns the session whose cookie was set on the given response.
func SessionFromHttpResponse[T any](manager *SessionManager[T], httpResponse *http.Response) *T {
	// extract session ID; sid=<something>;
	cookieValue := httpResponse.Header.Get("Set-Cookie")
	cookieValue = strings.Split(cookieValue, ";")[0]
	cookieValue = strings.TrimPrefix(cookieValue, cookieName+"=")

	httpRequest := httptest.NewRequest("GET", "/", nil)
	httpRequest.AddCookie(&http.Cookie{
		Name:  cookieName,
		Value: cookieValue,
	})
	return manager.Get(httpRequest)
}
