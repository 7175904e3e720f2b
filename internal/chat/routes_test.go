package chat

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SHIVAM-KUMAR-59/Project-H-Backend/internal/auth"
)

func TestSendMessageFallbackAlias(t *testing.T) {
	router := mux.NewRouter()
	RegisterRoutes(router, &Handler{}, auth.NewMiddleware(nil))

	// Both spellings of the fallback send endpoint resolve to a route
	for _, path := range []string{
		"/api/v1/chat/messages",
		"/api/v1/chat/messages/http-fallback",
	} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		var match mux.RouteMatch
		require.True(t, router.Match(req, &match), path)
		assert.NoError(t, match.MatchErr, path)
	}
}
