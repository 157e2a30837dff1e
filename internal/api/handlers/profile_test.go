package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/portsweep/internal/profiles"
)

func TestProfileHandler(t *testing.T) {
	h := NewProfileHandler(profiles.NewManager())
	r := mux.NewRouter()
	r.HandleFunc("/profiles", h.ListProfiles)
	r.HandleFunc("/profiles/{name}", h.GetProfile)

	t.Run("list", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profiles", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var list []ProfileResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
		require.NotEmpty(t, list)
		for i := 1; i < len(list); i++ {
			assert.Less(t, list[i-1].Name, list[i].Name)
		}
	})

	t.Run("get", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profiles/quick", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var p ProfileResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
		assert.Equal(t, "quick", p.Name)
		assert.InDelta(t, 1.0, p.TimeoutSeconds, 0)
		assert.True(t, p.BuiltIn)
	})

	t.Run("unknown", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profiles/nope", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
