package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/anstrom/portsweep/internal/profiles"
)

// ProfileResponse is the API view of a scan profile.
type ProfileResponse struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Ports          string   `json:"ports"`
	Protocols      []string `json:"protocols"`
	TimeoutSeconds float64  `json:"timeout_seconds"`
	Concurrency    int      `json:"concurrency"`
	BuiltIn        bool     `json:"built_in"`
}

func profileResponse(p *profiles.Profile) ProfileResponse {
	return ProfileResponse{
		Name:           p.Name,
		Description:    p.Description,
		Ports:          p.Ports,
		Protocols:      p.Protocols,
		TimeoutSeconds: p.Timeout.Seconds(),
		Concurrency:    p.Concurrency,
		BuiltIn:        p.BuiltIn,
	}
}

// ProfileHandler serves the read-only /profiles endpoints.
type ProfileHandler struct {
	profiles *profiles.Manager
}

// NewProfileHandler creates a profile handler.
func NewProfileHandler(manager *profiles.Manager) *ProfileHandler {
	return &ProfileHandler{profiles: manager}
}

// ListProfiles handles GET /profiles.
func (h *ProfileHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	list := h.profiles.List()
	out := make([]ProfileResponse, 0, len(list))
	for _, p := range list {
		out = append(out, profileResponse(p))
	}
	writeJSON(w, r, http.StatusOK, out)
}

// GetProfile handles GET /profiles/{name}.
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.Get(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, profileResponse(p))
}
