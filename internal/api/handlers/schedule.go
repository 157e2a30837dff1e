package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/anstrom/portsweep/internal/api/middleware"
	"github.com/anstrom/portsweep/internal/logging"
)

// ScheduleHandler serves the /schedules endpoints.
type ScheduleHandler struct {
	schedules ScheduleController
	logger    *logging.Logger
}

// NewScheduleHandler creates a schedule handler.
func NewScheduleHandler(schedules ScheduleController, logger *logging.Logger) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules, logger: logger.WithComponent("api.schedules")}
}

// ListSchedules handles GET /schedules.
func (h *ScheduleHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.schedules.List())
}

// RunSchedule handles POST /schedules/{name}/run.
func (h *ScheduleHandler) RunSchedule(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	job, err := h.schedules.RunNow(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.logger.Info("Schedule triggered manually",
		"request_id", middleware.GetRequestID(r),
		"schedule", name,
		"job_id", job.ID.String())
	writeJSON(w, r, http.StatusCreated, job)
}

// EnableSchedule handles POST /schedules/{name}/enable.
func (h *ScheduleHandler) EnableSchedule(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, true)
}

// DisableSchedule handles POST /schedules/{name}/disable.
func (h *ScheduleHandler) DisableSchedule(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, false)
}

func (h *ScheduleHandler) toggle(w http.ResponseWriter, r *http.Request, enable bool) {
	name := mux.Vars(r)["name"]
	var err error
	if enable {
		err = h.schedules.Enable(name)
	} else {
		err = h.schedules.Disable(name)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"name": name, "enabled": enable})
}
