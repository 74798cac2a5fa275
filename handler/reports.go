package handler

import "net/http"

// ShowDashboard godoc
// @Summary Circulation dashboard
// @Description This endpoint returns stock, loan and membership totals, loans per month and the most borrowed books
// @Tags reports
// @Produce json
// @Param token header string true "Bearer token"
// @Success 200 {object} data.DashboardStats
// @Failure 403
// @Failure 500
// @Router /v1/dashboard [get]
func (h *Handler) showDashboardHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetDashboardStats(r.Context())
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	err = h.encodeJSON(w, http.StatusOK, envelope{"dashboard": stats}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// SendOverdueReminders godoc
// @Summary Send overdue reminders now
// @Description This endpoint e-mails every member holding an overdue loan without waiting for the next scheduled run
// @Tags reports
// @Produce json
// @Param token header string true "Bearer token"
// @Success 202
// @Failure 403
// @Failure 500
// @Router /v1/reminders/overdue [post]
func (h *Handler) sendOverdueRemindersHandler(w http.ResponseWriter, r *http.Request) {
	sent, err := h.service.SendOverdueReminders(r.Context())
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	err = h.encodeJSON(w, http.StatusAccepted, envelope{"reminders_sent": sent}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}
