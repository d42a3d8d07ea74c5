// Attendance HTTP handlers.
//
// This file exposes REST endpoints for attendance records:
//   - GET   /attendance                  (list joined with user, paginated)
//   - GET   /users/{id}/attendance       (per-user history)
//   - PATCH /attendance/{id}/checkout    (admin-forced checkout)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avikram/attendance-bot/internal/repo"
	"github.com/avikram/attendance-bot/internal/services"
)

// ListAttendanceResponse wraps one page of joined attendance rows.
type ListAttendanceResponse struct {
	Attendance []repo.AttendanceWithUser `json:"attendance"`
	Page       int                       `json:"page"`
	PageSize   int                       `json:"page_size"`
}

// ListAttendance handles GET /attendance with page/page_size query params.
func (h *Handlers) ListAttendance(c *gin.Context) {
	page, pageSize := clampPagination(c)

	rows, err := h.Attendance.List(c.Request.Context(), (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if rows == nil {
		rows = []repo.AttendanceWithUser{}
	}
	ok(c, http.StatusOK, ListAttendanceResponse{Attendance: rows, Page: page, PageSize: pageSize})
}

// UserAttendance handles GET /users/:id/attendance.
func (h *Handlers) UserAttendance(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}

	rows, err := h.Attendance.ForUser(c.Request.Context(), id)
	switch {
	case err == nil:
		ok(c, http.StatusOK, gin.H{"attendance": rows})
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// ForceCheckout handles PATCH /attendance/:id/checkout. It closes a dangling
// open row; a row that is missing or already closed is a conflict, not a
// retryable error.
func (h *Handlers) ForceCheckout(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}

	err := h.Attendance.ForceCheckout(c.Request.Context(), id)
	switch {
	case err == nil:
		noContent(c)
	case errors.Is(err, services.ErrNoActiveCheckIn):
		fail(c, http.StatusConflict, ErrCodeConflict, "attendance is not open")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
