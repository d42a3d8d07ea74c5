// User HTTP handlers.
//
// This file exposes REST endpoints for employee resources:
//   - GET    /dashboard          (counters)
//   - POST   /users              (create, multipart with reference images)
//   - GET    /users              (list, paginated)
//   - GET    /users/{id}         (fetch)
//   - DELETE /users/{id}         (remove row + reference images)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/avikram/attendance-bot/internal/domain"
	"github.com/avikram/attendance-bot/internal/face"
	"github.com/avikram/attendance-bot/internal/services"
	"github.com/avikram/attendance-bot/internal/utils"
)

// Handlers groups the admin HTTP endpoints for users, attendance, and
// reference images. It depends on concrete services; the services themselves
// take their collaborators through injected fields, which keeps this layer
// trivial to construct in tests.
type Handlers struct {
	Users      *services.UserService
	Attendance *services.AttendanceService
	Faces      *services.FaceService
}

// New constructs a Handlers instance bound to the given services.
func New(users *services.UserService, attendance *services.AttendanceService, faces *services.FaceService) *Handlers {
	return &Handlers{Users: users, Attendance: attendance, Faces: faces}
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListUsersResponse wraps a page of users and pagination information.
type ListUsersResponse struct {
	Users      []domain.User `json:"users"`
	Pagination Pagination    `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.ClampInt(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}

// pageOf builds the pagination envelope for a page of results.
func pageOf(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// uintParam parses a positive integer path parameter; ok is false after the
// request has already been failed with a 400.
func uintParam(c *gin.Context, name string) (uint, bool) {
	n := utils.AtoiDefault(c.Param(name), -1)
	if n < 1 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid "+name)
		return 0, false
	}
	return uint(n), true
}

//
// Handlers
//

// Dashboard handles GET /dashboard and returns the landing counters.
func (h *Handlers) Dashboard(c *gin.Context) {
	stats, err := h.Users.Dashboard(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, stats)
}

// CreateUser handles POST /users.
//
// Accepts multipart/form-data with fields "name" and "phone" and up to three
// file parts named "faces". Each image must contain exactly one face; the
// whole request is rejected when any image fails validation.
//
// Responses:
//   - 201 with the created user
//   - 400 on missing fields, too many images, or an invalid image
//   - 409 when the phone is already registered
func (h *Handlers) CreateUser(c *gin.Context) {
	name := strings.TrimSpace(c.PostForm("name"))
	phone := strings.TrimSpace(c.PostForm("phone"))
	if name == "" || phone == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name and phone are required")
		return
	}

	var files []*multipart.FileHeader
	if form, err := c.MultipartForm(); err == nil && form != nil {
		files = form.File["faces"]
	}
	if len(files) > face.MaxReferences {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "at most 3 face images allowed")
		return
	}

	readers := make([]io.Reader, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeInvalidImage, "could not read face image")
			return
		}
		defer f.Close()
		readers = append(readers, f)
	}

	u, err := h.Users.CreateUser(c.Request.Context(), name, phone, readers)
	switch {
	case err == nil:
		ok(c, http.StatusCreated, u)
	case errors.Is(err, services.ErrDuplicatePhone):
		fail(c, http.StatusConflict, ErrCodeConflict, "phone already registered")
	case errors.Is(err, face.ErrTooManyReferences):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "at most 3 face images allowed")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
	}
}

// ListUsers handles GET /users with page/page_size query params.
func (h *Handlers) ListUsers(c *gin.Context) {
	page, pageSize := clampPagination(c)

	users, total, err := h.Users.ListUsers(c.Request.Context(), (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListUsersResponse{Users: users, Pagination: pageOf(page, pageSize, total)})
}

// GetUser handles GET /users/:id.
func (h *Handlers) GetUser(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}

	u, err := h.Users.GetUser(c.Request.Context(), id)
	switch {
	case err == nil:
		ok(c, http.StatusOK, u)
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// DeleteUser handles DELETE /users/:id. Attendance rows cascade and the
// user's reference image directory is removed.
func (h *Handlers) DeleteUser(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}

	err := h.Users.DeleteUser(c.Request.Context(), id)
	switch {
	case err == nil:
		noContent(c)
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
