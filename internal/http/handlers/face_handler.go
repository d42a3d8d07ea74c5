// Reference image HTTP handlers.
//
// This file exposes endpoints for employee face reference images:
//   - GET    /users/{id}/face            (first reference preview)
//   - GET    /users/{id}/faces           (list registered references)
//   - GET    /users/{id}/face/{index}    (serve one reference image)
//   - POST   /users/{id}/face            (register next reference)
//   - DELETE /users/{id}/face/{index}    (remove + renumber)
//
// The GET endpoints serve image bytes straight from the reference store so
// the admin dashboard can embed them; registration and removal are gated
// behind the session middleware in the router.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avikram/attendance-bot/internal/face"
	"github.com/avikram/attendance-bot/internal/services"
	"github.com/avikram/attendance-bot/internal/utils"
)

// ListFacesResponse describes the registered reference slots of a user.
type ListFacesResponse struct {
	Count   int   `json:"count"`
	Indices []int `json:"indices"`
}

// faceError maps the shared reference-store errors to HTTP responses.
func faceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
	case errors.Is(err, face.ErrReferenceNotFound), errors.Is(err, face.ErrNoReferences):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "reference image not found")
	case errors.Is(err, face.ErrTooManyReferences):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "all reference slots are taken")
	case errors.Is(err, services.ErrInvalidFaceImage):
		fail(c, http.StatusBadRequest, ErrCodeInvalidImage, "image must contain exactly one face")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// FacePreview handles GET /users/:id/face and serves the first reference.
func (h *Handlers) FacePreview(c *gin.Context) {
	h.serveFace(c, 1)
}

// FaceByIndex handles GET /users/:id/face/:index.
func (h *Handlers) FaceByIndex(c *gin.Context) {
	index := utils.AtoiDefault(c.Param("index"), 0)
	if index < 1 || index > face.MaxReferences {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid reference index")
		return
	}
	h.serveFace(c, index)
}

func (h *Handlers) serveFace(c *gin.Context, index int) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}

	path, err := h.Faces.ReferencePath(c.Request.Context(), id, index)
	if err != nil {
		faceError(c, err)
		return
	}
	c.File(path)
}

// ListFaces handles GET /users/:id/faces.
func (h *Handlers) ListFaces(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}

	refs, err := h.Faces.References(c.Request.Context(), id)
	if err != nil {
		faceError(c, err)
		return
	}

	indices := make([]int, len(refs))
	for i := range refs {
		indices[i] = i + 1
	}
	ok(c, http.StatusOK, ListFacesResponse{Count: len(refs), Indices: indices})
}

// RegisterFace handles POST /users/:id/face.
//
// Accepts multipart/form-data with a single file part named "face" and
// registers it as the next reference slot. Registering a fourth image or an
// image without exactly one face is a 400.
func (h *Handlers) RegisterFace(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}

	fh, err := c.FormFile("face")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "face image file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidImage, "could not read face image")
		return
	}
	defer f.Close()

	index, err := h.Faces.RegisterForUser(c.Request.Context(), id, f)
	if err != nil {
		faceError(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"index": index})
}

// RemoveFace handles DELETE /users/:id/face/:index. Remaining references are
// renumbered contiguously.
func (h *Handlers) RemoveFace(c *gin.Context) {
	id, valid := uintParam(c, "id")
	if !valid {
		return
	}
	index := utils.AtoiDefault(c.Param("index"), 0)
	if index < 1 || index > face.MaxReferences {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid reference index")
		return
	}

	if err := h.Faces.RemoveReference(c.Request.Context(), id, index); err != nil {
		faceError(c, err)
		return
	}
	noContent(c)
}
