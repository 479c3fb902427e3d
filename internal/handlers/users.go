package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/agronect/apiserver/internal/services"
	"github.com/agronect/apiserver/internal/validation"
	"github.com/go-chi/chi/v5"
)

const (
	msgUserFound       = "User found"
	msgUsersFound      = "Users found"
	msgUserUpdated     = "User updated successfully"
	msgPasswordUpdated = "Password updated successfully"
	msgForbidden       = "Forbidden"
	msgImageOnly       = "Only image files are allowed"

	photoField        = "imgUrl"
	multipartMemory   = 1 << 20
	multipartOverhead = 1 << 20
)

// DefaultPhotoMaxBytes caps profile photo uploads when no limit is configured.
const DefaultPhotoMaxBytes = 5 << 20

// UserHandler serves profile reads and owner-only updates.
type UserHandler struct {
	userService   *services.UserService
	photoMaxBytes int64
}

func NewUserHandler(userService *services.UserService, photoMaxBytes int64) *UserHandler {
	if photoMaxBytes <= 0 {
		photoMaxBytes = DefaultPhotoMaxBytes
	}
	return &UserHandler{userService: userService, photoMaxBytes: photoMaxBytes}
}

// UserRouter registers user routes. requireAuth guards the mutating routes.
func UserRouter(r chi.Router, userService *services.UserService, requireAuth func(http.Handler) http.Handler, photoMaxBytes int64) {
	handler := NewUserHandler(userService, photoMaxBytes)

	r.Route("/users", func(r chi.Router) {
		r.Get("/", handler.List)
		r.Get("/{id}", handler.Get)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Put("/update-users/{id}", handler.UpdateProfile)
			r.Put("/change-password/{id}", handler.ChangePassword)
		})
	})
}

type UpdatedUserResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	DataUpdate any    `json:"dataUpdate"`
}

type ProfileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ChangePasswordRequest struct {
	OldPassword     string `json:"oldPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, msgUsersFound, users)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, msgUserFound, user)
}

// UpdateProfile accepts multipart (name, email, imgUrl) or a JSON profile.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorizeOwner(w, r)
	if !ok {
		return
	}

	var update services.ProfileUpdate
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, h.photoMaxBytes+multipartOverhead)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			writeError(w, http.StatusBadRequest, msgInvalidRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()

		update.Name = r.FormValue("name")
		update.Email = r.FormValue("email")

		file, header, err := r.FormFile(photoField)
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			writeError(w, http.StatusBadRequest, msgInvalidRequest)
			return
		default:
			defer file.Close()
			contentType := header.Header.Get("Content-Type")
			if !strings.HasPrefix(contentType, "image/") {
				writeError(w, http.StatusBadRequest, msgImageOnly)
				return
			}
			if header.Size > h.photoMaxBytes {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("Photo must not exceed %d bytes", h.photoMaxBytes))
				return
			}
			update.Photo = &services.PhotoUpload{Body: file, Size: header.Size, ContentType: contentType}
		}
	} else {
		var req ProfileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, msgInvalidRequest)
			return
		}
		update.Name, update.Email = req.Name, req.Email
	}

	if email := strings.TrimSpace(update.Email); email != "" && !validation.ValidateEmail(email) {
		writeValidation(w, validation.Errors{{Field: "email", Message: "email must be a valid email"}})
		return
	}

	user, err := h.userService.UpdateProfile(r.Context(), id, update)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, UpdatedUserResponse{
		Status:     statusSuccess,
		Message:    msgUserUpdated,
		DataUpdate: user,
	})
}

func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorizeOwner(w, r)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	if err := validation.ValidatePasswordChange(req.OldPassword, req.NewPassword, req.ConfirmPassword); err != nil {
		writeValidation(w, err)
		return
	}

	err := h.userService.ChangePassword(r.Context(), id, services.PasswordChange{
		OldPassword:     req.OldPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, msgPasswordUpdated, nil)
}

// authorizeOwner allows the request only when the token subject owns {id}.
func (h *UserHandler) authorizeOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return "", false
	}
	if claims.ID != id {
		writeError(w, http.StatusForbidden, msgForbidden)
		return "", false
	}
	return id, true
}
