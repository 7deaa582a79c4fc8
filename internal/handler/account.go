package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/boilerkit/boilerkit/internal/ctxkeys"
	"github.com/boilerkit/boilerkit/internal/service"
	"github.com/boilerkit/boilerkit/internal/validation"
)

type accountHandler struct {
	userService *service.UserService
	authService *service.AuthService
}

func NewAccountHandler(userService *service.UserService, authService *service.AuthService) *accountHandler {
	return &accountHandler{
		userService: userService,
		authService: authService,
	}
}

// Me returns the authenticated user's public view.
func (h *accountHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	me, err := h.userService.Me(user.ID)
	if err != nil {
		slog.Error("failed to load account", "error", err, "user_id", user.ID)
		respondError(w, http.StatusInternalServerError, "Could not load account")
		return
	}

	respondJSON(w, http.StatusOK, me)
}

// UpdatePassword changes the password for a logged-in user. The current
// password must be supplied; the reset-token flow is the only way around it.
func (h *accountHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}

	err := decodeJSON(r, &req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err = h.userService.UpdatePassword(user.ID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		var policyErr *validation.PasswordPolicyError
		switch {
		case errors.Is(err, service.ErrInvalidCurrentPassword):
			respondError(w, http.StatusBadRequest, "Current password is incorrect")
		case errors.Is(err, service.ErrNoPassword):
			respondError(w, http.StatusBadRequest, "This account has no password. Use the password reset flow to set one.")
		case errors.As(err, &policyErr):
			respondJSON(w, http.StatusBadRequest, map[string]any{
				"error":        policyErr.Error(),
				"requirements": validation.CheckPassword(req.NewPassword),
			})
		default:
			slog.Error("password update failed", "error", err, "user_id", user.ID)
			respondError(w, http.StatusInternalServerError, "Could not update password")
		}
		return
	}

	slog.Info("password updated", "user_id", user.ID)
	respondMessage(w, http.StatusOK, "Password updated")
}

// UpdateProfile changes name and phone.
func (h *accountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var req struct {
		Name  *string `json:"name"`
		Phone *string `json:"phone"`
	}

	err := decodeJSON(r, &req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.userService.UpdateProfile(user.ID, req.Name, req.Phone)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, updated.Public())
}

// ProfilePictureUploadURL mints a presigned PUT URL for a new profile
// picture. The client uploads directly to storage, then confirms the key via
// SetProfilePicture.
func (h *accountHandler) ProfilePictureUploadURL(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var req struct {
		FileName    string `json:"file_name"`
		ContentType string `json:"content_type"`
	}

	err := decodeJSON(r, &req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	uploadURL, key, err := h.userService.ProfilePictureUploadURL(r.Context(), user.ID, req.FileName, req.ContentType)
	if err != nil {
		slog.Warn("profile picture upload URL failed", "error", err, "user_id", user.ID)
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"upload_url": uploadURL,
		"key":        key,
	})
}

// SetProfilePicture attaches a previously uploaded object to the account.
func (h *accountHandler) SetProfilePicture(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	var req struct {
		Key string `json:"key"`
	}

	err := decodeJSON(r, &req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err = h.userService.SetProfilePicture(r.Context(), user.ID, req.Key)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondMessage(w, http.StatusOK, "Profile picture updated")
}

// ProfilePictureURL returns a presigned GET URL for the current picture.
func (h *accountHandler) ProfilePictureURL(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	url, err := h.userService.ProfilePictureURL(r.Context(), user.ID)
	if err != nil {
		slog.Error("profile picture URL failed", "error", err, "user_id", user.ID)
		respondError(w, http.StatusInternalServerError, "Could not load profile picture")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

// DeleteAccount removes the account and everything cascading from it.
func (h *accountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	err := h.userService.DeleteAccount(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, service.ErrActiveSubscription) {
			respondError(w, http.StatusConflict, "Cancel your subscription before deleting your account")
			return
		}
		slog.Error("account deletion failed", "error", err, "user_id", user.ID)
		respondError(w, http.StatusInternalServerError, "Could not delete account")
		return
	}

	h.authService.ClearAuthCookies(w)
	respondMessage(w, http.StatusOK, "Account deleted")
}
