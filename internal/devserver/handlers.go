package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/pantryclient/internal/logging"
)

type handler struct {
	svc    *Service
	logger logging.Logger
}

type envelope struct {
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, envelope{Error: &errorBody{Code: code, Message: msg}})
}

// writeServiceError maps service errors onto HTTP statuses.
func (h *handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, errUnauthorized):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid e-mail or password")
	case errors.Is(err, errUnverified):
		writeError(w, http.StatusForbidden, "unverified", "verify your e-mail address first")
	case errors.Is(err, errInvalidCode):
		writeError(w, http.StatusBadRequest, "invalid_code", "the verification code is not valid")
	case errors.Is(err, errConflict):
		writeError(w, http.StatusConflict, "conflict", "an account with this e-mail already exists")
	case errors.Is(err, errNotFound):
		writeError(w, http.StatusNotFound, "not_found", "not found")
	default:
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body", errInvalidInput)
	}
	return nil
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	reg, err := h.svc.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, reg)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	pair, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, pair)
}

func (h *handler) verify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := decode(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	pair, err := h.svc.Verify(r.Context(), req.Email, req.Code)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, pair)
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	h.svc.Logout(r.Context(), claimsFrom(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Profile(claimsFrom(r.Context()).UserID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, u.view())
}

func (h *handler) updateMe(w http.ResponseWriter, r *http.Request) {
	var patch ProfilePatch
	if err := decode(r, &patch); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	u, err := h.svc.UpdateProfile(claimsFrom(r.Context()).UserID, patch)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, u.view())
}

func (h *handler) deleteMe(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteAccount(r.Context(), claimsFrom(r.Context()).UserID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *handler) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	limit := h.svc.cfg.MaxAvatarSize
	r.Body = http.MaxBytesReader(w, r.Body, limit+(64<<10))
	if err := r.ParseMultipartForm(limit); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", "avatar upload is too large or malformed")
		return
	}
	f, hdr, err := r.FormFile("avatar")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", `multipart field "avatar" is required`)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if int64(len(data)) > limit {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", "avatar upload is too large")
		return
	}

	ct := hdr.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}

	userID := claimsFrom(r.Context()).UserID
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	url := scheme + "://" + r.Host + path.Join("/avatars", userID)

	u, err := h.svc.SetAvatar(userID, ct, data, url)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, u.view())
}

func (h *handler) avatar(w http.ResponseWriter, r *http.Request) {
	ct, data, ok := h.svc.Avatar(chi.URLParam(r, "userID"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no avatar")
		return
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func (h *handler) recipes(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.svc.Recipes(claimsFrom(r.Context()).UserID))
}

func (h *handler) generate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ingredients []string `json:"ingredients"`
	}
	if err := decode(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	rs, err := h.svc.GenerateRecipes(r.Context(), claimsFrom(r.Context()).UserID, req.Ingredients)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rs)
}
