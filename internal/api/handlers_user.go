package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/KushagraAgarwal525/racoon/internal/api/respond"
	"github.com/KushagraAgarwal525/racoon/internal/api/validate"
	"github.com/KushagraAgarwal525/racoon/internal/model"
	"github.com/KushagraAgarwal525/racoon/internal/services"
)

type UserHandler struct {
	svc *services.UserService
}

func NewUserHandler(svc *services.UserService) *UserHandler { return &UserHandler{svc: svc} }

// CreateUser handles POST /api/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID      string `json:"userId"`
		DisplayName string `json:"displayName"`
		Email       string `json:"email"`
		PhotoURL    string `json:"photoURL"`
	}
	if err := decodeBody(w, r, maxUserBody, &in); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := validate.CreateUser(in.UserID, in.DisplayName, in.Email, in.PhotoURL); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}

	out, err := h.svc.CreateUser(r.Context(), &model.User{
		UserID:      in.UserID,
		DisplayName: in.DisplayName,
		Email:       in.Email,
		PhotoURL:    in.PhotoURL,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, out)
}

// CheckUser handles GET /api/users/check?userId=
func (h *UserHandler) CheckUser(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if err := validate.UserID(userID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	exists, err := h.svc.Exists(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"userId": userID, "exists": exists})
}

// GetUser handles GET /api/users/{userId}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	if err := validate.UserID(userID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	u, err := h.svc.GetUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, u)
}
