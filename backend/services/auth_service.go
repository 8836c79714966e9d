package services

import (
	"errors"
	"fmt"
	"net/http"

	"formsite/backend/auth"
	"formsite/backend/schema"
	"formsite/utils"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type AuthService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *AuthService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/register", s.Register)
	r.Post("/login", s.Login)

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/me", s.Me)
		r.Post("/change-password", s.ChangePassword)

		r.With(auth.AdminOrSubadminOnly()).Post("/reset-password/{user_id}", s.ResetPassword)
	})

	return r
}

type registerRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=50"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	SubsiteSlug string `json:"subsite_slug" validate:"required"`
	AccessCode  string `json:"access_code"`
}

func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	var params registerRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if !validateRequest(w, params) {
		return
	}

	subsite, err := schema.GetSubsiteBySlug(params.SubsiteSlug, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrSubsiteNotFound) {
			http.Error(w, fmt.Sprintf("no subsite found with slug '%v'", params.SubsiteSlug), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !subsite.IsActive {
		http.Error(w, fmt.Sprintf("subsite '%v' is not accepting registrations", params.SubsiteSlug), http.StatusBadRequest)
		return
	}
	if subsite.AccessCode != "" && subsite.AccessCode != params.AccessCode {
		http.Error(w, "invalid access code for subsite", http.StatusForbidden)
		return
	}

	userId, err := s.userAuth.CreateUser(params.Username, params.Email, params.Password, schema.RoleUser, &subsite.Id)
	if err != nil {
		if errors.Is(err, auth.ErrUsernameAlreadyInUse) || errors.Is(err, auth.ErrEmailAlreadyInUse) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, fmt.Sprintf("error registering user: %v", err), http.StatusInternalServerError)
		return
	}

	user, err := schema.GetUser(userId, s.db)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	registrationMetric.Inc()

	utils.WriteJsonResponseWithStatus(w, http.StatusCreated, convertToUserInfo(user))
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token string   `json:"token"`
	User  UserInfo `json:"user"`
}

func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	var params loginRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if !validateRequest(w, params) {
		return
	}

	login, err := s.userAuth.LoginWithEmail(params.Email, params.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserNotFoundWithEmail):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, auth.ErrInvalidCredentials):
			http.Error(w, err.Error(), http.StatusUnauthorized)
		case errors.Is(err, auth.ErrUserDeactivated):
			http.Error(w, err.Error(), http.StatusForbidden)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	user, err := schema.GetUser(login.UserId, s.db)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	loginMetric.Inc()

	utils.WriteJsonResponse(w, loginResponse{Token: login.AccessToken, User: convertToUserInfo(user)})
}

func (s *AuthService) Me(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, convertToUserInfo(user))
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

func (s *AuthService) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params changePasswordRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if !validateRequest(w, params) {
		return
	}

	if !auth.VerifyPassword(user, params.OldPassword) {
		http.Error(w, "old password is incorrect", http.StatusUnauthorized)
		return
	}

	if err := s.userAuth.ChangePassword(user.Id, params.NewPassword); err != nil {
		http.Error(w, fmt.Sprintf("error changing password: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteSuccess(w)
}

type resetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

func (s *AuthService) ResetPassword(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params resetPasswordRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if !validateRequest(w, params) {
		return
	}

	target, err := schema.GetUser(userId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := checkAccess(actor, &target); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if err := s.userAuth.ChangePassword(target.Id, params.NewPassword); err != nil {
		http.Error(w, fmt.Sprintf("error resetting password: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteSuccess(w)
}
