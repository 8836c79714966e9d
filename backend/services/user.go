package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"formsite/backend/auth"
	"formsite/backend/schema"
	"formsite/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *UserService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/", s.List)
	r.Get("/{user_id}", s.GetUser)

	r.Group(func(r chi.Router) {
		r.Use(auth.AdminOrSubadminOnly())

		r.Post("/", s.Create)
		r.Put("/{user_id}", s.Update)
		r.Delete("/{user_id}", s.Delete)
	})

	return r
}

type UserInfo struct {
	Id        uuid.UUID   `json:"id"`
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	Role      schema.Role `json:"role"`
	SubsiteId *uuid.UUID  `json:"subsite_id,omitempty"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
	LastLogin *time.Time  `json:"last_login,omitempty"`
}

func convertToUserInfo(user schema.User) UserInfo {
	return UserInfo{
		Id:        user.Id,
		Username:  user.Username,
		Email:     user.Email,
		Role:      user.Role,
		SubsiteId: user.SubsiteId,
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt,
		LastLogin: user.LastLogin,
	}
}

type listUsersResponse struct {
	Users []UserInfo `json:"users"`
}

func (s *UserService) List(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	query := s.db
	switch {
	case actor.IsAdmin():
		if subsite := r.URL.Query().Get("subsite_id"); subsite != "" {
			subsiteId, err := uuid.Parse(subsite)
			if err != nil {
				http.Error(w, fmt.Sprintf("invalid subsite_id '%v'", subsite), http.StatusBadRequest)
				return
			}
			query = query.Where("subsite_id = ?", subsiteId)
		}
	case actor.IsSubadmin():
		query = query.Where("subsite_id = ?", actor.SubsiteId)
	default:
		http.Error(w, "user does not have permission to list users", http.StatusForbidden)
		return
	}

	var users []schema.User
	result := query.Order("created_at").Find(&users)
	if result.Error != nil {
		slog.Error("sql error listing users", "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	infos := make([]UserInfo, 0, len(users))
	for _, user := range users {
		infos = append(infos, convertToUserInfo(user))
	}

	utils.WriteJsonResponse(w, listUsersResponse{Users: infos})
}

func (s *UserService) GetUser(w http.ResponseWriter, r *http.Request) {
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

	user, err := schema.GetUser(userId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := checkAccess(actor, &user); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, convertToUserInfo(user))
}

type createUserRequest struct {
	Username  string      `json:"username" validate:"required,min=3,max=50"`
	Email     string      `json:"email" validate:"required,email"`
	Password  string      `json:"password" validate:"required,min=8"`
	Role      schema.Role `json:"role" validate:"required"`
	SubsiteId *uuid.UUID  `json:"subsite_id"`
}

type createUserResponse struct {
	UserId uuid.UUID `json:"user_id"`
}

func (s *UserService) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params createUserRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if !validateRequest(w, params) {
		return
	}

	if !schema.ValidRole(params.Role) {
		http.Error(w, fmt.Sprintf("invalid role '%v'", params.Role), http.StatusBadRequest)
		return
	}

	if actor.IsSubadmin() {
		if params.Role != schema.RoleUser {
			http.Error(w, "subadmins may only create regular users", http.StatusForbidden)
			return
		}
		if params.SubsiteId != nil && !actor.SameSubsite(*params.SubsiteId) {
			http.Error(w, "subadmins may only create users in their own subsite", http.StatusForbidden)
			return
		}
		params.SubsiteId = actor.SubsiteId
	}

	if params.Role != schema.RoleAdmin {
		if params.SubsiteId == nil {
			http.Error(w, fmt.Sprintf("role '%v' requires a subsite_id", params.Role), http.StatusBadRequest)
			return
		}
		if err := checkSubsiteExists(s.db, *params.SubsiteId); err != nil {
			http.Error(w, err.Error(), GetResponseCode(err))
			return
		}
	}

	userId, err := s.userAuth.CreateUser(params.Username, params.Email, params.Password, params.Role, params.SubsiteId)
	if err != nil {
		if errors.Is(err, auth.ErrUsernameAlreadyInUse) || errors.Is(err, auth.ErrEmailAlreadyInUse) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, fmt.Sprintf("error creating user: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponseWithStatus(w, http.StatusCreated, createUserResponse{UserId: userId})
}

type updateUserRequest struct {
	Role     *schema.Role `json:"role"`
	IsActive *bool        `json:"is_active"`
}

func (s *UserService) Update(w http.ResponseWriter, r *http.Request) {
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

	var params updateUserRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Role != nil {
		if !actor.IsAdmin() {
			http.Error(w, "only admins may change user roles", http.StatusForbidden)
			return
		}
		if !schema.ValidRole(*params.Role) {
			http.Error(w, fmt.Sprintf("invalid role '%v'", *params.Role), http.StatusBadRequest)
			return
		}
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		user, err := schema.GetUser(userId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if err := checkAccess(actor, &user); err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if params.Role != nil {
			updates["role"] = *params.Role
		}
		if params.IsActive != nil {
			updates["is_active"] = *params.IsActive
		}
		if len(updates) == 0 {
			return nil
		}

		result := txn.Model(&user).Updates(updates)
		if result.Error != nil {
			slog.Error("sql error updating user", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating user: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *UserService) Delete(w http.ResponseWriter, r *http.Request) {
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

	err = s.db.Transaction(func(txn *gorm.DB) error {
		user, err := schema.GetUser(userId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if err := checkAccess(actor, &user); err != nil {
			return err
		}

		result := txn.Delete(&user)
		if result.Error != nil {
			slog.Error("sql error deleting user", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting user: %v", err), GetResponseCode(err))
		return
	}

	if err := s.userAuth.DeleteUser(userId); err != nil {
		slog.Error("error removing user from identity provider", "user_id", userId, "error", err)
	}

	utils.WriteSuccess(w)
}
