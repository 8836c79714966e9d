package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"formsite/backend/auth"
	"formsite/backend/schema"
	"formsite/backend/storage"
	"formsite/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SubsiteService struct {
	db       *gorm.DB
	storage  storage.Storage
	userAuth auth.IdentityProvider
}

func (s *SubsiteService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.With(auth.AdminOrSubadminOnly()).Get("/", s.List)
	r.Get("/{subsite_id}", s.GetSubsite)

	r.Group(func(r chi.Router) {
		r.Use(auth.AdminOnly())

		r.Post("/", s.Create)
		r.Put("/{subsite_id}", s.Update)
		r.Delete("/{subsite_id}", s.Delete)
	})

	return r
}

type SubsiteInfo struct {
	Id          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	AccessCode  string    `json:"access_code,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// The access code is only disclosed to admins and the subsite's own subadmins.
func convertToSubsiteInfo(subsite schema.Subsite, actor schema.User) SubsiteInfo {
	info := SubsiteInfo{
		Id:          subsite.Id,
		Name:        subsite.Name,
		Slug:        subsite.Slug,
		Description: subsite.Description,
		IsActive:    subsite.IsActive,
		CreatedAt:   subsite.CreatedAt,
	}
	if actor.IsAdmin() || (actor.IsSubadmin() && actor.SameSubsite(subsite.Id)) {
		info.AccessCode = subsite.AccessCode
	}
	return info
}

type listSubsitesResponse struct {
	Subsites []SubsiteInfo `json:"subsites"`
}

func (s *SubsiteService) List(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	query := s.db
	if !actor.IsAdmin() {
		query = query.Where("id = ?", actor.SubsiteId)
	}

	var subsites []schema.Subsite
	result := query.Order("created_at").Find(&subsites)
	if result.Error != nil {
		slog.Error("sql error listing subsites", "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	infos := make([]SubsiteInfo, 0, len(subsites))
	for _, subsite := range subsites {
		infos = append(infos, convertToSubsiteInfo(subsite, actor))
	}

	utils.WriteJsonResponse(w, listSubsitesResponse{Subsites: infos})
}

func (s *SubsiteService) GetSubsite(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	subsiteId, err := utils.URLParamUUID(r, "subsite_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !actor.IsAdmin() && !actor.SameSubsite(subsiteId) {
		http.Error(w, "user does not have access to this subsite", http.StatusForbidden)
		return
	}

	subsite, err := schema.GetSubsite(subsiteId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrSubsiteNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, convertToSubsiteInfo(subsite, actor))
}

type createSubsiteRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	AccessCode  string `json:"access_code"`
}

type createSubsiteResponse struct {
	SubsiteId  uuid.UUID `json:"subsite_id"`
	Slug       string    `json:"slug"`
	AccessCode string    `json:"access_code"`
}

func (s *SubsiteService) Create(w http.ResponseWriter, r *http.Request) {
	var params createSubsiteRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if !validateRequest(w, params) {
		return
	}

	slug := params.Slug
	if slug == "" {
		slug = Slugify(params.Name)
	}
	if slug == "" {
		http.Error(w, fmt.Sprintf("cannot derive a slug from name '%v'", params.Name), http.StatusBadRequest)
		return
	}

	accessCode := params.AccessCode
	if accessCode == "" {
		code, err := generateAccessCode(8)
		if err != nil {
			http.Error(w, fmt.Sprintf("error generating access code: %v", err), http.StatusInternalServerError)
			return
		}
		accessCode = code
	}

	newSubsite := schema.Subsite{
		Id:          uuid.New(),
		Name:        params.Name,
		Slug:        slug,
		Description: params.Description,
		AccessCode:  accessCode,
		IsActive:    true,
	}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		var existing schema.Subsite
		result := txn.Limit(1).Find(&existing, "slug = ?", slug)
		if result.Error != nil {
			slog.Error("sql error checking for duplicate subsite slug", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(fmt.Errorf("subsite with slug '%v' already exists", slug), http.StatusConflict)
		}

		result = txn.Create(&newSubsite)
		if result.Error != nil {
			slog.Error("sql error creating new subsite", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating subsite: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponseWithStatus(w, http.StatusCreated, createSubsiteResponse{
		SubsiteId: newSubsite.Id, Slug: newSubsite.Slug, AccessCode: newSubsite.AccessCode,
	})
}

type updateSubsiteRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	AccessCode  *string `json:"access_code"`
	IsActive    *bool   `json:"is_active"`
}

func (s *SubsiteService) Update(w http.ResponseWriter, r *http.Request) {
	subsiteId, err := utils.URLParamUUID(r, "subsite_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params updateSubsiteRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		subsite, err := schema.GetSubsite(subsiteId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrSubsiteNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		updates := map[string]interface{}{}
		if params.Name != nil {
			updates["name"] = *params.Name
		}
		if params.Description != nil {
			updates["description"] = *params.Description
		}
		if params.AccessCode != nil {
			updates["access_code"] = *params.AccessCode
		}
		if params.IsActive != nil {
			updates["is_active"] = *params.IsActive
		}
		if len(updates) == 0 {
			return nil
		}

		result := txn.Model(&subsite).Updates(updates)
		if result.Error != nil {
			slog.Error("sql error updating subsite", "subsite_id", subsiteId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating subsite: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *SubsiteService) Delete(w http.ResponseWriter, r *http.Request) {
	subsiteId, err := utils.URLParamUUID(r, "subsite_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var slug string

	err = s.db.Transaction(func(txn *gorm.DB) error {
		subsite, err := schema.GetSubsite(subsiteId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrSubsiteNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}
		slug = subsite.Slug

		// Tenant rows are removed explicitly, child tables first.
		checkDelete := func(desc string, result *gorm.DB) error {
			if result.Error != nil {
				slog.Error("sql error deleting subsite "+desc, "subsite_id", subsiteId, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			return nil
		}

		ticketIds := txn.Model(&schema.Ticket{}).Select("id").Where("subsite_id = ?", subsiteId)
		if err := checkDelete("ticket responses", txn.Where("ticket_id IN (?)", ticketIds).Delete(&schema.TicketResponse{})); err != nil {
			return err
		}
		if err := checkDelete("tickets", txn.Where("subsite_id = ?", subsiteId).Delete(&schema.Ticket{})); err != nil {
			return err
		}
		if err := checkDelete("messages", txn.Where("subsite_id = ?", subsiteId).Delete(&schema.Message{})); err != nil {
			return err
		}
		if err := checkDelete("files", txn.Where("subsite_id = ?", subsiteId).Delete(&schema.File{})); err != nil {
			return err
		}
		formIds := txn.Model(&schema.Form{}).Select("id").Where("subsite_id = ?", subsiteId)
		if err := checkDelete("form responses", txn.Where("form_id IN (?)", formIds).Delete(&schema.FormResponse{})); err != nil {
			return err
		}
		if err := checkDelete("forms", txn.Where("subsite_id = ?", subsiteId).Delete(&schema.Form{})); err != nil {
			return err
		}
		if err := checkDelete("users", txn.Where("subsite_id = ?", subsiteId).Delete(&schema.User{})); err != nil {
			return err
		}

		result := txn.Delete(&subsite)
		if result.Error != nil {
			slog.Error("sql error deleting subsite", "subsite_id", subsiteId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting subsite: %v", err), GetResponseCode(err))
		return
	}

	// Uploaded bytes are removed after the rows commit, a failure here leaves
	// orphaned files but no dangling metadata.
	if err := s.storage.Delete(filepath.Join("uploads", slug)); err != nil {
		slog.Error("error removing uploads for deleted subsite", "subsite_id", subsiteId, "error", err)
	}

	utils.WriteSuccess(w)
}
