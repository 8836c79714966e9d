package services

import (
	"encoding/json"
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
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type FormService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *FormService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/", s.List)

	r.With(auth.AdminOrSubadminOnly()).Post("/", s.Create)

	r.Route("/{form_id}", func(r chi.Router) {
		r.Get("/", s.GetForm)

		r.Group(func(r chi.Router) {
			r.Use(auth.AdminOrSubadminOnly())

			r.Put("/", s.Update)
			r.Delete("/", s.Delete)
			r.Get("/responses", s.ListResponses)
		})

		r.Post("/responses", s.SubmitResponse)
		r.Get("/responses/{response_id}", s.GetResponse)
		r.Get("/responses/{response_id}/pdf", s.ResponseDocument)
	})

	return r
}

type FormInfo struct {
	Id          uuid.UUID       `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Structure   json.RawMessage `json:"structure"`
	IsActive    bool            `json:"is_active"`
	CreatorId   uuid.UUID       `json:"creator_id"`
	SubsiteId   uuid.UUID       `json:"subsite_id"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func convertToFormInfo(form schema.Form) FormInfo {
	return FormInfo{
		Id:          form.Id,
		Title:       form.Title,
		Description: form.Description,
		Structure:   json.RawMessage(form.Structure),
		IsActive:    form.IsActive,
		CreatorId:   form.CreatorId,
		SubsiteId:   form.SubsiteId,
		CreatedAt:   form.CreatedAt,
		UpdatedAt:   form.UpdatedAt,
	}
}

type listFormsResponse struct {
	Forms []FormInfo `json:"forms"`
}

func (s *FormService) List(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	query := s.db
	if actor.IsAdmin() {
		if subsite := r.URL.Query().Get("subsite_id"); subsite != "" {
			subsiteId, err := uuid.Parse(subsite)
			if err != nil {
				http.Error(w, fmt.Sprintf("invalid subsite_id '%v'", subsite), http.StatusBadRequest)
				return
			}
			query = query.Where("subsite_id = ?", subsiteId)
		}
	} else {
		query = query.Where("subsite_id = ?", actor.SubsiteId)
		// Regular users only see forms open for submission.
		if !actor.IsSubadmin() {
			query = query.Where("is_active = ?", true)
		}
	}

	var forms []schema.Form
	result := query.Order("created_at").Find(&forms)
	if result.Error != nil {
		slog.Error("sql error listing forms", "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	infos := make([]FormInfo, 0, len(forms))
	for _, form := range forms {
		infos = append(infos, convertToFormInfo(form))
	}

	utils.WriteJsonResponse(w, listFormsResponse{Forms: infos})
}

type createFormRequest struct {
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description"`
	Structure   json.RawMessage `json:"structure" validate:"required"`
	SubsiteId   *uuid.UUID      `json:"subsite_id"`
}

type createFormResponse struct {
	FormId uuid.UUID `json:"form_id"`
}

func (s *FormService) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params createFormRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if !validateRequest(w, params) {
		return
	}

	if _, err := schema.ParseFormStructure(params.Structure); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	subsiteId := params.SubsiteId
	if actor.IsSubadmin() {
		if subsiteId != nil && !actor.SameSubsite(*subsiteId) {
			http.Error(w, "subadmins may only create forms in their own subsite", http.StatusForbidden)
			return
		}
		subsiteId = actor.SubsiteId
	}
	if subsiteId == nil {
		http.Error(w, "subsite_id must be specified", http.StatusBadRequest)
		return
	}

	newForm := schema.Form{
		Id:          uuid.New(),
		Title:       params.Title,
		Description: params.Description,
		Structure:   datatypes.JSON(params.Structure),
		IsActive:    true,
		CreatorId:   actor.Id,
		SubsiteId:   *subsiteId,
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkSubsiteExists(txn, newForm.SubsiteId); err != nil {
			return err
		}

		result := txn.Create(&newForm)
		if result.Error != nil {
			slog.Error("sql error creating new form", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating form: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponseWithStatus(w, http.StatusCreated, createFormResponse{FormId: newForm.Id})
}

func (s *FormService) getAccessibleForm(r *http.Request, actor schema.User) (schema.Form, error) {
	formId, err := utils.URLParamUUID(r, "form_id")
	if err != nil {
		return schema.Form{}, CodedError(err, http.StatusBadRequest)
	}

	form, err := schema.GetForm(formId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrFormNotFound) {
			return schema.Form{}, CodedError(err, http.StatusNotFound)
		}
		return schema.Form{}, CodedError(err, http.StatusInternalServerError)
	}

	if err := checkAccess(actor, &form); err != nil {
		return schema.Form{}, err
	}

	return form, nil
}

func (s *FormService) GetForm(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	form, err := s.getAccessibleForm(r, actor)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if !form.IsActive && !actor.IsAdmin() && !actor.IsSubadmin() {
		http.Error(w, schema.ErrFormNotFound.Error(), http.StatusNotFound)
		return
	}

	utils.WriteJsonResponse(w, convertToFormInfo(form))
}

type updateFormRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Structure   *json.RawMessage `json:"structure"`
	IsActive    *bool            `json:"is_active"`
}

func (s *FormService) Update(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	formId, err := utils.URLParamUUID(r, "form_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params updateFormRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Structure != nil {
		if _, err := schema.ParseFormStructure(*params.Structure); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		form, err := schema.GetForm(formId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrFormNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if err := checkAccess(actor, &form); err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if params.Title != nil {
			updates["title"] = *params.Title
		}
		if params.Description != nil {
			updates["description"] = *params.Description
		}
		if params.Structure != nil {
			updates["structure"] = datatypes.JSON(*params.Structure)
		}
		if params.IsActive != nil {
			updates["is_active"] = *params.IsActive
		}
		if len(updates) == 0 {
			return nil
		}

		result := txn.Model(&form).Updates(updates)
		if result.Error != nil {
			slog.Error("sql error updating form", "form_id", formId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating form: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *FormService) Delete(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	formId, err := utils.URLParamUUID(r, "form_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		form, err := schema.GetForm(formId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrFormNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if err := checkAccess(actor, &form); err != nil {
			return err
		}

		responseIds := txn.Model(&schema.FormResponse{}).Select("id").Where("form_id = ?", formId)
		result := txn.Model(&schema.File{}).Where("form_response_id IN (?)", responseIds).Update("form_response_id", nil)
		if result.Error != nil {
			slog.Error("sql error detaching files from deleted form responses", "form_id", formId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		result = txn.Where("form_id = ?", formId).Delete(&schema.FormResponse{})
		if result.Error != nil {
			slog.Error("sql error deleting form responses", "form_id", formId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		result = txn.Delete(&form)
		if result.Error != nil {
			slog.Error("sql error deleting form", "form_id", formId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting form: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type FormResponseInfo struct {
	Id          uuid.UUID       `json:"id"`
	FormId      uuid.UUID       `json:"form_id"`
	UserId      uuid.UUID       `json:"user_id"`
	Answers     json.RawMessage `json:"answers"`
	IsDraft     bool            `json:"is_draft"`
	SubmittedAt *time.Time      `json:"submitted_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	FileIds     []uuid.UUID     `json:"file_ids"`
}

func convertToFormResponseInfo(response schema.FormResponse) FormResponseInfo {
	fileIds := make([]uuid.UUID, 0, len(response.Files))
	for _, file := range response.Files {
		fileIds = append(fileIds, file.Id)
	}
	return FormResponseInfo{
		Id:          response.Id,
		FormId:      response.FormId,
		UserId:      response.UserId,
		Answers:     json.RawMessage(response.Answers),
		IsDraft:     response.IsDraft,
		SubmittedAt: response.SubmittedAt,
		CreatedAt:   response.CreatedAt,
		UpdatedAt:   response.UpdatedAt,
		FileIds:     fileIds,
	}
}

type listResponsesResponse struct {
	Responses []FormResponseInfo `json:"responses"`
}

func (s *FormService) ListResponses(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	form, err := s.getAccessibleForm(r, actor)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	var responses []schema.FormResponse
	result := s.db.Preload("Files").Where("form_id = ?", form.Id).Order("created_at").Find(&responses)
	if result.Error != nil {
		slog.Error("sql error listing form responses", "form_id", form.Id, "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	infos := make([]FormResponseInfo, 0, len(responses))
	for _, response := range responses {
		infos = append(infos, convertToFormResponseInfo(response))
	}

	utils.WriteJsonResponse(w, listResponsesResponse{Responses: infos})
}

type submitResponseRequest struct {
	Answers map[string]json.RawMessage `json:"answers" validate:"required"`
	Submit  bool                       `json:"submit"`
}

type submitResponseResponse struct {
	ResponseId uuid.UUID `json:"response_id"`
	IsDraft    bool      `json:"is_draft"`
}

// SubmitResponse upserts the caller's response to a form. Each user holds at
// most one response per form, drafts are overwritten in place and a
// submit flag finalizes the response.
func (s *FormService) SubmitResponse(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params submitResponseRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if !validateRequest(w, params) {
		return
	}

	var saved schema.FormResponse

	err = s.db.Transaction(func(txn *gorm.DB) error {
		formId, err := utils.URLParamUUID(r, "form_id")
		if err != nil {
			return CodedError(err, http.StatusBadRequest)
		}

		form, err := schema.GetForm(formId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrFormNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if err := checkAccess(actor, &form); err != nil {
			return err
		}

		if !form.IsActive {
			return CodedError(fmt.Errorf("form '%v' is not accepting responses", form.Title), http.StatusUnprocessableEntity)
		}

		structure, err := schema.ParseFormStructure(form.Structure)
		if err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}
		if err := structure.ValidateAnswers(params.Answers); err != nil {
			return CodedError(err, http.StatusBadRequest)
		}

		answers, err := json.Marshal(params.Answers)
		if err != nil {
			return CodedError(fmt.Errorf("error serializing answers: %w", err), http.StatusInternalServerError)
		}

		var existing schema.FormResponse
		result := txn.Limit(1).Find(&existing, "form_id = ? AND user_id = ?", form.Id, actor.Id)
		if result.Error != nil {
			slog.Error("sql error checking for existing form response", "form_id", form.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		now := time.Now().UTC()

		if result.RowsAffected == 0 {
			saved = schema.FormResponse{
				Id:      uuid.New(),
				FormId:  form.Id,
				UserId:  actor.Id,
				Answers: datatypes.JSON(answers),
				IsDraft: !params.Submit,
			}
			if params.Submit {
				saved.SubmittedAt = &now
			}
			result = txn.Create(&saved)
			if result.Error != nil {
				slog.Error("sql error creating form response", "form_id", form.Id, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			return nil
		}

		updates := map[string]interface{}{"answers": datatypes.JSON(answers)}
		if params.Submit {
			updates["is_draft"] = false
			updates["submitted_at"] = &now
		}
		result = txn.Model(&existing).Updates(updates)
		if result.Error != nil {
			slog.Error("sql error updating form response", "response_id", existing.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		saved = existing
		saved.Answers = datatypes.JSON(answers)
		if params.Submit {
			saved.IsDraft = false
			saved.SubmittedAt = &now
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error saving form response: %v", err), GetResponseCode(err))
		return
	}

	responseSubmitMetric.Observe(1)

	utils.WriteJsonResponse(w, submitResponseResponse{ResponseId: saved.Id, IsDraft: saved.IsDraft})
}

func (s *FormService) getAccessibleResponse(r *http.Request, actor schema.User) (schema.FormResponse, error) {
	formId, err := utils.URLParamUUID(r, "form_id")
	if err != nil {
		return schema.FormResponse{}, CodedError(err, http.StatusBadRequest)
	}
	responseId, err := utils.URLParamUUID(r, "response_id")
	if err != nil {
		return schema.FormResponse{}, CodedError(err, http.StatusBadRequest)
	}

	response, err := schema.GetFormResponse(responseId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrFormResponseNotFound) {
			return schema.FormResponse{}, CodedError(err, http.StatusNotFound)
		}
		return schema.FormResponse{}, CodedError(err, http.StatusInternalServerError)
	}
	if response.FormId != formId {
		return schema.FormResponse{}, CodedError(schema.ErrFormResponseNotFound, http.StatusNotFound)
	}

	if err := checkAccess(actor, &response); err != nil {
		return schema.FormResponse{}, err
	}

	return response, nil
}

func (s *FormService) GetResponse(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	response, err := s.getAccessibleResponse(r, actor)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, convertToFormResponseInfo(response))
}

// ResponseDocument renders the response into the printable HTML document that
// is handed to the external PDF renderer.
func (s *FormService) ResponseDocument(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	response, err := s.getAccessibleResponse(r, actor)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	document, err := renderResponseDocument(*response.Form, response)
	if err != nil {
		http.Error(w, fmt.Sprintf("error rendering response document: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%v-response.html", Slugify(response.Form.Title))))
	if _, err := w.Write(document); err != nil {
		slog.Error("error writing response document", "response_id", response.Id, "error", err)
	}
}
