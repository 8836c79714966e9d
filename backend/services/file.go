package services

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"formsite/backend/auth"
	"formsite/backend/schema"
	"formsite/backend/storage"
	"formsite/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FileService struct {
	db       *gorm.DB
	storage  storage.Storage
	userAuth auth.IdentityProvider

	maxUploadSize     int64
	allowedExtensions map[string]bool
}

func (s *FileService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.With(checkSufficientStorage(s.storage)).Post("/", s.Upload)

	r.Get("/", s.List)

	r.Route("/{file_id}", func(r chi.Router) {
		r.Get("/", s.GetFile)
		r.Get("/download", s.Download)

		r.Group(func(r chi.Router) {
			r.Use(auth.AdminOrSubadminOnly())

			r.Put("/", s.Update)
		})

		r.Delete("/", s.Delete)
	})

	return r
}

type FileInfo struct {
	Id             uuid.UUID  `json:"id"`
	OriginalName   string     `json:"original_name"`
	FileType       string     `json:"file_type"`
	FileSize       int64      `json:"file_size"`
	Description    string     `json:"description"`
	IsPublic       bool       `json:"is_public"`
	OwnerId        uuid.UUID  `json:"owner_id"`
	SubsiteId      uuid.UUID  `json:"subsite_id"`
	FormResponseId *uuid.UUID `json:"form_response_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func convertToFileInfo(file schema.File) FileInfo {
	return FileInfo{
		Id:             file.Id,
		OriginalName:   file.OriginalName,
		FileType:       file.FileType,
		FileSize:       file.FileSize,
		Description:    file.Description,
		IsPublic:       file.IsPublic,
		OwnerId:        file.OwnerId,
		SubsiteId:      file.SubsiteId,
		FormResponseId: file.FormResponseId,
		CreatedAt:      file.CreatedAt,
	}
}

func classifyFileType(ext string) string {
	switch ext {
	case ".pdf", ".doc", ".docx":
		return "document"
	case ".png", ".jpg", ".jpeg":
		return "image"
	}
	return "other"
}

type uploadResponse struct {
	FileId uuid.UUID `json:"file_id"`
}

// Upload accepts a multipart form with a "file" part plus optional
// description, is_public, and form_response_id fields. The bytes are written
// to storage under a fresh name before the metadata row is committed; if the
// row cannot be created the bytes are removed again.
func (s *FileService) Upload(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if actor.SubsiteId == nil {
		http.Error(w, "user must belong to a subsite to upload files", http.StatusUnprocessableEntity)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	if err := r.ParseMultipartForm(s.maxUploadSize); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			http.Error(w, fmt.Sprintf("upload exceeds the %d byte limit", s.maxUploadSize), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, fmt.Sprintf("error parsing multipart request: %v", err), http.StatusBadRequest)
		return
	}

	part, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("missing 'file' part in multipart request: %v", err), http.StatusBadRequest)
		return
	}
	defer part.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !s.allowedExtensions[ext] {
		http.Error(w, fmt.Sprintf("file extension '%v' is not allowed", ext), http.StatusBadRequest)
		return
	}

	subsite, err := schema.GetSubsite(*actor.SubsiteId, s.db)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var responseId *uuid.UUID
	if value := r.FormValue("form_response_id"); value != "" {
		id, err := uuid.Parse(value)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid form_response_id '%v'", value), http.StatusBadRequest)
			return
		}
		response, err := schema.GetFormResponse(id, s.db)
		if err != nil {
			if errors.Is(err, schema.ErrFormResponseNotFound) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := checkAccess(actor, &response); err != nil {
			http.Error(w, err.Error(), GetResponseCode(err))
			return
		}
		responseId = &response.Id
	}

	storedName := strings.ReplaceAll(uuid.New().String(), "-", "") + ext
	path := storage.UploadPath(subsite.Slug, storedName)

	if err := s.storage.Write(path, part); err != nil {
		http.Error(w, fmt.Sprintf("error storing uploaded file: %v", err), http.StatusInternalServerError)
		return
	}

	size, err := s.storage.Size(path)
	if err != nil {
		http.Error(w, fmt.Sprintf("error storing uploaded file: %v", err), http.StatusInternalServerError)
		return
	}

	newFile := schema.File{
		Id:             uuid.New(),
		OriginalName:   header.Filename,
		StoredName:     storedName,
		FileType:       classifyFileType(ext),
		FileSize:       size,
		Description:    r.FormValue("description"),
		IsPublic:       r.FormValue("is_public") == "true",
		OwnerId:        actor.Id,
		SubsiteId:      subsite.Id,
		FormResponseId: responseId,
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		result := txn.Create(&newFile)
		if result.Error != nil {
			slog.Error("sql error creating file entry", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})

	if err != nil {
		if removeErr := s.storage.Delete(path); removeErr != nil {
			slog.Error("error removing stored bytes after failed file insert", "path", path, "error", removeErr)
		}
		http.Error(w, fmt.Sprintf("error saving uploaded file: %v", err), GetResponseCode(err))
		return
	}

	uploadMetric.Observe(float64(size))

	utils.WriteJsonResponseWithStatus(w, http.StatusCreated, uploadResponse{FileId: newFile.Id})
}

type listFilesResponse struct {
	Files []FileInfo `json:"files"`
}

// List returns the caller's own files plus the public files of their
// subsite. Admins see everything, subadmins their whole subsite.
func (s *FileService) List(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	query := s.db
	switch {
	case actor.IsAdmin():
	case actor.IsSubadmin():
		query = query.Where("subsite_id = ?", actor.SubsiteId)
	default:
		query = query.Where(s.db.Where("owner_id = ?", actor.Id).Or("is_public = ? AND subsite_id = ?", true, actor.SubsiteId))
	}

	var files []schema.File
	result := query.Order("created_at desc").Find(&files)
	if result.Error != nil {
		slog.Error("sql error listing files", "user_id", actor.Id, "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	infos := make([]FileInfo, 0, len(files))
	for _, file := range files {
		infos = append(infos, convertToFileInfo(file))
	}

	utils.WriteJsonResponse(w, listFilesResponse{Files: infos})
}

func (s *FileService) getAccessibleFile(r *http.Request, actor schema.User) (schema.File, error) {
	fileId, err := utils.URLParamUUID(r, "file_id")
	if err != nil {
		return schema.File{}, CodedError(err, http.StatusBadRequest)
	}

	file, err := schema.GetFile(fileId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrFileNotFound) {
			return schema.File{}, CodedError(err, http.StatusNotFound)
		}
		return schema.File{}, CodedError(err, http.StatusInternalServerError)
	}

	if err := checkAccess(actor, &file); err != nil {
		return schema.File{}, err
	}

	return file, nil
}

func (s *FileService) GetFile(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	file, err := s.getAccessibleFile(r, actor)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, convertToFileInfo(file))
}

func (s *FileService) Download(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	file, err := s.getAccessibleFile(r, actor)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	subsite, err := schema.GetSubsite(file.SubsiteId, s.db)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	path := storage.UploadPath(subsite.Slug, file.StoredName)

	exists, err := s.storage.Exists(path)
	if err != nil {
		http.Error(w, fmt.Sprintf("error locating stored file: %v", err), http.StatusInternalServerError)
		return
	}
	if !exists {
		http.Error(w, "stored file is missing", http.StatusNotFound)
		return
	}

	reader, err := s.storage.Read(path)
	if err != nil {
		http.Error(w, fmt.Sprintf("error reading stored file: %v", err), http.StatusInternalServerError)
		return
	}
	defer reader.Close()

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(file.OriginalName)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", file.FileSize))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.OriginalName))

	if _, err := io.Copy(w, reader); err != nil {
		slog.Error("error streaming file download", "file_id", file.Id, "error", err)
		return
	}

	downloadMetric.Observe(float64(file.FileSize))
}

type updateFileRequest struct {
	OriginalName *string `json:"original_name"`
	Description  *string `json:"description"`
	IsPublic     *bool   `json:"is_public"`
}

func (s *FileService) Update(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	fileId, err := utils.URLParamUUID(r, "file_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params updateFileRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		file, err := schema.GetFile(fileId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrFileNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if err := checkAccess(actor, &file); err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if params.OriginalName != nil {
			updates["original_name"] = *params.OriginalName
		}
		if params.Description != nil {
			updates["description"] = *params.Description
		}
		if params.IsPublic != nil {
			updates["is_public"] = *params.IsPublic
		}
		if len(updates) == 0 {
			return nil
		}

		result := txn.Model(&file).Updates(updates)
		if result.Error != nil {
			slog.Error("sql error updating file", "file_id", fileId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating file: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

// Delete removes the metadata row first and the stored bytes second. A
// failure removing the bytes is reported as an error: the row is already
// gone, so the worst case is an orphaned stored file, never metadata
// pointing at missing bytes.
func (s *FileService) Delete(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	fileId, err := utils.URLParamUUID(r, "file_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var path string

	err = s.db.Transaction(func(txn *gorm.DB) error {
		file, err := schema.GetFile(fileId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrFileNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if err := checkAccess(actor, &file); err != nil {
			return err
		}

		subsite, err := schema.GetSubsite(file.SubsiteId, txn)
		if err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}
		path = storage.UploadPath(subsite.Slug, file.StoredName)

		result := txn.Delete(&file)
		if result.Error != nil {
			slog.Error("sql error deleting file", "file_id", fileId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting file: %v", err), GetResponseCode(err))
		return
	}

	if err := s.storage.Delete(path); err != nil {
		slog.Error("error removing stored bytes for deleted file", "file_id", fileId, "error", err)
		http.Error(w, fmt.Sprintf("file entry removed but stored bytes could not be deleted: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteSuccess(w)
}
