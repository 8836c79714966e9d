package schema

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrSubsiteNotFound      = errors.New("subsite not found")
	ErrFormNotFound         = errors.New("form not found")
	ErrFormResponseNotFound = errors.New("form response not found")
	ErrFileNotFound         = errors.New("file not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrTicketNotFound       = errors.New("ticket not found")
	ErrDbAccessFailed       = errors.New("db access failed")
)

func GetUser(userId uuid.UUID, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetSubsite(subsiteId uuid.UUID, db *gorm.DB) (Subsite, error) {
	var subsite Subsite

	result := db.First(&subsite, "id = ?", subsiteId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return subsite, ErrSubsiteNotFound
		}
		slog.Error("sql error in get subsite", "subsite_id", subsiteId, "error", result.Error)
		return subsite, ErrDbAccessFailed
	}

	return subsite, nil
}

func GetSubsiteBySlug(slug string, db *gorm.DB) (Subsite, error) {
	var subsite Subsite

	result := db.First(&subsite, "slug = ?", slug)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return subsite, ErrSubsiteNotFound
		}
		slog.Error("sql error in get subsite by slug", "slug", slug, "error", result.Error)
		return subsite, ErrDbAccessFailed
	}

	return subsite, nil
}

func GetForm(formId uuid.UUID, db *gorm.DB) (Form, error) {
	var form Form

	result := db.First(&form, "id = ?", formId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return form, ErrFormNotFound
		}
		slog.Error("sql error in get form", "form_id", formId, "error", result.Error)
		return form, ErrDbAccessFailed
	}

	return form, nil
}

func GetFormResponse(responseId uuid.UUID, db *gorm.DB) (FormResponse, error) {
	var response FormResponse

	result := db.Preload("Form").Preload("Files").First(&response, "id = ?", responseId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return response, ErrFormResponseNotFound
		}
		slog.Error("sql error in get form response", "response_id", responseId, "error", result.Error)
		return response, ErrDbAccessFailed
	}

	return response, nil
}

func GetFile(fileId uuid.UUID, db *gorm.DB) (File, error) {
	var file File

	result := db.First(&file, "id = ?", fileId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return file, ErrFileNotFound
		}
		slog.Error("sql error in get file", "file_id", fileId, "error", result.Error)
		return file, ErrDbAccessFailed
	}

	return file, nil
}

func GetMessage(messageId uuid.UUID, db *gorm.DB) (Message, error) {
	var message Message

	result := db.First(&message, "id = ?", messageId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return message, ErrMessageNotFound
		}
		slog.Error("sql error in get message", "message_id", messageId, "error", result.Error)
		return message, ErrDbAccessFailed
	}

	return message, nil
}

func GetTicket(ticketId uuid.UUID, db *gorm.DB) (Ticket, error) {
	var ticket Ticket

	result := db.First(&ticket, "id = ?", ticketId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return ticket, ErrTicketNotFound
		}
		slog.Error("sql error in get ticket", "ticket_id", ticketId, "error", result.Error)
		return ticket, ErrDbAccessFailed
	}

	return ticket, nil
}
