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

type TicketService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *TicketService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/", s.List)
	r.Post("/", s.Create)

	r.Route("/{ticket_id}", func(r chi.Router) {
		r.Get("/", s.GetTicket)

		r.Get("/responses", s.ListResponses)
		r.Post("/responses", s.AddResponse)

		r.With(auth.AdminOrSubadminOnly()).Post("/assign", s.Assign)
		r.Post("/close", s.Close)
		r.Post("/reopen", s.Reopen)
	})

	return r
}

type TicketInfo struct {
	Id          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	CreatorId   uuid.UUID  `json:"creator_id"`
	AssignedTo  *uuid.UUID `json:"assigned_to,omitempty"`
	SubsiteId   uuid.UUID  `json:"subsite_id"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func convertToTicketInfo(ticket schema.Ticket) TicketInfo {
	return TicketInfo{
		Id:          ticket.Id,
		Title:       ticket.Title,
		Description: ticket.Description,
		Status:      ticket.Status,
		Priority:    ticket.Priority,
		CreatorId:   ticket.CreatorId,
		AssignedTo:  ticket.AssignedTo,
		SubsiteId:   ticket.SubsiteId,
		ClosedAt:    ticket.ClosedAt,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
	}
}

type createTicketRequest struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"required"`
	Priority    string     `json:"priority"`
	SubsiteId   *uuid.UUID `json:"subsite_id"`
}

type createTicketResponse struct {
	TicketId uuid.UUID `json:"ticket_id"`
}

func (s *TicketService) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params createTicketRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if !validateRequest(w, params) {
		return
	}

	priority := params.Priority
	if priority == "" {
		priority = schema.PriorityNormal
	}
	if !schema.ValidPriority(priority) {
		http.Error(w, fmt.Sprintf("invalid priority '%v'", priority), http.StatusBadRequest)
		return
	}

	subsiteId := params.SubsiteId
	if actor.SubsiteId != nil {
		subsiteId = actor.SubsiteId
	}
	if subsiteId == nil {
		http.Error(w, "subsite_id must be specified", http.StatusBadRequest)
		return
	}

	newTicket := schema.Ticket{
		Id:          uuid.New(),
		Title:       params.Title,
		Description: params.Description,
		Status:      schema.TicketOpen,
		Priority:    priority,
		CreatorId:   actor.Id,
		SubsiteId:   *subsiteId,
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkSubsiteExists(txn, newTicket.SubsiteId); err != nil {
			return err
		}

		result := txn.Create(&newTicket)
		if result.Error != nil {
			slog.Error("sql error creating ticket", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating ticket: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponseWithStatus(w, http.StatusCreated, createTicketResponse{TicketId: newTicket.Id})
}

type listTicketsResponse struct {
	Tickets []TicketInfo `json:"tickets"`
}

func (s *TicketService) List(w http.ResponseWriter, r *http.Request) {
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
		query = query.Where(s.db.Where("creator_id = ?", actor.Id).Or("assigned_to = ?", actor.Id))
	}

	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var tickets []schema.Ticket
	result := query.Order("created_at desc").Find(&tickets)
	if result.Error != nil {
		slog.Error("sql error listing tickets", "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	infos := make([]TicketInfo, 0, len(tickets))
	for _, ticket := range tickets {
		infos = append(infos, convertToTicketInfo(ticket))
	}

	utils.WriteJsonResponse(w, listTicketsResponse{Tickets: infos})
}

func (s *TicketService) getAccessibleTicket(r *http.Request, actor schema.User, txn *gorm.DB) (schema.Ticket, error) {
	ticketId, err := utils.URLParamUUID(r, "ticket_id")
	if err != nil {
		return schema.Ticket{}, CodedError(err, http.StatusBadRequest)
	}

	ticket, err := schema.GetTicket(ticketId, txn)
	if err != nil {
		if errors.Is(err, schema.ErrTicketNotFound) {
			return schema.Ticket{}, CodedError(err, http.StatusNotFound)
		}
		return schema.Ticket{}, CodedError(err, http.StatusInternalServerError)
	}

	if err := checkAccess(actor, &ticket); err != nil {
		return schema.Ticket{}, err
	}

	return ticket, nil
}

func (s *TicketService) GetTicket(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ticket, err := s.getAccessibleTicket(r, actor, s.db)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, convertToTicketInfo(ticket))
}

type TicketResponseInfo struct {
	Id        uuid.UUID `json:"id"`
	TicketId  uuid.UUID `json:"ticket_id"`
	UserId    uuid.UUID `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type listTicketResponsesResponse struct {
	Responses []TicketResponseInfo `json:"responses"`
}

func (s *TicketService) ListResponses(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ticket, err := s.getAccessibleTicket(r, actor, s.db)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	var responses []schema.TicketResponse
	result := s.db.Where("ticket_id = ?", ticket.Id).Order("created_at").Find(&responses)
	if result.Error != nil {
		slog.Error("sql error listing ticket responses", "ticket_id", ticket.Id, "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	infos := make([]TicketResponseInfo, 0, len(responses))
	for _, response := range responses {
		infos = append(infos, TicketResponseInfo{
			Id:        response.Id,
			TicketId:  response.TicketId,
			UserId:    response.UserId,
			Content:   response.Content,
			CreatedAt: response.CreatedAt,
		})
	}

	utils.WriteJsonResponse(w, listTicketResponsesResponse{Responses: infos})
}

type addTicketResponseRequest struct {
	Content string `json:"content" validate:"required"`
}

type addTicketResponseResponse struct {
	ResponseId uuid.UUID `json:"response_id"`
}

func (s *TicketService) AddResponse(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params addTicketResponseRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if !validateRequest(w, params) {
		return
	}

	newResponse := schema.TicketResponse{Id: uuid.New(), UserId: actor.Id, Content: params.Content}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		ticket, err := s.getAccessibleTicket(r, actor, txn)
		if err != nil {
			return err
		}
		newResponse.TicketId = ticket.Id

		result := txn.Create(&newResponse)
		if result.Error != nil {
			slog.Error("sql error creating ticket response", "ticket_id", ticket.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		// Activity on the ticket bumps its UpdatedAt.
		result = txn.Model(&ticket).Update("updated_at", time.Now().UTC())
		if result.Error != nil {
			slog.Error("sql error updating ticket timestamp", "ticket_id", ticket.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error adding ticket response: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponseWithStatus(w, http.StatusCreated, addTicketResponseResponse{ResponseId: newResponse.Id})
}

type assignTicketRequest struct {
	AssigneeId uuid.UUID `json:"assignee_id" validate:"required"`
}

// Assign puts a ticket in the hands of a user in its subsite and moves it to
// in_progress. Closed tickets must be reopened first.
func (s *TicketService) Assign(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params assignTicketRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if !validateRequest(w, params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		ticket, err := s.getAccessibleTicket(r, actor, txn)
		if err != nil {
			return err
		}

		if ticket.Status == schema.TicketClosed {
			return CodedError(errors.New("cannot assign a closed ticket"), http.StatusUnprocessableEntity)
		}

		assignee, err := schema.GetUser(params.AssigneeId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}
		if !assignee.IsAdmin() && !assignee.SameSubsite(ticket.SubsiteId) {
			return CodedError(errors.New("assignee is not in the ticket's subsite"), http.StatusUnprocessableEntity)
		}

		result := txn.Model(&ticket).Updates(map[string]interface{}{
			"assigned_to": assignee.Id,
			"status":      schema.TicketInProgress,
		})
		if result.Error != nil {
			slog.Error("sql error assigning ticket", "ticket_id", ticket.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error assigning ticket: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

// Close is idempotent, closing an already closed ticket keeps its ClosedAt.
func (s *TicketService) Close(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		ticket, err := s.getAccessibleTicket(r, actor, txn)
		if err != nil {
			return err
		}

		if ticket.Status == schema.TicketClosed {
			return nil
		}

		now := time.Now().UTC()
		result := txn.Model(&ticket).Updates(map[string]interface{}{
			"status":    schema.TicketClosed,
			"closed_at": &now,
		})
		if result.Error != nil {
			slog.Error("sql error closing ticket", "ticket_id", ticket.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error closing ticket: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *TicketService) Reopen(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		ticket, err := s.getAccessibleTicket(r, actor, txn)
		if err != nil {
			return err
		}

		if ticket.Status != schema.TicketClosed {
			return CodedError(errors.New("only closed tickets can be reopened"), http.StatusUnprocessableEntity)
		}

		result := txn.Model(&ticket).Updates(map[string]interface{}{
			"status":    schema.TicketReopened,
			"closed_at": nil,
		})
		if result.Error != nil {
			slog.Error("sql error reopening ticket", "ticket_id", ticket.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error reopening ticket: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
