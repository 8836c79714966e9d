package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"formsite/backend/auth"
	"formsite/backend/schema"
	"formsite/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *MessageService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/", s.Inbox)
	r.Get("/sent", s.Sent)
	r.Post("/", s.Send)

	r.Route("/{message_id}", func(r chi.Router) {
		r.Get("/", s.GetMessage)
		r.Get("/thread", s.GetThread)
		r.Post("/reply", s.Reply)
	})

	return r
}

type MessageInfo struct {
	Id         uuid.UUID  `json:"id"`
	Subject    string     `json:"subject"`
	Content    string     `json:"content"`
	IsRead     bool       `json:"is_read"`
	IsGlobal   bool       `json:"is_global"`
	SenderId   uuid.UUID  `json:"sender_id"`
	ReceiverId *uuid.UUID `json:"receiver_id,omitempty"`
	SubsiteId  uuid.UUID  `json:"subsite_id"`
	ParentId   *uuid.UUID `json:"parent_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func convertToMessageInfo(message schema.Message) MessageInfo {
	return MessageInfo{
		Id:         message.Id,
		Subject:    message.Subject,
		Content:    message.Content,
		IsRead:     message.IsRead,
		IsGlobal:   message.IsGlobal,
		SenderId:   message.SenderId,
		ReceiverId: message.ReceiverId,
		SubsiteId:  message.SubsiteId,
		ParentId:   message.ParentId,
		CreatedAt:  message.CreatedAt,
	}
}

type listMessagesResponse struct {
	Messages []MessageInfo `json:"messages"`
}

func writeMessageList(w http.ResponseWriter, messages []schema.Message) {
	infos := make([]MessageInfo, 0, len(messages))
	for _, message := range messages {
		infos = append(infos, convertToMessageInfo(message))
	}
	utils.WriteJsonResponse(w, listMessagesResponse{Messages: infos})
}

// Inbox returns messages directed at the caller plus the broadcasts of their
// subsite, newest first. The unread=true query flag filters read messages.
func (s *MessageService) Inbox(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	query := s.db.Where("receiver_id = ?", actor.Id)
	if actor.SubsiteId != nil {
		query = s.db.Where("receiver_id = ?", actor.Id).Or("is_global = ? AND subsite_id = ?", true, actor.SubsiteId)
	}
	query = s.db.Where(query)

	if utils.QueryFlag(r, "unread") {
		query = query.Where("is_read = ?", false)
	}

	var messages []schema.Message
	result := query.Order("created_at desc").Find(&messages)
	if result.Error != nil {
		slog.Error("sql error listing inbox messages", "user_id", actor.Id, "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	writeMessageList(w, messages)
}

func (s *MessageService) Sent(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var messages []schema.Message
	result := s.db.Where("sender_id = ?", actor.Id).Order("created_at desc").Find(&messages)
	if result.Error != nil {
		slog.Error("sql error listing sent messages", "user_id", actor.Id, "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	writeMessageList(w, messages)
}

type sendMessageRequest struct {
	Subject    string     `json:"subject" validate:"max=200"`
	Content    string     `json:"content" validate:"required"`
	ReceiverId *uuid.UUID `json:"receiver_id"`
	IsGlobal   bool       `json:"is_global"`
	SubsiteId  *uuid.UUID `json:"subsite_id"`
}

type sendMessageResponse struct {
	MessageId uuid.UUID `json:"message_id"`
}

func (s *MessageService) Send(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params sendMessageRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if !validateRequest(w, params) {
		return
	}

	newMessage := schema.Message{
		Id:       uuid.New(),
		Subject:  params.Subject,
		Content:  params.Content,
		IsGlobal: params.IsGlobal,
		SenderId: actor.Id,
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if params.IsGlobal {
			if !actor.IsAdmin() && !actor.IsSubadmin() {
				return CodedError(errors.New("only admins and subadmins may send broadcasts"), http.StatusForbidden)
			}
			subsiteId := params.SubsiteId
			if actor.IsSubadmin() {
				subsiteId = actor.SubsiteId
			}
			if subsiteId == nil {
				return CodedError(errors.New("subsite_id must be specified for broadcasts"), http.StatusBadRequest)
			}
			if err := checkSubsiteExists(txn, *subsiteId); err != nil {
				return err
			}
			newMessage.SubsiteId = *subsiteId
		} else {
			if params.ReceiverId == nil {
				return CodedError(errors.New("receiver_id must be specified for directed messages"), http.StatusBadRequest)
			}
			receiver, err := schema.GetUser(*params.ReceiverId, txn)
			if err != nil {
				if errors.Is(err, schema.ErrUserNotFound) {
					return CodedError(err, http.StatusNotFound)
				}
				return CodedError(err, http.StatusInternalServerError)
			}
			if !actor.IsAdmin() && actor.SubsiteId != nil && !receiver.IsAdmin() && !receiver.SameSubsite(*actor.SubsiteId) {
				return CodedError(errors.New("receiver is not in the sender's subsite"), http.StatusForbidden)
			}

			newMessage.ReceiverId = &receiver.Id
			switch {
			case receiver.SubsiteId != nil:
				newMessage.SubsiteId = *receiver.SubsiteId
			case actor.SubsiteId != nil:
				newMessage.SubsiteId = *actor.SubsiteId
			default:
				return CodedError(errors.New("neither sender nor receiver belongs to a subsite"), http.StatusUnprocessableEntity)
			}
		}

		result := txn.Create(&newMessage)
		if result.Error != nil {
			slog.Error("sql error creating message", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error sending message: %v", err), GetResponseCode(err))
		return
	}

	messageSendMetric.Inc()

	utils.WriteJsonResponseWithStatus(w, http.StatusCreated, sendMessageResponse{MessageId: newMessage.Id})
}

func (s *MessageService) getAccessibleMessage(r *http.Request, actor schema.User) (schema.Message, error) {
	messageId, err := utils.URLParamUUID(r, "message_id")
	if err != nil {
		return schema.Message{}, CodedError(err, http.StatusBadRequest)
	}

	message, err := schema.GetMessage(messageId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrMessageNotFound) {
			return schema.Message{}, CodedError(err, http.StatusNotFound)
		}
		return schema.Message{}, CodedError(err, http.StatusInternalServerError)
	}

	if err := checkAccess(actor, &message); err != nil {
		return schema.Message{}, err
	}

	return message, nil
}

// GetMessage returns a single message. Reading a directed message as its
// receiver marks it read; broadcasts are shared rows and keep their flag.
func (s *MessageService) GetMessage(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	message, err := s.getAccessibleMessage(r, actor)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if message.ReceiverId != nil && *message.ReceiverId == actor.Id && !message.IsRead {
		result := s.db.Model(&message).Update("is_read", true)
		if result.Error != nil {
			slog.Error("sql error marking message read", "message_id", message.Id, "error", result.Error)
		} else {
			message.IsRead = true
		}
	}

	utils.WriteJsonResponse(w, convertToMessageInfo(message))
}

// collectThread walks from any message in a thread up to its root and then
// gathers every descendant level by level. Each message appears exactly once
// even if parent links ever formed a cycle.
func collectThread(txn *gorm.DB, start schema.Message) ([]schema.Message, error) {
	seen := map[uuid.UUID]bool{start.Id: true}

	root := start
	for root.ParentId != nil {
		if seen[*root.ParentId] {
			break
		}
		parent, err := schema.GetMessage(*root.ParentId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrMessageNotFound) {
				break
			}
			return nil, err
		}
		seen[parent.Id] = true
		root = parent
	}

	thread := []schema.Message{root}
	collected := map[uuid.UUID]bool{root.Id: true}

	frontier := []uuid.UUID{root.Id}
	for len(frontier) > 0 {
		var children []schema.Message
		result := txn.Where("parent_id IN ?", frontier).Order("created_at").Find(&children)
		if result.Error != nil {
			slog.Error("sql error loading thread replies", "error", result.Error)
			return nil, schema.ErrDbAccessFailed
		}

		frontier = frontier[:0]
		for _, child := range children {
			if collected[child.Id] {
				continue
			}
			collected[child.Id] = true
			thread = append(thread, child)
			frontier = append(frontier, child.Id)
		}
	}

	sort.SliceStable(thread, func(i, j int) bool {
		return thread[i].CreatedAt.Before(thread[j].CreatedAt)
	})

	return thread, nil
}

func (s *MessageService) GetThread(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	message, err := s.getAccessibleMessage(r, actor)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	thread, err := collectThread(s.db, message)
	if err != nil {
		http.Error(w, fmt.Sprintf("error loading thread: %v", err), http.StatusInternalServerError)
		return
	}

	var unread []uuid.UUID
	for i := range thread {
		if thread[i].ReceiverId != nil && *thread[i].ReceiverId == actor.Id && !thread[i].IsRead {
			unread = append(unread, thread[i].Id)
			thread[i].IsRead = true
		}
	}
	if len(unread) > 0 {
		result := s.db.Model(&schema.Message{}).Where("id IN ?", unread).Update("is_read", true)
		if result.Error != nil {
			slog.Error("sql error marking thread messages read", "error", result.Error)
		}
	}

	writeMessageList(w, thread)
}

type replyRequest struct {
	Subject string `json:"subject" validate:"max=200"`
	Content string `json:"content" validate:"required"`
}

func (s *MessageService) Reply(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params replyRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if !validateRequest(w, params) {
		return
	}

	parent, err := s.getAccessibleMessage(r, actor)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	// Replying to your own message continues the conversation with the
	// original receiver, otherwise the reply goes back to the sender.
	var receiverId *uuid.UUID
	if parent.SenderId == actor.Id {
		receiverId = parent.ReceiverId
	} else {
		senderId := parent.SenderId
		receiverId = &senderId
	}
	if receiverId == nil {
		http.Error(w, "broadcast has no receiver to reply to", http.StatusUnprocessableEntity)
		return
	}

	subject := params.Subject
	if subject == "" && parent.Subject != "" {
		subject = parent.Subject
		if !strings.HasPrefix(subject, "Re: ") {
			subject = "Re: " + subject
		}
	}

	reply := schema.Message{
		Id:         uuid.New(),
		Subject:    subject,
		Content:    params.Content,
		SenderId:   actor.Id,
		ReceiverId: receiverId,
		SubsiteId:  parent.SubsiteId,
		ParentId:   &parent.Id,
	}

	result := s.db.Create(&reply)
	if result.Error != nil {
		slog.Error("sql error creating reply", "parent_id", parent.Id, "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	messageSendMetric.Inc()

	utils.WriteJsonResponseWithStatus(w, http.StatusCreated, sendMessageResponse{MessageId: reply.Id})
}
