package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"

	"formsite/backend/services"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:      api,
		method:   method,
		endpoint: endpoint,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

func (r *httpTestRequest) Body(body io.Reader) *httpTestRequest {
	r.body = body
	return r
}

var ErrUnauthorized = errors.New("unauthorized")

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	if r.headers != nil {
		for k, v := range r.headers {
			req.Header.Add(k, v)
		}
	}

	w := httptest.NewRecorder()

	r.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		if res.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		return fmt.Errorf("%v request to endpoint %v returned status %d, content '%v'", r.method, r.endpoint, res.StatusCode, w.Body.String())
	}

	if result != nil {
		err := json.NewDecoder(res.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

type client struct {
	api       chi.Router
	authToken string
	userId    uuid.UUID
}

func (c *client) Get(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "GET", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Post(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "POST", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Put(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "PUT", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "DELETE", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

type loginInfo struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *client) register(username, email, password, slug, accessCode string) (loginInfo, error) {
	body := map[string]string{
		"username": username, "email": email, "password": password,
		"subsite_slug": slug, "access_code": accessCode,
	}

	err := c.Post("/auth/register").Json(body).Do(nil)
	if err != nil {
		return loginInfo{}, err
	}

	return loginInfo{Email: email, Password: password}, nil
}

func (c *client) login(login loginInfo) error {
	var res struct {
		Token string            `json:"token"`
		User  services.UserInfo `json:"user"`
	}
	err := c.Post("/auth/login").Json(login).Do(&res)
	if err != nil {
		return err
	}

	c.authToken = res.Token
	c.userId = res.User.Id

	return nil
}

func (c *client) me() (services.UserInfo, error) {
	var res services.UserInfo
	err := c.Get("/auth/me").Do(&res)
	return res, err
}

func (c *client) changePassword(oldPassword, newPassword string) error {
	body := map[string]string{"old_password": oldPassword, "new_password": newPassword}
	return c.Post("/auth/change-password").Json(body).Do(nil)
}

func (c *client) resetPassword(userId uuid.UUID, newPassword string) error {
	body := map[string]string{"new_password": newPassword}
	return c.Post(fmt.Sprintf("/auth/reset-password/%v", userId)).Json(body).Do(nil)
}

func (c *client) createUser(username, email, password, role string, subsiteId uuid.UUID) (uuid.UUID, error) {
	body := map[string]interface{}{
		"username": username, "email": email, "password": password,
		"role": role, "subsite_id": subsiteId,
	}

	var res struct {
		UserId uuid.UUID `json:"user_id"`
	}
	err := c.Post("/users/").Json(body).Do(&res)
	return res.UserId, err
}

func (c *client) listUsers() ([]services.UserInfo, error) {
	var res struct {
		Users []services.UserInfo `json:"users"`
	}
	err := c.Get("/users/").Do(&res)
	return res.Users, err
}

func (c *client) getUser(userId uuid.UUID) (services.UserInfo, error) {
	var res services.UserInfo
	err := c.Get(fmt.Sprintf("/users/%v", userId)).Do(&res)
	return res, err
}

func (c *client) updateUser(userId uuid.UUID, updates map[string]interface{}) error {
	return c.Put(fmt.Sprintf("/users/%v", userId)).Json(updates).Do(nil)
}

func (c *client) deleteUser(userId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/users/%v", userId)).Do(nil)
}

type subsiteInfo struct {
	Id         uuid.UUID `json:"subsite_id"`
	Slug       string    `json:"slug"`
	AccessCode string    `json:"access_code"`
}

func (c *client) createSubsite(name string) (subsiteInfo, error) {
	body := map[string]string{"name": name}

	var res subsiteInfo
	err := c.Post("/subsites/").Json(body).Do(&res)
	return res, err
}

func (c *client) listSubsites() ([]services.SubsiteInfo, error) {
	var res struct {
		Subsites []services.SubsiteInfo `json:"subsites"`
	}
	err := c.Get("/subsites/").Do(&res)
	return res.Subsites, err
}

func (c *client) getSubsite(subsiteId uuid.UUID) (services.SubsiteInfo, error) {
	var res services.SubsiteInfo
	err := c.Get(fmt.Sprintf("/subsites/%v", subsiteId)).Do(&res)
	return res, err
}

func (c *client) updateSubsite(subsiteId uuid.UUID, updates map[string]interface{}) error {
	return c.Put(fmt.Sprintf("/subsites/%v", subsiteId)).Json(updates).Do(nil)
}

func (c *client) deleteSubsite(subsiteId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/subsites/%v", subsiteId)).Do(nil)
}

func (c *client) createForm(title string, structure interface{}, subsiteId uuid.UUID) (uuid.UUID, error) {
	structureJson, err := json.Marshal(structure)
	if err != nil {
		return uuid.Nil, err
	}

	body := map[string]interface{}{
		"title": title, "structure": json.RawMessage(structureJson), "subsite_id": subsiteId,
	}

	var res struct {
		FormId uuid.UUID `json:"form_id"`
	}
	err = c.Post("/forms/").Json(body).Do(&res)
	return res.FormId, err
}

func (c *client) listForms() ([]services.FormInfo, error) {
	var res struct {
		Forms []services.FormInfo `json:"forms"`
	}
	err := c.Get("/forms/").Do(&res)
	return res.Forms, err
}

func (c *client) getForm(formId uuid.UUID) (services.FormInfo, error) {
	var res services.FormInfo
	err := c.Get(fmt.Sprintf("/forms/%v", formId)).Do(&res)
	return res, err
}

func (c *client) updateForm(formId uuid.UUID, updates map[string]interface{}) error {
	return c.Put(fmt.Sprintf("/forms/%v", formId)).Json(updates).Do(nil)
}

func (c *client) deleteForm(formId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/forms/%v", formId)).Do(nil)
}

func (c *client) submitResponse(formId uuid.UUID, answers map[string]interface{}, submit bool) (uuid.UUID, bool, error) {
	body := map[string]interface{}{"answers": answers, "submit": submit}

	var res struct {
		ResponseId uuid.UUID `json:"response_id"`
		IsDraft    bool      `json:"is_draft"`
	}
	err := c.Post(fmt.Sprintf("/forms/%v/responses", formId)).Json(body).Do(&res)
	return res.ResponseId, res.IsDraft, err
}

func (c *client) listFormResponses(formId uuid.UUID) ([]services.FormResponseInfo, error) {
	var res struct {
		Responses []services.FormResponseInfo `json:"responses"`
	}
	err := c.Get(fmt.Sprintf("/forms/%v/responses", formId)).Do(&res)
	return res.Responses, err
}

func (c *client) getFormResponse(formId, responseId uuid.UUID) (services.FormResponseInfo, error) {
	var res services.FormResponseInfo
	err := c.Get(fmt.Sprintf("/forms/%v/responses/%v", formId, responseId)).Do(&res)
	return res, err
}

func (c *client) responseDocument(formId, responseId uuid.UUID) ([]byte, error) {
	endpoint := fmt.Sprintf("/forms/%v/responses/%v/pdf", formId, responseId)
	req := httptest.NewRequest("GET", endpoint, nil)
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %v", c.authToken))
	w := httptest.NewRecorder()
	c.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %v failed with status %d and res '%v'", endpoint, res.StatusCode, w.Body.String())
	}

	return io.ReadAll(res.Body)
}

func (c *client) sendMessage(body map[string]interface{}) (uuid.UUID, error) {
	var res struct {
		MessageId uuid.UUID `json:"message_id"`
	}
	err := c.Post("/messages/").Json(body).Do(&res)
	return res.MessageId, err
}

func (c *client) inbox(unreadOnly bool) ([]services.MessageInfo, error) {
	endpoint := "/messages/"
	if unreadOnly {
		endpoint += "?unread=true"
	}
	var res struct {
		Messages []services.MessageInfo `json:"messages"`
	}
	err := c.Get(endpoint).Do(&res)
	return res.Messages, err
}

func (c *client) sentMessages() ([]services.MessageInfo, error) {
	var res struct {
		Messages []services.MessageInfo `json:"messages"`
	}
	err := c.Get("/messages/sent").Do(&res)
	return res.Messages, err
}

func (c *client) getMessage(messageId uuid.UUID) (services.MessageInfo, error) {
	var res services.MessageInfo
	err := c.Get(fmt.Sprintf("/messages/%v", messageId)).Do(&res)
	return res, err
}

func (c *client) getThread(messageId uuid.UUID) ([]services.MessageInfo, error) {
	var res struct {
		Messages []services.MessageInfo `json:"messages"`
	}
	err := c.Get(fmt.Sprintf("/messages/%v/thread", messageId)).Do(&res)
	return res.Messages, err
}

func (c *client) reply(messageId uuid.UUID, content string) (uuid.UUID, error) {
	body := map[string]string{"content": content}

	var res struct {
		MessageId uuid.UUID `json:"message_id"`
	}
	err := c.Post(fmt.Sprintf("/messages/%v/reply", messageId)).Json(body).Do(&res)
	return res.MessageId, err
}

func (c *client) uploadMultipart(filename string, content []byte, fields map[string]string) (uuid.UUID, error) {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return uuid.Nil, err
	}
	if _, err := part.Write(content); err != nil {
		return uuid.Nil, err
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return uuid.Nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return uuid.Nil, err
	}

	var res struct {
		FileId uuid.UUID `json:"file_id"`
	}
	err = c.Post("/files/").Header("Content-Type", writer.FormDataContentType()).Body(body).Do(&res)
	return res.FileId, err
}

func (c *client) uploadFile(filename string, content []byte, public bool) (uuid.UUID, error) {
	fields := map[string]string{}
	if public {
		fields["is_public"] = "true"
	}
	return c.uploadMultipart(filename, content, fields)
}

func (c *client) uploadFileForResponse(filename string, content []byte, responseId uuid.UUID) (uuid.UUID, error) {
	return c.uploadMultipart(filename, content, map[string]string{"form_response_id": responseId.String()})
}

func (c *client) listFiles() ([]services.FileInfo, error) {
	var res struct {
		Files []services.FileInfo `json:"files"`
	}
	err := c.Get("/files/").Do(&res)
	return res.Files, err
}

func (c *client) getFile(fileId uuid.UUID) (services.FileInfo, error) {
	var res services.FileInfo
	err := c.Get(fmt.Sprintf("/files/%v", fileId)).Do(&res)
	return res, err
}

func (c *client) downloadFile(fileId uuid.UUID) ([]byte, error) {
	endpoint := fmt.Sprintf("/files/%v/download", fileId)
	req := httptest.NewRequest("GET", endpoint, nil)
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %v", c.authToken))
	w := httptest.NewRecorder()
	c.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("get %v failed with status %d and res '%v'", endpoint, res.StatusCode, w.Body.String())
	}

	return io.ReadAll(res.Body)
}

func (c *client) deleteFile(fileId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/files/%v", fileId)).Do(nil)
}

func (c *client) createTicket(title, description string) (uuid.UUID, error) {
	body := map[string]string{"title": title, "description": description}

	var res struct {
		TicketId uuid.UUID `json:"ticket_id"`
	}
	err := c.Post("/tickets/").Json(body).Do(&res)
	return res.TicketId, err
}

func (c *client) listTickets() ([]services.TicketInfo, error) {
	var res struct {
		Tickets []services.TicketInfo `json:"tickets"`
	}
	err := c.Get("/tickets/").Do(&res)
	return res.Tickets, err
}

func (c *client) getTicket(ticketId uuid.UUID) (services.TicketInfo, error) {
	var res services.TicketInfo
	err := c.Get(fmt.Sprintf("/tickets/%v", ticketId)).Do(&res)
	return res, err
}

func (c *client) addTicketResponse(ticketId uuid.UUID, content string) (uuid.UUID, error) {
	body := map[string]string{"content": content}

	var res struct {
		ResponseId uuid.UUID `json:"response_id"`
	}
	err := c.Post(fmt.Sprintf("/tickets/%v/responses", ticketId)).Json(body).Do(&res)
	return res.ResponseId, err
}

func (c *client) listTicketResponses(ticketId uuid.UUID) ([]services.TicketResponseInfo, error) {
	var res struct {
		Responses []services.TicketResponseInfo `json:"responses"`
	}
	err := c.Get(fmt.Sprintf("/tickets/%v/responses", ticketId)).Do(&res)
	return res.Responses, err
}

func (c *client) assignTicket(ticketId, assigneeId uuid.UUID) error {
	body := map[string]interface{}{"assignee_id": assigneeId}
	return c.Post(fmt.Sprintf("/tickets/%v/assign", ticketId)).Json(body).Do(nil)
}

func (c *client) closeTicket(ticketId uuid.UUID) error {
	return c.Post(fmt.Sprintf("/tickets/%v/close", ticketId)).Do(nil)
}

func (c *client) reopenTicket(ticketId uuid.UUID) error {
	return c.Post(fmt.Sprintf("/tickets/%v/reopen", ticketId)).Do(nil)
}
