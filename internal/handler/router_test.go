package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itflow/internal/model"
	"itflow/internal/service"
	"itflow/internal/token"
	"itflow/internal/workflow"
)

var testUsers = map[int64]*model.User{
	1: {ID: 1, Username: "clara", Email: "clara@example.com", Groups: []model.Group{{ID: 1, Name: "client"}}},
	2: {ID: 2, Username: "mark", Email: "mark@example.com", Groups: []model.Group{{ID: 2, Name: "manager"}}},
	3: {ID: 3, Username: "pat", Email: "pat@example.com", Groups: []model.Group{{ID: 3, Name: "programmer"}}},
}

type fakeAuth struct{}

func (fakeAuth) Authenticate(_ context.Context, login, password string) (*model.User, error) {
	for _, u := range testUsers {
		if (u.Username == login || u.Email == login) && password == "password123" {
			return u, nil
		}
	}
	return nil, service.ErrInvalidCredentials
}

func (fakeAuth) Register(_ context.Context, in service.RegisterInput) (*model.User, error) {
	if in.Username == "clara" {
		return nil, service.ErrUsernameTaken
	}
	if in.Password != in.PasswordVerify {
		return nil, service.ValidationError{"password_verify": {"Passwords must match."}}
	}
	return &model.User{ID: 10, Username: in.Username, Email: in.Email, Groups: []model.Group{{ID: 1, Name: "client"}}}, nil
}

type fakeUsers struct {
	UserStore
}

func (fakeUsers) Get(_ context.Context, id int64) (*model.User, error) {
	if u, ok := testUsers[id]; ok {
		return u, nil
	}
	return nil, service.ErrUserNotFound
}

func (fakeUsers) Programmers(context.Context) ([]model.User, error) {
	return []model.User{*testUsers[3]}, nil
}

type fakeOrders struct {
	OrderStore
	created service.CreateOrderInput
}

func (f *fakeOrders) Create(_ context.Context, actor model.Actor, in service.CreateOrderInput) (*model.Order, error) {
	if in.Title == "" {
		return nil, service.ValidationError{"title": {"This field is required."}}
	}
	f.created = in
	return &model.Order{ID: 5, Title: in.Title, Status: model.StatusSubmitted, ClientID: actor.ID}, nil
}

func (f *fakeOrders) List(context.Context, model.Actor) ([]model.Order, error) {
	return []model.Order{}, nil
}

func (f *fakeOrders) ChangeStatus(_ context.Context, actor model.Actor, id int64, status string) (*model.Order, error) {
	to, err := workflow.Parse(status)
	if err != nil {
		return nil, err
	}
	o := &model.Order{ID: id, Status: model.StatusSubmitted, ClientID: 1}
	if err := workflow.Authorize(actor, o, to); err != nil {
		return nil, err
	}
	o.Status = to
	return o, nil
}

func (f *fakeOrders) Transitions(_ context.Context, actor model.Actor, id int64) ([]model.Status, error) {
	if id == 404 {
		return nil, service.ErrOrderNotFound
	}
	return workflow.Available(actor, &model.Order{ID: id, Status: model.StatusSubmitted, ClientID: 1}), nil
}

type fakeFiles struct {
	FileStore
	uploaded service.UploadInput
	content  string
}

func (f *fakeFiles) Upload(_ context.Context, _ model.Actor, in service.UploadInput) (*model.OrderFile, error) {
	if in.Size > 16 {
		return nil, service.ErrFileTooLarge
	}
	data, err := io.ReadAll(in.Content)
	if err != nil {
		return nil, err
	}
	f.uploaded = in
	f.content = string(data)
	return &model.OrderFile{ID: 9, OrderID: in.OrderID, Name: in.Filename, VisibleToClients: in.VisibleToClients}, nil
}

func (f *fakeFiles) SelectForArchive(_ context.Context, _ model.Actor, orderID int64, ids []int64) ([]model.OrderFile, error) {
	out := make([]model.OrderFile, len(ids))
	for i, id := range ids {
		out[i] = model.OrderFile{ID: id, OrderID: orderID, Name: "f.pdf"}
	}
	return out, nil
}

// WriteArchive behaves as if every stored object were gone.
func (f *fakeFiles) WriteArchive(context.Context, []model.OrderFile, io.Writer) error {
	return service.ErrFileNotFound
}

type fakeMailer struct {
	sent service.OrderEmailInput
}

func (f *fakeMailer) SendOrderEmail(_ context.Context, _ model.Actor, orderID int64, in service.OrderEmailInput) error {
	if orderID == 7 {
		return service.ErrNoRecipient
	}
	f.sent = in
	return nil
}

type fakeContacts struct {
	ContactStore
}

func (fakeContacts) Create(_ context.Context, in service.ContactInput) (*model.ContactMessage, error) {
	return &model.ContactMessage{ID: 1, FirstName: in.FirstName, Email: in.Email, RequestMessage: in.RequestMessage}, nil
}

type fakeBackups struct {
	BackupStore
	days int
}

func (f *fakeBackups) List(context.Context) ([]model.Backup, error) {
	return []model.Backup{{ID: 1, Status: model.BackupSuccess}}, nil
}

func (f *fakeBackups) Stats(context.Context) (*service.BackupStats, error) {
	return &service.BackupStats{Total: 3, Successful: 2, Failed: 1, TotalBytes: 2048, TotalSize: "2.00 KB"}, nil
}

func (f *fakeBackups) Cleanup(_ context.Context, days int) (int, error) {
	f.days = days
	return 2, nil
}

type testEnv struct {
	router  http.Handler
	tokens  *token.Manager
	orders  *fakeOrders
	files   *fakeFiles
	backups *fakeBackups
	mailer  *fakeMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		tokens:  token.NewManager("test-secret", time.Minute, time.Hour, token.NewMemoryStore()),
		orders:  &fakeOrders{},
		files:   &fakeFiles{},
		backups: &fakeBackups{},
		mailer:  &fakeMailer{},
	}
	env.router = NewRouter(Deps{
		Auth:          fakeAuth{},
		Tokens:        env.tokens,
		Users:         fakeUsers{},
		Orders:        env.orders,
		Files:         env.files,
		Contacts:      fakeContacts{},
		Backups:       env.backups,
		Mailer:        env.mailer,
		MaxUploadSize: 1 << 20,
		RetentionDays: 7,
	})
	return env
}

func (e *testEnv) bearer(t *testing.T, userID int64) string {
	t.Helper()
	pair, err := e.tokens.Issue(context.Background(), testUsers[userID])
	require.NoError(t, err)
	return "Bearer " + pair.Access
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, body, auth string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	return req
}

func TestLoginAndRefresh(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest(http.MethodPost, "/api/token/", `{"username":"clara","password":"password123"}`, ""))
	require.Equal(t, http.StatusOK, rec.Code)

	var pair token.Pair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	assert.NotEmpty(t, pair.Access)
	assert.NotEmpty(t, pair.Refresh)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "refresh", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	// refresh from the cookie only
	req := httptest.NewRequest(http.MethodPost, "/api/token/refresh", nil)
	req.AddCookie(cookies[0])
	rec = env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	// the old refresh token is single-use
	rec = env.do(jsonRequest(http.MethodPost, "/api/token/refresh", `{"refresh":"`+pair.Refresh+`"}`, ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest(http.MethodPost, "/api/token", `{"username":"clara","password":"nope"}`, ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"detail":"No active account found with the given credentials"}`, rec.Body.String())

	rec = env.do(jsonRequest(http.MethodPost, "/api/token", `{`, ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogout_RevokesRefresh(t *testing.T) {
	env := newTestEnv(t)
	pair, err := env.tokens.Issue(context.Background(), testUsers[1])
	require.NoError(t, err)

	rec := env.do(jsonRequest(http.MethodPost, "/api/token/logout", `{"refresh":"`+pair.Refresh+`"}`, "Bearer "+pair.Access))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err = env.tokens.Consume(context.Background(), pair.Refresh)
	assert.ErrorIs(t, err, token.ErrRevoked)
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest(http.MethodPost, "/api/accounts/users/register/",
		`{"username":"newbie","email":"n@example.com","password":"password123","password_verify":"password123"}`, ""))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"newbie"`)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = env.do(jsonRequest(http.MethodPost, "/api/accounts/users/register",
		`{"username":"clara","email":"c@example.com","password":"password123","password_verify":"password123"}`, ""))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(jsonRequest(http.MethodPost, "/api/accounts/users/register",
		`{"username":"x","email":"x@example.com","password":"password123","password_verify":"other"}`, ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"password_verify":["Passwords must match."]}`, rec.Body.String())
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = env.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateOrder(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest(http.MethodPost, "/api/orders/", `{"title":"Shop","description":"Online shop"}`, env.bearer(t, 1)))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Online shop", env.orders.created.Description)

	var o model.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, int64(1), o.ClientID)
	assert.Equal(t, model.StatusSubmitted, o.Status)

	rec = env.do(jsonRequest(http.MethodPost, "/api/orders", `{"description":"no title"}`, env.bearer(t, 1)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"title":["This field is required."]}`, rec.Body.String())
}

func TestChangeStatus(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		user   int64
		body   string
		status int
	}{
		{name: "manager accepts", user: 2, body: `{"status":"accepted"}`, status: http.StatusOK},
		{name: "client cannot accept", user: 1, body: `{"status":"accepted"}`, status: http.StatusForbidden},
		{name: "programmer not assigned", user: 3, body: `{"status":"in_progress"}`, status: http.StatusForbidden},
		{name: "unknown status", user: 2, body: `{"status":"shipped"}`, status: http.StatusBadRequest},
		{name: "missing status", user: 2, body: `{}`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(jsonRequest(http.MethodPost, "/api/orders/5/change-status", tt.body, env.bearer(t, tt.user)))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestTransitions(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest(http.MethodGet, "/api/orders/5/transitions", "", env.bearer(t, 2)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"value":"accepted","label":"Accepted"},{"value":"rejected","label":"Rejected"}]`, rec.Body.String())

	rec = env.do(jsonRequest(http.MethodGet, "/api/orders/404/transitions", "", env.bearer(t, 2)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(jsonRequest(http.MethodGet, "/api/orders/abc/transitions", "", env.bearer(t, 2)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestManagerOnlyRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest(http.MethodGet, "/api/accounts/users/programmers", "", env.bearer(t, 1)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(jsonRequest(http.MethodGet, "/api/accounts/users/programmers", "", env.bearer(t, 2)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"pat"`)

	rec = env.do(jsonRequest(http.MethodGet, "/api/backups", "", env.bearer(t, 3)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(jsonRequest(http.MethodPost, "/api/backups/cleanup?days=30", "", env.bearer(t, 2)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30, env.backups.days)
	assert.JSONEq(t, `{"message":"Old backups cleaned","cleaned":2}`, rec.Body.String())

	rec = env.do(jsonRequest(http.MethodPost, "/api/backups/cleanup", "", env.bearer(t, 2)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, env.backups.days)

	rec = env.do(jsonRequest(http.MethodGet, "/api/backups/stats", "", env.bearer(t, 1)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(jsonRequest(http.MethodGet, "/api/backups/stats/", "", env.bearer(t, 2)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"total_backups":3,"successful":2,"failed":1,"total_size_bytes":2048,"total_size":"2.00 KB","last_backup":null}`,
		rec.Body.String())
}

func TestUploadFile(t *testing.T) {
	env := newTestEnv(t)

	var body bytes.Buffer
	mp := multipart.NewWriter(&body)
	require.NoError(t, mp.WriteField("order", "5"))
	require.NoError(t, mp.WriteField("visible_to_clients", "true"))
	part, err := mp.CreateFormFile("uploaded_file", "offer.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, mp.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", &body)
	req.Header.Set("Content-Type", mp.FormDataContentType())
	req.Header.Set("Authorization", env.bearer(t, 2))
	rec := env.do(req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, int64(5), env.files.uploaded.OrderID)
	assert.Equal(t, "offer.pdf", env.files.uploaded.Filename)
	assert.True(t, env.files.uploaded.VisibleToClients)
	assert.Equal(t, "%PDF-1.4", env.files.content)
}

func uploadRequest(t *testing.T, auth string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mp := multipart.NewWriter(&body)
	require.NoError(t, mp.WriteField("order", "5"))
	part, err := mp.CreateFormFile("uploaded_file", "big.zip")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mp.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", &body)
	req.Header.Set("Content-Type", mp.FormDataContentType())
	req.Header.Set("Authorization", auth)
	return req
}

func TestUploadFile_TooLarge(t *testing.T) {
	env := newTestEnv(t)

	// rejected by the service size check
	rec := env.do(uploadRequest(t, env.bearer(t, 2), bytes.Repeat([]byte("x"), 17)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), `"detail"`)

	// rejected while reading the body
	rec = env.do(uploadRequest(t, env.bearer(t, 2), bytes.Repeat([]byte("x"), 2<<20+1)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestDownloadFiles_NothingLeft(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest(http.MethodGet, "/api/orders/5/files/download?file_ids=1,2", "", env.bearer(t, 2)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEqual(t, "application/zip", rec.Header().Get("Content-Type"))
}

func sendEmailRequest(t *testing.T, orderID int64, auth string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mp := multipart.NewWriter(&body)
	require.NoError(t, mp.WriteField("subject", "Offer"))
	require.NoError(t, mp.WriteField("message", "See attachment"))
	part, err := mp.CreateFormFile("file_attachment", "offer.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF"))
	require.NoError(t, err)
	require.NoError(t, mp.Close())

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/notifications/order/%d/send-email", orderID), &body)
	req.Header.Set("Content-Type", mp.FormDataContentType())
	req.Header.Set("Authorization", auth)
	return req
}

func TestSendOrderEmail(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(sendEmailRequest(t, 5, env.bearer(t, 2)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Offer", env.mailer.sent.Subject)
	require.NotNil(t, env.mailer.sent.Attachment)
	assert.Equal(t, "offer.pdf", env.mailer.sent.Attachment.Filename)

	rec = env.do(sendEmailRequest(t, 7, env.bearer(t, 2)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"detail"`)
}

func TestDownloadFiles_BadIDs(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest(http.MethodGet, "/api/orders/5/files/download?file_ids=1,x", "", env.bearer(t, 2)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(jsonRequest(http.MethodGet, "/api/orders/5/files/download", "", env.bearer(t, 2)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateContact_Public(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(jsonRequest(http.MethodPost, "/api/notifications/contact/",
		`{"first_name":"Ann","last_name":"Lee","email":"ann@example.com","request_message":"Hi"}`, ""))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Message string               `json:"message"`
		Data    model.ContactMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Message sent successfully", resp.Message)
	assert.Equal(t, "ann@example.com", resp.Data.Email)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
