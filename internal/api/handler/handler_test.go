package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jwtv5 "github.com/golang-jwt/jwt/v5"

	"freenow/internal/api/middleware"
	"freenow/internal/dto"
	"freenow/internal/intake"
	"freenow/internal/render"
	"freenow/internal/service"
	"freenow/internal/timetable"
	"freenow/pkg/jwt"
	"freenow/pkg/response"
	"freenow/pkg/telegram"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testScope = "chat:42"

// ═══════════════════════════════════════════════════════════
// Mock Services
// ═══════════════════════════════════════════════════════════

// ── Mock TimetableService ──

type mockTimetableService struct {
	saveResult   *dto.SaveStudentResponse
	saveErr      error
	listResult   []dto.StudentResponse
	listErr      error
	getResult    *dto.StudentResponse
	getErr       error
	deleteErr    error
	decodeResult *dto.DecodeLinkResponse
	decodeErr    error

	gotScope string
	gotName  string
}

func (m *mockTimetableService) SaveStudent(_ context.Context, scope string, req *dto.SaveStudentRequest) (*dto.SaveStudentResponse, error) {
	m.gotScope, m.gotName = scope, req.Name
	return m.saveResult, m.saveErr
}
func (m *mockTimetableService) ListStudents(_ context.Context, scope string) ([]dto.StudentResponse, error) {
	m.gotScope = scope
	return m.listResult, m.listErr
}
func (m *mockTimetableService) GetStudent(_ context.Context, scope, name string) (*dto.StudentResponse, error) {
	m.gotScope, m.gotName = scope, name
	return m.getResult, m.getErr
}
func (m *mockTimetableService) DeleteStudent(_ context.Context, scope, name string) error {
	m.gotScope, m.gotName = scope, name
	return m.deleteErr
}
func (m *mockTimetableService) DecodeLink(_ string) (*dto.DecodeLinkResponse, error) {
	return m.decodeResult, m.decodeErr
}
func (m *mockTimetableService) ReferencedModules(_ context.Context) ([]timetable.ModuleCode, error) {
	return nil, nil
}

// ── Mock AvailabilityService ──

type mockAvailabilityService struct {
	nowResult   *dto.AvailabilityResponse
	nowErr      error
	untilResult *dto.AvailabilityResponse
	untilErr    error
	whenResult  *dto.FreeWhenResponse
	whenErr     error

	gotName string
}

func (m *mockAvailabilityService) FreeNow(_ context.Context, _ string) (*dto.AvailabilityResponse, error) {
	return m.nowResult, m.nowErr
}
func (m *mockAvailabilityService) FreeUntil(_ context.Context, _ string) (*dto.AvailabilityResponse, error) {
	return m.untilResult, m.untilErr
}
func (m *mockAvailabilityService) FreeWhen(_ context.Context, _, name string) (*dto.FreeWhenResponse, error) {
	m.gotName = name
	return m.whenResult, m.whenErr
}

// ── Mock ExportService ──

type mockExportService struct {
	file *service.ExportFile
	err  error

	gotName string
}

func (m *mockExportService) RenderPNG(_ context.Context, _ string) (*service.ExportFile, error) {
	return m.file, m.err
}
func (m *mockExportService) ExportXLSX(_ context.Context, _ string) (*service.ExportFile, error) {
	return m.file, m.err
}
func (m *mockExportService) ExportICS(_ context.Context, _, name string) (*service.ExportFile, error) {
	m.gotName = name
	return m.file, m.err
}

// ── Mock 其他依赖 ──

type mockCatalog struct {
	invalidated []timetable.ModuleCode
	purged      bool
	cached      []timetable.ModuleCode
	err         error
}

func (m *mockCatalog) Invalidate(_ context.Context, module timetable.ModuleCode) error {
	m.invalidated = append(m.invalidated, module)
	return m.err
}
func (m *mockCatalog) Purge(_ context.Context) error {
	m.purged = true
	return m.err
}
func (m *mockCatalog) Cached() []timetable.ModuleCode { return m.cached }

type mockUpdates struct {
	got []*telegram.Update
	err error
}

func (m *mockUpdates) HandleUpdate(_ context.Context, u *telegram.Update) error {
	m.got = append(m.got, u)
	return m.err
}

type mockRevoker struct {
	jti string
	ttl time.Duration
	err error
}

func (m *mockRevoker) BlacklistToken(_ context.Context, jti string, ttl time.Duration) error {
	m.jti, m.ttl = jti, ttl
	return m.err
}

// ═══════════════════════════════════════════════════════════
// 测试辅助
// ═══════════════════════════════════════════════════════════

func setAuth(c *gin.Context) {
	c.Set(middleware.ScopeKey, testScope)
	c.Set(middleware.ClaimsKey, &jwt.Claims{
		Scope:    testScope,
		IssuedBy: "1001",
		RegisteredClaims: jwtv5.RegisteredClaims{
			ID:        "test-jti",
			ExpiresAt: jwtv5.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
}

// serve 注册单条路由并发起请求；auth=true 时注入 scope 与 claims
func serve(method, pattern, target string, body io.Reader, auth bool, h gin.HandlerFunc) *httptest.ResponseRecorder {
	r := gin.New()
	r.Handle(method, pattern, func(c *gin.Context) {
		if auth {
			setAuth(c)
		}
		h(c)
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

func jsonBody(v interface{}) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func parseResponse(w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}

func validSaveRequest() dto.SaveStudentRequest {
	return dto.SaveStudentRequest{
		Name:      "Alice",
		Color:     "red",
		ShareLink: "https://nusmods.com/timetable/sem-1/share?CS1231=TUT:03",
	}
}

// ═══════════════════════════════════════════════════════════
// StudentHandler
// ═══════════════════════════════════════════════════════════

func TestStudentHandler_SaveStudent_Created(t *testing.T) {
	mock := &mockTimetableService{saveResult: &dto.SaveStudentResponse{Student: dto.StudentResponse{Name: "Alice"}}}
	h := NewStudentHandler(mock)

	w := serve("POST", "/students", "/students", jsonBody(validSaveRequest()), true, h.SaveStudent)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if mock.gotScope != testScope || mock.gotName != "Alice" {
		t.Errorf("unexpected call scope=%q name=%q", mock.gotScope, mock.gotName)
	}
}

func TestStudentHandler_SaveStudent_Replaced(t *testing.T) {
	mock := &mockTimetableService{saveResult: &dto.SaveStudentResponse{Replaced: true}}
	h := NewStudentHandler(mock)

	w := serve("POST", "/students", "/students", jsonBody(validSaveRequest()), true, h.SaveStudent)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for replace, got %d", w.Code)
	}
}

func TestStudentHandler_SaveStudent_BadJSON(t *testing.T) {
	h := NewStudentHandler(&mockTimetableService{})

	w := serve("POST", "/students", "/students", strings.NewReader("bad"), true, h.SaveStudent)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != response.CodeBadRequest {
		t.Errorf("expected code %d, got %d", response.CodeBadRequest, resp.Code)
	}
}

func TestStudentHandler_SaveStudent_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
	}{
		{"invalid name", intake.ErrInvalidName, http.StatusBadRequest, response.CodeInvalidName},
		{"invalid color", render.ErrInvalidColor, http.StatusBadRequest, response.CodeInvalidColor},
		{"invalid link", timetable.ErrInvalidShareLink, http.StatusBadRequest, response.CodeInvalidShareLink},
		{"empty link", timetable.ErrEmptyShareLink, http.StatusBadRequest, response.CodeInvalidShareLink},
		{"duplicate", service.ErrDuplicateStudent, http.StatusConflict, response.CodeDuplicateStudent},
		{"conflict", service.ErrConflict, http.StatusConflict, response.CodeConflict},
		{"internal", errors.New("db down"), http.StatusInternalServerError, response.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewStudentHandler(&mockTimetableService{saveErr: tt.err})

			w := serve("POST", "/students", "/students", jsonBody(validSaveRequest()), true, h.SaveStudent)

			if w.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, w.Code)
			}
			if resp := parseResponse(w); resp.Code != tt.wantCode {
				t.Errorf("expected code %d, got %d", tt.wantCode, resp.Code)
			}
		})
	}
}

func TestStudentHandler_Unauthenticated(t *testing.T) {
	h := NewStudentHandler(&mockTimetableService{})

	w := serve("GET", "/students", "/students", nil, false, h.ListStudents)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestStudentHandler_ListStudents(t *testing.T) {
	mock := &mockTimetableService{listResult: []dto.StudentResponse{{Name: "Alice"}, {Name: "Bob"}}}
	h := NewStudentHandler(mock)

	w := serve("GET", "/students", "/students", nil, true, h.ListStudents)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Data []dto.StudentResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Data) != 2 {
		t.Errorf("expected 2 students, got %d", len(body.Data))
	}
}

func TestStudentHandler_GetStudent_NotFound(t *testing.T) {
	mock := &mockTimetableService{getErr: service.ErrUnknownStudent}
	h := NewStudentHandler(mock)

	w := serve("GET", "/students/:name", "/students/Zed", nil, true, h.GetStudent)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if mock.gotName != "Zed" {
		t.Errorf("expected name Zed, got %q", mock.gotName)
	}
	if resp := parseResponse(w); resp.Code != response.CodeUnknownStudent {
		t.Errorf("expected code %d, got %d", response.CodeUnknownStudent, resp.Code)
	}
}

func TestStudentHandler_DeleteStudent(t *testing.T) {
	mock := &mockTimetableService{}
	h := NewStudentHandler(mock)

	w := serve("DELETE", "/students/:name", "/students/Alice", nil, true, h.DeleteStudent)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if mock.gotName != "Alice" {
		t.Errorf("expected name Alice, got %q", mock.gotName)
	}
}

func TestStudentHandler_DecodeLink(t *testing.T) {
	mock := &mockTimetableService{decodeResult: &dto.DecodeLinkResponse{Classes: 2}}
	h := NewStudentHandler(mock)

	w := serve("POST", "/decode", "/decode", jsonBody(dto.DecodeLinkRequest{Link: "x?CS1231=TUT:03"}), true, h.DecodeLink)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	mock.decodeErr = timetable.ErrInvalidShareLink
	w = serve("POST", "/decode", "/decode", jsonBody(dto.DecodeLinkRequest{Link: "garbage"}), true, h.DecodeLink)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// AvailabilityHandler
// ═══════════════════════════════════════════════════════════

func TestAvailabilityHandler_FreeNow(t *testing.T) {
	mock := &mockAvailabilityService{nowResult: &dto.AvailabilityResponse{At: "Monday 10:30", Free: []string{"Bob"}}}
	h := NewAvailabilityHandler(mock)

	w := serve("GET", "/availability/now", "/availability/now", nil, true, h.FreeNow)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Data dto.AvailabilityResponse `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if len(body.Data.Free) != 1 || body.Data.Free[0] != "Bob" {
		t.Errorf("unexpected free list: %v", body.Data.Free)
	}
}

func TestAvailabilityHandler_FreeUntil_InternalError(t *testing.T) {
	h := NewAvailabilityHandler(&mockAvailabilityService{untilErr: errors.New("boom")})

	w := serve("GET", "/availability/until", "/availability/until", nil, true, h.FreeUntil)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestAvailabilityHandler_FreeWhen_UnknownStudent(t *testing.T) {
	mock := &mockAvailabilityService{whenErr: service.ErrUnknownStudent}
	h := NewAvailabilityHandler(mock)

	w := serve("GET", "/availability/when/:name", "/availability/when/Zed", nil, true, h.FreeWhen)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if mock.gotName != "Zed" {
		t.Errorf("expected name Zed, got %q", mock.gotName)
	}
}

// ═══════════════════════════════════════════════════════════
// ExportHandler
// ═══════════════════════════════════════════════════════════

func TestExportHandler_ExportPNG_Attachment(t *testing.T) {
	mock := &mockExportService{file: &service.ExportFile{
		Data:        []byte("png-bytes"),
		Filename:    "timetable.png",
		ContentType: service.ContentTypePNG,
		Warnings:    []string{"MA1521 unavailable"},
	}}
	h := NewExportHandler(mock)

	w := serve("GET", "/export/png", "/export/png", nil, true, h.ExportPNG)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != service.ContentTypePNG {
		t.Errorf("expected content type %q, got %q", service.ContentTypePNG, ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "timetable.png") {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}
	if got := w.Header().Get(warningsHeader); got != "MA1521 unavailable" {
		t.Errorf("unexpected warnings header %q", got)
	}
	if w.Body.String() != "png-bytes" {
		t.Errorf("unexpected body %q", w.Body.String())
	}
}

func TestExportHandler_ExportICS_PassesName(t *testing.T) {
	mock := &mockExportService{file: &service.ExportFile{Data: []byte("BEGIN:VCALENDAR"), Filename: "Alice.ics", ContentType: service.ContentTypeICS}}
	h := NewExportHandler(mock)

	w := serve("GET", "/export/ics/:name", "/export/ics/Alice", nil, true, h.ExportICS)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if mock.gotName != "Alice" {
		t.Errorf("expected name Alice, got %q", mock.gotName)
	}
	if w.Header().Get(warningsHeader) != "" {
		t.Error("expected no warnings header")
	}
}

func TestExportHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
	}{
		{"no students", service.ErrNoStudents, http.StatusNotFound, response.CodeNoStudents},
		{"unknown student", service.ErrUnknownStudent, http.StatusNotFound, response.CodeUnknownStudent},
		{"no sessions", service.ErrExportNoSessions, http.StatusBadRequest, response.CodeNothingToExport},
		{"generate failed", service.ErrExportGenerateFail, http.StatusInternalServerError, response.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewExportHandler(&mockExportService{err: tt.err})

			w := serve("GET", "/export/xlsx", "/export/xlsx", nil, true, h.ExportXLSX)

			if w.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, w.Code)
			}
			if resp := parseResponse(w); resp.Code != tt.wantCode {
				t.Errorf("expected code %d, got %d", tt.wantCode, resp.Code)
			}
		})
	}
}

// ═══════════════════════════════════════════════════════════
// CatalogHandler
// ═══════════════════════════════════════════════════════════

func TestCatalogHandler_Invalidate_NormalizesModule(t *testing.T) {
	mock := &mockCatalog{}
	h := NewCatalogHandler(mock)

	w := serve("POST", "/catalog/:module/invalidate", "/catalog/cs1231/invalidate", nil, true, h.Invalidate)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(mock.invalidated) != 1 || mock.invalidated[0] != "CS1231" {
		t.Errorf("unexpected invalidations: %v", mock.invalidated)
	}
}

func TestCatalogHandler_Invalidate_Error(t *testing.T) {
	h := NewCatalogHandler(&mockCatalog{err: errors.New("redis down")})

	w := serve("POST", "/catalog/:module/invalidate", "/catalog/CS1231/invalidate", nil, true, h.Invalidate)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestCatalogHandler_PurgeAndList(t *testing.T) {
	mock := &mockCatalog{cached: []timetable.ModuleCode{"CS1231"}}
	h := NewCatalogHandler(mock)

	w := serve("POST", "/catalog/purge", "/catalog/purge", nil, true, h.Purge)
	if w.Code != http.StatusOK || !mock.purged {
		t.Errorf("expected purge, status %d purged=%v", w.Code, mock.purged)
	}

	w = serve("GET", "/catalog", "/catalog", nil, true, h.ListCached)
	if !strings.Contains(w.Body.String(), "CS1231") {
		t.Errorf("expected cached module in body, got %s", w.Body.String())
	}
}

func TestCatalogHandler_NilCache(t *testing.T) {
	h := NewCatalogHandler(nil)

	w := serve("POST", "/catalog/purge", "/catalog/purge", nil, true, h.Purge)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// WebhookHandler
// ═══════════════════════════════════════════════════════════

func TestWebhookHandler_Receive(t *testing.T) {
	mock := &mockUpdates{}
	h := NewWebhookHandler(mock)

	update := telegram.Update{
		UpdateID: 7,
		Message: &telegram.Message{
			From: &telegram.User{ID: 1001},
			Chat: telegram.Chat{ID: 42, Type: "group"},
			Text: "/freenow",
		},
	}
	w := serve("POST", "/webhook", "/webhook", jsonBody(update), false, h.Receive)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if len(mock.got) != 1 || mock.got[0].Message.Text != "/freenow" {
		t.Errorf("update not delivered: %+v", mock.got)
	}
}

func TestWebhookHandler_AlwaysOK(t *testing.T) {
	mock := &mockUpdates{err: errors.New("send failed")}
	h := NewWebhookHandler(mock)

	w := serve("POST", "/webhook", "/webhook", strings.NewReader("not json"), false, h.Receive)
	if w.Code != http.StatusOK {
		t.Errorf("bad json: expected 200, got %d", w.Code)
	}
	if len(mock.got) != 0 {
		t.Error("bad json should not reach the bot")
	}

	w = serve("POST", "/webhook", "/webhook", jsonBody(telegram.Update{UpdateID: 1}), false, h.Receive)
	if w.Code != http.StatusOK {
		t.Errorf("handler error: expected 200, got %d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// AuthHandler
// ═══════════════════════════════════════════════════════════

func TestAuthHandler_Me(t *testing.T) {
	h := NewAuthHandler(nil)

	w := serve("GET", "/auth/me", "/auth/me", nil, true, h.Me)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), testScope) {
		t.Errorf("expected scope in body, got %s", w.Body.String())
	}
}

func TestAuthHandler_Revoke(t *testing.T) {
	mock := &mockRevoker{}
	h := NewAuthHandler(mock)

	w := serve("POST", "/auth/revoke", "/auth/revoke", nil, true, h.Revoke)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if mock.jti != "test-jti" {
		t.Errorf("expected jti test-jti, got %q", mock.jti)
	}
	if mock.ttl <= 0 || mock.ttl > time.Hour {
		t.Errorf("unexpected ttl %v", mock.ttl)
	}
}

func TestAuthHandler_Revoke_NoRedis(t *testing.T) {
	h := NewAuthHandler(nil)

	w := serve("POST", "/auth/revoke", "/auth/revoke", nil, true, h.Revoke)

	if w.Code != http.StatusNotImplemented {
		t.Errorf("expected 501, got %d", w.Code)
	}
}
