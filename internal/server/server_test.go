package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"battery_log/internal/auth"
	"battery_log/internal/cycles"
	"battery_log/internal/mailer"
	"battery_log/internal/query"
	"battery_log/internal/rowstore"
	"battery_log/internal/submission"
	"battery_log/internal/users"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var header = []string{"Battery ID", "Date", "Charging Cycle", "Name", "Battery ID 2", "Charging Cycle 2"}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (m *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

type testServer struct {
	app    *fiber.App
	rows   *rowstore.Memory
	issuer *auth.Issuer
	users  *users.Service
}

func newTestServer(t *testing.T, opts Options, seed ...[]string) *testServer {
	t.Helper()

	db, err := users.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	issuer, err := auth.NewIssuer("server-secret", time.Hour)
	require.NoError(t, err)

	rows := rowstore.NewMemory(append([][]string{header}, seed...)...)
	userSvc := users.NewService(users.NewStore(db), issuer, &fakeMailer{}, users.Options{})

	app := New(Deps{
		Issuer:      issuer,
		Users:       userSvc,
		Submissions: submission.NewService(rows),
		Cycles:      cycles.NewCounter(rows),
		Query:       query.NewService(rows),
	}, opts)

	return &testServer{app: app, rows: rows, issuer: issuer, users: userSvc}
}

func (s *testServer) token(t *testing.T, role string) string {
	t.Helper()
	tok, err := s.issuer.Issue(uuid.NewString(), role, role+"@test.com")
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, Options{})

	resp := s.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, HealthMessage, readBody(t, resp))
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t, Options{})

	resp := s.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Tech", "email": "tech@example.com", "password": "pw-1",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "User registered successfully", decode(t, resp)["message"])

	resp = s.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Tech", "email": "TECH@example.com", "password": "pw-2",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "User already exists", decode(t, resp)["message"])

	resp = s.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "tech@example.com", "password": "pw-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "Login successful", body["message"])
	assert.Equal(t, auth.RoleUser, body["role"])

	claims, err := s.issuer.Verify(body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, "tech@example.com", claims.Email)

	resp = s.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "tech@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid credentials", decode(t, resp)["message"])
}

func TestRegisterEmptyBody(t *testing.T) {
	s := newTestServer(t, Options{})

	resp := s.do(t, http.MethodPost, "/auth/register", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "All fields are required", decode(t, resp)["message"])
}

func TestRowsRequireToken(t *testing.T) {
	s := newTestServer(t, Options{})

	resp := s.do(t, http.MethodPost, "/rows", "", map[string]string{"id": "B1"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "No token provided", decode(t, resp)["message"])
}

func TestSubmitComputesCycles(t *testing.T) {
	s := newTestServer(t, Options{}, []string{"B1", "2025-01-01", "1", "Ann"})
	tok := s.token(t, auth.RoleUser)

	resp := s.do(t, http.MethodPost, "/rows", tok, map[string]string{
		"id": "B1", "date": "2025-01-02", "name": "Ann",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "Submitted", body["message"])
	assert.Equal(t, map[string]any{"B1": float64(2)}, body["cycles"])

	stored := s.rows.Rows()
	require.Len(t, stored, 3)
	assert.Equal(t, []string{"B1", "2025-01-02", "2", "Ann", "", ""}, stored[2])

	resp = s.do(t, http.MethodGet, "/rows/cycles?batteryId=B1", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decode(t, resp)
	assert.Equal(t, "B1", body["batteryId"])
	assert.Equal(t, float64(2), body["cycles"])
}

func TestSubmitDualBattery(t *testing.T) {
	s := newTestServer(t, Options{}, []string{"B1", "2025-01-01", "1", "Ann", "B2", "1"})
	tok := s.token(t, auth.RoleUser)

	resp := s.do(t, http.MethodPost, "/rows", tok, map[string]any{
		"id": "B1", "date": "2025-01-02", "name": "Ann", "id_2": "B2",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, map[string]any{"B1": float64(2), "B2": float64(2)}, decode(t, resp)["cycles"])
}

func TestSubmitValidation(t *testing.T) {
	s := newTestServer(t, Options{})
	tok := s.token(t, auth.RoleUser)

	resp := s.do(t, http.MethodPost, "/rows", tok, map[string]string{"id": "B1", "date": "2025-01-02"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "name is required", decode(t, resp)["message"])

	_, appends := s.rows.Stats()
	assert.Zero(t, appends)
}

func TestSubmitStoreFailure(t *testing.T) {
	s := newTestServer(t, Options{})
	s.rows.ReadErr = errors.New("sheets down")
	tok := s.token(t, auth.RoleUser)

	resp := s.do(t, http.MethodPost, "/rows", tok, map[string]string{
		"id": "B1", "date": "2025-01-02", "name": "Ann",
	})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Failed to add row", decode(t, resp)["message"])
}

func TestCyclesRequiresID(t *testing.T) {
	s := newTestServer(t, Options{})

	resp := s.do(t, http.MethodGet, "/rows/cycles", s.token(t, auth.RoleUser), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "batteryId query param required", decode(t, resp)["message"])
}

func TestAdminRoutesRejectUsers(t *testing.T) {
	s := newTestServer(t, Options{})

	resp := s.do(t, http.MethodGet, "/admin/rows", s.token(t, auth.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Admins only", decode(t, resp)["message"])
}

func TestAdminListKeepsHeaderOrder(t *testing.T) {
	s := newTestServer(t, Options{},
		[]string{"B1", "2025-01-01", "1", "Ann"},
		[]string{"B2", "2025-01-03", "1", "Bob"},
	)

	resp := s.do(t, http.MethodGet, "/admin/rows", s.token(t, auth.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw := readBody(t, resp)

	var rows []map[string]string
	require.NoError(t, json.Unmarshal([]byte(raw), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "Bob", rows[1]["Name"])
	assert.Equal(t, "", rows[1]["Battery ID 2"])

	first := raw[:strings.Index(raw, "}")]
	assert.Less(t, strings.Index(first, `"Battery ID"`), strings.Index(first, `"Date"`))
	assert.Less(t, strings.Index(first, `"Date"`), strings.Index(first, `"Name"`))
}

func TestAdminSearch(t *testing.T) {
	s := newTestServer(t, Options{},
		[]string{"B1", "2025-01-01", "1", "Ann"},
		[]string{" B2 ", "2025-01-03", "1", "Bob"},
	)
	admin := s.token(t, auth.RoleAdmin)

	resp := s.do(t, http.MethodGet, "/admin/rows/search?batteryId=B2", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rows []map[string]string
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Bob", rows[0]["Name"])

	resp = s.do(t, http.MethodGet, "/admin/rows/search?batteryId=B9", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[]", readBody(t, resp))

	resp = s.do(t, http.MethodGet, "/admin/rows/search", admin, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "batteryId query param required", decode(t, resp)["message"])
}

func TestAdminByDate(t *testing.T) {
	s := newTestServer(t, Options{},
		[]string{"B1", "2025-01-01", "1", "Ann"},
		[]string{"B2", "2025-01-03", "1", "Bob"},
		[]string{"B3", "2025-01-05", "1", "Cy"},
	)
	admin := s.token(t, auth.RoleAdmin)

	resp := s.do(t, http.MethodGet, "/admin/rows/by-date?dateFrom=2025-01-02&dateTo=2025-01-05", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rows []map[string]string
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "B2", rows[0]["Battery ID"])
	assert.Equal(t, "B3", rows[1]["Battery ID"])

	resp = s.do(t, http.MethodGet, "/admin/rows/by-date", admin, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminExportCSV(t *testing.T) {
	s := newTestServer(t, Options{},
		[]string{"B1", "2025-01-01", "1", `say "hi"`},
		[]string{"B2", "2025-01-03", "1", "Bob"},
	)

	resp := s.do(t, http.MethodGet, "/admin/rows/export?batteryId=B1", s.token(t, auth.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="battery_B1_export.csv"`, resp.Header.Get("Content-Disposition"))

	lines := strings.Split(readBody(t, resp), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `"Battery ID","Date","Charging Cycle","Name","Battery ID 2","Charging Cycle 2"`, lines[0])
	assert.Equal(t, `"B1","2025-01-01","1","say ""hi""","",""`, lines[1])
}

func TestAdminExportRejectsUnknownFormat(t *testing.T) {
	s := newTestServer(t, Options{})

	resp := s.do(t, http.MethodGet, "/admin/rows/export?format=pdf", s.token(t, auth.RoleAdmin), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminListStoreFailure(t *testing.T) {
	s := newTestServer(t, Options{})
	s.rows.ReadErr = errors.New("sheets down")

	resp := s.do(t, http.MethodGet, "/admin/rows", s.token(t, auth.RoleAdmin), nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Failed to fetch rows", decode(t, resp)["message"])
}

func TestForgotPasswordIsRateLimited(t *testing.T) {
	s := newTestServer(t, Options{OTPRequestsPerHour: 2})
	body := map[string]string{"email": "nobody@example.com"}

	for i := 0; i < 2; i++ {
		resp := s.do(t, http.MethodPost, "/auth/forgot-password", "", body)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, users.ResetRequestedMessage, decode(t, resp)["message"])
	}

	resp := s.do(t, http.MethodPost, "/auth/forgot-password", "", body)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "Too many OTP requests from this IP, please try again later", decode(t, resp)["message"])
}

func TestResetPasswordErrors(t *testing.T) {
	s := newTestServer(t, Options{})

	resp := s.do(t, http.MethodPost, "/auth/reset-password", "", map[string]string{"email": "a@b.c"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Email, otp and new password are required", decode(t, resp)["message"])

	resp = s.do(t, http.MethodPost, "/auth/reset-password", "", map[string]string{
		"email": "a@b.c", "otp": "123456", "newPassword": "pw",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid OTP or email", decode(t, resp)["message"])
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	s := newTestServer(t, Options{CORSOrigins: []string{"http://localhost:5173"}})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}
