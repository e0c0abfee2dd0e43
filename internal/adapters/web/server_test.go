package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/trapwire/internal/core/domain"
)

// fakeService records manual actions.
type fakeService struct {
	devices    []domain.DeviceView
	alerts     []domain.Alert
	actions    []string
	lockdowns  int
	lastActor  string
	actionFail error
}

func (f *fakeService) Devices(ctx context.Context) []domain.DeviceView { return f.devices }
func (f *fakeService) Alerts(ctx context.Context) []domain.Alert       { return f.alerts }
func (f *fakeService) Interactions(ctx context.Context, limit int) ([]domain.InteractionRecord, error) {
	return []domain.InteractionRecord{{SourceIP: "192.168.10.30", Service: "ssh"}}, nil
}
func (f *fakeService) ManualAction(ctx context.Context, action, ip, actor string) error {
	if f.actionFail != nil {
		return f.actionFail
	}
	f.actions = append(f.actions, action+" "+ip)
	f.lastActor = actor
	return nil
}
func (f *fakeService) Lockdown(ctx context.Context, actor string) error {
	f.lockdowns++
	return nil
}

// fakeAuth maps tokens to users.
type fakeAuth struct {
	tokens map[string]*domain.User
}

func (f *fakeAuth) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	if password != "changeit" {
		return "", nil, errors.New("invalid credentials")
	}
	u := &domain.User{Username: username, Role: domain.RoleAdmin}
	f.tokens["tok-"+username] = u
	return "tok-" + username, u, nil
}

func (f *fakeAuth) ValidateToken(ctx context.Context, token string) (*domain.User, error) {
	u, ok := f.tokens[token]
	if !ok {
		return nil, errors.New("invalid session")
	}
	return u, nil
}

func (f *fakeAuth) Logout(ctx context.Context, token string) { delete(f.tokens, token) }

func newTestServer(svc *fakeService) (*Server, *fakeAuth) {
	auth := &fakeAuth{tokens: make(map[string]*domain.User)}
	return NewServer(":0", svc, auth, nil, nil), auth
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestLoginFlow(t *testing.T) {
	svc := &fakeService{}
	server, _ := newTestServer(svc)
	handler := server.Routes()

	w := doJSON(t, handler, http.MethodPost, "/api/login", "", map[string]string{"username": "admin", "password": "changeit"})
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "auth_token", cookies[0].Name)

	w = doJSON(t, handler, http.MethodPost, "/api/login", "", map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedEndpointsRequireAuth(t *testing.T) {
	svc := &fakeService{devices: []domain.DeviceView{{IP: "192.168.10.30", MAC: "aa:bb:cc:dd:ee:30", Status: domain.StatusDeceived}}}
	server, auth := newTestServer(svc)
	handler := server.Routes()

	w := doJSON(t, handler, http.MethodGet, "/api/devices", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	auth.tokens["tok"] = &domain.User{Username: "admin", Role: domain.RoleAdmin}
	w = doJSON(t, handler, http.MethodGet, "/api/devices", "tok", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var views []domain.DeviceView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, domain.StatusDeceived, views[0].Status)
}

func TestActionEndpoint_RoutesAndRoles(t *testing.T) {
	svc := &fakeService{}
	server, auth := newTestServer(svc)
	handler := server.Routes()

	auth.tokens["op"] = &domain.User{Username: "op", Role: domain.RoleOperator}
	auth.tokens["viewer"] = &domain.User{Username: "eye", Role: domain.RoleViewer}

	w := doJSON(t, handler, http.MethodPost, "/api/action/isolate", "op", map[string]string{"ip": "192.168.10.30"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"isolate 192.168.10.30"}, svc.actions)
	assert.Equal(t, "op", svc.lastActor)

	w = doJSON(t, handler, http.MethodPost, "/api/action/isolate", "viewer", map[string]string{"ip": "192.168.10.30"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	svc.actionFail = errors.New("no device with IP 10.0.0.9")
	w = doJSON(t, handler, http.MethodPost, "/api/action/block", "op", map[string]string{"ip": "10.0.0.9"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp["status"])
	assert.Contains(t, resp["reason"], "no device")
}

func TestLockdownEndpoint(t *testing.T) {
	svc := &fakeService{}
	server, auth := newTestServer(svc)
	handler := server.Routes()
	auth.tokens["op"] = &domain.User{Username: "op", Role: domain.RoleAdmin}

	w := doJSON(t, handler, http.MethodPost, "/api/lockdown", "op", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, svc.lockdowns)
}

func TestHoneypotTail(t *testing.T) {
	svc := &fakeService{}
	server, auth := newTestServer(svc)
	handler := server.Routes()
	auth.tokens["tok"] = &domain.User{Username: "admin", Role: domain.RoleAdmin}

	w := doJSON(t, handler, http.MethodGet, "/api/honeypot", "tok", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var records []domain.InteractionRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "ssh", records[0].Service)
}

func TestReportEndpoint_ProducesPDF(t *testing.T) {
	svc := &fakeService{
		devices: []domain.DeviceView{{IP: "192.168.10.30", MAC: "aa:bb:cc:dd:ee:30", TrustScore: 15, Status: domain.StatusContained}},
		alerts:  []domain.Alert{{Timestamp: time.Now(), IP: "192.168.10.30", Type: "Port Scan Detected", Action: "isolate"}},
	}
	server, auth := newTestServer(svc)
	handler := server.Routes()
	auth.tokens["tok"] = &domain.User{Username: "admin", Role: domain.RoleAdmin}

	w := doJSON(t, handler, http.MethodGet, "/api/report", "tok", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")), "response must be a PDF document")
}
