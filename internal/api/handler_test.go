package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kneutral-org/itconsole/internal/equipment"
	"github.com/kneutral-org/itconsole/internal/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeNotifier struct {
	mu      sync.Mutex
	batches [][]*equipment.Record
}

func (f *fakeNotifier) Publish(_ context.Context, records []*equipment.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, records)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

type testEnv struct {
	router   *gin.Engine
	store    *equipment.InMemoryStore
	notifier *fakeNotifier
}

func setupTest(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	store := equipment.NewInMemoryStore()
	notifier := &fakeNotifier{}
	svc := equipment.NewService(store, notifier, zerolog.Nop())

	router := gin.New()
	NewHandler(svc, zerolog.Nop(), cfg).RegisterRoutes(router.Group(""))

	return &testEnv{router: router, store: store, notifier: notifier}
}

func (e *testEnv) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

const pc01Body = `{
	"name": "PC-01",
	"owner": "Bob",
	"osVersion": "Windows 11",
	"ipAddress": {"main": "10.0.0.5"},
	"components": [
		{"type": "Processor", "name": "Intel i7-12700"},
		{"type": "Memory", "manufacturer": "Kingston", "quantity": 16, "data": "DDR5"},
		{"type": "Disk", "name": "C:", "size": 512, "freeSpace": 300}
	]
}`

func decodeRecord(t *testing.T, w *httptest.ResponseRecorder) equipment.Record {
	t.Helper()
	var r equipment.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
	return r
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestReport(t *testing.T) {
	env := setupTest(t, Config{})

	w := env.do(http.MethodPost, "/equipment/report", pc01Body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	r := decodeRecord(t, w)
	assert.Equal(t, "PC-01", r.Name)
	assert.True(t, r.Online)
	require.NotNil(t, r.Estimation)
	assert.Equal(t, 8.3, *r.Estimation)
	assert.Equal(t, 1, env.notifier.count())
}

func TestReport_LegacyPath(t *testing.T) {
	env := setupTest(t, Config{})

	body := `{"name":"PC-02","components":[{"Type":"Memory","Manufacturer":"Samsung","Quantity":8,"Data":"DDR4"}]}`
	w := env.do(http.MethodPost, "/api/createEquipment", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	r := decodeRecord(t, w)
	require.Len(t, r.Components, 1)
	assert.Equal(t, "Samsung", r.Components[0].Manufacturer)
}

func TestReport_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"name":`},
		{"missing name", `{"components":[]}`},
		{"missing components", `{"name":"PC-01"}`},
		{"empty body", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTest(t, Config{})
			w := env.do(http.MethodPost, "/equipment/report", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "invalid_request", decodeError(t, w).Error)
			assert.Equal(t, 0, env.store.Len())
		})
	}
}

func TestReport_PayloadTooLarge(t *testing.T) {
	env := setupTest(t, Config{ReportMaxPayloadSize: 64})

	w := env.do(http.MethodPost, "/equipment/report", pc01Body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	var resp middleware.PayloadLimitErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(64), resp.MaxBytes)
	assert.Equal(t, 0, env.store.Len())
}

func TestHeartbeat(t *testing.T) {
	env := setupTest(t, Config{})
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/equipment/report", pc01Body).Code)

	w := env.do(http.MethodPost, "/equipment/heartbeat", `{"name":"PC-01"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decodeRecord(t, w).Online)

	w = env.do(http.MethodPost, "/api/ping", `{"name":"PC-01"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, env.notifier.count())
}

func TestHeartbeat_UnknownDevice(t *testing.T) {
	env := setupTest(t, Config{})

	w := env.do(http.MethodPost, "/equipment/heartbeat", `{"name":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeError(t, w).Error)
	assert.Equal(t, 0, env.store.Len())
}

func TestHeartbeat_MissingName(t *testing.T) {
	env := setupTest(t, Config{})

	w := env.do(http.MethodPost, "/equipment/heartbeat", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestList(t *testing.T) {
	env := setupTest(t, Config{})
	for _, name := range []string{"PC-02", "PC-01"} {
		body := strings.Replace(pc01Body, `"PC-01"`, fmt.Sprintf("%q", name), 1)
		require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/equipment/report", body).Code)
	}
	_, err := env.store.MarkOffline(context.Background(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/equipment/heartbeat", `{"name":"PC-02"}`).Code)

	w := env.do(http.MethodGet, "/equipment", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var all []equipment.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	require.Len(t, all, 2)
	assert.Equal(t, "PC-01", all[0].Name)

	w = env.do(http.MethodGet, "/equipment?online=false", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var offline []equipment.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &offline))
	require.Len(t, offline, 1)
	assert.Equal(t, "PC-01", offline[0].Name)

	w = env.do(http.MethodGet, "/api/equipments?owner=Bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var owned []equipment.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &owned))
	assert.Len(t, owned, 2)

	w = env.do(http.MethodGet, "/equipment?online=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestList_Empty(t *testing.T) {
	env := setupTest(t, Config{})

	w := env.do(http.MethodGet, "/equipment", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestGet(t *testing.T) {
	env := setupTest(t, Config{})
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/equipment/report", pc01Body).Code)

	w := env.do(http.MethodGet, "/equipment/PC-01", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PC-01", decodeRecord(t, w).Name)

	w = env.do(http.MethodGet, "/equipment/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEdit(t *testing.T) {
	env := setupTest(t, Config{})
	w := env.do(http.MethodPost, "/equipment/report", pc01Body)
	require.Equal(t, http.StatusOK, w.Code)
	id := decodeRecord(t, w).ID

	w = env.do(http.MethodPut, "/equipment/edit", map[string]string{"name": "PC-01", "inventoryNumber": "INV-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "INV-1", decodeRecord(t, w).InventoryNumber)

	w = env.do(http.MethodPut, "/equipment/edit", map[string]string{"id": id, "inventoryNumber": "INV-1", "department": "IT"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "IT", decodeRecord(t, w).Department)

	w = env.do(http.MethodPut, "/equipment/edit", map[string]string{"id": id, "inventoryNumber": "INV-2"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", decodeError(t, w).Error)

	w = env.do(http.MethodPut, "/equipment/edit", map[string]string{"id": id})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPut, "/equipment/edit", map[string]string{"id": "missing", "owner": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDelete(t *testing.T) {
	env := setupTest(t, Config{})
	w := env.do(http.MethodPost, "/equipment/report", pc01Body)
	require.Equal(t, http.StatusOK, w.Code)
	id := decodeRecord(t, w).ID

	w = env.do(http.MethodDelete, "/equipment/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, env.store.Len())

	w = env.do(http.MethodDelete, "/equipment/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOperatorRoutesRequireAuthorization(t *testing.T) {
	env := setupTest(t, Config{Authorizer: middleware.StaticTokenAuthorizer{Token: "secret"}})

	w := env.do(http.MethodPost, "/equipment/report", pc01Body)
	assert.Equal(t, http.StatusOK, w.Code, "agent routes stay open")

	w = env.do(http.MethodGet, "/equipment", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/equipment", nil, "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("wrap: %w", equipment.ErrInvalidReport), http.StatusBadRequest},
		{equipment.ErrInvalidHeartbeat, http.StatusBadRequest},
		{equipment.ErrInvalidPatch, http.StatusBadRequest},
		{equipment.ErrNotFound, http.StatusNotFound},
		{equipment.ErrInventoryNumberAssigned, http.StatusConflict},
		{fmt.Errorf("merge: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, _ := classifyError(tt.err)
			assert.Equal(t, tt.status, status)
		})
	}
}
