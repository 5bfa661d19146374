package templates

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()
	handler := NewHandler(nil, NewService(newMemoryRepo()))
	router := chi.NewRouter()
	handler.MountRoutes(router)
	return router
}

const purchaseBody = `{
	"name": "Inventory Purchase",
	"category": "PURCHASE",
	"type": "SIMPLE",
	"lines": [
		{"accountSlot": "inventory", "side": "DEBIT", "formula": "amount", "order": 1},
		{"accountCode": "2-2100", "side": "CREDIT", "formula": "amount", "order": 2}
	]
}`

func TestHandleCreateTemplate(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/templates", strings.NewReader(purchaseBody))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	var snapshot Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snapshot))
	require.Equal(t, 1, snapshot.Version)
	require.Equal(t, []string{"amount"}, snapshot.Variables)
}

func TestHandleCreateTemplateRejectsOneSided(t *testing.T) {
	router := newTestRouter(t)

	body := `{
		"name": "Broken",
		"category": "GENERAL",
		"type": "SIMPLE",
		"lines": [
			{"accountCode": "1-1100", "side": "DEBIT", "formula": "amount", "order": 1},
			{"accountCode": "1-1200", "side": "DEBIT", "formula": "amount", "order": 2}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/templates", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "debit and one credit")
}

func TestHandleGetTemplateByVersion(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/templates", strings.NewReader(purchaseBody))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/templates/1?version=1", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/templates/1?version=9", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/templates/99", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleDeleteTemplate(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/templates", strings.NewReader(purchaseBody))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	req = httptest.NewRequest(http.MethodDelete, "/templates/1", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
}
