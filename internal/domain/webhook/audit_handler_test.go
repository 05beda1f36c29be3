package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/mwork/payin-api/internal/middleware"
	"github.com/mwork/payin-api/internal/pkg/jwt"
)

func getAudit(t *testing.T, h *AuditHandler, role, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req = req.WithContext(middleware.WithIdentity(context.Background(), uuid.New(), role))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func TestAuditHandlerListsEventsAndPayload(t *testing.T) {
	h := newHarness()
	p := h.payins.add(testPayin("ord_audit"))
	callback := map[string]interface{}{"event": "payin.completed", "status": "completed", "orderId": "ord_audit", "amount": "1000", "currency": "USD"}
	h.postSigned(t, callback)

	audit := NewAuditHandler(h.audit, NewArchiver(h.store))

	rec := getAudit(t, audit, jwt.RoleAdmin, "/payins/"+p.ID.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Data []EventResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Data) != 1 || out.Data[0].Status != AuditProcessed || out.Data[0].ArchiveKey == nil {
		t.Fatalf("unexpected events: %+v", out.Data)
	}

	rec = getAudit(t, audit, jwt.RoleService, "/archive/"+*out.Data[0].ArchiveKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected archived payload, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil || payload["orderId"] != "ord_audit" {
		t.Fatalf("expected original callback body, got %s", rec.Body.String())
	}
}

func TestAuditHandlerRejections(t *testing.T) {
	h := newHarness()
	audit := NewAuditHandler(h.audit, NewArchiver(h.store))

	cases := []struct {
		name string
		role string
		path string
		want int
	}{
		{"user role", jwt.RoleUser, "/payins/" + uuid.NewString(), http.StatusForbidden},
		{"bad payin id", jwt.RoleAdmin, "/payins/nope", http.StatusBadRequest},
		{"missing object", jwt.RoleAdmin, "/archive/webhooks/2026/01/01/missing.json", http.StatusNotFound},
		{"outside archive", jwt.RoleAdmin, "/archive/other/secret.json", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := getAudit(t, audit, tc.role, tc.path); rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}

	disabled := NewAuditHandler(h.audit, nil)
	if rec := getAudit(t, disabled, jwt.RoleAdmin, "/archive/webhooks/x.json"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when archive disabled, got %d", rec.Code)
	}
}
