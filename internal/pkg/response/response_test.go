package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidationErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	ValidationError(rec, map[string]string{"amount": "This field is required"})

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var body Response
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.Success || body.Error == nil || body.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected envelope: %+v", body)
	}
	if body.Error.Details["amount"] == "" {
		t.Fatalf("expected amount detail, got %#v", body.Error.Details)
	}
}

func TestRawSkipsEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Raw(rec, http.StatusOK, map[string]string{"status": "received"})

	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if _, ok := body["success"]; ok {
		t.Fatalf("raw response must not carry the envelope: %#v", body)
	}
	if body["status"] != "received" {
		t.Fatalf("unexpected body: %#v", body)
	}
}
