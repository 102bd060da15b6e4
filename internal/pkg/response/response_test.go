package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOKWrapsDataInEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, map[string]int{"count": 3})

	var body Response
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !body.Success || body.Error != nil {
		t.Fatalf("expected success envelope, got %+v", body)
	}
}

func TestRawErrorIsFlat(t *testing.T) {
	rec := httptest.NewRecorder()
	RawError(rec, http.StatusBadRequest, "Invalid referral code")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["error"] != "Invalid referral code" {
		t.Fatalf("unexpected body %v", body)
	}
	if _, ok := body["success"]; ok {
		t.Fatal("raw error must not carry the envelope")
	}
}

func TestNewMetaHasNext(t *testing.T) {
	if m := NewMeta(10, 5, 0, 5); !m.HasNext {
		t.Fatalf("expected another page, got %+v", m)
	}
	if m := NewMeta(10, 5, 5, 5); m.HasNext {
		t.Fatalf("expected last page, got %+v", m)
	}
}
