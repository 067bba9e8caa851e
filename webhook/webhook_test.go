package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDeliver_SignsPayload(t *testing.T) {
	const secret = "webhook-secret"

	var gotBody []byte
	var gotSig, gotCT string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Specter-Signature")
		gotCT = r.Header.Get("Content-Type")
	}))
	defer srv.Close()

	event := &Event{
		Type:      "batch.completed",
		JobID:     "job-1",
		Timestamp: time.Now().Unix(),
		Data:      map[string]int{"completed": 3},
	}
	if err := Deliver(context.Background(), srv.URL, secret, event); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	if gotCT != "application/json" {
		t.Errorf("Content-Type = %q", gotCT)
	}

	var decoded Event
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if decoded.Type != "batch.completed" || decoded.JobID != "job-1" {
		t.Errorf("decoded event = %+v", decoded)
	}

	// Verify the signature the way a receiver would.
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}
}

func TestDeliver_NoSecretNoSignature(t *testing.T) {
	var gotSig string
	var present bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Specter-Signature")
		_, present = r.Header["X-Specter-Signature"]
	}))
	defer srv.Close()

	if err := Deliver(context.Background(), srv.URL, "", &Event{Type: "batch.completed"}); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if present {
		t.Errorf("no secret should mean no signature header, got %q", gotSig)
	}
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rejected", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := Deliver(context.Background(), srv.URL, "", &Event{Type: "batch.completed"})
	if err == nil {
		t.Fatal("4xx response should be an error")
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("error should carry the status: %v", err)
	}
}

func TestDeliver_UnreachableEndpoint(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := Deliver(ctx, "http://127.0.0.1:1", "", &Event{Type: "batch.completed"}); err == nil {
		t.Error("unreachable endpoint should be an error")
	}
}
