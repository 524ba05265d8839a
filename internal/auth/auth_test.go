package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quiz-coordinator/internal/domain"
)

func TestHTTPVerifier(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/verify" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			w.Write([]byte(`{"status":"success","message":"ok","data":{"user_id":"u1","username":"alice"}}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer server.Close()

	verifier := NewHTTPVerifier(server.URL, time.Second)

	identity, err := verifier.Verify(context.Background(), "good")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.UserID != "u1" || identity.Username != "alice" {
		t.Fatalf("unexpected identity %+v", identity)
	}

	if _, err := verifier.Verify(context.Background(), "bad"); err != domain.ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := verifier.Verify(context.Background(), ""); err != domain.ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized for empty token, got %v", err)
	}
}

func TestClientToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/token" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("username") == "alice" && r.PostForm.Get("password") == "pw" {
			w.Write([]byte(`{"status":"success","message":"Token generated successfully.","data":{"access_token":"tok-123","token_type":"bearer"}}`))
			return
		}
		w.Write([]byte(`{"status":"error","message":"Invalid credentials."}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)

	token, err := client.Token(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if token != "tok-123" {
		t.Fatalf("unexpected token %q", token)
	}

	if _, err := client.Token(context.Background(), "alice", "wrong"); err == nil {
		t.Fatalf("expected error for bad credentials")
	}
}
