package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lianxi-ai/tutorcore/domain"
)

func TestAuthClientGetSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/auth/session" || r.Method != http.MethodGet {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok","expires_at":"2025-06-01T12:00:00Z"}`)
	}))
	defer server.Close()

	client := NewAuthClient(server.URL, time.Second)
	creds, err := client.GetSession(context.Background())
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if creds.AccessToken != "tok" {
		t.Fatalf("unexpected token: %q", creds.AccessToken)
	}
	if creds.ExpiresAt.IsZero() {
		t.Fatalf("expiry not decoded")
	}
}

func TestAuthClientCamelCasePayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/auth/refresh" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		fmt.Fprint(w, `{"accessToken":"tok2","expiresAt":"2025-06-01T13:00:00Z"}`)
	}))
	defer server.Close()

	client := NewAuthClient(server.URL, time.Second)
	creds, err := client.RefreshSession(context.Background())
	if err != nil {
		t.Fatalf("RefreshSession failed: %v", err)
	}
	if creds.AccessToken != "tok2" {
		t.Fatalf("camelCase token not read: %q", creds.AccessToken)
	}
}

func TestAuthClientMissingToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	client := NewAuthClient(server.URL, time.Second)
	if _, err := client.GetSession(context.Background()); err == nil {
		t.Fatalf("expected error for empty credential payload")
	}
}

func TestChatClientSaveChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chats" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req saveChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request failed: %v", err)
		}
		if req.ID != "c1" || req.Title != "标题" || len(req.Messages) != 1 {
			t.Fatalf("unexpected request: %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(domain.Session{ID: "c1", Title: "标题", Messages: req.Messages})
	}))
	defer server.Close()

	client := NewChatClient(server.URL, time.Second)
	msgs := []domain.Message{{ID: "m1", Role: domain.RoleUser, Text: "hi"}}
	session, err := client.SaveChat(context.Background(), "c1", msgs, "标题")
	if err != nil {
		t.Fatalf("SaveChat failed: %v", err)
	}
	if session.ID != "c1" || len(session.Messages) != 1 {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestChatClientDeleteAndRename(t *testing.T) {
	var gotDelete, gotRename bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete && r.URL.Path == "/v1/chats/c1":
			gotDelete = true
		case r.Method == http.MethodPatch && r.URL.Path == "/v1/chats/c1/title":
			gotRename = true
		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewChatClient(server.URL, time.Second)
	if err := client.DeleteChat(context.Background(), "c1"); err != nil {
		t.Fatalf("DeleteChat failed: %v", err)
	}
	if err := client.RenameChat(context.Background(), "c1", "新标题"); err != nil {
		t.Fatalf("RenameChat failed: %v", err)
	}
	if !gotDelete || !gotRename {
		t.Fatalf("requests not observed: delete=%v rename=%v", gotDelete, gotRename)
	}
}

func TestChatClientListChats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":"c1","title":"a"},{"id":"c2","title":"b"}]`)
	}))
	defer server.Close()

	client := NewChatClient(server.URL, time.Second)
	sessions, err := client.ListChats(context.Background())
	if err != nil {
		t.Fatalf("ListChats failed: %v", err)
	}
	if len(sessions) != 2 || sessions[1].ID != "c2" {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
}

func TestChatClientErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "boom")
	}))
	defer server.Close()

	client := NewChatClient(server.URL, time.Second)
	if _, err := client.ListChats(context.Background()); err == nil {
		t.Fatalf("expected error for 500")
	}
}

func TestOCRClientRecognize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/ocr" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var req ocrRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request failed: %v", err)
		}
		if len(req.ImageURLs) != 2 {
			t.Fatalf("unexpected urls: %+v", req.ImageURLs)
		}
		// One entry per casing convention.
		fmt.Fprint(w, `[{"image_url":"u1","text":"第一题"},{"imageUrl":"u2","text":"第二题"}]`)
	}))
	defer server.Close()

	client := NewOCRClient(server.URL, time.Second)
	results, err := client.Recognize(context.Background(), []string{"u1", "u2"})
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ImageURL != "u1" || results[1].ImageURL != "u2" {
		t.Fatalf("urls not normalized: %+v", results)
	}
	if results[1].Text != "第二题" {
		t.Fatalf("unexpected text: %q", results[1].Text)
	}
}
