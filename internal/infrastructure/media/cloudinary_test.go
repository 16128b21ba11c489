package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func stageFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "avatar.png")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("stage file: %v", err)
	}
	return path
}

func TestClient_Upload_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/image/upload" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if r.FormValue("api_key") != "key123" {
			t.Fatalf("api_key not forwarded")
		}
		if r.FormValue("signature") == "" || r.FormValue("timestamp") == "" {
			t.Fatalf("expected signed request")
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Fatalf("file part missing: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"secure_url":"https://cdn.example.com/avatar.png"}`))
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "key123", APISecret: "shh", BaseURL: srv.URL})

	url, err := client.Upload(context.Background(), stageFile(t, "png-bytes"))
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if url != "https://cdn.example.com/avatar.png" {
		t.Fatalf("unexpected url: %s", url)
	}
}

func TestClient_Upload_HostRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid signature"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "key123", APISecret: "shh", BaseURL: srv.URL})

	if _, err := client.Upload(context.Background(), stageFile(t, "png-bytes")); err == nil {
		t.Fatalf("expected error on rejected upload")
	}
}

func TestClient_Upload_MissingFile(t *testing.T) {
	client := NewClient(Config{APIKey: "key123", APISecret: "shh", BaseURL: "http://unused"})

	if _, err := client.Upload(context.Background(), filepath.Join(t.TempDir(), "nope.png")); err == nil {
		t.Fatalf("expected error for missing staged file")
	}
}
