package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClassifyImage(t *testing.T) {
	var got ChatCompletionRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"{\"label\":\"cat\"}"}}]}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL+"/", "secret")
	reply, err := c.ClassifyImage(context.Background(), "gemini-2.0-flash", "classify", "QUJD")
	if err != nil {
		t.Fatalf("ClassifyImage failed: %v", err)
	}
	if reply != `{"label":"cat"}` {
		t.Errorf("unexpected reply %q", reply)
	}
	if auth != "Bearer secret" {
		t.Errorf("expected bearer auth, got %q", auth)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Errorf("expected json_object response format, got %+v", got.ResponseFormat)
	}

	parts, ok := got.Messages[0].Content.([]interface{})
	if !ok || len(parts) != 2 {
		t.Fatalf("expected text and image parts, got %#v", got.Messages[0].Content)
	}
	img := parts[1].(map[string]interface{})["image_url"].(map[string]interface{})["url"].(string)
	if img != "data:image/jpeg;base64,QUJD" {
		t.Errorf("unexpected image url %q", img)
	}
}

func TestImageMimeType(t *testing.T) {
	pngMagic := "\x89PNG\r\n\x1a\n"
	tests := []struct {
		name string
		data string
		want string
	}{
		{"jpeg", "\xff\xd8\xff\xe0\x00\x10JFIF", "image/jpeg"},
		{"png", pngMagic + "\x00\x00\x00\rIHDR", "image/png"},
		{"long png", pngMagic + strings.Repeat("\x00", 4096), "image/png"},
		{"webp", "RIFF\x24\x00\x00\x00WEBPVP8 ", "image/webp"},
		{"gif", "GIF89a\x01\x00\x01\x00", "image/gif"},
		{"unknown", "ABC", "image/jpeg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b64 := base64.StdEncoding.EncodeToString([]byte(tt.data))
			if got := imageMimeType(b64); got != tt.want {
				t.Errorf("imageMimeType = %q, want %q", got, tt.want)
			}
		})
	}
	if got := imageMimeType("not base64!"); got != "image/jpeg" {
		t.Errorf("undecodable payload should default to jpeg, got %q", got)
	}
}

func TestClassifyImageSendsSniffedType(t *testing.T) {
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"{}"}}]}`))
	}))
	defer srv.Close()

	png := base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	c, _ := NewClient(srv.URL, "")
	if _, err := c.ClassifyImage(context.Background(), "m", "classify", png); err != nil {
		t.Fatalf("ClassifyImage failed: %v", err)
	}
	parts := got.Messages[0].Content.([]interface{})
	img := parts[1].(map[string]interface{})["image_url"].(map[string]interface{})["url"].(string)
	if !strings.HasPrefix(img, "data:image/png;base64,") {
		t.Errorf("expected png data URL, got %q", img)
	}
}

func TestSimpleQueryPartsReply(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":[{"type":"text","text":"a cat"}]}}]}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "")
	reply, err := c.SimpleQuery(context.Background(), "m", "describe", "")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "a cat" {
		t.Errorf("unexpected reply %q", reply)
	}
	if auth != "" {
		t.Errorf("no key should mean no auth header, got %q", auth)
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"status", http.StatusUnauthorized, `{"error":"bad key"}`, "status 401"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
		{"garbage", http.StatusOK, `<html>`, "failed to parse"},
		{"empty", http.StatusOK, `{"choices":[{"message":{"content":""}}]}`, "empty response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, _ := NewClient(srv.URL, "")
			_, err := c.ClassifyImage(context.Background(), "m", "p", "QUJD")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
