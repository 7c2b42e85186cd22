package face_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"attendance/internal/face"
	"attendance/internal/services"
)

func TestHTTPEncoderEncode(t *testing.T) {
	frame := []byte{0xff, 0xd8, 0xff, 0xd9}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/encode" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("unexpected content type %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if len(body) != len(frame) {
			t.Errorf("expected %d byte frame, got %d", len(frame), len(body))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"faces":[{"encoding":[0.1,0.2,0.3],"box":[1,2,3,4]},{"encoding":[]}]}`)
	}))
	defer server.Close()

	encoder := face.NewHTTPEncoder(server.URL+"/", time.Second)
	faces, err := encoder.Encode(context.Background(), frame)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(faces) != 1 {
		t.Fatalf("expected one usable face, got %d", len(faces))
	}
	if len(faces[0].Vector) != 3 || faces[0].Vector[2] != 0.3 {
		t.Fatalf("unexpected encoding %+v", faces[0])
	}
}

func TestHTTPEncoderNoFaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"faces":[]}`)
	}))
	defer server.Close()

	faces, err := face.NewHTTPEncoder(server.URL, time.Second).Encode(context.Background(), []byte{1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(faces) != 0 {
		t.Fatalf("expected no faces, got %d", len(faces))
	}
}

func TestHTTPEncoderErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	encoder := face.NewHTTPEncoder(server.URL, time.Second)
	_, err := encoder.Encode(context.Background(), []byte{1})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if err := encoder.Ping(context.Background()); !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected unavailable from ping, got %v", err)
	}

	if _, err := encoder.Encode(context.Background(), nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty frame, got %v", err)
	}

	server.Close()
	if _, err := encoder.Encode(context.Background(), []byte{1}); !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected unavailable after close, got %v", err)
	}
}
