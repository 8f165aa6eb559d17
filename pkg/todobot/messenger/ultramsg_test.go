package messenger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSend(t *testing.T) {
	t.Run("posts form payload to instance endpoint", func(t *testing.T) {
		var gotPath, gotToken, gotTo, gotBody string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			if err := r.ParseForm(); err != nil {
				t.Fatalf("parse form: %v", err)
			}
			gotToken = r.PostForm.Get("token")
			gotTo = r.PostForm.Get("to")
			gotBody = r.PostForm.Get("body")
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		m := New(Config{BaseURL: srv.URL, InstanceID: "140141", Token: "secret"}, nil)
		if err := m.Send(context.Background(), "5581999990000", "hello"); err != nil {
			t.Fatalf("send: %v", err)
		}

		if gotPath != "/140141/messages/chat" {
			t.Errorf("unexpected path %q", gotPath)
		}
		if gotToken != "secret" || gotTo != "5581999990000" || gotBody != "hello" {
			t.Errorf("unexpected form values token=%q to=%q body=%q", gotToken, gotTo, gotBody)
		}
	})

	t.Run("returns error on gateway failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "invalid token", http.StatusUnauthorized)
		}))
		defer srv.Close()

		m := New(Config{BaseURL: srv.URL, InstanceID: "1", Token: "bad"}, nil)
		if err := m.Send(context.Background(), "x", "y"); err == nil {
			t.Error("expected error from gateway failure")
		}
	})

	t.Run("requires credentials", func(t *testing.T) {
		m := New(Config{}, nil)
		if err := m.Send(context.Background(), "x", "y"); err == nil {
			t.Error("expected error without credentials")
		}
	})
}
