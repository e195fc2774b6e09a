package feedclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pquerna/otp/totp"
)

const testSecret = "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"

func newTestGateway(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/auth/login":
			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "bad body", http.StatusBadRequest)
				return
			}
			if !totp.Validate(body["totp"], testSecret) {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(apiError{ErrorType: "TokenException", Message: "invalid totp"})
				return
			}
			json.NewEncoder(w).Encode(Session{
				AccessToken:  "acc-123",
				RefreshToken: "ref-456",
				FeedToken:    "feed-789",
			})
		case "/v1/auth/refresh":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["refresh_token"] != "ref-456" {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(apiError{ErrorType: "TokenException", Message: "bad refresh token"})
				return
			}
			json.NewEncoder(w).Encode(Session{AccessToken: "acc-999", FeedToken: "feed-999"})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestGenerateSession(t *testing.T) {
	srv := newTestGateway(t)
	defer srv.Close()

	fc := New(Config{
		BaseURL:    srv.URL,
		APIKey:     "key",
		ClientID:   "CLIENT01",
		Password:   "pw",
		TOTPSecret: testSecret,
	})

	sess, err := fc.GenerateSession(context.Background())
	if err != nil {
		t.Fatalf("GenerateSession: %v", err)
	}
	if sess.FeedToken != "feed-789" {
		t.Fatalf("unexpected feed token %q", sess.FeedToken)
	}
	if fc.FeedToken() != "feed-789" {
		t.Fatalf("feed token not stored")
	}
}

func TestGenerateSession_BadSecret(t *testing.T) {
	srv := newTestGateway(t)
	defer srv.Close()

	fc := New(Config{
		BaseURL:    srv.URL,
		ClientID:   "CLIENT01",
		Password:   "pw",
		TOTPSecret: "MFRGGZDFMZTWQ2LKMFRGGZDFMZTWQ2LK", // wrong secret
	})
	if _, err := fc.GenerateSession(context.Background()); err == nil {
		t.Fatal("expected login failure with wrong TOTP secret")
	}
}

func TestRenewSession(t *testing.T) {
	srv := newTestGateway(t)
	defer srv.Close()

	fc := New(Config{
		BaseURL:    srv.URL,
		ClientID:   "CLIENT01",
		Password:   "pw",
		TOTPSecret: testSecret,
	})

	if _, err := fc.RenewSession(context.Background()); err == nil {
		t.Fatal("expected error before login")
	}

	if _, err := fc.GenerateSession(context.Background()); err != nil {
		t.Fatalf("GenerateSession: %v", err)
	}
	sess, err := fc.RenewSession(context.Background())
	if err != nil {
		t.Fatalf("RenewSession: %v", err)
	}
	if sess.AccessToken != "acc-999" {
		t.Fatalf("unexpected access token %q", sess.AccessToken)
	}
	if fc.FeedToken() != "feed-999" {
		t.Fatalf("feed token not refreshed, got %q", fc.FeedToken())
	}
}
