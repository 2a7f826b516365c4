package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/crypto/bcrypt"

	"github.com/teliax/ringer-docs/pkg/config"
)

func newTestService(t *testing.T, keys map[string]string) Service {
	t.Helper()

	log, _ := logtest.NewNullLogger()

	var apiKeys []config.APIKey

	for name, key := range keys {
		hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
		if err != nil {
			t.Fatal(err)
		}

		apiKeys = append(apiKeys, config.APIKey{Name: name, KeyHash: string(hash)})
	}

	return NewService(log, apiKeys)
}

func TestAuthenticate(t *testing.T) {
	svc := newTestService(t, map[string]string{"ci": "ci-secret", "ops": "ops-secret"})

	for i := 0; i < 2; i++ {
		p, err := svc.Authenticate("ops-secret")
		if err != nil || p.Name != "ops" {
			t.Fatalf("attempt %d: principal = %+v, %v", i, p, err)
		}
	}

	if _, err := svc.Authenticate("wrong"); err != ErrInvalidKey {
		t.Errorf("error = %v, want ErrInvalidKey", err)
	}

	if _, err := svc.Authenticate(""); err != ErrInvalidKey {
		t.Errorf("empty token error = %v", err)
	}
}

func TestHashKeyRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	hash, err := HashKey(key)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("hash = %q", hash)
	}

	log, _ := logtest.NewNullLogger()
	svc := NewService(log, []config.APIKey{{Name: "generated", KeyHash: hash}})

	if p, err := svc.Authenticate(key); err != nil || p.Name != "generated" {
		t.Errorf("principal = %+v, %v", p, err)
	}

	if _, err := HashKey(""); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestRequireAPIKey(t *testing.T) {
	svc := newTestService(t, map[string]string{"ci": "ci-secret"})

	handler := RequireAPIKey(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := PrincipalFromContext(r.Context())
		_, _ = w.Write([]byte(p.Name))
	}))

	tests := []struct {
		name   string
		header string
		value  string
		status int
	}{
		{name: "bearer", header: "Authorization", value: "Bearer ci-secret", status: http.StatusOK},
		{name: "bare", header: "Authorization", value: "ci-secret", status: http.StatusOK},
		{name: "x-api-key", header: "X-API-Key", value: "ci-secret", status: http.StatusOK},
		{name: "wrong", header: "Authorization", value: "Bearer nope", status: http.StatusUnauthorized},
		{name: "missing", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}

			if tt.status == http.StatusOK && rec.Body.String() != "ci" {
				t.Errorf("principal = %q", rec.Body.String())
			}
		})
	}
}

func TestRequireAPIKeyWithoutKeys(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	svc := NewService(log, nil)

	handler := RequireAPIKey(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be reached")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
	req.Header.Set("Authorization", "Bearer anything")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", rec.Code)
	}
}
