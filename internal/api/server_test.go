package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/handcrafted-haven/marketplace/internal/cache"
	"github.com/handcrafted-haven/marketplace/internal/config"
	"github.com/handcrafted-haven/marketplace/internal/logging"
	"github.com/handcrafted-haven/marketplace/internal/metrics"
	"github.com/handcrafted-haven/marketplace/internal/middleware"
	"github.com/handcrafted-haven/marketplace/internal/services"
	"github.com/handcrafted-haven/marketplace/internal/supabase"
)

const testJWTSecret = "test-jwt-secret"

// newTestServer stands up the full router over a scripted fake backend.
func newTestServer(t *testing.T, routes map[string]http.HandlerFunc) *Server {
	t.Helper()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := routes[r.Method+" "+r.URL.Path]; ok {
			h(w, r)
			return
		}
		t.Errorf("unexpected backend call: %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"no route"}`))
	}))
	t.Cleanup(backend.Close)

	sb, err := supabase.New(supabase.Config{
		ProjectURL: backend.URL,
		AnonKey:    "anon-key",
		ServiceKey: "service-key",
	})
	if err != nil {
		t.Fatalf("supabase.New: %v", err)
	}

	cfg := config.Default()
	cfg.Auth.JWTSecret = testJWTSecret
	cfg.RateLimit.RequestsPerSecond = 1000
	cfg.RateLimit.Burst = 1000

	log := logging.Nop()
	m := metrics.New()
	c := cache.New("", 0)

	srv := NewServer(Deps{
		Accounts: services.NewAccountService(sb, cfg.Supabase.StorageBucket, log, m),
		Profiles: services.NewProfileService(sb, cfg.Supabase.StorageBucket, log, m),
		Products: services.NewProductService(sb, c, cfg.Supabase.StorageBucket, log, m),
		Reviews:  services.NewReviewService(sb, log, m),
		Messages: services.NewMessageService(sb, log, m),
		Cache:    c,
		Logger:   log,
		Metrics:  m,
		Config:   cfg,
	})
	t.Cleanup(srv.Close)
	return srv
}

func signTestToken(t *testing.T, userID, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func jsonBody(s string) io.Reader { return strings.NewReader(s) }

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("X-Trace-ID"); got == "" {
		t.Error("missing X-Trace-ID header")
	}
}

func TestListProductsPublic(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"GET /rest/v1/products": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Range", "0-0/1")
			w.Write([]byte(`[{"id":"p1","name":"Vase","category":"ceramics","price":42.5}]`))
		},
	})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/products?category=ceramics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var list struct {
		Items []map[string]interface{} `json:"items"`
		Total int64                    `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Total != 1 || len(list.Items) != 1 {
		t.Errorf("list = %+v", list)
	}
}

func TestListProductsRejectsBadCategory(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/products?category=electronics", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "INVALID_REQUEST" {
		t.Errorf("error code = %q", body.Error.Code)
	}
}

func TestCreateProductRequiresAuth(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest("POST", "/api/v1/products", jsonBody(`{"name":"Vase","category":"ceramics","price":10}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCreateProductWithToken(t *testing.T) {
	var gotAuth string
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"POST /rest/v1/products": func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`[{"id":"p1","seller_id":"u1","name":"Vase","category":"ceramics","price":10}]`))
		},
	})

	token := signTestToken(t, "u1", "authenticated")
	req := httptest.NewRequest("POST", "/api/v1/products", jsonBody(`{"name":"Vase","description":"","category":"ceramics","price":10,"stock":0}`))
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if gotAuth != "Bearer "+token {
		t.Errorf("backend auth = %q, want the caller's token passed through", gotAuth)
	}
}

func TestRateLimitKeyedByUser(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"GET /rest/v1/profiles": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id":"u1","display_name":"Ada","role":"buyer"}`))
		},
	})
	srv.limiter = middleware.NewRateLimiter(1, 1, logging.Nop())
	router := srv.Router()

	get := func(token string) int {
		req := httptest.NewRequest("GET", "/api/v1/profiles/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	alice := signTestToken(t, "alice", "authenticated")
	bob := signTestToken(t, "bob", "authenticated")

	if code := get(alice); code != http.StatusOK {
		t.Fatalf("first caller status = %d", code)
	}
	// A second caller from the same remote address has their own bucket.
	if code := get(bob); code != http.StatusOK {
		t.Errorf("second caller status = %d, want 200", code)
	}
	if code := get(alice); code != http.StatusTooManyRequests {
		t.Errorf("first caller's second request status = %d, want 429", code)
	}
}

func TestSignInRoute(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"POST /auth/v1/token": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"access_token":"at","user":{"id":"u1"}}`))
		},
		"GET /rest/v1/profiles": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id":"u1","display_name":"Ada","role":"buyer"}`))
		},
	})

	req := httptest.NewRequest("POST", "/api/v1/auth/signin", jsonBody(`{"email":"ada@example.com","password":"secret123"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var account struct {
		Session struct {
			AccessToken string `json:"access_token"`
		} `json:"session"`
		Profile struct {
			DisplayName string `json:"display_name"`
		} `json:"profile"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&account); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if account.Session.AccessToken != "at" || account.Profile.DisplayName != "Ada" {
		t.Errorf("account = %+v", account)
	}
}

func TestSetFeaturedRequiresAdminRole(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest("PUT", "/api/v1/products/p1/featured", jsonBody(`{"featured":true}`))
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "u1", "authenticated"))

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSetFeaturedAsAdmin(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"PATCH /rest/v1/products": func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("apikey"); got != "service-key" {
				t.Errorf("apikey = %q, want service key", got)
			}
			w.Write([]byte(`[{"id":"p1","featured":true}]`))
		},
	})

	req := httptest.NewRequest("PUT", "/api/v1/products/p1/featured", jsonBody(`{"featured":true}`))
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "admin", "service_role"))

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestSendMessageToSeller(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"GET /rest/v1/profiles": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id":"s1","role":"seller"}`))
		},
		"POST /rest/v1/contact_messages": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`[{"id":"m1","seller_id":"s1"}]`))
		},
	})

	req := httptest.NewRequest("POST", "/api/v1/sellers/s1/messages",
		jsonBody(`{"sender_name":"Ada","sender_email":"ada@example.com","body":"Do you ship abroad?"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestInvalidJSONBody(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest("POST", "/api/v1/auth/signin", jsonBody(`{not json`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	router := srv.Router()

	// Generate one request, then scrape.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	scrape := httptest.NewRecorder()
	router.ServeHTTP(scrape, httptest.NewRequest("GET", "/metrics", nil))

	if scrape.Code != http.StatusOK {
		t.Fatalf("status = %d", scrape.Code)
	}
	if !strings.Contains(scrape.Body.String(), "http_requests_total") {
		t.Error("scrape missing http_requests_total")
	}
}
