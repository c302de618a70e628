package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/handcrafted-haven/marketplace/internal/cache"
	"github.com/handcrafted-haven/marketplace/internal/domain"
	"github.com/handcrafted-haven/marketplace/internal/errors"
	"github.com/handcrafted-haven/marketplace/internal/logging"
	"github.com/handcrafted-haven/marketplace/internal/metrics"
	"github.com/handcrafted-haven/marketplace/internal/supabase"
)

// fakeBackend records requests and answers them from a route table keyed
// by "METHOD /path".
type fakeBackend struct {
	t        *testing.T
	mux      map[string]func(w http.ResponseWriter, r *http.Request)
	prefixes map[string]func(w http.ResponseWriter, r *http.Request)
	requests []recordedRequest
	srv      *httptest.Server
}

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   []byte
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{
		t:        t,
		mux:      make(map[string]func(http.ResponseWriter, *http.Request)),
		prefixes: make(map[string]func(http.ResponseWriter, *http.Request)),
	}
	fb.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fb.requests = append(fb.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
			Body:   body,
		})
		if h, ok := fb.mux[r.Method+" "+r.URL.Path]; ok {
			h(w, r)
			return
		}
		for prefix, h := range fb.prefixes {
			if strings.HasPrefix(r.Method+" "+r.URL.Path, prefix) {
				h(w, r)
				return
			}
		}
		t.Errorf("unexpected backend call: %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"no route"}`))
	}))
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) on(route string, status int, response string) {
	fb.mux[route] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(response))
	}
}

// onPrefix matches routes whose object path embeds a generated id.
func (fb *fakeBackend) onPrefix(route string, status int, response string) {
	fb.prefixes[route] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(response))
	}
}

func (fb *fakeBackend) client(t *testing.T) *supabase.Client {
	t.Helper()
	c, err := supabase.New(supabase.Config{
		ProjectURL: fb.srv.URL,
		AnonKey:    "anon-key",
		ServiceKey: "service-key",
	})
	if err != nil {
		t.Fatalf("supabase.New: %v", err)
	}
	return c
}

func newTestMetrics() *metrics.Metrics { return metrics.New() }

func TestSignUpCreatesProfile(t *testing.T) {
	fb := newFakeBackend(t)
	fb.on("POST /auth/v1/signup", 200, `{"access_token":"at","refresh_token":"rt","user":{"id":"u1","email":"ada@example.com"}}`)
	fb.on("POST /rest/v1/profiles", 201, `[{"id":"u1","email":"ada@example.com","display_name":"Ada","role":"seller"}]`)

	svc := NewAccountService(fb.client(t), "product-images", logging.Nop(), newTestMetrics())

	account, err := svc.SignUp(context.Background(), SignUpInput{
		Email:       "ada@example.com",
		Password:    "secret123",
		DisplayName: "Ada",
		Role:        "artisan",
	})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if account.Session.AccessToken != "at" {
		t.Errorf("session = %+v", account.Session)
	}
	if account.Profile == nil || account.Profile.Role != domain.RoleSeller {
		t.Errorf("profile = %+v", account.Profile)
	}

	// The profile insert runs under the service key, not the fresh session.
	insert := fb.requests[len(fb.requests)-1]
	if insert.Auth != "Bearer service-key" {
		t.Errorf("profile insert auth = %q", insert.Auth)
	}
	var row map[string]interface{}
	if err := json.Unmarshal(insert.Body, &row); err != nil {
		t.Fatalf("unmarshal insert body: %v", err)
	}
	if row["role"] != "seller" {
		t.Errorf("inserted role = %v, want artisan normalized to seller", row["role"])
	}
}

func TestSignUpRejectsBadInput(t *testing.T) {
	svc := NewAccountService(nil, "b", logging.Nop(), newTestMetrics())

	cases := []SignUpInput{
		{Email: "bad", Password: "secret123", DisplayName: "Ada"},
		{Email: "ada@example.com", Password: "short", DisplayName: "Ada"},
		{Email: "ada@example.com", Password: "secret123"},
		{Email: "ada@example.com", Password: "secret123", DisplayName: "Ada", Role: "admin"},
	}
	for i, in := range cases {
		if _, err := svc.SignUp(context.Background(), in); !errors.Is(err, errors.CodeInvalidRequest) {
			t.Errorf("case %d: err = %v, want validation error", i, err)
		}
	}
}

func TestSignInMapsBadCredentials(t *testing.T) {
	fb := newFakeBackend(t)
	fb.on("POST /auth/v1/token", 400, `{"error_description":"Invalid login credentials"}`)

	svc := NewAccountService(fb.client(t), "b", logging.Nop(), newTestMetrics())

	_, err := svc.SignIn(context.Background(), "ada@example.com", "wrong")
	serr := errors.GetServiceError(err)
	if serr == nil {
		t.Fatalf("err = %v, want ServiceError", err)
	}
	if serr.Message != "Incorrect email or password." {
		t.Errorf("message = %q", serr.Message)
	}
	if serr.HTTPStatus != http.StatusUnauthorized {
		t.Errorf("status = %d", serr.HTTPStatus)
	}
}

func TestSignInLoadsProfileWithUserToken(t *testing.T) {
	fb := newFakeBackend(t)
	fb.on("POST /auth/v1/token", 200, `{"access_token":"user-at","user":{"id":"u1"}}`)
	fb.on("GET /rest/v1/profiles", 200, `{"id":"u1","display_name":"Ada","role":"buyer"}`)

	svc := NewAccountService(fb.client(t), "b", logging.Nop(), newTestMetrics())

	account, err := svc.SignIn(context.Background(), "ada@example.com", "secret123")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if account.Profile == nil || account.Profile.DisplayName != "Ada" {
		t.Errorf("profile = %+v", account.Profile)
	}

	profileReq := fb.requests[len(fb.requests)-1]
	if profileReq.Auth != "Bearer user-at" {
		t.Errorf("profile read auth = %q, want the user's token", profileReq.Auth)
	}
}

func TestDeleteAccountRemovesDataFilesAndAuthUser(t *testing.T) {
	fb := newFakeBackend(t)
	fb.on("DELETE /rest/v1/reviews", 200, `[]`)
	fb.on("DELETE /rest/v1/contact_messages", 200, `[]`)
	fb.on("DELETE /rest/v1/products", 200, `[]`)
	fb.on("DELETE /rest/v1/profiles", 200, `[]`)
	fb.on("POST /storage/v1/object/list/product-images", 200, `[{"name":"p1.jpg"}]`)
	fb.on("DELETE /storage/v1/object/product-images", 200, `[]`)
	fb.on("DELETE /auth/v1/admin/users/u1", 200, `{}`)

	svc := NewAccountService(fb.client(t), "product-images", logging.Nop(), newTestMetrics())

	if err := svc.DeleteAccount(context.Background(), "u1"); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}

	last := fb.requests[len(fb.requests)-1]
	if last.Path != "/auth/v1/admin/users/u1" {
		t.Errorf("auth user deleted before data: last call %s", last.Path)
	}
}

func TestProductListBuildsFilters(t *testing.T) {
	fb := newFakeBackend(t)
	fb.mux["GET /rest/v1/products"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "0-0/1")
		w.Write([]byte(`[{"id":"p1","name":"Vase","category":"ceramics","price":42.5}]`))
	}

	svc := NewProductService(fb.client(t), cache.New("", 0), "product-images", logging.Nop(), newTestMetrics())

	list, err := svc.List(context.Background(), ListParams{
		Category: "ceramics",
		Search:   "vase",
		Sort:     "price",
		Order:    "asc",
		Page:     2,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if list.Total != 1 || len(list.Items) != 1 {
		t.Errorf("list = %+v", list)
	}

	query := fb.requests[0].Query
	for _, want := range []string{
		"category=eq.ceramics",
		"order=price.asc",
		"limit=12",
		"offset=12",
		"ilike.%25vase%25",
	} {
		if !strings.Contains(query, want) {
			t.Errorf("query %q missing %q", query, want)
		}
	}
}

func TestProductListFiltersPriceRange(t *testing.T) {
	fb := newFakeBackend(t)
	fb.mux["GET /rest/v1/products"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "0-0/1")
		w.Write([]byte(`[{"id":"p1","name":"Vase","price":25}]`))
	}

	svc := NewProductService(fb.client(t), cache.New("", 0), "b", logging.Nop(), newTestMetrics())

	min, max := 10.0, 50.0
	if _, err := svc.List(context.Background(), ListParams{MinPrice: &min, MaxPrice: &max}); err != nil {
		t.Fatalf("List: %v", err)
	}

	query := fb.requests[0].Query
	for _, want := range []string{"price=gte.10", "price=lte.50"} {
		if !strings.Contains(query, want) {
			t.Errorf("query %q missing %q", query, want)
		}
	}
}

func TestProductListRejectsInvertedPriceRange(t *testing.T) {
	svc := NewProductService(nil, cache.New("", 0), "b", logging.Nop(), newTestMetrics())

	min, max := 50.0, 10.0
	_, err := svc.List(context.Background(), ListParams{MinPrice: &min, MaxPrice: &max})
	if !errors.Is(err, errors.CodeInvalidRequest) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestProductListRejectsUnknownSort(t *testing.T) {
	svc := NewProductService(nil, cache.New("", 0), "b", logging.Nop(), newTestMetrics())

	_, err := svc.List(context.Background(), ListParams{Sort: "seller_id"})
	if !errors.Is(err, errors.CodeInvalidRequest) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestProductCreateMapsRLSViolation(t *testing.T) {
	fb := newFakeBackend(t)
	fb.on("POST /rest/v1/products", 403, `{"message":"new row violates row-level security policy for table \"products\""}`)

	svc := NewProductService(fb.client(t), cache.New("", 0), "b", logging.Nop(), newTestMetrics())

	_, err := svc.Create(context.Background(), "buyer-token", "u1", domain.ProductInput{
		Name: "Vase", Category: "ceramics", Price: 10,
	})
	serr := errors.GetServiceError(err)
	if serr == nil || serr.Code != errors.CodeForbidden {
		t.Fatalf("err = %v, want forbidden", err)
	}
	if serr.Message != "You do not have permission to do that." {
		t.Errorf("message = %q", serr.Message)
	}
}

func TestUploadImageRejectsBadContentType(t *testing.T) {
	svc := NewProductService(nil, cache.New("", 0), "b", logging.Nop(), newTestMetrics())

	_, err := svc.UploadImage(context.Background(), "tok", "u1", "p1", "application/pdf", []byte("x"))
	if !errors.Is(err, errors.CodeInvalidRequest) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestUploadImageRejectsForeignProduct(t *testing.T) {
	fb := newFakeBackend(t)
	fb.on("GET /rest/v1/products", 200, `{"id":"p1","seller_id":"someone-else"}`)

	svc := NewProductService(fb.client(t), cache.New("", 0), "b", logging.Nop(), newTestMetrics())

	_, err := svc.UploadImage(context.Background(), "tok", "u1", "p1", "image/png", []byte("png"))
	if !errors.Is(err, errors.CodeForbidden) {
		t.Errorf("err = %v, want forbidden", err)
	}
}

func TestRemoveImageDeletesStoredObject(t *testing.T) {
	fb := newFakeBackend(t)
	imageURL := fb.srv.URL + "/storage/v1/object/public/product-images/u1/p1.jpg"
	fb.on("GET /rest/v1/products", 200, `{"id":"p1","seller_id":"u1","image_url":"`+imageURL+`"}`)
	fb.on("PATCH /rest/v1/products", 200, `[{"id":"p1","seller_id":"u1","image_url":""}]`)
	fb.on("DELETE /storage/v1/object/product-images", 200, `[]`)

	svc := NewProductService(fb.client(t), cache.New("", 0), "product-images", logging.Nop(), newTestMetrics())

	product, err := svc.RemoveImage(context.Background(), "tok", "u1", "p1")
	if err != nil {
		t.Fatalf("RemoveImage: %v", err)
	}
	if product.ImageURL != "" {
		t.Errorf("product = %+v, want cleared image", product)
	}

	del := fb.requests[len(fb.requests)-1]
	if del.Method != "DELETE" || !strings.Contains(string(del.Body), "u1/p1.jpg") {
		t.Errorf("storage delete = %s %q", del.Method, del.Body)
	}
}

func TestUploadAvatarWritesURLBack(t *testing.T) {
	fb := newFakeBackend(t)
	fb.on("GET /rest/v1/profiles", 200, `{"id":"u1","avatar_url":""}`)
	fb.onPrefix("POST /storage/v1/object/product-images/u1/avatar-", 200, `{"Key":"product-images/u1/avatar"}`)
	fb.on("PATCH /rest/v1/profiles", 200, `[{"id":"u1","avatar_url":"https://cdn/avatar.png"}]`)

	svc := NewProfileService(fb.client(t), "product-images", logging.Nop(), newTestMetrics())

	profile, err := svc.UploadAvatar(context.Background(), "user-at", "u1", "image/png", []byte("png"))
	if err != nil {
		t.Fatalf("UploadAvatar: %v", err)
	}
	if profile.AvatarURL == "" {
		t.Errorf("profile = %+v, want avatar url", profile)
	}

	patch := fb.requests[len(fb.requests)-1]
	if patch.Auth != "Bearer user-at" {
		t.Errorf("profile patch auth = %q, want the user's token", patch.Auth)
	}
	if !strings.Contains(string(patch.Body), "avatar_url") {
		t.Errorf("patch body = %q", patch.Body)
	}
}

func TestReviewSubmitRejectsOwnProduct(t *testing.T) {
	fb := newFakeBackend(t)
	fb.on("GET /rest/v1/products", 200, `[{"id":"p1"}]`)

	svc := NewReviewService(fb.client(t), logging.Nop(), newTestMetrics())

	_, err := svc.Submit(context.Background(), "tok", "u1", "p1", domain.ReviewInput{Rating: 5})
	if !errors.Is(err, errors.CodeForbidden) {
		t.Errorf("err = %v, want forbidden", err)
	}
}

func TestReviewSubmitUpserts(t *testing.T) {
	fb := newFakeBackend(t)
	fb.on("GET /rest/v1/products", 200, `[]`)
	fb.on("POST /rest/v1/reviews", 201, `[{"id":"r1","product_id":"p1","reviewer_id":"u1","rating":4}]`)

	svc := NewReviewService(fb.client(t), logging.Nop(), newTestMetrics())

	review, err := svc.Submit(context.Background(), "tok", "u1", "p1", domain.ReviewInput{Rating: 4})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if review.Rating != 4 {
		t.Errorf("review = %+v", review)
	}

	upsert := fb.requests[len(fb.requests)-1]
	if !strings.Contains(upsert.Query, "on_conflict=product_id%2Creviewer_id") {
		t.Errorf("upsert query = %q", upsert.Query)
	}
}

func TestReviewListPaginates(t *testing.T) {
	fb := newFakeBackend(t)
	fb.mux["GET /rest/v1/reviews"] = func(w http.ResponseWriter, r *http.Request) {
		// The page query carries limit/offset; the summary query does not.
		if strings.Contains(r.URL.RawQuery, "limit=") {
			w.Header().Set("Content-Range", "10-19/42")
			w.Write([]byte(`[{"id":"r1","rating":5}]`))
			return
		}
		w.Write([]byte(`[{"rating":5},{"rating":3}]`))
	}

	svc := NewReviewService(fb.client(t), logging.Nop(), newTestMetrics())

	out, err := svc.ListForProduct(context.Background(), "p1", 2)
	if err != nil {
		t.Fatalf("ListForProduct: %v", err)
	}
	if out.Total != 42 || out.Page != 2 || len(out.Reviews) != 1 {
		t.Errorf("page = %+v", out)
	}
	// The aggregate covers all reviews, not just the returned page.
	if out.Summary.ReviewCount != 2 || out.Summary.AverageRating != 4 {
		t.Errorf("summary = %+v", out.Summary)
	}

	query := fb.requests[0].Query
	for _, want := range []string{"limit=10", "offset=10", "order=created_at.desc"} {
		if !strings.Contains(query, want) {
			t.Errorf("query %q missing %q", query, want)
		}
	}
}

func TestMessageSendVerifiesSeller(t *testing.T) {
	fb := newFakeBackend(t)
	fb.on("GET /rest/v1/profiles", 406, `{"message":"JSON object requested, multiple (or no) rows returned"}`)

	svc := NewMessageService(fb.client(t), logging.Nop(), newTestMetrics())

	_, err := svc.Send(context.Background(), "nobody", domain.ContactMessageInput{
		SenderName: "Ada", SenderEmail: "ada@example.com", Body: "Hello",
	})
	if !errors.Is(err, errors.CodeNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestMessageSendUsesServiceKey(t *testing.T) {
	fb := newFakeBackend(t)
	fb.on("GET /rest/v1/profiles", 200, `{"id":"s1","role":"seller"}`)
	fb.on("POST /rest/v1/contact_messages", 201, `[{"id":"m1","seller_id":"s1","sender_name":"Ada"}]`)

	svc := NewMessageService(fb.client(t), logging.Nop(), newTestMetrics())

	msg, err := svc.Send(context.Background(), "s1", domain.ContactMessageInput{
		SenderName: "Ada", SenderEmail: "ada@example.com", Subject: "Shipping", Body: "Do you ship abroad?",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.ID != "m1" {
		t.Errorf("message = %+v", msg)
	}

	insert := fb.requests[len(fb.requests)-1]
	if insert.Auth != "Bearer service-key" {
		t.Errorf("message insert auth = %q", insert.Auth)
	}
	var row map[string]interface{}
	if err := json.Unmarshal(insert.Body, &row); err != nil {
		t.Fatalf("unmarshal insert body: %v", err)
	}
	if row["subject"] != "Shipping" {
		t.Errorf("inserted subject = %v", row["subject"])
	}
}

func TestInboxFiltersUnread(t *testing.T) {
	fb := newFakeBackend(t)
	fb.on("GET /rest/v1/contact_messages", 200, `[{"id":"m1","read":false}]`)

	svc := NewMessageService(fb.client(t), logging.Nop(), newTestMetrics())

	msgs, err := svc.Inbox(context.Background(), "tok", "s1", true)
	if err != nil {
		t.Fatalf("Inbox: %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("messages = %+v", msgs)
	}
	if q := fb.requests[0].Query; !strings.Contains(q, "read=eq.false") {
		t.Errorf("query = %q, missing unread filter", q)
	}
}

func TestSellerProfileNotFound(t *testing.T) {
	fb := newFakeBackend(t)
	fb.on("GET /rest/v1/profiles", 406, `{"message":"JSON object requested, multiple (or no) rows returned"}`)

	svc := NewProfileService(fb.client(t), "product-images", logging.Nop(), newTestMetrics())

	_, err := svc.GetSeller(context.Background(), "nobody")
	serr := errors.GetServiceError(err)
	if serr == nil || serr.Code != errors.CodeNotFound {
		t.Fatalf("err = %v, want not found", err)
	}
	if serr.Message != "Seller not found" {
		t.Errorf("message = %q", serr.Message)
	}
}

func TestProfileUpdateRequiresChanges(t *testing.T) {
	svc := NewProfileService(nil, "product-images", logging.Nop(), newTestMetrics())

	_, err := svc.Update(context.Background(), "tok", "u1", UpdateProfileInput{})
	if !errors.Is(err, errors.CodeInvalidRequest) {
		t.Errorf("err = %v, want validation error", err)
	}
}
