package validation

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

func testRules() Rules {
	return Rules{
		MinLeads:       500,
		MaxLeads:       50000,
		AllowedHosts:   []string{"app.apollo.io"},
		MinChargeCents: 100,
		MaxChargeCents: 100000,
		Price:          func(leads int) int64 { return (int64(leads)*500 + 999) / 1000 },
	}
}

func validRequest() CreateCheckoutRequest {
	return CreateCheckoutRequest{
		SearchURL:   "https://app.apollo.io/#/people?personTitles[]=cto",
		Email:       "buyer@example.com",
		Leads:       1000,
		CleanOutput: true,
	}
}

func failedTags(t *testing.T, err error) map[string]string {
	t.Helper()
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation errors, got %v", err)
	}
	out := map[string]string{}
	for _, fe := range ve {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

func TestCreateCheckoutRequest_Valid(t *testing.T) {
	v := New(testRules())
	if err := v.Struct(validRequest()); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
}

func TestCreateCheckoutRequest_Invalid(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(r *CreateCheckoutRequest)
		field  string
		tag    string
	}{
		{"host not allowed", func(r *CreateCheckoutRequest) { r.SearchURL = "https://evil.example.com/x" }, "search_url", "allowed_host"},
		{"bad scheme", func(r *CreateCheckoutRequest) { r.SearchURL = "ftp://app.apollo.io/x" }, "search_url", "scheme"},
		{"not a url", func(r *CreateCheckoutRequest) { r.SearchURL = "apollo people" }, "search_url", "url"},
		{"bad email", func(r *CreateCheckoutRequest) { r.Email = "buyer.example.com" }, "email", "email"},
		{"too few leads", func(r *CreateCheckoutRequest) { r.Leads = 499 }, "leads", "min_leads"},
		{"too many leads", func(r *CreateCheckoutRequest) { r.Leads = 50001 }, "leads", "max_leads"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			err := New(testRules()).Struct(req)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			tags := failedTags(t, err)
			if tags[tc.field] != tc.tag {
				t.Fatalf("expected %s on %s, got %v", tc.tag, tc.field, tags)
			}
		})
	}
}

func TestCreateCheckoutRequest_ChargeBounds(t *testing.T) {
	rules := testRules()
	rules.MaxChargeCents = 1000 // 2000 leads
	req := validRequest()
	req.Leads = 3000

	tags := failedTags(t, New(rules).Struct(req))
	if tags["leads"] != "max_charge" {
		t.Fatalf("expected max_charge, got %v", tags)
	}

	rules = testRules()
	rules.MinChargeCents = 1000
	req.Leads = 600
	tags = failedTags(t, New(rules).Struct(req))
	if tags["leads"] != "min_charge" {
		t.Fatalf("expected min_charge, got %v", tags)
	}
}

func TestCreateCheckoutRequest_WildcardHost(t *testing.T) {
	rules := testRules()
	rules.AllowedHosts = []string{"*"}
	req := validRequest()
	req.SearchURL = "https://www.linkedin.com/sales/search/people"
	if err := New(rules).Struct(req); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestBindAndValidate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := New(testRules())

	run := func(body string) (*httptest.ResponseRecorder, error) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body))
		c.Request.Header.Set("Content-Type", "application/json")
		var req CreateCheckoutRequest
		return w, BindAndValidate(c, &req, v)
	}

	w, err := run(`{"search_url":`)
	if err == nil || w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "invalid_request_body") {
		t.Fatalf("malformed body: code=%d body=%s err=%v", w.Code, w.Body.String(), err)
	}

	w, err = run(`{"search_url":"https://app.apollo.io/x","email":"nope","leads":1000}`)
	if err == nil || w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), `"email":"email"`) {
		t.Fatalf("invalid email: code=%d body=%s err=%v", w.Code, w.Body.String(), err)
	}

	_, err = run(`{"search_url":"https://app.apollo.io/x","email":"a@b.co","leads":1000}`)
	if err != nil {
		t.Fatalf("expected valid body, got %v", err)
	}
}
