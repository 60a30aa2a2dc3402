package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/starter-billing/pkg/errors"
)

type periodRequest struct {
	BillingPeriod string `json:"billing_period" validate:"required,billing_period"`
	Amount        string `json:"amount" validate:"omitempty,positive_amount"`
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"billing_period":"yearly","amount":"50.00"}`))
	var body periodRequest
	if err := DecodeJSONBody(req, &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body.BillingPeriod != "yearly" {
		t.Fatalf("unexpected period %s", body.BillingPeriod)
	}
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"billing_period":"weekly","amount":"-1"}`))
	var body periodRequest
	err := DecodeJSONBody(req, &body)
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error got %v", err)
	}
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details got %T", pkgerrors.As(err).Details())
	}
	if details["billing_period"] != "must be monthly or yearly" {
		t.Fatalf("unexpected billing_period detail %q", details["billing_period"])
	}
	if details["amount"] != "must be a positive decimal amount" {
		t.Fatalf("unexpected amount detail %q", details["amount"])
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"billing_period":"monthly","plan":"pro"}`))
	var body periodRequest
	if err := DecodeJSONBody(req, &body); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error got %v", err)
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=10&bad=x&big=500", nil)
	if v, err := ParseQueryInt(req, "limit", 25, 1, 100); err != nil || v != 10 {
		t.Fatalf("expected 10 got %d (%v)", v, err)
	}
	if v, err := ParseQueryInt(req, "missing", 25, 1, 100); err != nil || v != 25 {
		t.Fatalf("expected default 25 got %d (%v)", v, err)
	}
	if _, err := ParseQueryInt(req, "bad", 25, 1, 100); err == nil {
		t.Fatal("expected error for non numeric value")
	}
	if _, err := ParseQueryInt(req, "big", 25, 1, 100); err == nil {
		t.Fatal("expected error for out of range value")
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  np-123  ", 0); got != "np-123" {
		t.Fatalf("unexpected %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Fatalf("unexpected %q", got)
	}
}
