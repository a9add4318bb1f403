package pagination

import (
	"errors"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size %d got %d", DefaultPageSize, params.PageSize)
	}
	if params.PageToken != "" {
		t.Fatalf("expected empty page token got %q", params.PageToken)
	}
	if params.Filters != nil {
		t.Fatalf("expected nil filters, got %#v", params.Filters)
	}
}

func TestParsePageSize(t *testing.T) {
	opts := Options{DefaultPageSize: 25, MaxPageSize: 40}
	cases := map[string]int{
		"30":  30,
		"400": 40,
		"0":   25,
		"-3":  25,
		" 7 ": 7,
	}
	for raw, want := range cases {
		params, err := Parse(url.Values{"page_size": {raw}}, opts)
		if err != nil {
			t.Fatalf("page_size %q: Parse returned error: %v", raw, err)
		}
		if params.PageSize != want {
			t.Fatalf("page_size %q: expected %d got %d", raw, want, params.PageSize)
		}
	}
}

func TestParseDefaultClampedToMax(t *testing.T) {
	params, err := Parse(nil, Options{DefaultPageSize: 80, MaxPageSize: 50})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 50 {
		t.Fatalf("expected default clamped to 50 got %d", params.PageSize)
	}
}

func TestParseInvalidPageSize(t *testing.T) {
	_, err := Parse(url.Values{"page_size": {"abc"}}, Options{})
	if !errors.Is(err, ErrInvalidPageSize) {
		t.Fatalf("expected ErrInvalidPageSize got %v", err)
	}
}

func TestParsePageTokenIsOpaque(t *testing.T) {
	params, err := Parse(url.Values{"page_token": {" 40 "}}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageToken != "40" {
		t.Fatalf("expected trimmed token %q got %q", "40", params.PageToken)
	}

	long := strings.Repeat("x", maxPageTokenLength+1)
	if _, err := Parse(url.Values{"page_token": {long}}, Options{}); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken got %v", err)
	}
}

func TestParseFilters(t *testing.T) {
	values := url.Values{
		"status": {"Shipped, pending", "shipped", ""},
		"seller": {"ignored"},
	}
	params, err := Parse(values, Options{FilterFields: []string{"status"}})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	want := map[string][]string{"status": {"shipped", "pending"}}
	if !reflect.DeepEqual(params.Filters, want) {
		t.Fatalf("expected filters %#v got %#v", want, params.Filters)
	}
}

func TestParseFiltersInvalid(t *testing.T) {
	values := url.Values{"status": {strings.Repeat("a", maxFilterValueLength+1)}}
	_, err := Parse(values, Options{FilterFields: []string{"status"}})
	if !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter got %v", err)
	}
}

func TestFromRequest(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "/seller/payments?page_size=5&page_token=abc&status=due", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	params, err := FromRequest(req, Options{FilterFields: []string{"status"}})
	if err != nil {
		t.Fatalf("FromRequest returned error: %v", err)
	}
	if params.PageSize != 5 || params.PageToken != "abc" {
		t.Fatalf("unexpected params %#v", params)
	}
	if got := params.Filters["status"]; !reflect.DeepEqual(got, []string{"due"}) {
		t.Fatalf("expected status filter [due] got %#v", got)
	}

	if _, err := FromRequest(nil, Options{}); err == nil {
		t.Fatal("expected error for nil request")
	}
}
