package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize is used when the client omits page_size.
	DefaultPageSize = 20
	// DefaultMaxPageSize caps page_size to prevent unbounded queries.
	DefaultMaxPageSize = 100

	maxFilterValueLength = 64
	maxPageTokenLength   = 1024
)

// Params bundles the list parameters extracted from a request. PageToken is opaque here; each
// repository decodes its own token format.
type Params struct {
	PageSize  int
	PageToken string
	Filters   map[string][]string
}

// Options control how Parse behaves for a given handler.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
	// FilterFields names the multi-value query parameters accepted as filters.
	FilterFields []string
}

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid page_size")
	ErrInvalidFilter    = errors.New("pagination: invalid filter")
	ErrInvalidPageToken = errors.New("pagination: invalid page_token")
)

// FromRequest parses the supported query parameters from the supplied request.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse reads page_size, page_token and the configured filter fields.
func Parse(values url.Values, opts Options) (Params, error) {
	if values == nil {
		values = url.Values{}
	}

	pageSize, err := parsePageSize(values.Get("page_size"), opts)
	if err != nil {
		return Params{}, err
	}
	params := Params{PageSize: pageSize}

	token := strings.TrimSpace(values.Get("page_token"))
	if len(token) > maxPageTokenLength {
		return Params{}, fmt.Errorf("%w: too long", ErrInvalidPageToken)
	}
	params.PageToken = token

	for _, field := range opts.FilterFields {
		filters, err := parseFilterValues(field, values[field])
		if err != nil {
			return Params{}, err
		}
		if len(filters) == 0 {
			continue
		}
		if params.Filters == nil {
			params.Filters = make(map[string][]string, len(opts.FilterFields))
		}
		params.Filters[field] = filters
	}
	return params, nil
}

func parsePageSize(raw string, opts Options) (int, error) {
	maxPageSize := opts.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}

	defaultPageSize := opts.DefaultPageSize
	if defaultPageSize <= 0 {
		defaultPageSize = DefaultPageSize
	}
	if defaultPageSize > maxPageSize {
		defaultPageSize = maxPageSize
	}

	if strings.TrimSpace(raw) == "" {
		return defaultPageSize, nil
	}

	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
	}
	if value <= 0 {
		return defaultPageSize, nil
	}
	if value > maxPageSize {
		value = maxPageSize
	}
	return value, nil
}

// parseFilterValues accepts repeated and comma separated values, lowercased and deduplicated
// in first-seen order.
func parseFilterValues(field string, values []string) ([]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			value := strings.ToLower(strings.TrimSpace(part))
			if value == "" {
				continue
			}
			if len(value) > maxFilterValueLength {
				return nil, fmt.Errorf("%w: %s value too long", ErrInvalidFilter, field)
			}
			if _, ok := seen[value]; ok {
				continue
			}
			seen[value] = struct{}{}
			out = append(out, value)
		}
	}
	return out, nil
}
