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
	// DefaultMaxPageSize caps page_size to keep list queries bounded.
	DefaultMaxPageSize = 100

	maxFilterValues      = 10
	maxFilterValueLength = 64
)

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid page_size")
	ErrInvalidFilter    = errors.New("pagination: invalid filter")
	ErrInvalidPageToken = errors.New("pagination: invalid page_token")
)

// Params bundles the paging window and list filters extracted from a request.
type Params struct {
	PageSize  int
	PageToken string
	Filters   map[string][]string
}

// Values returns the normalised values supplied for a filter field.
func (p Params) Values(field string) []string {
	return p.Filters[field]
}

// Options control how Parse behaves for a given list endpoint.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
	// FilterFields lists the query keys accepted as comma separated, case-insensitive value sets.
	FilterFields []string
}

// FromRequest parses the supported query parameters from the supplied request.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse reads page_size, page_token and the configured filter fields.
// A non-positive page_size falls back to the default; oversized values are clamped.
// The page token is passed through untouched and decoded by the repository that issued it.
func Parse(values url.Values, opts Options) (Params, error) {
	if values == nil {
		values = url.Values{}
	}

	pageSize, err := parsePageSize(values.Get("page_size"), opts)
	if err != nil {
		return Params{}, err
	}

	params := Params{
		PageSize:  pageSize,
		PageToken: strings.TrimSpace(values.Get("page_token")),
	}

	for _, field := range opts.FilterFields {
		parsed, err := parseFilterValues(values[field])
		if err != nil {
			return Params{}, fmt.Errorf("%w: %s %v", ErrInvalidFilter, field, err)
		}
		if len(parsed) == 0 {
			continue
		}
		if params.Filters == nil {
			params.Filters = make(map[string][]string, len(opts.FilterFields))
		}
		params.Filters[field] = parsed
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

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultPageSize, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
	}
	switch {
	case value <= 0:
		return defaultPageSize, nil
	case value > maxPageSize:
		return maxPageSize, nil
	}
	return value, nil
}

func parseFilterValues(values []string) ([]string, error) {
	result := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			if !isAllowedValue(part) {
				return nil, fmt.Errorf("unsupported value %q", part)
			}
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			result = append(result, part)
		}
	}
	if len(result) > maxFilterValues {
		return nil, fmt.Errorf("at most %d values allowed", maxFilterValues)
	}
	return result, nil
}

func isAllowedValue(value string) bool {
	if len(value) > maxFilterValueLength {
		return false
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}
