package explore

import (
	"net/url"
	"strings"
)

// DefaultLimit is the row limit used when running a query without one
const DefaultLimit = "1000"

// Filter is a single f[field]=expression pair
type Filter struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Param is a key/value pair kept verbatim (column_limit, toggle, ...)
type Param struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// QueryParams holds the parts of an explore URL the assistant cares about
type QueryParams struct {
	Fields  []string `json:"fields"`
	Filters []Filter `json:"filters,omitempty"`
	Sorts   []string `json:"sorts,omitempty"`
	Limit   string   `json:"limit,omitempty"`
	Vis     string   `json:"vis,omitempty"`
	Extra   []Param  `json:"extra,omitempty"`
}

// Parse reads an explore parameter string. Model output is not reliably
// percent-encoded, so parsing is lenient: bad escapes are kept literally and
// semicolons are not separators.
func Parse(args string) QueryParams {
	var q QueryParams

	args = strings.TrimPrefix(strings.TrimSpace(args), "?")

	for _, part := range strings.Split(args, "&") {
		if part == "" {
			continue
		}

		rawKey, rawValue, _ := strings.Cut(part, "=")
		key := strings.TrimSpace(unescape(rawKey))
		value := unescape(rawValue)

		switch {
		case key == "fields":
			q.Fields = append(q.Fields, splitList(value)...)
		case key == "sorts":
			q.Sorts = append(q.Sorts, splitList(value)...)
		case key == "limit":
			q.Limit = strings.TrimSpace(value)
		case key == "vis":
			q.Vis = value
		case strings.HasPrefix(key, "f[") && strings.HasSuffix(key, "]"):
			q.Filters = append(q.Filters, Filter{
				Field: strings.TrimSpace(key[2 : len(key)-1]),
				Value: value,
			})
		default:
			q.Extra = append(q.Extra, Param{Key: key, Value: value})
		}
	}

	return q
}

// Encode renders the parameters in the form the explore viewer receives
func (q QueryParams) Encode() string {
	var parts []string

	if len(q.Fields) > 0 {
		parts = append(parts, "fields="+strings.Join(q.Fields, ","))
	}
	for _, f := range q.Filters {
		parts = append(parts, "f["+f.Field+"]="+f.Value)
	}
	if len(q.Sorts) > 0 {
		parts = append(parts, "sorts="+strings.Join(q.Sorts, ","))
	}
	if q.Limit != "" {
		parts = append(parts, "limit="+q.Limit)
	}
	if q.Vis != "" {
		parts = append(parts, "vis="+q.Vis)
	}
	for _, p := range q.Extra {
		parts = append(parts, p.Key+"="+p.Value)
	}

	return strings.Join(parts, "&")
}

// FilterMap returns the filters keyed by field; later duplicates win
func (q QueryParams) FilterMap() map[string]string {
	filters := make(map[string]string, len(q.Filters))
	for _, f := range q.Filters {
		filters[f.Field] = f.Value
	}
	return filters
}

// LimitOrDefault returns the limit, or def when none was generated
func (q QueryParams) LimitOrDefault(def string) string {
	if q.Limit == "" {
		return def
	}
	return q.Limit
}

// Href builds the viewer link for an explore
func Href(model, explore, args string) string {
	return "/explore/" + model + "/" + explore + "?" + args
}

func unescape(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}
	return s
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
