package looker

import "fmt"

// WriteQuery is the body of a create-query call
type WriteQuery struct {
	Model   string            `json:"model"`
	View    string            `json:"view"`
	Fields  []string          `json:"fields"`
	Filters map[string]string `json:"filters,omitempty"`
	Sorts   []string          `json:"sorts,omitempty"`
	Limit   string            `json:"limit,omitempty"`
}

// APIError is returned for non-2xx responses
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.Status, e.Body)
}

type exploreField struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Hidden      bool     `json:"hidden"`
}

type exploreResponse struct {
	Fields struct {
		Dimensions []exploreField `json:"dimensions"`
		Measures   []exploreField `json:"measures"`
	} `json:"fields"`
}
