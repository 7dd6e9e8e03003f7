package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

type Response struct {
	StatusCode int
	Status     string
	// Headers holds the first value of every response header.
	Headers map[string]string
	// RawHeaders keeps repeated headers such as Set-Cookie.
	RawHeaders http.Header
	Body       []byte
	Duration   time.Duration
}

func NewResponse(statusCode int, status string, header http.Header, body []byte, duration time.Duration) *Response {
	headers := make(map[string]string, len(header))
	for k := range header {
		headers[k] = header.Get(k)
	}
	return &Response{
		StatusCode: statusCode,
		Status:     status,
		Headers:    headers,
		RawHeaders: header.Clone(),
		Body:       body,
		Duration:   duration,
	}
}

func (r *Response) BodyString() string {
	return string(r.Body)
}

func (r *Response) BodyJSON() (any, error) {
	var result any
	if err := json.Unmarshal(r.Body, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Response) Header(key string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// HeaderValues returns every value of a header, matching the name
// case-insensitively.
func (r *Response) HeaderValues(key string) []string {
	var values []string
	for k, v := range r.RawHeaders {
		if strings.EqualFold(k, key) {
			values = append(values, v...)
		}
	}
	if len(values) == 0 {
		if v := r.Header(key); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// Cookie looks up a cookie set by the response. Names compare
// case-insensitively.
func (r *Response) Cookie(name string) (string, bool) {
	for _, line := range r.HeaderValues("Set-Cookie") {
		cookie, err := http.ParseSetCookie(line)
		if err != nil {
			continue
		}
		if strings.EqualFold(cookie.Name, name) {
			return cookie.Value, true
		}
	}
	return "", false
}

func (r *Response) ContentType() string {
	return r.Header("Content-Type")
}

func (r *Response) IsJSON() bool {
	ct := r.ContentType()
	return strings.Contains(ct, "application/json") || strings.Contains(ct, "+json")
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Response) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500
}

func (r *Response) DurationMs() int64 {
	return r.Duration.Milliseconds()
}
