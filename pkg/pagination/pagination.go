// Package pagination reads limit/offset query parameters and builds the page
// envelope returned by list endpoints.
package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Params struct {
	Limit  int
	Offset int
}

// FromContext reads limit and offset, clamping limit to [1, MaxLimit] and
// offset to zero or more. Malformed values fall back to the defaults.
func FromContext(c echo.Context) Params {
	p := Params{Limit: DefaultLimit}
	if n, err := strconv.Atoi(c.QueryParam("limit")); err == nil && n > 0 {
		p.Limit = min(n, MaxLimit)
	}
	if n, err := strconv.Atoi(c.QueryParam("offset")); err == nil && n > 0 {
		p.Offset = n
	}
	return p
}

func (p Params) next(total int) (int, bool) {
	return p.Offset + p.Limit, p.Offset+p.Limit < total
}

func (p Params) prev() (int, bool) {
	return max(p.Offset-p.Limit, 0), p.Offset > 0
}

// Response is one page of a list plus the total across all pages.
type Response struct {
	Items   interface{} `json:"items"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
	Next    string      `json:"next,omitempty"`
	Prev    string      `json:"previous,omitempty"`
}

func NewResponse(items interface{}, total, limit, offset int) *Response {
	_, more := Params{Limit: limit, Offset: offset}.next(total)
	return &Response{
		Items:   items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: more,
	}
}

// WithLinks fills Next and Prev from path and query. The caller's filters are
// kept; only limit and offset change.
func (r *Response) WithLinks(path string, query url.Values) *Response {
	p := Params{Limit: r.Limit, Offset: r.Offset}
	if off, ok := p.next(r.Total); ok {
		r.Next = link(path, query, r.Limit, off)
	}
	if off, ok := p.prev(); ok {
		r.Prev = link(path, query, r.Limit, off)
	}
	return r
}

func link(path string, query url.Values, limit, offset int) string {
	q := url.Values{}
	for k, v := range query {
		if k != "limit" && k != "offset" {
			q[k] = v
		}
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	return path + "?" + q.Encode()
}
