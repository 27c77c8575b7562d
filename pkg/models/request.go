// pkg/models/request.go
package models

import "net/http"

// Request describes a resource to fetch. Two Requests with identical URL
// strings are considered the same resource for deduplication purposes
// regardless of Method/Header differences — a deliberate simplification
// the coordinator relies on (see Fingerprint).
type Request struct {
	URL    string
	Method string
	Header http.Header
}

// NewRequest builds a Request defaulting Method to GET.
func NewRequest(url string) *Request {
	return &Request{URL: url, Method: http.MethodGet, Header: http.Header{}}
}

// Fingerprint is the request's dedup/cache identity: the absolute URL
// string, ignoring Method and Header.
func (r *Request) Fingerprint() string {
	return r.URL
}

// Response is the uniform success carrier returned by a RequestRunner.
type Response struct {
	Request     *Request
	StatusCode  int
	Header      http.Header
	Body        []byte
	MIMEType    string
}

// Credential is attached to every outgoing request by the coordinator's
// configured RequestRunner. The core never stores or interprets it beyond
// handing it to the runner.
type Credential struct {
	Header string // header name, e.g. "Authorization"
	Value  string
}
