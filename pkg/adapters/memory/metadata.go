package memory

import (
	"net/http"
	"net/url"
)

// Metadata is a plain ports.Metadata value.
type Metadata struct {
	Header http.Header
	Cookie map[string]string
	Query  url.Values
	Path   map[string]string
	Addr   string
}

func (m Metadata) Headers() http.Header {
	if m.Header == nil {
		return http.Header{}
	}
	return m.Header
}

func (m Metadata) Cookies() map[string]string {
	if m.Cookie == nil {
		return map[string]string{}
	}
	return m.Cookie
}

func (m Metadata) QueryParams() url.Values {
	if m.Query == nil {
		return url.Values{}
	}
	return m.Query
}

func (m Metadata) PathParams() map[string]string {
	if m.Path == nil {
		return map[string]string{}
	}
	return m.Path
}

func (m Metadata) RemoteAddr() string {
	return m.Addr
}
