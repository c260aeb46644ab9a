package routing

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AlexKimmel/ratequota/internal/config"
)

type Route struct {
	ID      string
	Methods map[string]struct{}
	Prefix  string
	UpURL   *url.URL
	Timeout time.Duration
}

type Router struct {
	routes []*Route
}

func New() *Router {
	return &Router{}
}

// FromConfig builds a router from the routes section of the server config.
func FromConfig(routes []config.Routes) (*Router, error) {
	rr := New()
	for _, rc := range routes {
		u, err := url.Parse(rc.Upstream.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("%w: route %s: bad upstream url %q", config.ErrInvalidConfig, rc.ID, rc.Upstream.URL)
		}
		methods := make(map[string]struct{}, len(rc.Match.Methods))
		for _, m := range rc.Match.Methods {
			methods[strings.ToUpper(m)] = struct{}{}
		}
		rr.Add(&Route{
			ID:      rc.ID,
			Methods: methods,
			Prefix:  rc.Match.PathPrefix,
			UpURL:   u,
			Timeout: time.Duration(rc.Upstream.TimeoutMS) * time.Millisecond,
		})
	}
	return rr, nil
}

func (r *Router) Add(rt *Route) {
	r.routes = append(r.routes, rt)
}

func (r *Router) Routes() []*Route {
	return r.routes
}

// Match returns the first route whose method set and path prefix accept the request.
func (r *Router) Match(method string, path string) (*Route, bool) {
	m := strings.ToUpper(method)
	for _, rt := range r.routes {
		if _, ok := rt.Methods[m]; !ok {
			continue
		}
		prefix := strings.TrimSuffix(strings.TrimSpace(rt.Prefix), "/")
		if prefix == "" {
			return rt, true
		}
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return rt, true
		}
	}
	return nil, false
}

// --- context helpers ---
type ctxKey int

const (
	keyRoute ctxKey = iota
	keyHolder
)

// Holder lets a middleware that runs before route matching learn the matched route.
type Holder struct {
	route *Route
}

func NewHolder() *Holder { return &Holder{} }

func (h *Holder) Route() *Route { return h.route }

func WithHolder(r *http.Request, h *Holder) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), keyHolder, h))
}

func WithRoute(r *http.Request, rt *Route) *http.Request {
	if h, ok := r.Context().Value(keyHolder).(*Holder); ok {
		h.route = rt
	}
	ctx := context.WithValue(r.Context(), keyRoute, rt)
	return r.WithContext(ctx)
}

func RouteFrom(r *http.Request) (*Route, bool) {
	v := r.Context().Value(keyRoute)
	if v == nil {
		return nil, false
	}
	rt, ok := v.(*Route)
	return rt, ok
}
