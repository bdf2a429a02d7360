package httpsignal

import (
	"net/http"
	"regexp"
)

// Router matches a request path against registered patterns in
// insertion order, per spec.md §4.4: "the first match wins; unmatched
// paths reply 404."
type Router struct {
	routes []route
}

type route struct {
	pattern *regexp.Regexp
	handler http.Handler
}

// NewRouter creates an empty Router.
func NewRouter() *Router { return &Router{} }

// Handle registers handler for the first path matching pattern.
// Registration order determines match priority.
func (rt *Router) Handle(pattern string, handler http.Handler) {
	rt.routes = append(rt.routes, route{pattern: regexp.MustCompile(pattern), handler: handler})
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for _, rte := range rt.routes {
		if rte.pattern.MatchString(r.URL.Path) {
			rte.handler.ServeHTTP(w, r)
			return
		}
	}
	http.NotFound(w, r)
}
