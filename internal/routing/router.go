package routing

import (
	"context"
	"log"
	"net/http"
	"runtime/debug"
)

// Router dispatches on exact paths first, then on registered
// {param} patterns in registration order. Matched parameter values are
// exposed through Param.
type Router struct {
	classifier *Classifier
	exact      map[string]map[string]routeEntry
	patterns   []patternEntry
}

type routeEntry struct {
	rc      RouteClass
	handler http.Handler
}

type patternEntry struct {
	pattern PathPattern
	methods map[string]routeEntry
}

type paramsKey struct{}

func NewRouter(classifier *Classifier) *Router {
	return &Router{
		classifier: classifier,
		exact:      make(map[string]map[string]routeEntry),
	}
}

func (r *Router) Handle(rc RouteClass, method string, path string, h http.Handler) {
	entry := routeEntry{rc: rc, handler: recoverWrap(rc, h)}

	if p, ok := ParsePathPattern(path); ok {
		for i := range r.patterns {
			if r.patterns[i].pattern.raw == path {
				r.patterns[i].methods[method] = entry
				return
			}
		}
		r.patterns = append(r.patterns, patternEntry{pattern: p, methods: map[string]routeEntry{method: entry}})
		return
	}

	if r.exact[path] == nil {
		r.exact[path] = make(map[string]routeEntry)
	}
	r.exact[path][method] = entry
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if methods, ok := r.exact[req.URL.Path]; ok {
		r.dispatch(w, req, methods, nil)
		return
	}
	for _, pe := range r.patterns {
		if params, ok := pe.pattern.Match(req.URL.Path); ok {
			r.dispatch(w, req, pe.methods, params)
			return
		}
	}
	WriteError(w, req, r.classifier.Classify(req.URL.Path), http.StatusNotFound, "not_found", "not found")
}

func (r *Router) dispatch(w http.ResponseWriter, req *http.Request, methods map[string]routeEntry, params map[string]string) {
	entry, ok := methods[req.Method]
	if !ok {
		WriteError(w, req, entrypointClass(methods, r.classifier.Classify(req.URL.Path)), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if params != nil {
		req = req.WithContext(context.WithValue(req.Context(), paramsKey{}, params))
	}
	entry.handler.ServeHTTP(w, req)
}

// Param returns the value captured for a {name} pattern segment, or ""
// when the route had no such parameter.
func Param(req *http.Request, name string) string {
	params, _ := req.Context().Value(paramsKey{}).(map[string]string)
	return params[name]
}

func recoverWrap(rc RouteClass, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("panic serving %s: %v\n%s", req.URL.Path, rec, debug.Stack())
				WriteError(w, req, rc, http.StatusInternalServerError, "internal_error", "internal error")
			}
		}()
		h.ServeHTTP(w, req)
	})
}

func entrypointClass(methods map[string]routeEntry, fallback RouteClass) RouteClass {
	for _, e := range methods {
		return e.rc
	}
	return fallback
}
