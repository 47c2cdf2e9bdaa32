package server

import (
	"net/http"
	"sort"
	"strings"

	"github.com/bobmcallan/elida-portal/internal/handlers"
)

// RouteHandler is a function type for HTTP handlers.
type RouteHandler func(http.ResponseWriter, *http.Request)

// MethodRouter maps HTTP methods to handlers.
type MethodRouter map[string]RouteHandler

// allowed lists the methods a router serves, for the Allow header.
func (m MethodRouter) allowed() string {
	methods := make([]string, 0, len(m)+1)
	for method := range m {
		methods = append(methods, method)
	}
	if _, ok := m[http.MethodGet]; ok {
		if _, ok := m[http.MethodHead]; !ok {
			methods = append(methods, http.MethodHead)
		}
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}

// RouteByMethod routes requests based on HTTP method. HEAD falls back to the
// GET handler; anything else unmatched gets a JSON 405 with an Allow header.
func RouteByMethod(w http.ResponseWriter, r *http.Request, routes MethodRouter) {
	handler, ok := routes[r.Method]
	if !ok && r.Method == http.MethodHead {
		handler, ok = routes[http.MethodGet]
	}
	if !ok {
		w.Header().Set("Allow", routes.allowed())
		handlers.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	handler(w, r)
}

// RouteResourceCollection handles the list + create pattern.
// GET -> list, POST -> create.
func RouteResourceCollection(w http.ResponseWriter, r *http.Request, list, create RouteHandler) {
	RouteByMethod(w, r, resourceRoutes(map[string]RouteHandler{
		http.MethodGet:  list,
		http.MethodPost: create,
	}))
}

// RouteResourceItem handles the get + update + delete pattern.
// GET -> get, PUT -> update, DELETE -> delete.
func RouteResourceItem(w http.ResponseWriter, r *http.Request, get, update, del RouteHandler) {
	RouteByMethod(w, r, resourceRoutes(map[string]RouteHandler{
		http.MethodGet:    get,
		http.MethodPut:    update,
		http.MethodDelete: del,
	}))
}

// resourceRoutes drops nil handlers so their methods answer 405.
func resourceRoutes(in map[string]RouteHandler) MethodRouter {
	routes := make(MethodRouter, len(in))
	for method, h := range in {
		if h != nil {
			routes[method] = h
		}
	}
	return routes
}
