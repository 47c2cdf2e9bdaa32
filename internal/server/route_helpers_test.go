package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRouteByMethod_MatchingMethod(t *testing.T) {
	called := false
	routes := MethodRouter{
		"GET": func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		},
	}

	w := httptest.NewRecorder()
	RouteByMethod(w, httptest.NewRequest("GET", "/test", nil), routes)

	if !called {
		t.Error("expected GET handler to be called")
	}
}

func TestRouteByMethod_HeadUsesGet(t *testing.T) {
	called := false
	routes := MethodRouter{
		"GET": func(w http.ResponseWriter, r *http.Request) { called = true },
	}

	w := httptest.NewRecorder()
	RouteByMethod(w, httptest.NewRequest("HEAD", "/test", nil), routes)

	if !called {
		t.Error("expected HEAD to fall back to the GET handler")
	}
}

func TestRouteByMethod_NoMatchingMethod(t *testing.T) {
	routes := MethodRouter{
		"GET": func(w http.ResponseWriter, r *http.Request) {
			t.Error("GET handler should not be called")
		},
		"DELETE": func(w http.ResponseWriter, r *http.Request) {},
	}

	w := httptest.NewRecorder()
	RouteByMethod(w, httptest.NewRequest("POST", "/test", nil), routes)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", w.Code)
	}
	if got := w.Header().Get("Allow"); got != "DELETE, GET, HEAD" {
		t.Errorf("unexpected Allow header %q", got)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected a JSON body: %v", err)
	}
	if body["error"] != "method not allowed" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestRouteResourceCollection(t *testing.T) {
	var got string
	list := func(w http.ResponseWriter, r *http.Request) { got = "list" }
	create := func(w http.ResponseWriter, r *http.Request) { got = "create" }

	for method, want := range map[string]string{"GET": "list", "POST": "create"} {
		got = ""
		RouteResourceCollection(httptest.NewRecorder(), httptest.NewRequest(method, "/items", nil), list, create)
		if got != want {
			t.Errorf("%s: expected %s handler, got %q", method, want, got)
		}
	}
}

func TestRouteResourceItem_NilHandlersAreNotAllowed(t *testing.T) {
	delCalled := false
	del := func(w http.ResponseWriter, r *http.Request) { delCalled = true }

	w := httptest.NewRecorder()
	RouteResourceItem(w, httptest.NewRequest("DELETE", "/items/1", nil), nil, nil, del)
	if !delCalled {
		t.Error("expected delete handler to be called")
	}

	w = httptest.NewRecorder()
	RouteResourceItem(w, httptest.NewRequest("GET", "/items/1", nil), nil, nil, del)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET without a handler, got %d", w.Code)
	}
	if got := w.Header().Get("Allow"); got != "DELETE" {
		t.Errorf("unexpected Allow header %q", got)
	}
}
