package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/matryer/is"
)

func TestCORSPreflightIsAnswered(t *testing.T) {
	is := is.New(t)

	r := New("test", "json")
	r.Get("/{entityName}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodOptions, "/books", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	is.True(w.Header().Get("Access-Control-Allow-Origin") != "") // preflight should be allowed
}

func TestPanicInHandlerIsRecovered(t *testing.T) {
	is := is.New(t)

	r := New("test", "text")
	r.Get("/{entityName}", func(w http.ResponseWriter, r *http.Request) {
		panic("handler failed")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/books", nil))

	is.Equal(w.Code, http.StatusInternalServerError) // panics should not escape the request logger
}
