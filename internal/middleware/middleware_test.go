package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/qwestard/dispatch/internal/audit"
)

type recorder struct{ recs []audit.Record }

func (r *recorder) Log(rec audit.Record) { r.recs = append(r.recs, rec) }

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }

func TestBasicAuthOnlyForListedMethods(t *testing.T) {
	h := BasicAuthMiddleware("admin", "secret", http.MethodPost)(http.HandlerFunc(ok))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/board/day", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	req.SetBasicAuth("admin", "secret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestLogMiddlewareAuditsListedMethods(t *testing.T) {
	log, _ := test.NewNullLogger()
	rec := &recorder{}
	h := RequestIDMiddleware(LogMiddleware(log, rec, http.MethodPost)(http.HandlerFunc(ok)))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/board/week", nil))
	assert.Empty(t, rec.recs)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/board/week/move?id=1", nil))
	require.Len(t, rec.recs, 1)
	assert.Equal(t, "/board/week/move", rec.recs[0].Endpoint)
	assert.Equal(t, "POST /board/week/move?id=1", rec.recs[0].Request)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRequestIDIsKept(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "abc", seen)
}
