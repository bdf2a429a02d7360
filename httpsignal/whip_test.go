package httpsignal

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNegotiator struct {
	answer     []byte
	resourceID string
	err        error
}

func (f *fakeNegotiator) Negotiate(offer []byte) ([]byte, string, error) {
	return f.answer, f.resourceID, f.err
}

type fakeTerminator struct {
	terminated []string
}

func (f *fakeTerminator) Terminate(resourceID string) error {
	f.terminated = append(f.terminated, resourceID)
	return nil
}

func TestWhipPostReturnsCreatedWithLocation(t *testing.T) {
	neg := &fakeNegotiator{answer: []byte("v=0\r\n"), resourceID: "abc123"}
	h := NewHandler("/whip", neg, &fakeTerminator{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/whip", strings.NewReader("v=0\r\n"))
	req.Header.Set("Content-Type", "application/sdp")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/whip/abc123", rec.Header().Get("Location"))
	assert.Equal(t, "application/sdp", rec.Header().Get("Content-Type"))
	assert.Equal(t, "v=0\r\n", rec.Body.String())
}

func TestWhipPostRejectsWrongContentType(t *testing.T) {
	h := NewHandler("/whip", &fakeNegotiator{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/whip", strings.NewReader("irrelevant"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestWhipDeleteTerminatesKnownResource(t *testing.T) {
	neg := &fakeNegotiator{answer: []byte("v=0\r\n"), resourceID: "abc123"}
	term := &fakeTerminator{}
	h := NewHandler("/whip", neg, term, nil)

	postReq := httptest.NewRequest(http.MethodPost, "/whip", strings.NewReader("v=0\r\n"))
	postReq.Header.Set("Content-Type", "application/sdp")
	h.ServeHTTP(httptest.NewRecorder(), postReq)

	delReq := httptest.NewRequest(http.MethodDelete, "/whip/abc123", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, delReq)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"abc123"}, term.terminated)
}

func TestWhipDeleteUnknownResourceReturns404(t *testing.T) {
	h := NewHandler("/whip", &fakeNegotiator{}, &fakeTerminator{}, nil)

	req := httptest.NewRequest(http.MethodDelete, "/whip/nope", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterMatchesFirstRegisteredPattern(t *testing.T) {
	rt := NewRouter()
	rt.Handle("^/whip", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rt.Handle("^/.*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/whip", nil)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
}
