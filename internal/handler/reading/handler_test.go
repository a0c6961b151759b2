package reading

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/z-tarot/backend/internal/logging"
	readingService "github.com/zhouzirui/z-tarot/backend/internal/service/reading"
)

type stubService struct {
	err    error
	result readingService.Result
	seed   string
	mode   readingService.DrawMode
	homed  string
}

func (s *stubService) Start(context.Context) (readingService.View, error) {
	return readingService.View{SessionID: "new"}, s.err
}

func (s *stubService) Resume(_ context.Context, id string) (readingService.View, error) {
	return readingService.View{SessionID: id}, s.err
}

func (s *stubService) Begin(_ context.Context, id string, mode readingService.DrawMode) (readingService.View, error) {
	s.mode = mode
	return readingService.View{SessionID: id}, s.err
}

func (s *stubService) Shuffle(_ context.Context, id string) (readingService.View, error) {
	return readingService.View{SessionID: id}, s.err
}

func (s *stubService) DrawVirtual(_ context.Context, id, seed string) (readingService.View, error) {
	s.seed = seed
	return readingService.View{SessionID: id}, s.err
}

func (s *stubService) SwitchToVirtual(_ context.Context, id string) (readingService.View, error) {
	return readingService.View{SessionID: id}, s.err
}

func (s *stubService) Home(_ context.Context, id string) { s.homed = id }

func (s *stubService) Submit(context.Context, string, readingService.Submission) (readingService.Result, error) {
	return s.result, s.err
}

func setupRouter(svc *stubService) *chi.Mux {
	r := chi.NewRouter()
	New(svc, logging.Discard()).RegisterRoutes(r)
	return r
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestSubmitStatusFollowsResultKind(t *testing.T) {
	cases := map[readingService.ResultKind]int{
		readingService.ResultCommitted:        http.StatusOK,
		readingService.ResultValidationFailed: http.StatusUnprocessableEntity,
		readingService.ResultFlagged:          http.StatusConflict,
		readingService.ResultReplyUnparseable: http.StatusBadGateway,
		readingService.ResultGatewayExhausted: http.StatusBadGateway,
	}
	for kind, want := range cases {
		t.Run(string(kind), func(t *testing.T) {
			svc := &stubService{result: readingService.Result{Kind: kind}}
			resp := serve(setupRouter(svc), http.MethodPost, "/readings/abc/submit", `{"answers":["x"]}`)
			assert.Equal(t, want, resp.Code)
			assert.Contains(t, resp.Body.String(), `"sessionId"`)
		})
	}
}

func TestErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{readingService.ErrSessionNotFound, http.StatusNotFound},
		{readingService.ErrNotAwaitingInput, http.StatusConflict},
		{readingService.ErrAlreadyStarted, http.StatusConflict},
		{readingService.ErrDrawComplete, http.StatusConflict},
		{fmt.Errorf("%w: %q", readingService.ErrInvalidDrawMode, "x"), http.StatusBadRequest},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			resp := serve(setupRouter(&stubService{err: tc.err}), http.MethodGet, "/readings/abc", "")
			assert.Equal(t, tc.want, resp.Code)
		})
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	resp := serve(setupRouter(&stubService{err: errors.New("pq: password authentication failed")}), http.MethodPost, "/readings", "")
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.NotContains(t, resp.Body.String(), "password")
}

func TestRequestBodiesReachService(t *testing.T) {
	svc := &stubService{}
	r := setupRouter(svc)

	resp := serve(r, http.MethodPost, "/readings/abc/begin", `{"drawMode":"virtual"}`)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, readingService.DrawVirtual, svc.mode)

	resp = serve(r, http.MethodPost, "/readings/abc/draw", `{"seed":"s1"}`)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "s1", svc.seed)

	resp = serve(r, http.MethodPost, "/readings/abc/draw", `{"seed":"s1","extra":true}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = serve(r, http.MethodDelete, "/readings/abc/active", "")
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, "abc", svc.homed)

	resp = serve(r, http.MethodPost, "/readings", "")
	assert.Equal(t, http.StatusCreated, resp.Code)
}
