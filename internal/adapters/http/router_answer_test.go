package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/antonkh/knowledge-qa/internal/core/domain"
)

type stubAnswerService struct {
	answer *domain.Answer
	err    error
	req    domain.AskRequest
}

func (s *stubAnswerService) Answer(_ context.Context, req domain.AskRequest) (*domain.Answer, error) {
	s.req = req
	return s.answer, s.err
}

func postAnswer(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/answer", bytes.NewReader([]byte(body)))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestPostAnswerReturnsAnswer(t *testing.T) {
	svc := &stubAnswerService{answer: &domain.Answer{
		Text:     "the refund window is 30 days",
		Provider: "ollama",
		Evidence: []domain.RerankedResult{{ID: "c-1", Text: "refunds", FinalRank: 1}},
		Variants: 2,
	}}
	handler := NewRouter(svc, nil, RouterConfig{}).Handler()

	res := postAnswer(t, handler, `{"question":"what is the refund window?","conversation_id":"c-9","top_k":3}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if svc.req.Question != "what is the refund window?" || svc.req.ConversationID != "c-9" || svc.req.TopK != 3 {
		t.Fatalf("unexpected request forwarded: %+v", svc.req)
	}

	var resp domain.Answer
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Text != "the refund window is 30 days" || len(resp.Evidence) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if res.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected request id header")
	}
}

func TestPostAnswerValidation(t *testing.T) {
	svc := &stubAnswerService{answer: &domain.Answer{}}
	handler := NewRouter(svc, nil, RouterConfig{}).Handler()

	if res := postAnswer(t, handler, `{"question":"  "}`); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank question, got %d", res.Code)
	}
	if res := postAnswer(t, handler, `not json`); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid json, got %d", res.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/answer", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", res.Code)
	}
}

func TestPostAnswerErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", domain.WrapError(domain.ErrInvalidInput, "answer", nil), http.StatusBadRequest},
		{"rejected", domain.WrapError(domain.ErrRejected, "generate", nil), http.StatusUnprocessableEntity},
		{"retrieval unavailable", domain.WrapError(domain.ErrRetrievalUnavailable, "retrieve", nil), http.StatusServiceUnavailable},
		{"generation unavailable", domain.WrapError(domain.ErrGenerationUnavailable, "generate", nil), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubAnswerService{err: tc.err}
			handler := NewRouter(svc, nil, RouterConfig{}).Handler()

			res := postAnswer(t, handler, `{"question":"q"}`)
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	handler := NewRouter(&stubAnswerService{}, nil, RouterConfig{}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}
