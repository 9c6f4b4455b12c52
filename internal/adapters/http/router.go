package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/antonkh/knowledge-qa/internal/core/domain"
	"github.com/antonkh/knowledge-qa/internal/core/ports"
	"github.com/antonkh/knowledge-qa/internal/observability/metrics"
)

// RouterConfig bounds the traffic-control middleware.
type RouterConfig struct {
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxInFlight      int
	BackpressureWait time.Duration
}

type Router struct {
	answer  ports.AnswerService
	metrics *metrics.Metrics
	cfg     RouterConfig
}

func NewRouter(answer ports.AnswerService, m *metrics.Metrics, cfg RouterConfig) *Router {
	return &Router{answer: answer, metrics: m, cfg: cfg}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/answer", rt.postAnswer)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.cfg.MaxInFlight > 0 {
		handler = backpressureMiddleware(handler, rt.cfg.MaxInFlight, rt.cfg.BackpressureWait)
	}
	if rt.cfg.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	}
	handler = metricsMiddleware(handler, rt.metrics)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type answerRequest struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversation_id"`
	TopK           int    `json:"top_k"`
}

func (rt *Router) postAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	answer, err := rt.answer.Answer(r.Context(), domain.AskRequest{
		Question:       req.Question,
		ConversationID: req.ConversationID,
		TopK:           req.TopK,
	})
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
