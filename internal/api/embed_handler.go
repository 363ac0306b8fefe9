package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	applog "fundseek/internal/platform/log"
	"fundseek/internal/worker"
)

// EmbedHandler 向量化任务批处理端点
type EmbedHandler struct {
	worker *worker.Worker
}

// NewEmbedHandler 创建向量化处理器
func NewEmbedHandler(w *worker.Worker) *EmbedHandler {
	return &EmbedHandler{worker: w}
}

// RegisterRoutes 注册路由
func (h *EmbedHandler) RegisterRoutes(r chi.Router) {
	r.Post("/embed", h.Embed)
}

// Embed 接收一批任务描述并串行处理。逐任务结果写在响应体，
// 汇总数写在 x-completed-jobs / x-failed-jobs 头。
func (h *EmbedHandler) Embed(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		writeError(w, http.StatusUnsupportedMediaType, "expected application/json body")
		return
	}

	var jobs []worker.Job
	if err := json.NewDecoder(r.Body).Decode(&jobs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid job batch")
		return
	}

	report := h.worker.Process(r.Context(), jobs)
	if len(report.FailedJobs) > 0 {
		applog.Warn("[API] Embedding batch finished with failures",
			"completed", len(report.CompletedJobs), "failed", len(report.FailedJobs))
	}

	w.Header().Set("x-completed-jobs", strconv.Itoa(len(report.CompletedJobs)))
	w.Header().Set("x-failed-jobs", strconv.Itoa(len(report.FailedJobs)))
	writeJSON(w, http.StatusOK, report)
}
