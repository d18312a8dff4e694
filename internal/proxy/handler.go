// Package proxy is the HTTP surface of the gateway. It decodes requests,
// enforces tenancy and rate limits, hands work to the modality services, and
// translates dispatch errors into the wire error shape.
package proxy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vnmchuo/inference-gateway/internal/auth"
	"github.com/vnmchuo/inference-gateway/internal/dispatch"
	"github.com/vnmchuo/inference-gateway/internal/hub"
	"github.com/vnmchuo/inference-gateway/internal/service"
	"github.com/vnmchuo/inference-gateway/internal/usage"
	"github.com/vnmchuo/inference-gateway/internal/worker"
	"github.com/vnmchuo/inference-gateway/pkg/ratelimit"
)

type Handler struct {
	text      *service.TextService
	image     *service.ImageService
	speech    *service.SpeechService
	embedding *service.EmbeddingService
	video     *service.VideoService
	usage     usage.Store
	limiter   *ratelimit.Limiter
	jobs      worker.Queue
	routes    *hub.RoutingTable
	models    map[string][]string // operation -> candidate chain, default first
	tracer    trace.Tracer
}

func NewHandler(
	text *service.TextService,
	image *service.ImageService,
	speech *service.SpeechService,
	embedding *service.EmbeddingService,
	video *service.VideoService,
	usageStore usage.Store,
	limiter *ratelimit.Limiter,
	jobs worker.Queue,
	routes *hub.RoutingTable,
	models map[string][]string,
	tracer trace.Tracer,
) *Handler {
	return &Handler{
		text:      text,
		image:     image,
		speech:    speech,
		embedding: embedding,
		video:     video,
		usage:     usageStore,
		limiter:   limiter,
		jobs:      jobs,
		routes:    routes,
		models:    models,
		tracer:    tracer,
	}
}

// HandleModels lists the candidate chain per operation, default model first,
// so clients can discover what a request without an explicit model will use.
func (h *Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	if auth.GetTenantID(r.Context()) == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": h.models})
}

type textGenerationRequest struct {
	Prompt         string  `json:"prompt"`
	Model          string  `json:"model"`
	MaxNewTokens   int     `json:"max_new_tokens"`
	Temperature    float64 `json:"temperature"`
	TopP           float64 `json:"top_p"`
	TopK           int     `json:"top_k"`
}

func (h *Handler) HandleTextGeneration(w http.ResponseWriter, r *http.Request) {
	tenantID, requestID, ok := h.prepare(w, r, "text")
	if !ok {
		return
	}

	var req textGenerationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	start := time.Now()
	result, err := h.text.Generate(r.Context(), service.GenerateTextParams{
		Prompt:       req.Prompt,
		Model:        req.Model,
		MaxNewTokens: req.MaxNewTokens,
		Temperature:  req.Temperature,
		TopP:         req.TopP,
		TopK:         req.TopK,
	})
	if err != nil {
		h.record(tenantID, requestID, "text", req.Model, 0, time.Since(start), err)
		writeError(w, err)
		return
	}
	h.record(tenantID, requestID, "text", result.Model, int64(len(result.Text)), result.Elapsed, nil)

	writeJSON(w, http.StatusOK, map[string]any{
		"id":         requestID,
		"model":      result.Model,
		"text":       result.Text,
		"elapsed_ms": result.Elapsed.Milliseconds(),
	})
}

type imageGenerationRequest struct {
	Prompt         string  `json:"prompt"`
	Model          string  `json:"model"`
	NegativePrompt string  `json:"negative_prompt"`
	Height         int     `json:"height"`
	Width          int     `json:"width"`
	Steps          int     `json:"num_inference_steps"`
	GuidanceScale  float64 `json:"guidance_scale"`
}

func (h *Handler) HandleImageGeneration(w http.ResponseWriter, r *http.Request) {
	tenantID, requestID, ok := h.prepare(w, r, "image")
	if !ok {
		return
	}

	var req imageGenerationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	start := time.Now()
	result, err := h.image.Generate(r.Context(), service.GenerateImageParams{
		Prompt:         req.Prompt,
		Model:          req.Model,
		NegativePrompt: req.NegativePrompt,
		Height:         req.Height,
		Width:          req.Width,
		Steps:          req.Steps,
		GuidanceScale:  req.GuidanceScale,
	})
	if err != nil {
		h.record(tenantID, requestID, "image", req.Model, 0, time.Since(start), err)
		writeError(w, err)
		return
	}
	h.record(tenantID, requestID, "image", result.Model, int64(len(result.Data)), result.Elapsed, nil)

	writeMedia(w, result)
}

type imageEditRequest struct {
	ImageB64       string  `json:"image_b64"`
	MaskB64        string  `json:"mask_b64"` // present: inpaint, absent: transform
	Prompt         string  `json:"prompt"`
	Model          string  `json:"model"`
	NegativePrompt string  `json:"negative_prompt"`
	Strength       float64 `json:"strength"`
	Steps          int     `json:"num_inference_steps"`
	GuidanceScale  float64 `json:"guidance_scale"`
}

func (h *Handler) HandleImageEdit(w http.ResponseWriter, r *http.Request) {
	tenantID, requestID, ok := h.prepare(w, r, "image")
	if !ok {
		return
	}

	var req imageEditRequest
	if !decodeBody(w, r, &req) {
		return
	}

	image, err := decodeB64(req.ImageB64, "image_b64")
	if err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	var result *service.MediaResult
	if req.MaskB64 != "" {
		var mask []byte
		if mask, err = decodeB64(req.MaskB64, "mask_b64"); err != nil {
			writeError(w, err)
			return
		}
		result, err = h.image.Inpaint(r.Context(), service.InpaintImageParams{
			Image:          image,
			Mask:           mask,
			Prompt:         req.Prompt,
			Model:          req.Model,
			NegativePrompt: req.NegativePrompt,
			Steps:          req.Steps,
			GuidanceScale:  req.GuidanceScale,
		})
	} else {
		result, err = h.image.Transform(r.Context(), service.TransformImageParams{
			Image:          image,
			Prompt:         req.Prompt,
			Model:          req.Model,
			NegativePrompt: req.NegativePrompt,
			Strength:       req.Strength,
			Steps:          req.Steps,
			GuidanceScale:  req.GuidanceScale,
		})
	}
	if err != nil {
		h.record(tenantID, requestID, "image", req.Model, 0, time.Since(start), err)
		writeError(w, err)
		return
	}
	h.record(tenantID, requestID, "image", result.Model, int64(len(result.Data)), result.Elapsed, nil)

	writeMedia(w, result)
}

type speechRequest struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

func (h *Handler) HandleSpeech(w http.ResponseWriter, r *http.Request) {
	tenantID, requestID, ok := h.prepare(w, r, "audio")
	if !ok {
		return
	}

	var req speechRequest
	if !decodeBody(w, r, &req) {
		return
	}

	start := time.Now()
	result, err := h.speech.Synthesize(r.Context(), service.SynthesizeParams{Text: req.Text, Model: req.Model})
	if err != nil {
		h.record(tenantID, requestID, "audio", req.Model, 0, time.Since(start), err)
		writeError(w, err)
		return
	}
	h.record(tenantID, requestID, "audio", result.Model, int64(len(result.Data)), result.Elapsed, nil)

	writeMedia(w, result)
}

type transcriptionRequest struct {
	AudioB64    string `json:"audio_b64"`
	ContentType string `json:"content_type"`
	Model       string `json:"model"`
	Language    string `json:"language"`
}

func (h *Handler) HandleTranscription(w http.ResponseWriter, r *http.Request) {
	tenantID, requestID, ok := h.prepare(w, r, "audio")
	if !ok {
		return
	}

	var req transcriptionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	audio, err := decodeB64(req.AudioB64, "audio_b64")
	if err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	result, err := h.speech.Transcribe(r.Context(), service.TranscribeParams{
		Audio:       audio,
		ContentType: req.ContentType,
		Model:       req.Model,
		Language:    req.Language,
	})
	if err != nil {
		h.record(tenantID, requestID, "audio", req.Model, 0, time.Since(start), err)
		writeError(w, err)
		return
	}
	h.record(tenantID, requestID, "audio", result.Model, int64(len(result.Text)), result.Elapsed, nil)

	writeJSON(w, http.StatusOK, map[string]any{
		"id":         requestID,
		"model":      result.Model,
		"text":       result.Text,
		"language":   result.Language,
		"confidence": result.Confidence,
		"elapsed_ms": result.Elapsed.Milliseconds(),
	})
}

type embeddingRequest struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

func (h *Handler) HandleEmbedding(w http.ResponseWriter, r *http.Request) {
	tenantID, requestID, ok := h.prepare(w, r, "embedding")
	if !ok {
		return
	}

	var req embeddingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	start := time.Now()
	result, err := h.embedding.Embed(r.Context(), service.EmbedParams{Text: req.Text, Model: req.Model})
	if err != nil {
		h.record(tenantID, requestID, "embedding", req.Model, 0, time.Since(start), err)
		writeError(w, err)
		return
	}
	h.record(tenantID, requestID, "embedding", result.Model, int64(result.Dimension()*8), result.Elapsed, nil)

	writeJSON(w, http.StatusOK, map[string]any{
		"id":         requestID,
		"model":      result.Model,
		"embedding":  result.Vector,
		"dimension":  result.Dimension(),
		"elapsed_ms": result.Elapsed.Milliseconds(),
	})
}

type videoGenerationRequest struct {
	Prompt         string `json:"prompt"`
	Model          string `json:"model"`
	NegativePrompt string `json:"negative_prompt"`
	Duration       int    `json:"duration_seconds"`
	FPS            int    `json:"fps"`
	Steps          int    `json:"num_inference_steps"`
	Async          bool   `json:"async"`
}

func (h *Handler) HandleVideoGeneration(w http.ResponseWriter, r *http.Request) {
	tenantID, requestID, ok := h.prepare(w, r, "video")
	if !ok {
		return
	}

	var req videoGenerationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	params := service.GenerateVideoParams{
		Prompt:         req.Prompt,
		Model:          req.Model,
		NegativePrompt: req.NegativePrompt,
		Duration:       req.Duration,
		FPS:            req.FPS,
		Steps:          req.Steps,
	}

	if req.Async {
		h.enqueueVideo(w, tenantID, "video.generate", func(ctx context.Context) (*service.MediaResult, error) {
			return h.video.Generate(ctx, params)
		})
		return
	}

	start := time.Now()
	result, err := h.video.Generate(r.Context(), params)
	if err != nil {
		h.record(tenantID, requestID, "video", req.Model, 0, time.Since(start), err)
		writeError(w, err)
		return
	}
	h.record(tenantID, requestID, "video", result.Model, int64(len(result.Data)), result.Elapsed, nil)

	writeMedia(w, result)
}

type videoAnimationRequest struct {
	ImageB64 string `json:"image_b64"`
	Prompt   string `json:"prompt"`
	Model    string `json:"model"`
	Duration int    `json:"duration_seconds"`
	FPS      int    `json:"fps"`
	Steps    int    `json:"num_inference_steps"`
	Async    bool   `json:"async"`
}

func (h *Handler) HandleVideoAnimation(w http.ResponseWriter, r *http.Request) {
	tenantID, requestID, ok := h.prepare(w, r, "video")
	if !ok {
		return
	}

	var req videoAnimationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	image, err := decodeB64(req.ImageB64, "image_b64")
	if err != nil {
		writeError(w, err)
		return
	}

	params := service.AnimateVideoParams{
		Image:    image,
		Prompt:   req.Prompt,
		Model:    req.Model,
		Duration: req.Duration,
		FPS:      req.FPS,
		Steps:    req.Steps,
	}

	if req.Async {
		h.enqueueVideo(w, tenantID, "video.animate", func(ctx context.Context) (*service.MediaResult, error) {
			return h.video.Animate(ctx, params)
		})
		return
	}

	start := time.Now()
	result, err := h.video.Animate(r.Context(), params)
	if err != nil {
		h.record(tenantID, requestID, "video", req.Model, 0, time.Since(start), err)
		writeError(w, err)
		return
	}
	h.record(tenantID, requestID, "video", result.Model, int64(len(result.Data)), result.Elapsed, nil)

	writeMedia(w, result)
}

func (h *Handler) enqueueVideo(w http.ResponseWriter, tenantID, kind string, task worker.Task) {
	job, err := h.jobs.Enqueue(context.Background(), tenantID, kind, task)
	if err != nil {
		if errors.Is(err, worker.ErrQueueFull) {
			writeError(w, dispatch.RateLimited("job queue is full", time.Minute))
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":     job.ID,
		"kind":       job.Kind,
		"status":     string(job.Status),
		"created_at": job.CreatedAt,
	})
}

func (h *Handler) HandleJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := auth.GetTenantID(ctx)
	if tenantID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	job, err := h.jobs.Get(ctx, tenantID, chi.URLParam(r, "jobID"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error": map[string]any{"code": "not_found", "message": "job not found"},
		})
		return
	}

	body := map[string]any{
		"job_id":     job.ID,
		"kind":       job.Kind,
		"status":     string(job.Status),
		"created_at": job.CreatedAt,
	}
	if job.Status == worker.StatusFailed && job.Err != nil {
		var derr *dispatch.Error
		if errors.As(job.Err, &derr) {
			body["error"] = map[string]any{"code": string(derr.Kind), "message": derr.Message, "details": derr.Details}
		} else {
			body["error"] = map[string]any{"code": string(dispatch.KindProcessing), "message": job.Err.Error()}
		}
	}
	if job.Status == worker.StatusDone && job.Result != nil {
		body["result"] = map[string]any{
			"model":        job.Result.Model,
			"content_type": job.Result.ContentType,
			"data_b64":     base64.StdEncoding.EncodeToString(job.Result.Data),
			"elapsed_ms":   job.Result.Elapsed.Milliseconds(),
		}
	}

	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := auth.GetTenantID(ctx)
	if tenantID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	now := time.Now()
	from := now.AddDate(0, 0, -30) // default: last 30 days
	to := now

	if fromStr := r.URL.Query().Get("from"); fromStr != "" {
		var err error
		if from, err = time.Parse(time.RFC3339, fromStr); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid 'from' date format (use RFC3339)"})
			return
		}
	}
	if toStr := r.URL.Query().Get("to"); toStr != "" {
		var err error
		if to, err = time.Parse(time.RFC3339, toStr); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid 'to' date format (use RFC3339)"})
			return
		}
	}

	records, err := h.usage.ByTenant(ctx, tenantID, from, to)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	summary, err := h.usage.SummaryByTenant(ctx, tenantID, from, to)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id":      tenantID,
		"total_requests": len(records),
		"records":        records,
		"summary":        summary,
		"from":           from,
		"to":             to,
	})
}

// prepare runs the shared front half of every dispatch route: tenancy,
// request ID, tracing, and the per-tenant rate limit.
func (h *Handler) prepare(w http.ResponseWriter, r *http.Request, modality string) (tenantID, requestID string, ok bool) {
	ctx := r.Context()
	tenantID = auth.GetTenantID(ctx)
	if tenantID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return "", "", false
	}

	requestID = auth.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	_, span := h.tracer.Start(ctx, "dispatch."+modality)
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("request_id", requestID),
		attribute.String("modality", modality),
	)

	allowed, err := h.limiter.Allow(ctx, tenantID)
	if err != nil || !allowed {
		writeError(w, dispatch.RateLimited("rate limit exceeded", time.Minute))
		return "", "", false
	}

	return tenantID, requestID, true
}

// record logs the dispatch outcome asynchronously.
func (h *Handler) record(tenantID, requestID, modality, model string, outputBytes int64, elapsed time.Duration, dispatchErr error) {
	status := "ok"
	if dispatchErr != nil {
		if kind := dispatch.KindOf(dispatchErr); kind != "" {
			status = string(kind)
		} else {
			status = "error"
		}
	}

	var provider string
	if model != "" {
		provider = h.routes.ProviderFor(model)
	}

	go func() {
		_ = h.usage.Record(context.Background(), &usage.Record{
			TenantID:    tenantID,
			RequestID:   requestID,
			Modality:    modality,
			Model:       model,
			Provider:    provider,
			OutputBytes: outputBytes,
			LatencyMs:   elapsed.Milliseconds(),
			Status:      status,
		})
	}()
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, dispatch.Validation("invalid request body", map[string]any{"reason": err.Error()}))
		return false
	}
	return true
}

func decodeB64(encoded, field string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, dispatch.Validation(fmt.Sprintf("%s is not valid base64", field), map[string]any{"field": field})
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeMedia(w http.ResponseWriter, result *service.MediaResult) {
	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("X-Model", result.Model)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// writeError maps a dispatch error onto the wire: its suggested status plus
// the {"error":{code,message,details}} envelope. Untyped errors surface as
// processing failures.
func writeError(w http.ResponseWriter, err error) {
	var derr *dispatch.Error
	if !errors.As(err, &derr) {
		derr = dispatch.Processing("dispatch", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	if derr.Kind == dispatch.KindRateLimited {
		if secs, ok := derr.Details["retry_after_seconds"].(float64); ok && secs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(secs)))
		}
	}
	w.WriteHeader(derr.Status())
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    string(derr.Kind),
			"message": derr.Message,
			"details": derr.Details,
		},
	})
}
