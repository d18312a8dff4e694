// Package hub is the gateway's single handle to the Hugging Face inference
// router. One Client is constructed at startup, owns the API token and the
// HTTP transport, and is shared read-only by every modality service.
package hub

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vnmchuo/inference-gateway/internal/dispatch"
)

type Client struct {
	token    string
	baseURL  string
	httpc    *http.Client
	routes   *RoutingTable
	breakers map[string]*gobreaker.CircuitBreaker // per routing provider
}

// New builds the process-wide client. The breaker set is derived from the
// routing table and never mutated afterwards, so concurrent readers need no
// synchronization.
func New(token, baseURL string, timeout time.Duration, routes *RoutingTable) *Client {
	breakers := make(map[string]*gobreaker.CircuitBreaker)
	for _, prov := range routes.Providers() {
		settings := gobreaker.Settings{
			Name:        prov,
			MaxRequests: 3,
			Interval:    5 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}
		breakers[prov] = gobreaker.NewCircuitBreaker(settings)
	}

	return &Client{
		token:    token,
		baseURL:  baseURL,
		httpc:    &http.Client{Timeout: timeout},
		routes:   routes,
		breakers: breakers,
	}
}

// Routes exposes the routing table for observability.
func (c *Client) Routes() *RoutingTable {
	return c.routes
}

type TextGenerationParams struct {
	MaxNewTokens int
	Temperature  float64
	TopP         float64
	TopK         int
}

type ImageParams struct {
	NegativePrompt string
	Height         int
	Width          int
	Steps          int
	GuidanceScale  float64
}

type TransformParams struct {
	NegativePrompt string
	Strength       float64
	Steps          int
	GuidanceScale  float64
}

type VideoParams struct {
	NegativePrompt string
	Duration       int
	FPS            int
	Steps          int
}

// TextGeneration returns the generated continuation for prompt.
func (c *Client) TextGeneration(ctx context.Context, model, prompt string, p TextGenerationParams) (string, error) {
	payload := map[string]any{
		"inputs": prompt,
		"parameters": map[string]any{
			"max_new_tokens":   p.MaxNewTokens,
			"temperature":      p.Temperature,
			"top_p":            p.TopP,
			"top_k":            p.TopK,
			"return_full_text": false,
		},
	}

	body, err := c.postJSON(ctx, "text-generation", model, payload)
	if err != nil {
		return "", err
	}

	var out []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", dispatch.Processing("text-generation", fmt.Sprintf("decoding response: %v", err))
	}
	if len(out) == 0 {
		return "", dispatch.Processing("text-generation", "provider returned no generations")
	}
	return out[0].GeneratedText, nil
}

// TextToImage returns the generated image bytes.
func (c *Client) TextToImage(ctx context.Context, model, prompt string, p ImageParams) ([]byte, error) {
	payload := map[string]any{
		"inputs": prompt,
		"parameters": map[string]any{
			"negative_prompt":     p.NegativePrompt,
			"height":              p.Height,
			"width":               p.Width,
			"num_inference_steps": p.Steps,
			"guidance_scale":      p.GuidanceScale,
		},
	}
	return c.postJSON(ctx, "text-to-image", model, payload)
}

// ImageToImage transforms image under prompt and returns the result bytes.
func (c *Client) ImageToImage(ctx context.Context, model string, image []byte, prompt string, p TransformParams) ([]byte, error) {
	payload := map[string]any{
		"inputs": base64.StdEncoding.EncodeToString(image),
		"parameters": map[string]any{
			"prompt":              prompt,
			"negative_prompt":     p.NegativePrompt,
			"strength":            p.Strength,
			"num_inference_steps": p.Steps,
			"guidance_scale":      p.GuidanceScale,
		},
	}
	return c.postJSON(ctx, "image-to-image", model, payload)
}

// Inpaint regenerates the masked region of image under prompt.
func (c *Client) Inpaint(ctx context.Context, model string, image, mask []byte, prompt string, p TransformParams) ([]byte, error) {
	payload := map[string]any{
		"inputs": base64.StdEncoding.EncodeToString(image),
		"parameters": map[string]any{
			"prompt":              prompt,
			"mask_image":          base64.StdEncoding.EncodeToString(mask),
			"negative_prompt":     p.NegativePrompt,
			"num_inference_steps": p.Steps,
			"guidance_scale":      p.GuidanceScale,
		},
	}
	return c.postJSON(ctx, "inpainting", model, payload)
}

// TextToSpeech returns synthesized audio bytes for text.
func (c *Client) TextToSpeech(ctx context.Context, model, text string) ([]byte, error) {
	return c.postJSON(ctx, "text-to-speech", model, map[string]any{"inputs": text})
}

// Transcribe posts raw audio and returns the provider's transcription
// response undecoded; shape varies by model, so callers normalize it.
func (c *Client) Transcribe(ctx context.Context, model string, audio []byte, contentType string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.taskURL(model), bytes.NewReader(audio))
	if err != nil {
		return nil, dispatch.Processing("automatic-speech-recognition", err.Error())
	}
	req.Header.Set("Content-Type", contentType)
	return c.do(req, "automatic-speech-recognition", model)
}

// FeatureExtraction returns the provider's embedding response undecoded;
// some models return a vector, others a batch of one.
func (c *Client) FeatureExtraction(ctx context.Context, model, text string) (json.RawMessage, error) {
	return c.postJSON(ctx, "feature-extraction", model, map[string]any{"inputs": text})
}

// TextToVideo returns the generated video bytes.
func (c *Client) TextToVideo(ctx context.Context, model, prompt string, p VideoParams) ([]byte, error) {
	payload := map[string]any{
		"inputs": prompt,
		"parameters": map[string]any{
			"negative_prompt":     p.NegativePrompt,
			"num_frames":          p.Duration * p.FPS,
			"fps":                 p.FPS,
			"num_inference_steps": p.Steps,
		},
	}
	return c.postJSON(ctx, "text-to-video", model, payload)
}

// ImageToVideo animates image and returns the video bytes.
func (c *Client) ImageToVideo(ctx context.Context, model string, image []byte, prompt string, p VideoParams) ([]byte, error) {
	payload := map[string]any{
		"inputs": base64.StdEncoding.EncodeToString(image),
		"parameters": map[string]any{
			"prompt":              prompt,
			"num_frames":          p.Duration * p.FPS,
			"fps":                 p.FPS,
			"num_inference_steps": p.Steps,
		},
	}
	return c.postJSON(ctx, "image-to-video", model, payload)
}

func (c *Client) taskURL(model string) string {
	return fmt.Sprintf("%s/%s/models/%s", c.baseURL, c.routes.ProviderFor(model), model)
}

func (c *Client) postJSON(ctx context.Context, task, model string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, dispatch.Processing(task, fmt.Sprintf("encoding request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.taskURL(model), bytes.NewReader(body))
	if err != nil {
		return nil, dispatch.Processing(task, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, task, model)
}

// do executes the request through the provider's circuit breaker and maps
// every transport- and status-level failure into the dispatch taxonomy.
func (c *Client) do(req *http.Request, task, model string) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.token)

	prov := c.routes.ProviderFor(model)
	cb := c.breakers[prov]

	result, err := cb.Execute(func() (interface{}, error) {
		resp, err := c.httpc.Do(req)
		if err != nil {
			return nil, c.mapTransportError(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, dispatch.Processing(task, fmt.Sprintf("reading response: %v", err))
		}

		if resp.StatusCode != http.StatusOK {
			return nil, mapStatusError(resp, task, model, body)
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, dispatch.ModelUnavailable(model, task)
		}
		return nil, err
	}
	return result.([]byte), nil
}

func (c *Client) mapTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return dispatch.Timeout(fmt.Sprintf("inference call timed out: %v", err), c.httpc.Timeout)
	}
	return dispatch.ProviderFailure(0, fmt.Sprintf("inference call failed: %v", err))
}

func mapStatusError(resp *http.Response, task, model string, body []byte) error {
	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return dispatch.ModelUnavailable(model, task)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return dispatch.Timeout(fmt.Sprintf("provider timed out for model %s", model), 0)
	case http.StatusTooManyRequests:
		return dispatch.RateLimited(
			fmt.Sprintf("provider rate limited model %s", model),
			parseRetryAfter(resp.Header.Get("Retry-After")),
		)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return dispatch.Validation(
			fmt.Sprintf("provider rejected request for model %s: %s", model, truncate(body, 200)),
			map[string]any{"status": resp.StatusCode},
		)
	default:
		return dispatch.ProviderFailure(resp.StatusCode,
			fmt.Sprintf("provider error for model %s (status %d): %s", model, resp.StatusCode, truncate(body, 200)))
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
