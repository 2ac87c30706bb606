package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/surfersbangs/surfers/internal/completion"
	"github.com/surfersbangs/surfers/internal/log"
	"github.com/surfersbangs/surfers/internal/upstream"
)

const (
	// maxJSONBody bounds the chat request body.
	maxJSONBody = 1 << 20

	// multipart upload limits for /api/stream-es
	maxImageCount    = 8
	maxImageSize     = 10 << 20
	maxMultipartMem  = 32 << 20
	sseHeartbeatRate = 15 * time.Second
)

// doneSentinel terminates every streamed response so clients can tell a
// complete stream from a severed connection.
const doneSentinel = "[DONE]"

// Runner is the completion surface the handlers drive. Satisfied by
// *completion.Driver.
type Runner interface {
	RunWithContinuation(ctx context.Context, req completion.Request, sink func(delta string)) (completion.FinishReason, error)
	Complete(ctx context.Context, req completion.Request) (string, error)
}

type chatHandler struct {
	logger log.Logger
	runner Runner
	vision bool
}

// chatRequest is the JSON body shared by the completion endpoints.
type chatRequest struct {
	Prompt  string             `json:"prompt"`
	History []upstream.Message `json:"history"`
}

// decodeChat parses and validates the JSON chat body. On failure it writes
// the 400 itself and reports ok=false.
func (h *chatHandler) decodeChat(w http.ResponseWriter, r *http.Request) (completion.Request, bool) {
	var body chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body", h.logger)
		return completion.Request{}, false
	}
	if strings.TrimSpace(body.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "prompt must not be empty", h.logger)
		return completion.Request{}, false
	}
	return completion.Request{Prompt: body.Prompt, History: body.History}, true
}

// generate handles POST /api/generate: one non-streaming completion.
func (h *chatHandler) generate(w http.ResponseWriter, r *http.Request) {
	creq, ok := h.decodeChat(w, r)
	if !ok {
		return
	}

	reply, err := h.runner.Complete(r.Context(), creq)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		h.writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"reply": reply}, h.logger)
}

// stream handles POST /api/stream: deltas as raw chunked text.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	creq, ok := h.decodeChat(w, r)
	if !ok {
		return
	}
	h.respondRaw(w, r, creq)
}

// respondRaw streams deltas verbatim, flushing per delta, and always ends
// with the [DONE] sentinel. A mid-stream failure is reported inline since
// the 200 header is already on the wire.
func (h *chatHandler) respondRaw(w http.ResponseWriter, r *http.Request, creq completion.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, _ := w.(http.Flusher)
	wrote := false
	sink := func(delta string) {
		_, _ = io.WriteString(w, delta)
		wrote = true
		if flusher != nil {
			flusher.Flush()
		}
	}

	fin, err := h.runner.RunWithContinuation(r.Context(), creq, sink)
	if err != nil {
		if r.Context().Err() != nil {
			// Client went away; nobody is listening.
			return
		}
		h.logger.Error("completion stream failed", "error", err)
		if !wrote {
			h.writeUpstreamError(w, err)
			return
		}
		_, _ = io.WriteString(w, "\n// stream error: "+publicErrorMessage(err)+"\n")
	}

	_, _ = io.WriteString(w, doneSentinel)
	if flusher != nil {
		flusher.Flush()
	}

	h.logger.Debug("stream complete", "finish_reason", string(fin))
}

type streamResult struct {
	fin completion.FinishReason
	err error
}

// streamSSE handles POST /api/stream/sse: deltas as Server-Sent Events with
// a comment heartbeat so proxies keep the connection open.
func (h *chatHandler) streamSSE(w http.ResponseWriter, r *http.Request) {
	creq, ok := h.decodeChat(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support streaming", h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	_, _ = io.WriteString(w, ": connected\n\n")
	_, _ = io.WriteString(w, "event: status\ndata: {\"state\":\"started\"}\n\n")
	flusher.Flush()

	ctx := r.Context()
	deltas := make(chan string, 64)
	result := make(chan streamResult, 1)

	go func() {
		fin, err := h.runner.RunWithContinuation(ctx, creq, func(delta string) {
			select {
			case deltas <- delta:
			case <-ctx.Done():
			}
		})
		result <- streamResult{fin: fin, err: err}
		close(deltas)
	}()

	heartbeat := time.NewTicker(sseHeartbeatRate)
	defer heartbeat.Stop()

	for deltas != nil {
		select {
		case delta, open := <-deltas:
			if !open {
				deltas = nil
				continue
			}
			payload, _ := json.Marshal(map[string]string{"token": delta})
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		case <-heartbeat.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}

	res := <-result
	if ctx.Err() != nil {
		return
	}
	if res.err != nil {
		h.logger.Error("completion stream failed", "error", res.err)
		payload, _ := json.Marshal(map[string]string{"message": publicErrorMessage(res.err)})
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
	}
	_, _ = io.WriteString(w, "data: "+doneSentinel+"\n\n")
	flusher.Flush()

	h.logger.Debug("sse stream complete", "finish_reason", string(res.fin))
}

// streamES handles POST /api/stream-es: multipart form with an optional
// image attachment set, streamed back as raw text. When vision is enabled
// the images ride along as data URIs; otherwise the prompt just names them.
func (h *chatHandler) streamES(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMem); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed multipart form", h.logger)
		return
	}

	prompt := r.FormValue("prompt")
	if strings.TrimSpace(prompt) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "prompt must not be empty", h.logger)
		return
	}

	var history []upstream.Message
	if raw := r.FormValue("history"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &history); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "malformed history JSON", h.logger)
			return
		}
	}

	creq := completion.Request{Prompt: prompt, History: history}

	files := r.MultipartForm.File["images"]
	if len(files) > maxImageCount {
		writeError(w, http.StatusBadRequest, "invalid_request",
			fmt.Sprintf("at most %d images allowed", maxImageCount), h.logger)
		return
	}
	// The per-image size limit holds whether or not the bytes are used.
	for _, fh := range files {
		if fh.Size > maxImageSize {
			writeError(w, http.StatusBadRequest, "invalid_request",
				fmt.Sprintf("image %s exceeds %d bytes", fh.Filename, maxImageSize), h.logger)
			return
		}
	}

	if len(files) > 0 {
		if h.vision {
			parts := []upstream.ContentPart{upstream.TextPart(prompt)}
			for _, fh := range files {
				part, err := imagePart(fh)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), h.logger)
					return
				}
				parts = append(parts, part)
			}
			creq.Parts = parts
		} else {
			names := make([]string, 0, len(files))
			for _, fh := range files {
				names = append(names, fh.Filename)
			}
			creq.Prompt = prompt + "\n\n[attached images: " + strings.Join(names, ", ") + "]"
		}
	}

	h.respondRaw(w, r, creq)
}

// imagePart reads one uploaded image into a data-URI content part.
func imagePart(fh *multipart.FileHeader) (upstream.ContentPart, error) {
	if fh.Size > maxImageSize {
		return upstream.ContentPart{}, fmt.Errorf("image %s exceeds %d bytes", fh.Filename, maxImageSize)
	}

	f, err := fh.Open()
	if err != nil {
		return upstream.ContentPart{}, fmt.Errorf("open image %s", fh.Filename)
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(io.LimitReader(f, maxImageSize+1))
	if err != nil {
		return upstream.ContentPart{}, fmt.Errorf("read image %s", fh.Filename)
	}
	if len(raw) > maxImageSize {
		return upstream.ContentPart{}, fmt.Errorf("image %s exceeds %d bytes", fh.Filename, maxImageSize)
	}

	// Browsers send a real type; generic octet-stream means nobody looked.
	mime := fh.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(raw)
	}

	uri := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw)
	return upstream.ImagePart(uri), nil
}

// writeUpstreamError maps upstream failures onto distinct error codes. The
// credential problems are the server's, not the caller's, hence 502.
func (h *chatHandler) writeUpstreamError(w http.ResponseWriter, err error) {
	h.logger.Error("upstream request failed", "error", err)
	switch {
	case errors.Is(err, upstream.ErrUnauthorized):
		writeError(w, http.StatusBadGateway, "upstream_unauthorized", "upstream rejected the API key", h.logger)
	case errors.Is(err, upstream.ErrInsufficientBalance):
		writeError(w, http.StatusBadGateway, "insufficient_balance", "upstream account has no credit", h.logger)
	default:
		writeError(w, http.StatusBadGateway, "upstream_error", "upstream request failed", h.logger)
	}
}

// publicErrorMessage is the client-safe description of a failure.
func publicErrorMessage(err error) string {
	switch {
	case errors.Is(err, upstream.ErrUnauthorized):
		return "upstream authentication failed"
	case errors.Is(err, upstream.ErrInsufficientBalance):
		return "insufficient upstream balance"
	default:
		return "upstream request failed"
	}
}
