package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/TAAK61/qr-code-reader-sub001/internal/lazyimg"
	"github.com/TAAK61/qr-code-reader-sub001/internal/pipeline"
	"github.com/TAAK61/qr-code-reader-sub001/internal/pixbuf"
	"github.com/TAAK61/qr-code-reader-sub001/internal/version"
	"github.com/disintegration/imaging"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var errNoImage = errors.New("no image provided")

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Error encoding health response", "error", err)
	}
}

// preprocessHandler runs the pipeline on an uploaded image. The image is
// the raw request body or the "image" field of a multipart form; stage
// options come from the query string.
func (s *Server) preprocessHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	data, err := readImage(r, limit)
	if err != nil {
		if isTooLarge(err) {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.metrics.uploadSize.Observe(float64(len(data)))

	opts, err := parseOptions(r.URL.Query(), s.defaults)
	if err == nil {
		err = opts.Validate()
	}
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	h := lazyimg.New(data, lazyimg.WithCodec(s.codec))
	defer h.Release()
	info, err := h.Info()
	if err != nil {
		s.writeErrorResponse(w, "Invalid image format", http.StatusBadRequest)
		return
	}
	buf, err := h.Buffer()
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Failed to decode image: %v", err), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if s.timeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
		defer cancel()
	}

	res, err := s.pipeline.Process(ctx, buf, opts)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pixbuf.ErrCancelled) {
			status = http.StatusServiceUnavailable
		}
		s.writeErrorResponse(w, fmt.Sprintf("Preprocessing failed: %v", err), status)
		return
	}

	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		resp := PreprocessResponse{Success: true, Result: toPreprocessResult(res, info)}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			s.logger.Error("Error encoding preprocess response", "error", err)
		}
		return
	}
	s.writeImage(w, res)
}

// readImage returns the uploaded bytes from either request shape.
func readImage(r *http.Request, limit int64) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var src io.Reader = r.Body
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(limit); err != nil {
			if isTooLarge(err) {
				return nil, err
			}
			return nil, errors.New("failed to parse form data")
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			return nil, errNoImage
		}
		defer func() { _ = file.Close() }()
		src = file
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errNoImage
	}
	return data, nil
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(strings.ToLower(err.Error()), "request body too large")
}

// parseOptions overlays query parameters named like the configuration keys
// onto base.
func parseOptions(q url.Values, base pipeline.Options) (pipeline.Options, error) {
	opts := base
	bools := map[string]*bool{
		"enhance_contrast":    &opts.EnhanceContrast,
		"reduce_noise":        &opts.ReduceNoise,
		"resize_if_large":     &opts.ResizeIfLarge,
		"high_quality_resize": &opts.HighQualityResize,
	}
	for key, dst := range bools {
		if v := q.Get(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return base, fmt.Errorf("invalid %s: %q", key, v)
			}
			*dst = b
		}
	}
	if v := q.Get("contrast_factor"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return base, fmt.Errorf("invalid contrast_factor: %q", v)
		}
		opts.ContrastFactor = f
	}
	if v := q.Get("max_dimension"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return base, fmt.Errorf("invalid max_dimension: %q", v)
		}
		opts.MaxDimension = n
	}
	return opts, nil
}

func wantsJSON(r *http.Request) bool {
	if f := r.URL.Query().Get("format"); f != "" {
		return f == "json"
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func toPreprocessResult(res *pipeline.Result, info pixbuf.Info) *PreprocessResult {
	out := &PreprocessResult{
		OriginalWidth:   res.OriginalWidth,
		OriginalHeight:  res.OriginalHeight,
		ProcessedWidth:  res.ProcessedWidth,
		ProcessedHeight: res.ProcessedHeight,
		Format:          info.Format,
		Operations:      res.Operations,
		ResizeStrategy:  res.ResizeStrategy.String(),
		ElapsedMs:       float64(res.Elapsed.Microseconds()) / 1000,
		MemoryDelta:     res.MemoryDelta,
	}
	if res.Applied(pipeline.StageEnhance) {
		out.EnhancePath = res.EnhancePath.String()
	}
	return out
}

// writeImage encodes the processed buffer as PNG and describes the run in
// X-Qrprep-* headers.
func (s *Server) writeImage(w http.ResponseWriter, res *pipeline.Result) {
	img, err := res.Buffer.ToImage()
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Failed to convert image: %v", err), http.StatusInternalServerError)
		return
	}
	var body bytes.Buffer
	if err := imaging.Encode(&body, img, imaging.PNG); err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Failed to encode image: %v", err), http.StatusInternalServerError)
		return
	}

	ops := "none"
	if len(res.Operations) > 0 {
		ops = strings.Join(res.Operations, ",")
	}
	h := w.Header()
	h.Set("Content-Type", "image/png")
	h.Set("Content-Length", strconv.Itoa(body.Len()))
	h.Set("X-Qrprep-Original-Size", fmt.Sprintf("%dx%d", res.OriginalWidth, res.OriginalHeight))
	h.Set("X-Qrprep-Processed-Size", fmt.Sprintf("%dx%d", res.ProcessedWidth, res.ProcessedHeight))
	h.Set("X-Qrprep-Operations", ops)
	h.Set("X-Qrprep-Resize-Strategy", res.ResizeStrategy.String())
	h.Set("X-Qrprep-Elapsed-Ms", strconv.FormatFloat(float64(res.Elapsed.Microseconds())/1000, 'f', 3, 64))
	if _, err := w.Write(body.Bytes()); err != nil {
		s.logger.Debug("Error writing image response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := PreprocessResponse{
		Success: false,
		Error:   message,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Error writing error response", "error", err)
	}
}
