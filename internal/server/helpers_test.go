package server

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/TAAK61/qr-code-reader-sub001/internal/pipeline"
	"github.com/TAAK61/qr-code-reader-sub001/internal/pixbuf"
	"github.com/TAAK61/qr-code-reader-sub001/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, mutate ...func(*Config)) (*Server, *http.ServeMux) {
	t.Helper()
	cfg := Config{
		CORSOrigin:  "*",
		MaxUploadMB: 4,
		TimeoutSec:  5,
		Options:     pipeline.DefaultOptions(),
		Registry:    prometheus.NewRegistry(),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	s, err := NewServer(cfg)
	require.NoError(t, err)
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return s, mux
}

// pngBytes encodes a w x h checkerboard.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	return testutil.EncodePNG(t, testutil.Checkerboard(w, h, 8))
}

// multipartBody wraps data in a form field named field.
func multipartBody(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile(field, "upload.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

// stubProcessor returns a fixed error.
type stubProcessor struct {
	err error
}

func (p stubProcessor) Process(context.Context, *pixbuf.PixelBuffer, pipeline.Options) (*pipeline.Result, error) {
	return nil, p.err
}
