package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/cutout/internal/imaging"
)

type RemoteConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// RemoteEngine talks to a rembg-compatible HTTP server, which owns the model
// weights. Sessions are cheap here; the server keeps its own model cache.
type RemoteEngine struct {
	endpoint   string
	httpClient *http.Client
	codec      imaging.Codec
}

func NewRemoteEngine(cfg RemoteConfig, codec imaging.Codec) (*RemoteEngine, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("rembg base url is required")
	}
	if codec == nil {
		codec = imaging.NewCodec()
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		client = &http.Client{Timeout: timeout}
	}

	return &RemoteEngine{
		endpoint:   base + "/api/remove",
		httpClient: client,
		codec:      codec,
	}, nil
}

func (e *RemoteEngine) NewSession(_ context.Context, model string) (Session, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, fmt.Errorf("%w: empty model name", ErrUnknownModel)
	}
	return &remoteSession{engine: e, model: model}, nil
}

type remoteSession struct {
	engine *RemoteEngine
	model  string
}

func (s *remoteSession) Model() string {
	return s.model
}

func (s *remoteSession) Remove(ctx context.Context, img *image.NRGBA, opts Options) (image.Image, error) {
	upload, err := s.engine.codec.EncodePNG(img)
	if err != nil {
		return nil, fmt.Errorf("encode upload: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(upload); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}

	fields := [][2]string{
		{"model", s.model},
		{"a", strconv.FormatBool(opts.AlphaMatting)},
		{"af", strconv.Itoa(opts.ForegroundThreshold)},
		{"ab", strconv.Itoa(opts.BackgroundThreshold)},
		{"ae", strconv.Itoa(opts.ErodeSize)},
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", f[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.engine.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build rembg request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "image/png")

	resp, err := s.engine.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call rembg: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("rembg returned status=%d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rembg response: %w", err)
	}

	out, err := s.engine.codec.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: rembg response is not an image: %v", ErrUnexpectedOutput, err)
	}
	return out, nil
}
