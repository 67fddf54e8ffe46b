package inference

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dunamismax/cutout/internal/config"
	"github.com/dunamismax/cutout/internal/imaging"
)

func TestRemoteSessionSendsRembgForm(t *testing.T) {
	var (
		gotPath   string
		gotFields = map[string]string{}
		gotUpload []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		for _, key := range []string{"model", "a", "af", "ab", "ae"} {
			gotFields[key] = r.FormValue(key)
		}
		file, _, err := r.FormFile("file")
		if assert.NoError(t, err) {
			gotUpload, _ = io.ReadAll(file)
		}

		out := image.NewNRGBA(image.Rect(0, 0, 2, 2))
		out.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
		w.Header().Set("Content-Type", "image/png")
		_ = png.Encode(w, out)
	}))
	defer srv.Close()

	engine, err := NewRemoteEngine(RemoteConfig{BaseURL: srv.URL + "/", Timeout: time.Second}, imaging.NewCodec())
	require.NoError(t, err)

	session, err := engine.NewSession(context.Background(), "isnet-general-use")
	require.NoError(t, err)
	require.Equal(t, "isnet-general-use", session.Model())

	in := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	out, err := session.Remove(context.Background(), in, Options{
		AlphaMatting:        true,
		ForegroundThreshold: 200,
		BackgroundThreshold: 20,
		ErodeSize:           5,
	})
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 2, 2), out.Bounds())

	require.Equal(t, "/api/remove", gotPath)
	require.Equal(t, map[string]string{
		"model": "isnet-general-use",
		"a":     "true",
		"af":    "200",
		"ab":    "20",
		"ae":    "5",
	}, gotFields)
	require.True(t, bytes.HasPrefix(gotUpload, []byte("\x89PNG")))
}

func TestRemoteSessionRejectsNonImageResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	engine, err := NewRemoteEngine(RemoteConfig{BaseURL: srv.URL}, nil)
	require.NoError(t, err)
	session, err := engine.NewSession(context.Background(), "u2net")
	require.NoError(t, err)

	_, err = session.Remove(context.Background(), image.NewNRGBA(image.Rect(0, 0, 1, 1)), Options{})
	require.ErrorIs(t, err, ErrUnexpectedOutput)
}

func TestRemoteSessionSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusInternalServerError)
	}))
	defer srv.Close()

	engine, err := NewRemoteEngine(RemoteConfig{BaseURL: srv.URL}, nil)
	require.NoError(t, err)
	session, err := engine.NewSession(context.Background(), "u2net")
	require.NoError(t, err)

	_, err = session.Remove(context.Background(), image.NewNRGBA(image.Rect(0, 0, 1, 1)), Options{})
	require.ErrorContains(t, err, "status=500")
	require.ErrorContains(t, err, "model not found")
	require.NotErrorIs(t, err, ErrUnexpectedOutput)
}

func TestRemoteSessionHonoursTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	engine, err := NewRemoteEngine(RemoteConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, nil)
	require.NoError(t, err)
	session, err := engine.NewSession(context.Background(), "u2net")
	require.NoError(t, err)

	start := time.Now()
	_, err = session.Remove(context.Background(), image.NewNRGBA(image.Rect(0, 0, 1, 1)), Options{})
	require.Error(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestRemoteEngineRejectsEmptyModel(t *testing.T) {
	engine, err := NewRemoteEngine(RemoteConfig{BaseURL: "http://localhost:7000"}, nil)
	require.NoError(t, err)

	_, err = engine.NewSession(context.Background(), "  ")
	require.ErrorIs(t, err, ErrUnknownModel)
}

func TestNewSelectsEngine(t *testing.T) {
	engine, err := New(config.InferenceConfig{Engine: "remote", RembgURL: "http://rembg:7000"}, nil, nil)
	require.NoError(t, err)
	require.IsType(t, &RemoteEngine{}, engine)

	_, err = New(config.InferenceConfig{Engine: "tensorflow"}, nil, nil)
	require.ErrorContains(t, err, "unsupported inference engine")

	_, err = New(config.InferenceConfig{Engine: "onnx"}, nil, nil)
	require.Error(t, err)
}
