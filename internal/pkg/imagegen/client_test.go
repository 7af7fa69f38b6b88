package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func TestGenerateBase64(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/images/generations", r.URL.Path)
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.Equal(t, "Pawtrait/1.0", r.Header.Get("User-Agent"))

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "a cat", req.Prompt)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"images": []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(pngHeader)}},
		})
	}))
	t.Cleanup(server.Close)

	img, err := NewClient(server.URL, "key", time.Second, "Pawtrait/1.0").Generate(context.Background(), Request{Prompt: "a cat", ImageURL: "https://x/cat.jpg"})
	require.NoError(t, err)
	require.Equal(t, pngHeader, img.Data)
	require.Equal(t, "image/png", img.ContentType)
}

func TestGenerateDownloadsURL(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	mux.HandleFunc("/v1/images/generations", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"images":[{"url":"` + server.URL + `/out.jpg","content_type":"image/jpeg"}]}`))
	})
	mux.HandleFunc("/out.jpg", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("jpegbytes"))
	})

	img, err := NewClient(server.URL, "", time.Second, "").Generate(context.Background(), Request{Prompt: "a dog"})
	require.NoError(t, err)
	require.Equal(t, []byte("jpegbytes"), img.Data)
	require.Equal(t, "image/jpeg", img.ContentType)
}

func TestGenerateErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "empty", status: http.StatusOK, body: `{"images":[]}`, want: ErrEmptyOutput},
		{name: "blank image", status: http.StatusOK, body: `{"images":[{}]}`, want: ErrEmptyOutput},
		{name: "rejected", status: http.StatusBadRequest, body: `{"error":"nsfw"}`, want: ErrRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			t.Cleanup(server.Close)

			_, err := NewClient(server.URL, "", time.Second, "").Generate(context.Background(), Request{Prompt: "p"})
			require.ErrorIs(t, err, tc.want)
		})
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)
	_, err := NewClient(server.URL, "", time.Second, "").Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrRejected))
}

func TestGenerateTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(server.Close)

	_, err := NewClient(server.URL, "", 50*time.Millisecond, "").Generate(context.Background(), Request{Prompt: "p"})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestGenerateNetworkError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = NewClient("http://"+addr, "", time.Second, "").Generate(context.Background(), Request{Prompt: "p"})
	require.ErrorIs(t, err, ErrNetwork)
}

func TestNotConfigured(t *testing.T) {
	_, err := NewClient("", "", 0, "").Generate(context.Background(), Request{Prompt: "p"})
	require.ErrorIs(t, err, ErrNotConfigured)
}
