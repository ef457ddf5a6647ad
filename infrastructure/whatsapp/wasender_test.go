package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AzielCF/az-bulk/bulkmessage/domain/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWasender_SendMessage(t *testing.T) {
	var (
		gotAuth string
		gotPath string
		got     map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"msgId":4411,"status":"in_progress"}}`))
	}))
	defer srv.Close()

	wa := NewWasender(WasenderConfig{APIURL: srv.URL + "/api/", APIKey: "token-1", SessionID: "shop"})
	resp, err := wa.SendMessage(context.Background(), "+255 712 345 678", "Hi Juma", transport.MediaOptions{
		URL: "https://cdn.example.com/promo.jpg", Type: "image", ViewOnce: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer token-1", gotAuth)
	assert.Equal(t, "/api/send-message", gotPath)
	assert.Equal(t, "255712345678", got["to"])
	assert.Equal(t, "Hi Juma", got["text"])
	assert.Equal(t, "https://cdn.example.com/promo.jpg", got["imageUrl"])
	assert.Equal(t, true, got["viewOnce"])
	assert.Equal(t, "4411", resp.MessageID)
	assert.Equal(t, "in_progress", resp.Status)
}

func TestWasender_ErrorReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"success":false,"message":"The to field must be a valid number"}`))
	}))
	defer srv.Close()

	wa := NewWasender(WasenderConfig{APIURL: srv.URL, APIKey: "k"})
	_, err := wa.SendMessage(context.Background(), "255700000000", "x", transport.MediaOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 422")
	assert.Contains(t, err.Error(), "valid number")
}

func TestWasender_UnsuccessfulReplyWithOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"Session is not connected"}`))
	}))
	defer srv.Close()

	wa := NewWasender(WasenderConfig{APIURL: srv.URL, APIKey: "k"})
	_, err := wa.SendMessage(context.Background(), "255700000000", "x", transport.MediaOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Session is not connected")

	// a bare message id without the flag is still a success
	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"messageId":"wamid-1"}`))
	}))
	defer srv2.Close()

	resp, err := NewWasender(WasenderConfig{APIURL: srv2.URL, APIKey: "k"}).
		SendMessage(context.Background(), "255700000000", "x", transport.MediaOptions{})
	require.NoError(t, err)
	assert.Equal(t, "wamid-1", resp.MessageID)
}

func TestWasender_NotConfigured(t *testing.T) {
	wa := NewWasender(WasenderConfig{APIURL: "http://localhost"})
	assert.ErrorIs(t, wa.Ready(context.Background()), ErrNotConfigured)

	_, err := wa.SendMessage(context.Background(), "255700000000", "x", transport.MediaOptions{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestBuildPayload(t *testing.T) {
	p := buildPayload("", "255700000000", "caption", transport.MediaOptions{URL: "u", Type: "video", ViewOnce: true})
	assert.Equal(t, "u", p.VideoURL)
	assert.True(t, p.ViewOnce)

	p = buildPayload("", "255700000000", "caption", transport.MediaOptions{URL: "u", Type: "document", ViewOnce: true})
	assert.Equal(t, "u", p.DocumentURL)
	assert.False(t, p.ViewOnce)

	p = buildPayload("", "255700000000", "", transport.MediaOptions{URL: "u", Type: "audio"})
	assert.Equal(t, "u", p.AudioURL)

	p = buildPayload("s", "255700000000", "plain", transport.MediaOptions{})
	assert.Empty(t, p.ImageURL+p.VideoURL+p.AudioURL+p.DocumentURL)
	assert.Equal(t, "s", p.Session)
}
