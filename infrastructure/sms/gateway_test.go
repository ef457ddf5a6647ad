package sms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) (*Gateway, *url.Values) {
	t.Helper()
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	gw := NewGateway(Config{
		APIURL:   srv.URL + "/sendurl.aspx",
		User:     "shop",
		Password: "secret",
		SenderID: "INAUZWA",
		Timeout:  2 * time.Second,
	})
	return gw, &got
}

func TestGateway_SendSMS(t *testing.T) {
	gw, got := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Send Successful, MsgID: 98765"))
	})

	resp, err := gw.SendSMS(context.Background(), "+255 712-345-678", "Hello Amina")
	require.NoError(t, err)
	assert.Equal(t, "98765", resp.MessageID)
	assert.Equal(t, "sent", resp.Status)

	q := *got
	assert.Equal(t, "shop", q.Get("user"))
	assert.Equal(t, "secret", q.Get("pwd"))
	assert.Equal(t, "INAUZWA", q.Get("senderid"))
	assert.Equal(t, "255712345678", q.Get("mobileno"))
	assert.Equal(t, "Hello Amina", q.Get("msgtext"))
	assert.Equal(t, "ALL", q.Get("CountryCode"))
}

func TestGateway_ProviderRejection(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Invalid Mobile No"))
	})

	_, err := gw.SendSMS(context.Background(), "255712345678", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid Mobile No")
}

func TestGateway_HTTPError(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := gw.SendSMS(context.Background(), "255712345678", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
}

func TestGateway_Ready(t *testing.T) {
	assert.ErrorIs(t, NewGateway(Config{APIURL: "http://x"}).Ready(context.Background()), ErrNotConfigured)

	gw := NewGateway(Config{APIURL: "http://x", User: "u", Password: "p"})
	assert.NoError(t, gw.Ready(context.Background()))

	_, err := gw.SendSMS(context.Background(), "abc", "hi")
	assert.Error(t, err)
}

func TestMessageID(t *testing.T) {
	assert.Equal(t, "12345", messageID("Send Successful, MsgID: 12345"))
	assert.Equal(t, "77", messageID("Success msgid=77;"))
	assert.Equal(t, "", messageID("Send Successful"))
}
