package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AzielCF/az-bulk/bulkmessage/domain/transport"
	"github.com/AzielCF/az-bulk/core/config"
	"github.com/sirupsen/logrus"
)

var ErrNotConfigured = errors.New("whatsapp api is not configured")

type WasenderConfig struct {
	APIURL    string
	APIKey    string
	SessionID string
	Timeout   time.Duration
}

func WasenderConfigFrom(cfg *config.Config) WasenderConfig {
	return WasenderConfig{
		APIURL:    cfg.Whatsapp.APIURL,
		APIKey:    cfg.Whatsapp.APIKey,
		SessionID: cfg.Whatsapp.SessionID,
		Timeout:   cfg.Whatsapp.Timeout,
	}
}

// Wasender talks to a hosted WhatsApp HTTP API (WasenderAPI's /send-message).
type Wasender struct {
	cfg    WasenderConfig
	client *http.Client
}

func NewWasender(cfg WasenderConfig) *Wasender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.APIURL = strings.TrimSuffix(cfg.APIURL, "/")
	return &Wasender{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type sendPayload struct {
	Session     string `json:"session,omitempty"`
	To          string `json:"to"`
	Text        string `json:"text,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	VideoURL    string `json:"videoUrl,omitempty"`
	DocumentURL string `json:"documentUrl,omitempty"`
	AudioURL    string `json:"audioUrl,omitempty"`
	ViewOnce    bool   `json:"viewOnce,omitempty"`
}

type sendReply struct {
	Success   *bool  `json:"success"` // absent on some replies, only false is a failure
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
	ID        string `json:"id"`
	Data      struct {
		MsgID  json.Number `json:"msgId"`
		Status string      `json:"status"`
	} `json:"data"`
}

func (w *Wasender) Ready(ctx context.Context) error {
	if w.cfg.APIURL == "" || w.cfg.APIKey == "" {
		return ErrNotConfigured
	}
	return nil
}

func (w *Wasender) SendMessage(ctx context.Context, phone, text string, media transport.MediaOptions) (transport.SendResponse, error) {
	if err := w.Ready(ctx); err != nil {
		return transport.SendResponse{}, err
	}

	payload := buildPayload(w.cfg.SessionID, phone, text, media)
	if payload.To == "" {
		return transport.SendResponse{}, fmt.Errorf("invalid phone number %q", phone)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return transport.SendResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.APIURL+"/send-message", bytes.NewReader(body))
	if err != nil {
		return transport.SendResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.cfg.APIKey)

	resp, err := w.client.Do(req)
	if err != nil {
		logrus.WithError(err).Warnf("[WHATSAPP] Request to API failed for %s", payload.To)
		return transport.SendResponse{}, fmt.Errorf("whatsapp api request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var reply sendReply
	_ = json.Unmarshal(raw, &reply)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := reply.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return transport.SendResponse{}, fmt.Errorf("whatsapp api HTTP %d: %s", resp.StatusCode, msg)
	}
	if reply.Success != nil && !*reply.Success {
		msg := reply.Message
		if msg == "" {
			msg = "send not accepted"
		}
		return transport.SendResponse{}, fmt.Errorf("whatsapp api rejected message: %s", msg)
	}

	id := reply.MessageID
	if id == "" {
		id = reply.ID
	}
	if id == "" {
		id = reply.Data.MsgID.String()
	}
	status := reply.Data.Status
	if status == "" {
		status = "sent"
	}

	logrus.Debugf("[WHATSAPP] Sent to %s (id=%s)", payload.To, id)
	return transport.SendResponse{MessageID: id, Status: status}, nil
}

// buildPayload maps the media type to the field the API expects. The text
// doubles as the caption for image, video and document messages.
func buildPayload(session, phone, text string, media transport.MediaOptions) sendPayload {
	p := sendPayload{Session: session, To: transport.NormalizePhone(phone), Text: text}
	if media.URL == "" {
		return p
	}

	switch media.Type {
	case "image":
		p.ImageURL = media.URL
		p.ViewOnce = media.ViewOnce
	case "video":
		p.VideoURL = media.URL
		p.ViewOnce = media.ViewOnce
	case "audio":
		p.AudioURL = media.URL
	default:
		p.DocumentURL = media.URL
	}
	return p
}
