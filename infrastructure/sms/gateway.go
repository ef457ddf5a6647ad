package sms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AzielCF/az-bulk/bulkmessage/domain/transport"
	"github.com/AzielCF/az-bulk/core/config"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

var ErrNotConfigured = errors.New("sms gateway is not configured")

type Config struct {
	APIURL      string
	User        string
	Password    string
	SenderID    string
	CountryCode string
	Timeout     time.Duration
}

func ConfigFrom(cfg *config.Config) Config {
	return Config{
		APIURL:   cfg.SMS.APIURL,
		User:     cfg.SMS.APIKey,
		Password: cfg.SMS.APIPassword,
		SenderID: cfg.SMS.SenderID,
		Timeout:  cfg.SMS.Timeout,
	}
}

// Gateway sends SMS through an MShastra-style HTTP GET endpoint. The provider
// answers with plain text; anything that does not report success is an error.
type Gateway struct {
	cfg    Config
	client *fasthttp.Client
}

func NewGateway(cfg Config) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "ALL"
	}
	return &Gateway{
		cfg: cfg,
		client: &fasthttp.Client{
			Name:         "az-bulk",
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
		},
	}
}

func (g *Gateway) Ready(ctx context.Context) error {
	if g.cfg.APIURL == "" || g.cfg.User == "" || g.cfg.Password == "" {
		return ErrNotConfigured
	}
	return nil
}

func (g *Gateway) SendSMS(ctx context.Context, phone, text string) (transport.SendResponse, error) {
	if err := g.Ready(ctx); err != nil {
		return transport.SendResponse{}, err
	}

	number := transport.NormalizePhone(phone)
	if number == "" {
		return transport.SendResponse{}, fmt.Errorf("invalid phone number %q", phone)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(g.cfg.APIURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	args := req.URI().QueryArgs()
	args.Set("user", g.cfg.User)
	args.Set("pwd", g.cfg.Password)
	args.Set("senderid", g.cfg.SenderID)
	args.Set("mobileno", number)
	args.Set("msgtext", text)
	args.Set("CountryCode", g.cfg.CountryCode)

	timeout := g.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	if err := g.client.DoTimeout(req, resp, timeout); err != nil {
		logrus.WithError(err).Warnf("[SMS] Request to gateway failed for %s", number)
		return transport.SendResponse{}, fmt.Errorf("sms gateway request: %w", err)
	}

	body := strings.TrimSpace(string(resp.Body()))
	if resp.StatusCode() != fasthttp.StatusOK {
		return transport.SendResponse{}, fmt.Errorf("sms gateway returned HTTP %d: %s", resp.StatusCode(), body)
	}
	if !strings.Contains(strings.ToLower(body), "success") {
		return transport.SendResponse{}, fmt.Errorf("sms gateway rejected message: %s", body)
	}

	logrus.Debugf("[SMS] Sent to %s: %s", number, body)
	return transport.SendResponse{MessageID: messageID(body), Status: "sent"}, nil
}

// messageID extracts the provider reference when the reply carries one,
// e.g. "Send Successful, MsgID: 12345".
func messageID(body string) string {
	idx := strings.Index(strings.ToLower(body), "msgid")
	if idx < 0 {
		return ""
	}
	rest := strings.TrimLeft(body[idx+len("msgid"):], " :=")
	if end := strings.IndexAny(rest, " ,;"); end >= 0 {
		rest = rest[:end]
	}
	return rest
}
