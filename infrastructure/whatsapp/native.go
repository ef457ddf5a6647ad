package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/AzielCF/az-bulk/bulkmessage/domain/transport"
	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var ErrNotPaired = errors.New("whatsapp device is not paired")

const maxMediaBytes = 64 << 20

// Native sends through a paired WhatsApp multi-device session kept in a
// whatsmeow sqlstore (SQLite file or Postgres).
type Native struct {
	mu        sync.RWMutex
	client    *whatsmeow.Client
	container *sqlstore.Container
	http      *http.Client
}

// NewNative opens the device store and connects when a paired device exists.
// An unpaired store is not an error: Ready reports it so batches fail fast.
func NewNative(ctx context.Context, dbURI, logLevel string) (*Native, error) {
	container, err := openStore(ctx, dbURI, waLog.Stdout("Database", logLevel, true))
	if err != nil {
		return nil, fmt.Errorf("whatsapp store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("whatsapp device: %w", err)
	}

	n := &Native{container: container, http: &http.Client{Timeout: time.Minute}}
	if device == nil || device.ID == nil {
		logrus.Warn("[WHATSAPP] No paired device in store; WhatsApp jobs will fail until one is linked")
		return n, nil
	}

	client := whatsmeow.NewClient(device, waLog.Stdout("Client", logLevel, true))
	client.EnableAutoReconnect = true
	client.AutoTrustIdentity = true
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("whatsapp connect: %w", err)
	}
	n.client = client
	logrus.Infof("[WHATSAPP] Connected as %s", device.ID.String())
	return n, nil
}

func openStore(ctx context.Context, dbURI string, dbLog waLog.Logger) (*sqlstore.Container, error) {
	if strings.HasPrefix(dbURI, "postgres:") {
		return sqlstore.New(ctx, "postgres", dbURI, dbLog)
	}
	return sqlstore.New(ctx, "sqlite3", dbURI, dbLog)
}

func (n *Native) Ready(ctx context.Context) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.client == nil || n.client.Store.ID == nil {
		return ErrNotPaired
	}
	if !n.client.IsConnected() {
		return errors.New("whatsapp client is not connected")
	}
	return nil
}

func (n *Native) SendMessage(ctx context.Context, phone, text string, media transport.MediaOptions) (transport.SendResponse, error) {
	if err := n.Ready(ctx); err != nil {
		return transport.SendResponse{}, err
	}
	number := transport.NormalizePhone(phone)
	if number == "" {
		return transport.SendResponse{}, fmt.Errorf("invalid phone number %q", phone)
	}
	jid := types.NewJID(number, types.DefaultUserServer)

	msg := &waE2E.Message{Conversation: proto.String(text)}
	if media.URL != "" {
		var err error
		if msg, err = n.mediaMessage(ctx, text, media); err != nil {
			return transport.SendResponse{}, err
		}
	}

	n.mu.RLock()
	client := n.client
	n.mu.RUnlock()

	resp, err := client.SendMessage(ctx, jid, msg)
	if err != nil {
		return transport.SendResponse{}, fmt.Errorf("whatsapp send: %w", err)
	}
	return transport.SendResponse{MessageID: resp.ID, Status: "sent"}, nil
}

func (n *Native) mediaMessage(ctx context.Context, caption string, media transport.MediaOptions) (*waE2E.Message, error) {
	data, mimeType, err := n.fetch(ctx, media.URL)
	if err != nil {
		return nil, err
	}

	mType := mediaTypeFor(media.Type)
	n.mu.RLock()
	client := n.client
	n.mu.RUnlock()

	up, err := client.Upload(ctx, data, mType)
	if err != nil {
		return nil, fmt.Errorf("failed to upload media: %w", err)
	}

	switch mType {
	case whatsmeow.MediaImage:
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(mimeType),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
			Caption:       proto.String(caption),
			ViewOnce:      proto.Bool(media.ViewOnce),
		}}, nil
	case whatsmeow.MediaVideo:
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(mimeType),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
			Caption:       proto.String(caption),
			ViewOnce:      proto.Bool(media.ViewOnce),
		}}, nil
	case whatsmeow.MediaAudio:
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(mimeType),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}, nil
	default:
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(mimeType),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
			Caption:       proto.String(caption),
			FileName:      proto.String(fileNameFromURL(media.URL)),
		}}, nil
	}
}

func (n *Native) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := n.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch media: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read media: %w", err)
	}
	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}

func mediaTypeFor(t string) whatsmeow.MediaType {
	switch t {
	case "image":
		return whatsmeow.MediaImage
	case "video":
		return whatsmeow.MediaVideo
	case "audio":
		return whatsmeow.MediaAudio
	default:
		return whatsmeow.MediaDocument
	}
}

func fileNameFromURL(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	if i := strings.LastIndex(u, "/"); i >= 0 && i < len(u)-1 {
		return u[i+1:]
	}
	return "document"
}

func (n *Native) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.client != nil {
		n.client.Disconnect()
	}
	if n.container != nil {
		_ = n.container.Close()
	}
}
