package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	goOTP "github.com/MrEthical07/goOTP"
)

// DevSender writes each message to dir as a .txt body plus .json metadata
// instead of sending it. Codes end up on disk; never use it in production.
type DevSender struct {
	dir      string
	renderer Renderer
	now      func() time.Time
	seq      atomic.Uint64
}

func NewDevSender(dir string, renderer Renderer) *DevSender {
	return &DevSender{dir: dir, renderer: renderer, now: time.Now}
}

type devMetadata struct {
	Timestamp string `json:"timestamp"`
	SendTo    string `json:"send_to"`
	Subject   string `json:"subject"`
	Tag       string `json:"tag,omitempty"`
}

func (d *DevSender) Send(ctx context.Context, delivery goOTP.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := d.renderer.Render(delivery)

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create directory: %v", ErrSendFailed, err)
	}

	now := d.now()
	base := fmt.Sprintf("%s_%04d_%s_%s",
		now.Format("2006_01_02_150405"),
		d.seq.Add(1)%10000,
		sanitizeFilename(msg.Tag),
		sanitizeFilename(msg.To),
	)

	if err := os.WriteFile(filepath.Join(d.dir, base+".txt"), []byte(msg.TextBody), 0o600); err != nil {
		return fmt.Errorf("%w: write body: %v", ErrSendFailed, err)
	}

	meta, err := json.MarshalIndent(devMetadata{
		Timestamp: now.Format(time.RFC3339),
		SendTo:    msg.To,
		Subject:   msg.Subject,
		Tag:       msg.Tag,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal metadata: %v", ErrSendFailed, err)
	}
	if err := os.WriteFile(filepath.Join(d.dir, base+".json"), meta, 0o600); err != nil {
		return fmt.Errorf("%w: write metadata: %v", ErrSendFailed, err)
	}
	return nil
}

var sanitizeRegex = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

func sanitizeFilename(s string) string {
	s = strings.ReplaceAll(s, "@", "_at_")
	s = sanitizeRegex.ReplaceAllString(s, "")
	if len(s) > 100 {
		s = s[:100]
	}
	if s == "" {
		s = "email"
	}
	return strings.ToLower(s)
}
