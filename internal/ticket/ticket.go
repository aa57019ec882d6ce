// Package ticket issues ticket ids and renders their scannable codes.
package ticket

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	Prefix      = "TKT-"
	DefaultSize = 256
	MaxSize     = 1024
)

// NewID derives a ticket id from the issue time. The short random suffix
// only separates ids issued within the same millisecond.
func NewID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("%s%d-%s", Prefix, now.UnixMilli(), suffix)
}

func Valid(id string) bool {
	return strings.HasPrefix(id, Prefix) && len(id) > len(Prefix)
}

// Payload is the text encoded into the code: a verification URL when a
// public base URL is known, the bare id otherwise.
func Payload(publicURL, id string) string {
	if publicURL == "" {
		return id
	}
	return strings.TrimRight(publicURL, "/") + "/ticket/" + id
}

func PNG(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode ticket code: %w", err)
	}
	return png, nil
}
