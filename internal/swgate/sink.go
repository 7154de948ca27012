package swgate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nicholas-fedor/shoutrrr"
)

// ShoutrrrSink forwards notifications to shoutrrr service URLs
// (ntfy://, gotify://, telegram://, ...).
type ShoutrrrSink struct {
	urls []string
	send func(rawURL, message string) error
}

func NewShoutrrrSink(urls []string) *ShoutrrrSink {
	return &ShoutrrrSink{urls: urls, send: shoutrrr.Send}
}

func (s *ShoutrrrSink) Alert(ctx context.Context, n Notification) error {
	msg := formatAlert(n)
	var errs []error
	for _, u := range s.urls {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.send(u, msg); err != nil {
			errs = append(errs, fmt.Errorf("send via %s: %w", serviceScheme(u), err))
		}
	}
	return errors.Join(errs...)
}

func formatAlert(n Notification) string {
	var b strings.Builder
	b.WriteString(n.Title)
	if n.Body != "" {
		b.WriteString("\n")
		b.WriteString(n.Body)
	}
	if n.Data.URL != "" {
		b.WriteString("\n")
		b.WriteString(n.Data.URL)
	}
	return b.String()
}

// serviceScheme keeps credentials embedded in service URLs out of errors.
func serviceScheme(u string) string {
	if i := strings.Index(u, "://"); i > 0 {
		return u[:i]
	}
	return "unknown"
}
