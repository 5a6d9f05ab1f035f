package notification

import (
	"context"
	"strings"

	"lms/logger"

	"github.com/pkg/errors"
)

// Notifier is the channel contract shared by InApp and Email.
type Notifier interface {
	Notify(ctx context.Context, userID uint, title, message, actionURL string) error
}

// Multi fans a notice out to several channels. It succeeds when at least one
// channel delivered.
type Multi struct {
	channels []Notifier
}

func NewMulti(channels ...Notifier) *Multi {
	return &Multi{channels: channels}
}

func (m *Multi) Notify(ctx context.Context, userID uint, title, message, actionURL string) error {
	if len(m.channels) == 0 {
		return nil
	}
	var failures []string
	for _, ch := range m.channels {
		if err := ch.Notify(ctx, userID, title, message, actionURL); err != nil {
			logger.Warn().Err(err).Uint("user_id", userID).Msgf("[NOTIFY] Channel %T failed", ch)
			failures = append(failures, err.Error())
		}
	}
	if len(failures) == len(m.channels) {
		return errors.Errorf("all notification channels failed: %s", strings.Join(failures, "; "))
	}
	return nil
}
