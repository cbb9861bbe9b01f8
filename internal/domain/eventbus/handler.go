package eventbus

import (
	"context"
	"time"

	"ambrosia-pos-gateway/internal/platform/logging"
)

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, topic string, payload any) error
}

// RegisterAuditHandlers logs toasts and records unauthorized and session
// events. recorder may be nil, in which case events are only logged.
func RegisterAuditHandlers(bus *Bus, recorder Recorder, logger *logging.Logger) error {
	record := func(topic string, payload any) {
		if recorder == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := recorder.Record(ctx, topic, payload); err != nil {
			logger.WarnTag("EVENTS", "record %s: %v", topic, err)
		}
	}

	if err := bus.Subscribe(TopicToast, func(ev ToastEvent) {
		logger.DebugTag("EVENTS", "toast %s: %s", ev.Level, ev.Message)
	}); err != nil {
		return err
	}

	for _, topic := range []string{TopicAuthUnauthorized, TopicWalletUnauthorized} {
		topic := topic
		if err := bus.Subscribe(topic, func(ev UnauthorizedEvent) {
			logger.InfoTag("AUTH", "%s on %s", topic, ev.Endpoint)
			record(topic, ev)
		}); err != nil {
			return err
		}
	}

	for _, topic := range []string{TopicSessionExpired, TopicSessionRefreshed} {
		topic := topic
		if err := bus.Subscribe(topic, func(ev SessionEvent) {
			logger.InfoTag("SESSION", "%s %s", topic, ev.SessionKey)
			record(topic, ev)
		}); err != nil {
			return err
		}
	}
	return nil
}
