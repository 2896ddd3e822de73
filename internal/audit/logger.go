package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventLoginSuccess   EventType = "login_success"
	EventLoginFailure   EventType = "login_failure"
	EventLoginThrottled EventType = "login_throttled"
	EventAccountCreate  EventType = "account_create"
	EventAccountDelete  EventType = "account_delete"
	EventProfileSync    EventType = "profile_sync"
)

type Event struct {
	Type    EventType
	Account string
	SteamID string
	Details map[string]interface{}
}

func Log(ctx context.Context, event Event) {
	logger := log.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &log.Logger
	}

	ctxLogger := logger.With().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.Account != "" {
		ctxLogger = ctxLogger.With().Str("account", event.Account).Logger()
	}
	if event.SteamID != "" {
		ctxLogger = ctxLogger.With().Str("steam_id", event.SteamID).Logger()
	}

	logEvent := ctxLogger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	case error:
		return e.AnErr(key, v)
	default:
		return e.Interface(key, v)
	}
}
