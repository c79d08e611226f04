// Package realtime maintains the push-update subscription to the remote
// record service. Decoded workout updates flow through conflict resolution;
// catalog tables just lose their cached entry and refill on the next read.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/repset/warmup/internal/common"
	"github.com/repset/warmup/internal/interfaces"
	"github.com/repset/warmup/internal/models"
	"github.com/ternarybob/arbor"
)

const (
	// baseReconnectDelay starts the reconnect backoff
	baseReconnectDelay = time.Second

	// maxReconnectDelay caps the reconnect backoff
	maxReconnectDelay = 30 * time.Second

	// handshakeTimeout bounds one dial attempt
	handshakeTimeout = 10 * time.Second
)

// Subscriber consumes the remote push channel and routes updates into the
// cache layer
type Subscriber struct {
	wsURL   string
	apiKey  string
	dialer  *websocket.Dialer
	records interfaces.WorkoutService
	cache   interfaces.CacheStorage
	events  interfaces.EventService
	logger  arbor.ILogger
}

// NewSubscriber creates a push subscriber for the configured websocket URL
func NewSubscriber(config common.RemoteConfig, records interfaces.WorkoutService, cache interfaces.CacheStorage, events interfaces.EventService, logger arbor.ILogger) *Subscriber {
	return &Subscriber{
		wsURL:  config.WSURL,
		apiKey: config.APIKey,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		records: records,
		cache:   cache,
		events:  events,
		logger:  logger,
	}
}

// Run connects and reads push frames until the context is cancelled,
// reconnecting with capped exponential backoff on any failure
func (s *Subscriber) Run(ctx context.Context) error {
	if s.wsURL == "" {
		return fmt.Errorf("push subscription url is not configured")
	}

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := s.dial(ctx)
		if err != nil {
			attempt++
			delay := reconnectDelay(attempt)
			s.logger.Warn().
				Err(err).
				Str("url", s.wsURL).
				Dur("retry_in", delay).
				Msg("Push subscription dial failed")
			if err := sleepCtx(ctx, delay); err != nil {
				return err
			}
			continue
		}

		attempt = 0
		s.logger.Info().Str("url", s.wsURL).Msg("Push subscription connected")

		err = s.readLoop(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempt++
		delay := reconnectDelay(attempt)
		s.logger.Warn().
			Err(err).
			Dur("retry_in", delay).
			Msg("Push subscription dropped, reconnecting")
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}
}

func (s *Subscriber) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if s.apiKey != "" {
		header.Set("x-api-key", s.apiKey)
	}

	conn, resp, err := s.dialer.DialContext(ctx, s.wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("push subscription handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("push subscription dial failed: %w", err)
	}
	return conn, nil
}

// readLoop consumes frames until the connection drops. A watchdog closes
// the connection on context cancel to unblock the read.
func (s *Subscriber) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	common.SafeGo(s.logger, "push-watchdog", func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("push connection closed unexpectedly: %w", err)
			}
			return err
		}
		s.handleFrame(ctx, message)
	}
}

// handleFrame decodes one push frame. Malformed frames and unmirrored
// tables are logged and dropped, never fatal.
func (s *Subscriber) handleFrame(ctx context.Context, message []byte) {
	push, err := models.DecodePushUpdate(message)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Dropping undecodable push frame")
		return
	}

	update, err := push.ToRecordUpdate()
	if err != nil {
		if errors.Is(err, models.ErrUnknownTable) {
			s.logger.Debug().Str("table", push.Table).Msg("Dropping push update for unmirrored table")
		} else {
			s.logger.Warn().Err(err).Str("table", push.Table).Msg("Dropping malformed push update")
		}
		return
	}

	s.dispatch(ctx, update)
}

// dispatch routes a decoded update. Workout logs carry local optimistic
// state and go through conflict resolution; other tables have no local
// edits, so the cached entry is simply dropped.
func (s *Subscriber) dispatch(ctx context.Context, update *models.RemoteRecordUpdate) {
	if update.Table == models.TableWorkoutLogs {
		if _, err := s.records.ApplyRemoteUpdate(ctx, update); err != nil {
			s.logger.Warn().
				Err(err).
				Str("id", update.RecordID).
				Msg("Failed to apply workout push update")
		}
		return
	}

	if err := s.cache.Invalidate(ctx, update.Table, update.RecordID); err != nil {
		s.logger.Warn().
			Err(err).
			Str("table", update.Table).
			Str("id", update.RecordID).
			Msg("Failed to invalidate cache entry for push update")
		return
	}

	s.logger.Debug().
		Str("table", update.Table).
		Str("id", update.RecordID).
		Str("event_type", string(update.EventType)).
		Msg("Invalidated cache entry for push update")

	_ = s.events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventRecordUpdated,
		Payload: map[string]interface{}{
			"table":      update.Table,
			"id":         update.RecordID,
			"event_type": string(update.EventType),
			"invalidate": true,
		},
	})
}

// reconnectDelay doubles per attempt up to the cap
func reconnectDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := baseReconnectDelay << uint(attempt-1)
	if delay > maxReconnectDelay || delay <= 0 {
		return maxReconnectDelay
	}
	return delay
}

func sleepCtx(ctx context.Context, delay time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
