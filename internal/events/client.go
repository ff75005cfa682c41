// Package events connects the session engine to the surrounding CRM over
// NATS. Terminal sessions are announced for downstream consumers, and
// generation requests can be submitted over the bus instead of HTTP.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mosaic-crm/prospector/internal/lead"
	"github.com/mosaic-crm/prospector/internal/session"
)

const (
	// SubjectRequest carries generation requests submitted by the
	// surrounding application; the payload is GenerationParameters.
	SubjectRequest = "crm.leadgen.request"
	// SubjectCompleted announces a completed session with its leads.
	SubjectCompleted = "crm.leadgen.session.completed"
	// SubjectFailed announces a session that ended in error.
	SubjectFailed = "crm.leadgen.session.failed"
	// SubjectRegistered announces service startup.
	SubjectRegistered = "crm.agent.prospector.registered"
)

// SessionEvent is the payload of completed/failed announcements.
type SessionEvent struct {
	SessionID     string                    `json:"session_id"`
	Status        lead.SessionStatus        `json:"status"`
	Params        lead.GenerationParameters `json:"params"`
	Leads         []lead.Lead               `json:"leads"`
	ProvidersUsed []string                  `json:"providers_used"`
	Error         string                    `json:"error,omitempty"`
	FinishedAt    time.Time                 `json:"finished_at"`
}

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

// PublishCompleted announces a completed session, leads included, for
// downstream consumers.
func (c *Client) PublishCompleted(sess session.Session) error {
	return c.Publish(SubjectCompleted, sessionEvent(sess))
}

// PublishFailed announces a session that ended in error.
func (c *Client) PublishFailed(sess session.Session) error {
	return c.Publish(SubjectFailed, sessionEvent(sess))
}

func sessionEvent(sess session.Session) SessionEvent {
	return SessionEvent{
		SessionID:     sess.ID,
		Status:        sess.Status,
		Params:        sess.Params,
		Leads:         sess.Leads,
		ProvidersUsed: sess.ProvidersUsed,
		Error:         sess.Error,
		FinishedAt:    sess.UpdatedAt,
	}
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
