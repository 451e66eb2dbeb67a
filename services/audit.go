package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/nats-io/nats.go"
)

// LogAuditSink writes lifecycle events to the standard logger.
type LogAuditSink struct{}

func (LogAuditSink) Record(_ context.Context, e LifecycleEvent) error {
	log.Printf("lifecycle %s entity=%d project=%d actor=%d %s -> %s", e.Type, e.EntityID, e.ProjectID, e.ActorID, e.From, e.To)
	return nil
}

// NATSAuditSink publishes lifecycle events as JSON on <prefix>.<event type>.
type NATSAuditSink struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSAuditSink connects to url. The connection retries in the
// background if the server goes away.
func NewNATSAuditSink(url, prefix string) (*NATSAuditSink, error) {
	conn, err := nats.Connect(url,
		nats.Name("cerbo-api"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("nats disconnected: %v", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSAuditSink{conn: conn, prefix: strings.TrimSuffix(prefix, ".")}, nil
}

func (s *NATSAuditSink) Record(_ context.Context, e LifecycleEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.conn.Publish(s.prefix+"."+e.Type, payload)
}

// Close drains pending publishes and closes the connection.
func (s *NATSAuditSink) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}

// MultiAuditSink fans an event out to every sink.
type MultiAuditSink []AuditSink

func (m MultiAuditSink) Record(ctx context.Context, e LifecycleEvent) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
