// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package alerts

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/jllopis/riskcrew/pkg/errors"
	"github.com/jllopis/riskcrew/pkg/risk"
)

type conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// NATS publishes events as JSON on <prefix>.alerts and <prefix>.reports.
type NATS struct {
	conn          conn
	alertsSubject string
	reportSubject string
	logger        *slog.Logger
}

// DialNATS connects to url, retrying in the background when the server is
// not yet available.
func DialNATS(url, prefix string, logger *slog.Logger) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("riskcrew"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, errors.New(errors.CodeUnavailable, "connect to nats "+url, err)
	}
	return newNATS(nc, prefix, logger), nil
}

func newNATS(c conn, prefix string, logger *slog.Logger) *NATS {
	if prefix == "" {
		prefix = "riskcrew"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATS{
		conn:          c,
		alertsSubject: prefix + ".alerts",
		reportSubject: prefix + ".reports",
		logger:        logger,
	}
}

// PublishAlert implements Publisher.
func (n *NATS) PublishAlert(ctx context.Context, a Alert) error {
	if err := n.publish(n.alertsSubject, a); err != nil {
		return err
	}
	n.logger.InfoContext(ctx, "alert.published", slog.String("subject", n.alertsSubject), slog.String("risk_id", a.RiskID))
	return nil
}

// PublishReport implements Publisher.
func (n *NATS) PublishReport(ctx context.Context, r risk.Report) error {
	if err := n.publish(n.reportSubject, r); err != nil {
		return err
	}
	n.logger.InfoContext(ctx, "report.published", slog.String("subject", n.reportSubject), slog.String("report_id", r.ID))
	return nil
}

func (n *NATS) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.New(errors.CodeInternal, "encode event", err)
	}
	if err := n.conn.Publish(subject, data); err != nil {
		return errors.New(errors.CodeUnavailable, "publish "+subject, err).WithRecoverable(true)
	}
	return nil
}

// Close closes the connection.
func (n *NATS) Close() error {
	n.conn.Close()
	return nil
}

// New returns a NATS publisher when url is set and a logging one otherwise.
func New(url, prefix string, logger *slog.Logger) (Publisher, error) {
	if url == "" {
		return NewNoop(logger), nil
	}
	return DialNATS(url, prefix, logger)
}
