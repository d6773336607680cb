// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package eventstream

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v5"

	"github.com/bureau-foundation/auditdesk/auditapi"
)

// Run keeps an event stream open until ctx ends, passing every event
// to handler in arrival order. After a failed dial or a lost
// connection it waits with exponential backoff (InitialBackoff
// doubling to MaxBackoff, reset after every successful dial) and
// dials again.
//
// Run returns nil when ctx ends. It returns an error matching
// auditapi.ErrUnauthorized, without retrying, when the service
// refuses the session. The stream in use is closed before Run
// returns, and handler is never called after that.
func (d *Dialer) Run(ctx context.Context, handler func(Event)) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.config.InitialBackoff
	policy.MaxInterval = d.config.MaxBackoff
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.Reset()

	logger := d.config.Logger
	connected := false
	for {
		stream, err := d.Dial(ctx)
		if ctx.Err() != nil {
			if stream != nil {
				stream.Close()
			}
			return nil
		}
		if err == nil {
			policy.Reset()
			if d.config.OnConnect != nil {
				d.config.OnConnect()
			}
			if connected && d.config.OnReconnect != nil {
				d.config.OnReconnect()
			}
			connected = true

			err = d.consume(ctx, stream, handler)
			if ctx.Err() != nil {
				return nil
			}
		}
		if errors.Is(err, auditapi.ErrUnauthorized) {
			logger.Warn("event stream refused: session expired", "error", err)
			return err
		}

		delay := policy.NextBackOff()
		logger.Warn("event stream disconnected",
			"error", err,
			"backoff", delay,
		)
		if d.config.OnDisconnect != nil {
			d.config.OnDisconnect(err, delay)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-d.config.Clock.After(delay):
		}
	}
}

// consume delivers a stream's events until it ends or ctx is done,
// then closes it. Returns why the stream ended.
func (d *Dialer) consume(ctx context.Context, stream *Stream, handler func(Event)) error {
	defer stream.Close()
	events := stream.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				if err := stream.Err(); err != nil {
					return err
				}
				return ErrServerClosed
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			handler(event)
		}
	}
}
