// Package bus publishes ephemeris snapshots on NATS.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/model"
)

// SubjectPrefix is prepended to the system name of every published subject.
const SubjectPrefix = "orrery.ephemeris."

// Subject returns the subject ephemerides of system are published on.
// Characters with a meaning in NATS subjects are replaced by '_'.
func Subject(system string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, system)
	return SubjectPrefix + token
}

// Publisher sends ephemeris snapshots to NATS.
type Publisher struct {
	nc  *nats.Conn
	log logging.Logger
}

// Connect dials the NATS server at url.
func Connect(ctx context.Context, url string, log logging.Logger) (*Publisher, error) {
	if log == nil {
		log = logging.Noop()
	}
	nc, err := nats.Connect(url,
		nats.Name("orrery"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Warn(context.Background(), "NATS error", logging.Err(err))
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn(context.Background(), "NATS disconnected", logging.Err(err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info(context.Background(), "NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	log.Info(ctx, "connected to NATS", logging.String("url", nc.ConnectedUrl()))
	return &Publisher{nc: nc, log: log}, nil
}

// Publish sends eph as JSON on Subject(eph.System).
func (p *Publisher) Publish(eph model.Ephemeris) error {
	data, err := json.Marshal(eph)
	if err != nil {
		return fmt.Errorf("encode ephemeris: %w", err)
	}
	if err := p.nc.Publish(Subject(eph.System), data); err != nil {
		return fmt.Errorf("publish %s: %w", eph.System, err)
	}
	return nil
}

// Subscribe decodes every snapshot published for system and passes it to fn.
// Malformed messages are logged and dropped.
func (p *Publisher) Subscribe(system string, fn func(model.Ephemeris)) (*nats.Subscription, error) {
	sub, err := p.nc.Subscribe(Subject(system), func(msg *nats.Msg) {
		var eph model.Ephemeris
		if err := json.Unmarshal(msg.Data, &eph); err != nil {
			p.log.Warn(context.Background(), "dropping malformed ephemeris",
				logging.String("subject", msg.Subject),
				logging.Err(err),
			)
			return
		}
		fn(eph)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", system, err)
	}
	return sub, nil
}

// Flush waits until the server has processed all published messages.
func (p *Publisher) Flush() error {
	return p.nc.Flush()
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() error {
	return p.nc.Drain()
}
