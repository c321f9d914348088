package aggregator

import (
	"context"
	"sync"

	"orderbook/internal/domain/interfaces"
	"orderbook/internal/infrastructure/metrics"

	"github.com/sirupsen/logrus"
)

// ConnFunc adapts a plain function to interfaces.Connection.
type ConnFunc func(ctx context.Context) error

func (f ConnFunc) Close(ctx context.Context) error {
	return f(ctx)
}

// MultiConn closes a list of connections as one. Connections are closed in
// order, one after the other; a failing close is logged and the rest are
// still closed. Only the first Close does any work.
type MultiConn struct {
	conns   []interfaces.Connection
	logger  *logrus.Entry
	metrics *metrics.Metrics
	once    sync.Once
}

var _ interfaces.Connection = (*MultiConn)(nil)

// NewMultiConn takes ownership of conns.
func NewMultiConn(conns []interfaces.Connection, logger *logrus.Entry, m *metrics.Metrics) *MultiConn {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &MultiConn{
		conns:   conns,
		logger:  logger,
		metrics: m,
	}
}

// Close never returns an error: failures of single connections are
// reported through the logger only.
func (m *MultiConn) Close(ctx context.Context) error {
	m.once.Do(func() {
		for i, conn := range m.conns {
			if conn == nil {
				continue
			}
			if err := conn.Close(ctx); err != nil {
				m.metrics.CloseFailed()
				m.logger.WithError(err).WithField("conn", i).Warn("close connection failed")
			}
		}
	})
	return nil
}
