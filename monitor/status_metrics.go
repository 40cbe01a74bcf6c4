package monitor

import (
	"context"
	"sync"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"
	"github.com/smartcontractkit/chainlink-common/pkg/services"

	"github.com/perseid-labs/txengine/status"
)

// StatusSource is the subscription surface of the status tracker.
type StatusSource interface {
	Subscribe(filter func(status.StatusUpdate) bool) (string, <-chan status.StatusUpdate)
	Unsubscribe(id string) bool
}

// StatusMetrics subscribes to the status tracker and mirrors every update
// into the status-update counter.
type StatusMetrics struct {
	services.StateMachine
	lggr    logger.Logger
	source  StatusSource
	network string

	subID   string
	updates <-chan status.StatusUpdate

	chStop services.StopChan
	done   sync.WaitGroup
}

func NewStatusMetrics(lggr logger.Logger, source StatusSource, network string) *StatusMetrics {
	return &StatusMetrics{
		lggr:    logger.Named(lggr, "StatusMetrics"),
		source:  source,
		network: network,
		chStop:  make(services.StopChan),
	}
}

func (m *StatusMetrics) Name() string { return m.lggr.Name() }

func (m *StatusMetrics) Start(context.Context) error {
	return m.StartOnce("StatusMetrics", func() error {
		m.subID, m.updates = m.source.Subscribe(nil)
		m.done.Add(1)
		go m.consumeLoop()
		return nil
	})
}

func (m *StatusMetrics) Close() error {
	return m.StopOnce("StatusMetrics", func() error {
		close(m.chStop)
		m.source.Unsubscribe(m.subID)
		m.done.Wait()
		return nil
	})
}

func (m *StatusMetrics) HealthReport() map[string]error {
	return map[string]error{m.Name(): m.Healthy()}
}

func (m *StatusMetrics) consumeLoop() {
	defer m.done.Done()
	for {
		select {
		case update, ok := <-m.updates:
			if !ok {
				return
			}
			RecordStatusUpdate(m.network, update.Status.String())
		case <-m.chStop:
			return
		}
	}
}
