// Package engine wires the classifier, retry orchestrator, status tracker
// and recovery manager into one service with a single submission entrypoint.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/smartcontractkit/chainlink-common/pkg/logger"
	"github.com/smartcontractkit/chainlink-common/pkg/services"
	"github.com/smartcontractkit/chainlink-common/pkg/utils"

	"github.com/perseid-labs/txengine"
	"github.com/perseid-labs/txengine/clock"
	"github.com/perseid-labs/txengine/config"
	"github.com/perseid-labs/txengine/monitor"
	"github.com/perseid-labs/txengine/recovery"
	"github.com/perseid-labs/txengine/retry"
	"github.com/perseid-labs/txengine/status"
	"github.com/perseid-labs/txengine/txerrors"
)

// Engine is the transaction resilience engine for one network.
type Engine struct {
	services.StateMachine

	networkID string
	cfg       *config.TOMLConfig
	lggr      logger.Logger
	client    txengine.ChainClient
	clk       clock.Clock

	orchestrator *retry.Orchestrator
	tracker      *status.Tracker
	recovery     *recovery.Manager
	metrics      *monitor.StatusMetrics

	chStop services.StopChan
	done   sync.WaitGroup
}

func New(cfg *config.TOMLConfig, lggr logger.Logger, client txengine.ChainClient, clk clock.Clock) (*Engine, error) {
	cfg.SetDefaults()
	if err := cfg.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	networkID := *cfg.NetworkID
	lggr = logger.With(lggr, "networkID", networkID)

	tracker := status.NewTracker(lggr, client, clk, cfg.StatusConfig())
	return &Engine{
		networkID:    networkID,
		cfg:          cfg,
		lggr:         logger.Named(lggr, "TxEngine"),
		client:       client,
		clk:          clk,
		orchestrator: retry.NewOrchestrator(lggr, clk),
		tracker:      tracker,
		recovery:     recovery.NewManager(lggr, client, tracker, clk, cfg.RecoveryConfig()),
		metrics:      monitor.NewStatusMetrics(lggr, tracker, networkID),
		chStop:       make(services.StopChan),
	}, nil
}

func (e *Engine) Name() string { return e.lggr.Name() }

func (e *Engine) Start(ctx context.Context) error {
	return e.StartOnce("TxEngine", func() error {
		e.lggr.Debug("Starting")
		var ms services.MultiStart
		if err := ms.Start(ctx, e.tracker, e.recovery, e.metrics); err != nil {
			return err
		}
		e.done.Add(1)
		go e.reapLoop()
		return nil
	})
}

func (e *Engine) Close() error {
	return e.StopOnce("TxEngine", func() error {
		e.lggr.Debug("Stopping")
		close(e.chStop)
		e.done.Wait()
		return services.CloseAll(e.metrics, e.recovery, e.tracker)
	})
}

func (e *Engine) Ready() error {
	return errors.Join(
		e.StateMachine.Ready(),
		e.tracker.Ready(),
		e.recovery.Ready(),
		e.metrics.Ready(),
	)
}

func (e *Engine) HealthReport() map[string]error {
	report := map[string]error{e.Name(): e.Healthy()}
	services.CopyHealth(report, e.tracker.HealthReport())
	services.CopyHealth(report, e.recovery.HealthReport())
	services.CopyHealth(report, e.metrics.HealthReport())
	return report
}

// Tracker exposes the status tracker for subscriptions and queries.
func (e *Engine) Tracker() *status.Tracker { return e.tracker }

// Recovery exposes the recovery manager for manual corrective actions.
func (e *Engine) Recovery() *recovery.Manager { return e.recovery }

// Orchestrator exposes the retry session registry.
func (e *Engine) Orchestrator() *retry.Orchestrator { return e.orchestrator }

// Execute validates and submits the operation, retrying under the configured
// strategy, while tracking the full lifecycle. On success the transaction is
// handed to confirmation polling and, when the context carries a nonce, to
// recovery monitoring. Returns the tracking key and the chain transaction id.
func (e *Engine) Execute(ctx context.Context, opCtx txengine.OperationContext) (txKey, txID string, err error) {
	if opCtx.NetworkID == "" {
		opCtx.NetworkID = e.networkID
	}
	txKey = opCtx.TxID
	if txKey == "" {
		txKey = uuid.NewString()
	}

	if err := e.tracker.StartTracking(txKey, opCtx, status.Preparing); err != nil {
		return txKey, "", err
	}

	if err := e.tracker.UpdateStatus(txKey, status.Validating, "validating operation", nil); err != nil {
		return txKey, "", err
	}
	if cerr := e.validate(opCtx); cerr != nil {
		if ferr := e.tracker.FailWith(txKey, cerr); ferr != nil {
			e.lggr.Errorw("could not mark validation failure", "txKey", txKey, "error", ferr)
		}
		return txKey, "", cerr
	}

	if err := e.tracker.UpdateStatus(txKey, status.WaitingConfirmation, "queued for submission", nil); err != nil {
		return txKey, "", err
	}

	result, err := e.orchestrator.ExecuteWithRetry(ctx, func(ctx context.Context, current txengine.OperationContext, attempt int) (any, error) {
		return e.client.Submit(ctx, current)
	}, opCtx, e.cfg.RetryConfig(), e.onAttempt(txKey))
	if err != nil {
		var cerr *txerrors.CanonicalError
		if !errors.As(err, &cerr) {
			cerr = txerrors.ClassifyWithContext(err, e.networkID)
		}
		if ferr := e.tracker.FailWith(txKey, cerr); ferr != nil {
			e.lggr.Errorw("could not mark submission failure", "txKey", txKey, "error", ferr)
		}
		return txKey, "", cerr
	}

	txID, ok := result.(string)
	if !ok || txID == "" {
		cerr := txerrors.Classify(fmt.Errorf("submission returned no transaction id"))
		if ferr := e.tracker.FailWith(txKey, cerr); ferr != nil {
			e.lggr.Errorw("could not mark submission failure", "txKey", txKey, "error", ferr)
		}
		return txKey, "", cerr
	}

	if err := e.tracker.SetTxID(txKey, txID); err != nil {
		e.lggr.Errorw("could not record transaction id", "txKey", txKey, "txID", txID, "error", err)
	}
	if err := e.tracker.UpdateStatus(txKey, status.Submitted, "submitted", map[string]string{"txID": txID}); err != nil {
		e.lggr.Errorw("could not mark submitted", "txKey", txKey, "error", err)
	}

	if opCtx.Nonce != nil {
		if err := e.recovery.StartMonitoring(txKey, opCtx.WithTxID(txID)); err != nil {
			e.lggr.Warnw("could not start recovery monitoring", "txKey", txKey, "error", err)
		}
	} else {
		e.lggr.Debugw("context carries no nonce, skipping recovery monitoring", "txKey", txKey)
	}

	e.lggr.Infow("operation submitted", "txKey", txKey, "txID", txID)
	return txKey, txID, nil
}

// WaitForCompletion blocks until the transaction reaches the configured
// confirmation target or ctx is done.
func (e *Engine) WaitForCompletion(ctx context.Context, txKey string) (*txengine.Receipt, error) {
	entry, ok := e.tracker.Entry(txKey)
	if !ok {
		return nil, fmt.Errorf("not tracking: %s", txKey)
	}
	if entry.Context.TxID == "" {
		return nil, fmt.Errorf("transaction %s was never submitted", txKey)
	}
	return e.client.AwaitReceipt(ctx, entry.Context.TxID, *e.cfg.Status.ConfirmationTarget)
}

// onAttempt mirrors each failed attempt into metrics and bounces the tracked
// status through RETRYING.
func (e *Engine) onAttempt(txKey string) retry.AttemptHook {
	return func(session *retry.Session, attempt retry.Attempt) {
		monitor.RecordRetryAttempt(e.networkID, session.Strategy().Name(), string(attempt.Err.Type))
		if attempt.FeeAdjustment != nil {
			monitor.RecordFeeEscalation(e.networkID, session.Strategy().Name())
		}
		if err := e.tracker.UpdateStatus(txKey, status.Retrying, attempt.Err.UserMessage, nil); err != nil {
			e.lggr.Debugw("could not mark retrying", "txKey", txKey, "error", err)
			return
		}
		if err := e.tracker.UpdateStatus(txKey, status.WaitingConfirmation, "queued for resubmission", nil); err != nil {
			e.lggr.Debugw("could not requeue", "txKey", txKey, "error", err)
		}
	}
}

func (e *Engine) validate(opCtx txengine.OperationContext) *txerrors.CanonicalError {
	if opCtx.TargetAddress == (gethcommon.Address{}) {
		return &txerrors.CanonicalError{
			Type:             txerrors.TypeValidation,
			Severity:         txerrors.SeverityMedium,
			Code:             txerrors.CodeInvalidAddress,
			UserMessage:      "The destination address is missing or malformed.",
			Retryable:        false,
			SuggestedActions: []string{"Check the destination address and resubmit."},
			Context:          e.networkID,
			Timestamp:        e.clk.Now(),
		}
	}
	if opCtx.NetworkID != e.networkID {
		return &txerrors.CanonicalError{
			Type:             txerrors.TypeValidation,
			Severity:         txerrors.SeverityMedium,
			Code:             txerrors.CodeInvalidNetwork,
			UserMessage:      fmt.Sprintf("The operation targets network %q but this engine serves %q.", opCtx.NetworkID, e.networkID),
			Retryable:        false,
			SuggestedActions: []string{"Submit through the engine configured for the target network."},
			Context:          e.networkID,
			Timestamp:        e.clk.Now(),
		}
	}
	return nil
}

// reapLoop periodically drops finished retry sessions past retention.
func (e *Engine) reapLoop() {
	defer e.done.Done()

	e.lggr.Debugw("reapLoop: started")
	tick := time.After(utils.WithJitter(e.cfg.ReapInterval()))
	for {
		select {
		case <-tick:
			removed := e.orchestrator.ReapSessions(e.cfg.RetentionPeriod())
			if removed > 0 {
				e.lggr.Debugw("reaped retry sessions", "count", removed)
			}
			tick = time.After(utils.WithJitter(e.cfg.ReapInterval()))
		case <-e.chStop:
			e.lggr.Debugw("reapLoop: stopped")
			return
		}
	}
}
