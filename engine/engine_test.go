package engine

import (
	"errors"
	"testing"
	"time"

	gethcommon "github.com/ethereum/go-ethereum/common"
	commonconfig "github.com/smartcontractkit/chainlink-common/pkg/config"
	"github.com/smartcontractkit/chainlink-common/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perseid-labs/txengine"
	"github.com/perseid-labs/txengine/clock"
	"github.com/perseid-labs/txengine/config"
	"github.com/perseid-labs/txengine/recovery"
	"github.com/perseid-labs/txengine/status"
	"github.com/perseid-labs/txengine/testutils"
	"github.com/perseid-labs/txengine/txerrors"
)

func testTOMLConfig() *config.TOMLConfig {
	cfg := config.NewDefault()
	networkID := "testnet"
	cfg.NetworkID = &networkID
	return cfg
}

func testOpCtx() txengine.OperationContext {
	nonce := uint64(3)
	return txengine.OperationContext{
		NetworkID:     "testnet",
		TargetAddress: gethcommon.HexToAddress("0x0200000000000000000000000000000000000000"),
		CallerAddress: gethcommon.HexToAddress("0x0100000000000000000000000000000000000000"),
		FeePrice:      100,
		Nonce:         &nonce,
	}
}

func newTestEngine(t *testing.T, cfg *config.TOMLConfig) (*Engine, *testutils.FakeChainClient) {
	client := testutils.NewFakeChainClient()
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	e, err := New(cfg, logger.Test(t), client, clk)
	require.NoError(t, err)
	return e, client
}

func TestNew_InvalidConfig(t *testing.T) {
	client := testutils.NewFakeChainClient()
	_, err := New(config.NewDefault(), logger.Test(t), client, clock.System())
	require.Error(t, err, "NetworkID is required")
}

func TestExecute_Success(t *testing.T) {
	e, client := newTestEngine(t, testTOMLConfig())

	txKey, txID, err := e.Execute(t.Context(), testOpCtx())
	require.NoError(t, err)
	assert.NotEmpty(t, txKey)
	assert.Equal(t, "0xtx0001", txID)
	assert.Equal(t, 1, client.SubmitCount())

	entry, ok := e.Tracker().Entry(txKey)
	require.True(t, ok)
	assert.Equal(t, status.Submitted, entry.Status)
	assert.Equal(t, txID, entry.Context.TxID)

	state, ok := e.Recovery().State(txKey)
	require.True(t, ok)
	assert.Equal(t, recovery.StatusPending, state.Status)
	assert.Equal(t, txID, state.WatchTxID)
}

func TestExecute_NoNonceSkipsRecovery(t *testing.T) {
	e, _ := newTestEngine(t, testTOMLConfig())

	opCtx := testOpCtx()
	opCtx.Nonce = nil
	txKey, _, err := e.Execute(t.Context(), opCtx)
	require.NoError(t, err)

	_, ok := e.Recovery().State(txKey)
	assert.False(t, ok)
}

func TestExecute_ValidationFailure(t *testing.T) {
	e, client := newTestEngine(t, testTOMLConfig())

	opCtx := testOpCtx()
	opCtx.TargetAddress = gethcommon.Address{}
	txKey, _, err := e.Execute(t.Context(), opCtx)
	require.Error(t, err)

	var cerr *txerrors.CanonicalError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, txerrors.CodeInvalidAddress, cerr.Code)
	assert.Equal(t, 0, client.SubmitCount())

	entry, ok := e.Tracker().Entry(txKey)
	require.True(t, ok)
	assert.Equal(t, status.Failed, entry.Status)
	require.NotNil(t, entry.Err)
}

func TestExecute_WrongNetwork(t *testing.T) {
	e, _ := newTestEngine(t, testTOMLConfig())

	opCtx := testOpCtx()
	opCtx.NetworkID = "othernet"
	_, _, err := e.Execute(t.Context(), opCtx)
	require.Error(t, err)

	var cerr *txerrors.CanonicalError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, txerrors.CodeInvalidNetwork, cerr.Code)
}

func TestExecute_RetriesThenSucceeds(t *testing.T) {
	e, client := newTestEngine(t, testTOMLConfig())

	client.QueueSubmit("", errors.New("request timed out"))
	client.QueueSubmit("", errors.New("request timed out"))

	txKey, txID, err := e.Execute(t.Context(), testOpCtx())
	require.NoError(t, err)
	assert.NotEmpty(t, txID)
	assert.Equal(t, 3, client.SubmitCount())

	entry, _ := e.Tracker().Entry(txKey)
	assert.Equal(t, status.Submitted, entry.Status)

	var sawRetrying bool
	for _, u := range entry.Updates {
		if u.Status == status.Retrying {
			sawRetrying = true
		}
	}
	assert.True(t, sawRetrying)
}

func TestExecute_Exhaustion(t *testing.T) {
	cfg := testTOMLConfig()
	maxRetries := 1
	cfg.Retry.MaxRetries = &maxRetries
	e, client := newTestEngine(t, cfg)

	client.QueueSubmit("", errors.New("connection refused"))
	client.QueueSubmit("", errors.New("connection refused"))

	txKey, _, err := e.Execute(t.Context(), testOpCtx())
	require.Error(t, err)

	var cerr *txerrors.CanonicalError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, txerrors.CodeConnectionFailed, cerr.Code)
	assert.Equal(t, 2, client.SubmitCount())

	entry, _ := e.Tracker().Entry(txKey)
	assert.Equal(t, status.Failed, entry.Status)
}

func TestExecute_NonRetryableFailsFast(t *testing.T) {
	e, client := newTestEngine(t, testTOMLConfig())

	client.QueueSubmit("", errors.New("insufficient funds for transfer"))

	txKey, _, err := e.Execute(t.Context(), testOpCtx())
	require.Error(t, err)
	assert.Equal(t, 1, client.SubmitCount())

	entry, _ := e.Tracker().Entry(txKey)
	assert.Equal(t, status.Failed, entry.Status)
	require.NotNil(t, entry.Err)
	assert.Equal(t, txerrors.CodeInsufficientFunds, entry.Err.Code)
}

func TestWaitForCompletion(t *testing.T) {
	e, client := newTestEngine(t, testTOMLConfig())

	txKey, txID, err := e.Execute(t.Context(), testOpCtx())
	require.NoError(t, err)

	client.SetReceipt(txID, &txengine.Receipt{TxID: txID, BlockNumber: 10, Confirmations: 3, Success: true})
	receipt, err := e.WaitForCompletion(t.Context(), txKey)
	require.NoError(t, err)
	assert.Equal(t, txID, receipt.TxID)

	_, err = e.WaitForCompletion(t.Context(), "unknown")
	require.Error(t, err)
}

func TestEngineLifecycle(t *testing.T) {
	cfg := testTOMLConfig()
	cfg.Status.PollPeriod = commonconfig.MustNewDuration(20 * time.Millisecond)
	e, client := newTestEngine(t, cfg)

	require.NoError(t, e.Start(t.Context()))
	require.NoError(t, e.Ready())

	report := e.HealthReport()
	assert.Contains(t, report, e.Name())
	for _, err := range report {
		assert.NoError(t, err)
	}

	// Submissions flow end to end while running.
	txKey, txID, err := e.Execute(t.Context(), testOpCtx())
	require.NoError(t, err)
	client.SetReceipt(txID, &txengine.Receipt{TxID: txID, BlockNumber: 10, Confirmations: 3, Success: true})
	require.Eventually(t, func() bool {
		entry, _ := e.Tracker().Entry(txKey)
		return entry.Status == status.Completed
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, e.Close())
	require.Error(t, e.Ready())
}
