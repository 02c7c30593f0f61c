package service

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ingest/internal/core/domain"
)

func newAdjustmentFixture(t *testing.T) (*StockAdjustmentService, *fakeWide, *fakeFactory, *mockCache) {
	audits := newFakeFactory()
	wide := &fakeWide{log: audits.log, rows: make(map[string]int)}
	cache := &mockCache{}
	t.Cleanup(func() { cache.AssertExpectations(t) })

	return NewStockAdjustmentService(wide, audits, cache, "Store-001", zap.NewNop()), wide, audits, cache
}

func TestAdjust_Success(t *testing.T) {
	svc, wide, audits, cache := newAdjustmentFixture(t)
	cache.On("InvalidateStock", mock.Anything, "Store-001", "FRU-APP-123").Return(nil)

	result, err := svc.Adjust(context.Background(), domain.AdjustmentRequest{SKU: "FRU-APP-123", Quantity: 50})
	require.NoError(t, err)

	assert.Equal(t, domain.AdjustmentResult{Success: true, SKU: "FRU-APP-123", Quantity: 50}, result)
	assert.Equal(t, 50, wide.rows["Store-001/FRU-APP-123"])

	adjustments := audits.adjustments()
	require.Len(t, adjustments, 1)
	assert.Equal(t, "Store-001", adjustments[0].StoreID)
	assert.Equal(t, "FRU-APP-123", adjustments[0].SKU)
	assert.Equal(t, 50, adjustments[0].QuantityDelta)
}

func TestAdjust_ExplicitStore(t *testing.T) {
	svc, wide, audits, cache := newAdjustmentFixture(t)
	cache.On("InvalidateStock", mock.Anything, "Store-002", "DAI-MIL-456").Return(nil)

	result, err := svc.Adjust(context.Background(), domain.AdjustmentRequest{StoreID: "Store-002", SKU: "DAI-MIL-456", Quantity: 5})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 5, wide.rows["Store-002/DAI-MIL-456"])
	assert.Equal(t, "Store-002", audits.adjustments()[0].StoreID)
}

func TestAdjust_WideColumnFailureStillAudited(t *testing.T) {
	svc, wide, audits, cache := newAdjustmentFixture(t)
	wide.failSKU = "FRU-APP-123"

	result, err := svc.Adjust(context.Background(), domain.AdjustmentRequest{SKU: "FRU-APP-123", Quantity: 50})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "FRU-APP-123", result.SKU)
	assert.Len(t, audits.adjustments(), 1)
	cache.AssertNotCalled(t, "InvalidateStock", mock.Anything, mock.Anything, mock.Anything)
}

func TestAdjust_AuditFailureIsSilent(t *testing.T) {
	svc, _, audits, cache := newAdjustmentFixture(t)
	audits.relLogErrs = []error{errors.New("connection reset")}
	cache.On("InvalidateStock", mock.Anything, "Store-001", "FRU-APP-123").Return(nil)

	result, err := svc.Adjust(context.Background(), domain.AdjustmentRequest{SKU: "FRU-APP-123", Quantity: 50})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, audits.adjustments())
}

func TestAdjust_AuditStoreUnavailableIsSilent(t *testing.T) {
	svc, _, audits, cache := newAdjustmentFixture(t)
	audits.relOpenErr = errStoreDown
	cache.On("InvalidateStock", mock.Anything, "Store-001", "FRU-APP-123").Return(nil)

	result, err := svc.Adjust(context.Background(), domain.AdjustmentRequest{SKU: "FRU-APP-123", Quantity: 50})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, audits.adjustments())
}

func TestAdjust_BrokenAuditConnectionDoesNotPoisonLaterRequests(t *testing.T) {
	svc, _, audits, cache := newAdjustmentFixture(t)
	audits.relLogErrs = []error{driver.ErrBadConn}
	cache.On("InvalidateStock", mock.Anything, "Store-001", mock.Anything).Return(nil)

	_, err := svc.Adjust(context.Background(), domain.AdjustmentRequest{SKU: "FRU-APP-123", Quantity: 1})
	require.NoError(t, err)
	assert.Empty(t, audits.adjustments())

	for i := 0; i < 3; i++ {
		_, err := svc.Adjust(context.Background(), domain.AdjustmentRequest{SKU: "DAI-MIL-456", Quantity: i})
		require.NoError(t, err)
	}

	assert.Len(t, audits.adjustments(), 3)

	repos := audits.relational()
	require.Len(t, repos, 4)
	for _, repo := range repos {
		assert.True(t, repo.closed)
	}
	assert.ErrorIs(t, repos[0].closeCause, driver.ErrBadConn)
	assert.NoError(t, repos[1].closeCause)
}

func TestAdjust_CacheInvalidationFailureIgnored(t *testing.T) {
	svc, _, _, cache := newAdjustmentFixture(t)
	cache.On("InvalidateStock", mock.Anything, "Store-001", "FRU-APP-123").Return(errors.New("redis down"))

	result, err := svc.Adjust(context.Background(), domain.AdjustmentRequest{SKU: "FRU-APP-123", Quantity: 1})
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestAdjust_DuplicateRequest(t *testing.T) {
	svc, wide, audits, cache := newAdjustmentFixture(t)
	cache.On("SetIdempotency", mock.Anything, "req-1").Return(true, nil).Once()
	cache.On("SetIdempotency", mock.Anything, "req-1").Return(false, nil).Once()
	cache.On("InvalidateStock", mock.Anything, "Store-001", "FRU-APP-123").Return(nil).Once()

	req := domain.AdjustmentRequest{SKU: "FRU-APP-123", Quantity: 50, RequestID: "req-1"}

	_, err := svc.Adjust(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Adjust(context.Background(), req)
	assert.ErrorIs(t, err, ErrDuplicateRequest)

	assert.Len(t, audits.adjustments(), 1)
	assert.Equal(t, []string{
		"wide.save FRU-APP-123 50",
		"rel.open",
		"rel.log FRU-APP-123 50",
		"rel.close",
	}, wide.log.list())
}

func TestAdjust_FailedWriteReleasesRequestID(t *testing.T) {
	svc, wide, audits, cache := newAdjustmentFixture(t)
	wide.failSKU = "FRU-APP-123"
	cache.On("SetIdempotency", mock.Anything, "req-1").Return(true, nil).Twice()
	cache.On("ReleaseIdempotency", mock.Anything, "req-1").Return(nil).Once()
	cache.On("InvalidateStock", mock.Anything, "Store-001", "FRU-APP-123").Return(nil).Once()

	req := domain.AdjustmentRequest{SKU: "FRU-APP-123", Quantity: 50, RequestID: "req-1"}

	result, err := svc.Adjust(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Success)

	wide.failSKU = ""
	result, err = svc.Adjust(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 50, wide.rows["Store-001/FRU-APP-123"])
	assert.Len(t, audits.adjustments(), 2)
}

func TestAdjust_SuccessfulWriteKeepsRequestID(t *testing.T) {
	svc, _, _, cache := newAdjustmentFixture(t)
	cache.On("SetIdempotency", mock.Anything, "req-1").Return(true, nil).Once()
	cache.On("InvalidateStock", mock.Anything, "Store-001", "FRU-APP-123").Return(nil).Once()

	_, err := svc.Adjust(context.Background(), domain.AdjustmentRequest{SKU: "FRU-APP-123", Quantity: 1, RequestID: "req-1"})
	require.NoError(t, err)
	cache.AssertNotCalled(t, "ReleaseIdempotency", mock.Anything, mock.Anything)
}

func TestAdjust_IdempotencyCheckFails(t *testing.T) {
	svc, _, audits, cache := newAdjustmentFixture(t)
	cache.On("SetIdempotency", mock.Anything, "req-1").Return(false, errors.New("redis down"))

	_, err := svc.Adjust(context.Background(), domain.AdjustmentRequest{SKU: "FRU-APP-123", Quantity: 1, RequestID: "req-1"})
	assert.Error(t, err)
	assert.Empty(t, audits.relational())
}

func TestAdjust_RequiresSKU(t *testing.T) {
	svc, _, audits, _ := newAdjustmentFixture(t)

	_, err := svc.Adjust(context.Background(), domain.AdjustmentRequest{Quantity: 1})
	assert.ErrorIs(t, err, ErrInvalidAdjustment)
	assert.Empty(t, audits.relational())
}

func TestAdjust_AuditSurvivesCancelledCaller(t *testing.T) {
	svc, _, audits, cache := newAdjustmentFixture(t)
	cache.On("InvalidateStock", mock.Anything, "Store-001", "FRU-APP-123").Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Adjust(ctx, domain.AdjustmentRequest{SKU: "FRU-APP-123", Quantity: -3})
	require.NoError(t, err)

	adjustments := audits.adjustments()
	require.Len(t, adjustments, 1)
	assert.Equal(t, -3, adjustments[0].QuantityDelta)
}
