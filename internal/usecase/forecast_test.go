package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	domrepo "SynthCast/internal/domain/repository"
	"SynthCast/pkg/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingQueue struct {
	types    []string
	payloads []interface{}
	err      error
}

func (q *capturingQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	if q.err != nil {
		return q.err
	}
	q.types = append(q.types, msgType)
	q.payloads = append(q.payloads, payload)
	return nil
}

func testForecastUC(t *testing.T, market *fakeMarket, events *capturingEvents, jobs *capturingQueue) *ForecastUseCase {
	t.Helper()
	members := []MemberModel{
		{Name: "a", Generator: &constGen{name: "a", price: 100}, Weight: 0.5},
		{Name: "b", Generator: &constGen{name: "b", price: 200}, Weight: 0.5},
	}
	ens, err := NewEnsemble(members, testCalib(t, market), noopMetrics{}, testLogger(t))
	require.NoError(t, err)

	var pub domrepo.EventPublisher
	if events != nil {
		pub = events
	}
	var q queue.QueueService
	if jobs != nil {
		q = jobs
	}
	return NewForecastUseCase(ens, market, noopMetrics{}, testLogger(t), pub, q)
}

func forecastParams() ForecastParams {
	return ForecastParams{
		Asset:          "BTC",
		StartTime:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Increment:      5 * time.Minute,
		Horizon:        15 * time.Minute,
		NumSimulations: 3,
	}
}

func TestForecastUsesCurrentPriceAndPublishes(t *testing.T) {
	market := &fakeMarket{vol: 0.02, price: 150}
	events := &capturingEvents{}
	jobs := &capturingQueue{}
	uc := testForecastUC(t, market, events, jobs)

	fs, degraded, err := uc.Forecast(context.Background(), forecastParams())
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Equal(t, "Ensemble", fs.Model)
	assert.Equal(t, 3, fs.NumSimulations())
	assert.Equal(t, 150.0, fs.Paths[0][0].Price)

	require.Len(t, jobs.types, 1)
	assert.Equal(t, ScoreJobType, jobs.types[0])
	payload, ok := jobs.payloads[0].(*ScoreJobPayload)
	require.True(t, ok)
	assert.Equal(t, "BTC", payload.Asset)
	assert.Equal(t, 300, payload.IncrementSec)
	assert.Len(t, payload.Prices, 3)
}

func TestForecastAbortsWhenPriceUnavailable(t *testing.T) {
	market := &fakeMarket{priceErr: fmt.Errorf("latest: %w", domrepo.ErrPriceUnavailable)}
	uc := testForecastUC(t, market, nil, nil)

	_, _, err := uc.Forecast(context.Background(), forecastParams())
	assert.ErrorIs(t, err, domrepo.ErrPriceUnavailable)
}

func TestForecastSurvivesPublishFailures(t *testing.T) {
	market := &fakeMarket{vol: 0.02}
	jobs := &capturingQueue{err: fmt.Errorf("redis down")}
	uc := testForecastUC(t, market, &capturingEvents{}, jobs)

	fs, _, err := uc.Forecast(context.Background(), forecastParams())
	require.NoError(t, err)
	assert.NotNil(t, fs)
}

func TestForecastRejectsInvalidRequest(t *testing.T) {
	uc := testForecastUC(t, &fakeMarket{vol: 0.02}, nil, nil)
	p := forecastParams()
	p.NumSimulations = 0

	_, _, err := uc.Forecast(context.Background(), p)
	assert.Error(t, err)
}
