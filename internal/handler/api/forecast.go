package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	models "SynthCast/internal/domain/models"
	domrepo "SynthCast/internal/domain/repository"
	icache "SynthCast/internal/service/cache"
	"SynthCast/internal/service/ratelimit"
	"SynthCast/internal/usecase"
	xhttp "SynthCast/pkg/http"
	xlogger "SynthCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ForecastHandler exposes the forecasting and scoring API over Echo.
type ForecastHandler struct {
	logger   *xlogger.Logger
	forecast *usecase.ForecastUseCase
	score    *usecase.ScoreUseCase
	candles  *usecase.CandlesUseCase
	storage  domrepo.Storage
	stream   interface{ IsConnected() bool }
	rl       *ratelimit.Limiter
	cache    icache.BytesCache
}

func NewForecastHandler(
	logger *xlogger.Logger,
	forecast *usecase.ForecastUseCase,
	score *usecase.ScoreUseCase,
	candles *usecase.CandlesUseCase,
) *ForecastHandler {
	return &ForecastHandler{
		logger:   logger,
		forecast: forecast,
		score:    score,
		candles:  candles,
		rl:       ratelimit.New(),
		cache:    icache.NewTTLCache(),
	}
}

// SetCache swaps the response cache, e.g. for a Redis-backed cache shared
// across replicas.
func (h *ForecastHandler) SetCache(c icache.BytesCache) {
	if c != nil {
		h.cache = c
	}
}

// SetHealthProbes injects dependencies checked by /healthz.
func (h *ForecastHandler) SetHealthProbes(storage domrepo.Storage, stream interface{ IsConnected() bool }) {
	h.storage = storage
	h.stream = stream
}

func (h *ForecastHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Healthz)
	g := e.Group("/api")
	g.POST("/forecast", h.Forecast)
	g.POST("/score", h.Score)
	g.POST("/compare", h.Compare)
	g.GET("/candles", h.Candles)
}

func (h *ForecastHandler) Forecast(c echo.Context) error {
	req := &models.ForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	start, ok := xhttp.ParseTime(req.StartTime)
	if !ok {
		return xhttp.BadRequestResponse(c, "start_time must be RFC3339 or unix seconds")
	}
	if !h.rl.Allow(c.RealIP()+":forecast", 10, 5) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}

	fs, degraded, err := h.forecast.Forecast(c.Request().Context(), usecase.ForecastParams{
		Asset:          req.Asset,
		StartTime:      start,
		Increment:      time.Duration(req.TimeIncrement) * time.Second,
		Horizon:        time.Duration(req.TimeLength) * time.Second,
		NumSimulations: req.NumSimulations,
	})
	if err != nil {
		h.logger.Error("forecast usecase error", xlogger.String("asset", req.Asset), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapForecastErr(req.Asset, err))
	}

	return xhttp.SuccessResponse(c, &models.ForecastResponse{
		Asset:          fs.Asset,
		Model:          fs.Model,
		StartTime:      start.UTC().Format(time.RFC3339),
		TimeIncrement:  req.TimeIncrement,
		TimeLength:     req.TimeLength,
		NumSimulations: fs.NumSimulations(),
		Degraded:       degraded,
		Predictions:    usecase.WireFromForecastSet(fs),
	})
}

func (h *ForecastHandler) Score(c echo.Context) error {
	req := &models.ScoreRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	report, err := h.score.Score(c.Request().Context(), req)
	if err != nil {
		h.logger.Warn("score rejected", xlogger.Error(err))
		return xhttp.BadRequestResponse(c, err.Error())
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *ForecastHandler) Compare(c echo.Context) error {
	req := &models.CompareRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	cmp, err := h.score.Compare(c.Request().Context(), req)
	if err != nil {
		h.logger.Warn("compare rejected", xlogger.Error(err))
		return xhttp.BadRequestResponse(c, err.Error())
	}
	return xhttp.SuccessResponse(c, cmp)
}

func (h *ForecastHandler) Candles(c echo.Context) error {
	asset := c.QueryParam("asset")
	if asset == "" {
		return xhttp.BadRequestResponse(c, "asset required")
	}
	now := time.Now()
	from := xhttp.ParseTimeDefault(c.QueryParam("from"), now.Add(-24*time.Hour))
	to := xhttp.ParseTimeDefault(c.QueryParam("to"), now)
	tf := domrepo.NormalizeTimeframe(c.QueryParam("tf"))
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 10000)

	cacheKey := "candles:" + asset + ":" + string(tf) + ":" + from.Format(time.RFC3339) + ":" + to.Format(time.RFC3339)
	if b, ok, err := h.cache.GetBytes(cacheKey); err == nil && ok {
		return c.JSONBlob(http.StatusOK, b)
	}

	res, err := h.candles.GetCandles(c.Request().Context(), usecase.GetCandlesParams{
		Asset:     asset,
		From:      from,
		To:        to,
		Timeframe: tf,
		Limit:     limit,
	})
	if err != nil {
		h.logger.Error("candles usecase error", xlogger.String("asset", asset), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	if b, err := json.Marshal(res); err == nil {
		_ = h.cache.SetBytes(cacheKey, b, 30*time.Second)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastHandler) Healthz(c echo.Context) error {
	status := map[string]interface{}{"status": "ok"}
	code := http.StatusOK

	if h.storage != nil {
		if err := h.storage.Health(c.Request().Context()); err != nil {
			status["status"] = "degraded"
			status["storage"] = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			status["storage"] = "ok"
		}
	}
	if h.stream != nil {
		status["stream_connected"] = h.stream.IsConnected()
	}
	return c.JSON(code, status)
}

func mapForecastErr(asset string, err error) error {
	switch {
	case errors.Is(err, domrepo.ErrPriceUnavailable):
		return xhttp.BadGatewayErrorf("no current price for %s", asset).WithError(err)
	case errors.Is(err, domrepo.ErrMarketDataUnavailable):
		return xhttp.BadGatewayErrorf("market data unavailable for %s", asset).WithError(err)
	case errors.Is(err, usecase.ErrAllModelsFailed):
		return xhttp.InternalError("all ensemble members failed").WithError(err)
	default:
		return err
	}
}
