package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/creasty/defaults"
	"github.com/gin-gonic/gin"

	"walkforward-backtest/internal/analysis"
	"walkforward-backtest/internal/api/models"
	"walkforward-backtest/internal/data"
	"walkforward-backtest/internal/model"
	"walkforward-backtest/internal/service"
)

// RankHandler ranks the symbols of a dataset by how much a perfect-foresight
// long/flat strategy could have earned on them.
type RankHandler struct {
	svc *service.Service
}

// NewRankHandler creates a new rank handler
func NewRankHandler(svc *service.Service) *RankHandler {
	return &RankHandler{svc: svc}
}

// RankSymbols handles GET /api/v1/rank
func (h *RankHandler) RankSymbols(c *gin.Context) {
	var req models.RankRequest
	if err := defaults.Set(&req); err != nil {
		c.JSON(http.StatusInternalServerError, models.NewError("INTERNAL_ERROR", err.Error()))
		return
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewError("INVALID_REQUEST", err.Error()))
		return
	}

	var symbols []string
	for _, s := range strings.Split(req.Symbols, ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, s)
		}
	}
	bySymbol, err := h.load(req.Dataset, symbols)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewError("DATASET_LOAD_ERROR", err.Error()))
		return
	}

	ranked := analysis.RankByOracleReturn(bySymbol, req.CostBps)
	if req.Limit < len(ranked) {
		ranked = ranked[:req.Limit]
	}
	rankings := make([]models.Ranking, len(ranked))
	for i, r := range ranked {
		rankings[i] = models.Ranking{
			Rank:          i + 1,
			Symbol:        r.Symbol,
			Count:         r.Count,
			Volatility:    r.Volatility,
			SpreadP95P05:  r.SpreadP95P05,
			BuyHoldReturn: r.BuyHoldReturn,
			OracleReturn:  r.OracleReturn,
		}
	}
	c.JSON(http.StatusOK, models.RankResponse{Rankings: rankings})
}

func (h *RankHandler) load(ref string, symbols []string) (map[string][]model.Bar, error) {
	path, err := h.svc.ResolveDataset(ref)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		s, err := data.LoadSeriesJSON(path)
		if err != nil {
			return nil, err
		}
		return map[string][]model.Bar{s.Symbol: s.Bars}, nil
	}
	bars, err := data.LoadOHLCVCSV(path, symbols...)
	if err != nil {
		return nil, err
	}
	return data.GroupBySymbol(bars), nil
}
