package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"walkforward-backtest/internal/api/models"
	"walkforward-backtest/internal/predictor"
	"walkforward-backtest/internal/strategy"
)

// StrategyHandler lists the model kinds a backtest can run.
type StrategyHandler struct{}

// NewStrategyHandler creates a new strategy handler
func NewStrategyHandler() *StrategyHandler {
	return &StrategyHandler{}
}

var sgdParameters = []models.ParameterInfo{
	{Name: "learning_rate", Type: "float", Description: "SGD step size", Default: 0.01},
	{Name: "alpha", Type: "float", Description: "L2 penalty", Default: 1e-4},
	{Name: "epochs", Type: "int", Description: "Passes over the data on a full fit", Default: 20},
	{Name: "random_state", Type: "int", Description: "Shuffle seed", Default: 42},
}

var classesParameter = models.ParameterInfo{
	Name:        "classes",
	Type:        "list",
	Description: "Label set fixed up front so partial fits never see an unknown class (0=SELL, 1=HOLD, 2=BUY)",
}

func parametersFor(kind string) []models.ParameterInfo {
	switch kind {
	case predictor.KindSGDClassifier:
		return append(append([]models.ParameterInfo{}, sgdParameters...), classesParameter)
	case predictor.KindSGDRegressor:
		return sgdParameters
	case predictor.KindRidge:
		return []models.ParameterInfo{{Name: "alpha", Type: "float", Description: "L2 penalty", Default: 1.0}}
	case predictor.KindCentroid:
		return []models.ParameterInfo{
			{Name: "temperature", Type: "float", Description: "Softmax temperature over negative distances", Default: 1.0},
			classesParameter,
		}
	}
	return nil
}

// ListStrategies handles GET /api/v1/strategies
func (h *StrategyHandler) ListStrategies(c *gin.Context) {
	catalog := predictor.Catalog()
	strategies := make([]models.StrategyInfo, len(catalog))
	for i, info := range catalog {
		strategies[i] = models.StrategyInfo{
			Name:        info.Kind,
			Task:        string(info.Task),
			Incremental: info.Incremental,
			Description: info.Description,
			Parameters:  parametersFor(info.Kind),
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"strategies": strategies,
		"benchmarks": strategy.Names(),
	})
}
