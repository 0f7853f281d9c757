package handlers

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"walkforward-backtest/internal/api/models"
	"walkforward-backtest/internal/artifacts"
	"walkforward-backtest/internal/data"
)

// CatalogHandler serves the on-disk listings: datasets, trained models and
// backtest artifacts.
type CatalogHandler struct {
	catalogPath string
	artifactDir string
	modelDir    string
}

func NewCatalogHandler(catalogPath, artifactDir, modelDir string) *CatalogHandler {
	return &CatalogHandler{catalogPath: catalogPath, artifactDir: artifactDir, modelDir: modelDir}
}

// ListDatasets handles GET /api/v1/datasets
func (h *CatalogHandler) ListDatasets(c *gin.Context) {
	cat, err := data.LoadCatalog(h.catalogPath)
	if err != nil {
		// If file doesn't exist, return empty list (not an error)
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusOK, gin.H{"datasets": []models.DatasetInfo{}, "count": 0})
			return
		}
		c.JSON(http.StatusInternalServerError, models.NewError("CATALOG_LOAD_ERROR", err.Error()))
		return
	}
	out := make([]models.DatasetInfo, len(cat.Datasets))
	for i, d := range cat.Datasets {
		out[i] = models.DatasetInfo{
			ID:        d.ID,
			Path:      d.Path,
			Symbol:    d.Symbol,
			Timeframe: d.Timeframe,
			Task:      d.Task,
			Rows:      d.Rows,
			Start:     d.Start,
			End:       d.End,
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"datasets":   out,
		"updated_at": cat.UpdatedAt,
		"count":      len(out),
	})
}

// ListModels handles GET /api/v1/models
func (h *CatalogHandler) ListModels(c *gin.Context) {
	list, err := artifacts.ListModels(h.modelDir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.NewError("MODELS_LOAD_ERROR", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": list, "count": len(list)})
}

// ListArtifacts handles GET /api/v1/artifacts
func (h *CatalogHandler) ListArtifacts(c *gin.Context) {
	list, err := artifacts.List(h.artifactDir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.NewError("ARTIFACTS_LOAD_ERROR", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"artifacts": list, "count": len(list)})
}

// GetArtifact handles GET /api/v1/artifacts/:id
func (h *CatalogHandler) GetArtifact(c *gin.Context) {
	id := c.Param("id")
	if strings.Contains(id, "..") {
		c.JSON(http.StatusBadRequest, models.NewError("INVALID_REQUEST", "invalid run id"))
		return
	}
	rep, err := artifacts.Load(h.artifactDir, id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, models.NewError("ARTIFACT_NOT_FOUND", "no run "+id))
			return
		}
		c.JSON(http.StatusInternalServerError, models.NewError("ARTIFACTS_LOAD_ERROR", err.Error()))
		return
	}
	c.JSON(http.StatusOK, rep)
}

// GetModel handles GET /api/v1/models/:name and returns the saved metadata,
// including validation and test metrics.
func (h *CatalogHandler) GetModel(c *gin.Context) {
	name := c.Param("name")
	if strings.Contains(name, "..") {
		c.JSON(http.StatusBadRequest, models.NewError("INVALID_REQUEST", "invalid model name"))
		return
	}
	_, info, err := artifacts.LoadModel(h.modelDir, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, models.NewError("MODEL_NOT_FOUND", "no model "+name))
			return
		}
		c.JSON(http.StatusInternalServerError, models.NewError("MODELS_LOAD_ERROR", err.Error()))
		return
	}
	c.JSON(http.StatusOK, info)
}
