package features

import (
	"fmt"

	"walkforward-backtest/internal/model"
)

// Split is a chronological train / validation / test partition.
type Split struct {
	Train []model.Bar
	Valid []model.Bar
	Test  []model.Bar
}

// TimeSeriesSplit partitions bars in order without shuffling. The test part
// receives whatever remains after train and validation.
func TimeSeriesSplit(s model.Series, trainRatio, validRatio float64) (Split, error) {
	if trainRatio <= 0 || validRatio < 0 || trainRatio+validRatio > 1 {
		return Split{}, fmt.Errorf("invalid split ratios train=%v valid=%v", trainRatio, validRatio)
	}
	n := len(s.Bars)
	trainEnd := int(float64(n) * trainRatio)
	validEnd := int(float64(n) * (trainRatio + validRatio))
	if trainEnd == 0 {
		return Split{}, fmt.Errorf("train split is empty for %d bars", n)
	}
	return Split{
		Train: s.Bars[:trainEnd],
		Valid: s.Bars[trainEnd:validEnd],
		Test:  s.Bars[validEnd:],
	}, nil
}
