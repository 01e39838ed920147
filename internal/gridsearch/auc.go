package gridsearch

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// ErrDegenerate is returned when the labels do not contain both classes and
// the ROC curve is undefined.
var ErrDegenerate = errors.New("auc undefined without both classes")

// AUC returns the area under the ROC curve of scores against labels. Tied
// scores are grouped into a single ROC step, which equals the mid-rank
// treatment. With a single class present it returns 0.5 and ErrDegenerate.
func AUC(scores []float64, labels []bool) (float64, error) {
	if len(scores) != len(labels) {
		return 0, fmt.Errorf("auc: %d scores for %d labels", len(scores), len(labels))
	}
	var pos int
	for _, l := range labels {
		if l {
			pos++
		}
	}
	if pos == 0 || pos == len(labels) {
		return 0.5, ErrDegenerate
	}

	y := append([]float64(nil), scores...)
	classes := append([]bool(nil), labels...)
	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}
