package ensemble

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Scenario is one half of a feature-stratified win analysis.
type Scenario struct {
	Condition  string
	BestExpert string
	Wins       map[string]int
}

// FeatureInsights reports which expert wins most often above and below
// the median of the most important feature.
type FeatureInsights struct {
	MostImportantFeature string
	MedianValue          float64
	HighScenario         Scenario
	LowScenario          Scenario
}

// DeriveInsights stratifies the test rows by the median of the top
// aggregated feature and tallies expert wins in each group. Returns nil
// when there are no features to rank.
func DeriveInsights(bank *Bank, XTest *mat.Dense, yTest *mat.VecDense, featureNames []string) *FeatureInsights {
	importance := bank.AggregateImportance()
	if len(importance) == 0 || len(featureNames) == 0 {
		return nil
	}

	topIdx := topFeatureIndex(importance)
	values := mat.Col(nil, topIdx, XTest)
	medianVal := medianOf(values)

	highWins := make(map[string]int, len(bank.Experts))
	lowWins := make(map[string]int, len(bank.Experts))
	for _, e := range bank.Experts {
		highWins[e.Key] = 0
		lowWins[e.Key] = 0
	}

	for i := range values {
		winner := 0
		for e := 1; e < len(bank.Experts); e++ {
			if expertError(bank, e, i, yTest) < expertError(bank, winner, i, yTest) {
				winner = e
			}
		}
		key := bank.Experts[winner].Key
		if values[i] > medianVal {
			highWins[key]++
		} else {
			lowWins[key]++
		}
	}

	return &FeatureInsights{
		MostImportantFeature: featureNames[topIdx],
		MedianValue:          medianVal,
		HighScenario: Scenario{
			Condition:  fmt.Sprintf("> %.2f", medianVal),
			BestExpert: bestExpertName(bank, highWins),
			Wins:       highWins,
		},
		LowScenario: Scenario{
			Condition:  fmt.Sprintf("<= %.2f", medianVal),
			BestExpert: bestExpertName(bank, lowWins),
			Wins:       lowWins,
		},
	}
}

// topFeatureIndex returns the index of the largest importance, ties
// resolved by original column order.
func topFeatureIndex(importance []float64) int {
	best := 0
	for i, v := range importance {
		if v > importance[best] {
			best = i
		}
	}
	return best
}

// RankFeatures orders feature names by importance descending, ties broken
// by original column order, truncated to topN. topN <= 0 keeps all.
func RankFeatures(featureNames []string, importance []float64, topN int) []string {
	type ranked struct {
		index int
		value float64
	}
	rows := make([]ranked, len(featureNames))
	for i := range featureNames {
		rows[i] = ranked{index: i, value: importance[i]}
	}
	sort.SliceStable(rows, func(a, b int) bool {
		return rows[a].value > rows[b].value
	})

	if topN > 0 && topN < len(rows) {
		rows = rows[:topN]
	}
	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = featureNames[r.index]
	}
	return names
}

func medianOf(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
