// Package dataset loads tabular CSV data, prepares it for training
// (imputation, categorical encoding, scaling) and produces reproducible
// train/test splits.
package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/ensemblelab/ensemble/pkg/errors"
)

// TaskType discriminates regression from classification pipelines.
type TaskType string

const (
	Regression     TaskType = "regression"
	Classification TaskType = "classification"
)

// MinRows is the smallest dataset the pipeline accepts. Anything smaller
// cannot sustain a 5-fold cross validation with non-trivial folds.
const MinRows = 30

// Targets whose distinct-value count is below this are treated as class
// labels even when numeric.
const classificationCardinality = 20

// Dataset is one fully prepared table: encoded feature matrix, encoded
// target vector, and the metadata the result payload needs.
type Dataset struct {
	X *mat.Dense
	Y *mat.VecDense

	FeatureNames []string
	TargetName   string
	Task         TaskType

	// Classification only; nil/0 for regression.
	ClassNames []string
	NClasses   int

	NSamples  int
	NFeatures int
}

// IsClassification reports whether the dataset carries class labels.
func (d *Dataset) IsClassification() bool {
	return d.Task == Classification
}

// Load reads a CSV file and prepares it for training. When targetColumn is
// empty the target is detected from well-known column names, falling back
// to the last column.
func Load(path, targetColumn string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewDataFormatError(path, err.Error())
	}
	defer func() { _ = f.Close() }()

	ds, err := Read(f, targetColumn)
	if err != nil {
		var dfe *errors.DataFormatError
		if errors.As(err, &dfe) && dfe.Source == "" {
			return nil, errors.NewDataFormatError(path, dfe.Reason)
		}
		return nil, err
	}
	return ds, nil
}

// Read parses CSV content from r and prepares it for training.
func Read(r io.Reader, targetColumn string) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.NewDataFormatError("", "cannot read header: "+err.Error())
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewDataFormatError("", "malformed row: "+err.Error())
		}
		if len(record) != len(header) {
			return nil, errors.NewDataFormatError("",
				"row has "+strconv.Itoa(len(record))+" columns, header has "+strconv.Itoa(len(header)))
		}
		rows = append(rows, record)
	}

	targetIdx, err := resolveTarget(header, targetColumn)
	if err != nil {
		return nil, err
	}

	// Rows with a missing target cannot be used for training or scoring.
	kept := rows[:0]
	for _, row := range rows {
		if !isMissing(row[targetIdx]) {
			kept = append(kept, row)
		}
	}
	rows = kept

	if len(rows) < MinRows {
		return nil, errors.NewDataFormatError("",
			"dataset has "+strconv.Itoa(len(rows))+" usable rows, minimum is "+strconv.Itoa(MinRows))
	}

	featureNames := make([]string, 0, len(header)-1)
	featureIdx := make([]int, 0, len(header)-1)
	for i, name := range header {
		if i == targetIdx {
			continue
		}
		featureNames = append(featureNames, name)
		featureIdx = append(featureIdx, i)
	}

	// Encode features column by column: numeric columns get median
	// imputation, everything else is label encoded with mode imputation.
	n := len(rows)
	p := len(featureIdx)
	X := mat.NewDense(n, p, nil)
	for j, col := range featureIdx {
		values := make([]string, n)
		for i := range rows {
			values[i] = rows[i][col]
		}
		encoded := encodeColumn(values)
		for i := 0; i < n; i++ {
			X.Set(i, j, encoded[i])
		}
	}

	target := make([]string, n)
	for i := range rows {
		target[i] = rows[i][targetIdx]
	}

	task, y, classNames := encodeTarget(target)

	ds := &Dataset{
		X:            X,
		Y:            y,
		FeatureNames: featureNames,
		TargetName:   header[targetIdx],
		Task:         task,
		ClassNames:   classNames,
		NClasses:     len(classNames),
		NSamples:     n,
		NFeatures:    p,
	}
	return ds, nil
}

// resolveTarget picks the target column: explicit name first, then the
// well-known names the bundled datasets use, then the last column.
func resolveTarget(header []string, targetColumn string) (int, error) {
	if targetColumn != "" {
		for i, name := range header {
			if name == targetColumn {
				return i, nil
			}
		}
		return 0, errors.NewDataFormatError("", "target column "+strconv.Quote(targetColumn)+" not found")
	}

	known := []string{"mpg", "strength", "concrete_compressive_strength"}
	for _, candidate := range known {
		for i, name := range header {
			if strings.EqualFold(name, candidate) {
				return i, nil
			}
		}
	}
	statusNames := map[string]bool{"loan_status": true, "approval": true, "approved": true, "status": true}
	for i, name := range header {
		if statusNames[strings.ToLower(name)] {
			return i, nil
		}
	}
	return len(header) - 1, nil
}

func isMissing(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == "?" || strings.EqualFold(v, "na") || strings.EqualFold(v, "nan")
}

// encodeColumn converts one raw column to float64 values. Numeric columns
// keep their values with missing entries imputed by the median; other
// columns are label encoded (alphabetical codes) with mode imputation.
func encodeColumn(values []string) []float64 {
	out := make([]float64, len(values))
	numeric := true
	for _, v := range values {
		if isMissing(v) {
			continue
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
			numeric = false
			break
		}
	}

	if numeric {
		var present []float64
		for i, v := range values {
			if isMissing(v) {
				out[i] = math.NaN()
				continue
			}
			parsed, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
			out[i] = parsed
			present = append(present, parsed)
		}
		med := median(present)
		for i := range out {
			if math.IsNaN(out[i]) {
				out[i] = med
			}
		}
		return out
	}

	// Label encoding with alphabetical codes, missing values imputed by
	// the most frequent category.
	counts := make(map[string]int)
	for _, v := range values {
		if !isMissing(v) {
			counts[strings.TrimSpace(v)]++
		}
	}
	categories := make([]string, 0, len(counts))
	mode := ""
	for category, count := range counts {
		categories = append(categories, category)
		if mode == "" || count > counts[mode] || (count == counts[mode] && category < mode) {
			mode = category
		}
	}
	sort.Strings(categories)
	codes := make(map[string]float64, len(categories))
	for i, category := range categories {
		codes[category] = float64(i)
	}
	for i, v := range values {
		if isMissing(v) {
			out[i] = codes[mode]
			continue
		}
		out[i] = codes[strings.TrimSpace(v)]
	}
	return out
}

// encodeTarget infers the task type and encodes the target. A target is a
// class label when it is non-numeric or when it has fewer than 20 distinct
// values; class codes are assigned alphabetically.
func encodeTarget(values []string) (TaskType, *mat.VecDense, []string) {
	numeric := true
	distinct := make(map[string]bool)
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		distinct[trimmed] = true
		if numeric {
			if _, err := strconv.ParseFloat(trimmed, 64); err != nil {
				numeric = false
			}
		}
	}

	if numeric && len(distinct) >= classificationCardinality {
		y := mat.NewVecDense(len(values), nil)
		for i, v := range values {
			parsed, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
			y.SetVec(i, parsed)
		}
		return Regression, y, nil
	}

	classNames := make([]string, 0, len(distinct))
	for name := range distinct {
		classNames = append(classNames, name)
	}
	sort.Strings(classNames)
	codes := make(map[string]float64, len(classNames))
	for i, name := range classNames {
		codes[name] = float64(i)
	}
	y := mat.NewVecDense(len(values), nil)
	for i, v := range values {
		y.SetVec(i, codes[strings.TrimSpace(v)])
	}
	return Classification, y, classNames
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
