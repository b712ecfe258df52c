package dataset

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/ensemblelab/ensemble/pkg/errors"
)

func regressionCSV(rows int) string {
	var b strings.Builder
	b.WriteString("cement,water,age,strength\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "%d,%d,%d,%.1f\n", 100+i, 150+i, i+1, 10.0+float64(i)*0.7)
	}
	return b.String()
}

func classificationCSV(rows int) string {
	var b strings.Builder
	b.WriteString("income,debt,employment,loan_status\n")
	for i := 0; i < rows; i++ {
		status := "Approved"
		if i%3 == 0 {
			status = "Rejected"
		}
		employment := "salaried"
		if i%2 == 0 {
			employment = "self_employed"
		}
		fmt.Fprintf(&b, "%d,%d,%s,%s\n", 30000+i*100, 500+i, employment, status)
	}
	return b.String()
}

func TestReadRegression(t *testing.T) {
	ds, err := Read(strings.NewReader(regressionCSV(40)), "strength")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if ds.Task != Regression {
		t.Errorf("Task = %v, want regression", ds.Task)
	}
	if ds.TargetName != "strength" {
		t.Errorf("TargetName = %q", ds.TargetName)
	}
	if ds.NSamples != 40 || ds.NFeatures != 3 {
		t.Errorf("shape = (%d, %d), want (40, 3)", ds.NSamples, ds.NFeatures)
	}
	wantFeatures := []string{"cement", "water", "age"}
	for i, name := range wantFeatures {
		if ds.FeatureNames[i] != name {
			t.Errorf("FeatureNames[%d] = %q, want %q", i, ds.FeatureNames[i], name)
		}
	}
	if ds.ClassNames != nil {
		t.Errorf("ClassNames = %v, want nil for regression", ds.ClassNames)
	}
}

func TestReadClassificationEncodesLabels(t *testing.T) {
	ds, err := Read(strings.NewReader(classificationCSV(42)), "")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if ds.Task != Classification {
		t.Fatalf("Task = %v, want classification", ds.Task)
	}
	if ds.TargetName != "loan_status" {
		t.Errorf("TargetName = %q, want loan_status (detected)", ds.TargetName)
	}
	if ds.NClasses != 2 {
		t.Errorf("NClasses = %d, want 2", ds.NClasses)
	}
	// Alphabetical codes: Approved=0, Rejected=1.
	if ds.ClassNames[0] != "Approved" || ds.ClassNames[1] != "Rejected" {
		t.Errorf("ClassNames = %v", ds.ClassNames)
	}
	for i := 0; i < ds.NSamples; i++ {
		v := ds.Y.AtVec(i)
		if v != 0 && v != 1 {
			t.Fatalf("Y[%d] = %v, want 0 or 1", i, v)
		}
	}
}

func TestReadRejectsUndersizedDataset(t *testing.T) {
	_, err := Read(strings.NewReader(regressionCSV(25)), "strength")
	if err == nil {
		t.Fatal("Read() succeeded on a 25-row dataset, want DataFormatError")
	}
	var dfe *errors.DataFormatError
	if !errors.As(err, &dfe) {
		t.Errorf("error type = %T, want DataFormatError", err)
	}
}

func TestReadRejectsMissingTarget(t *testing.T) {
	_, err := Read(strings.NewReader(regressionCSV(40)), "no_such_column")
	if err == nil {
		t.Fatal("Read() succeeded with an absent target column")
	}
	var dfe *errors.DataFormatError
	if !errors.As(err, &dfe) {
		t.Errorf("error type = %T, want DataFormatError", err)
	}
}

func TestReadRejectsRaggedRows(t *testing.T) {
	csv := "a,b,target\n1,2,3\n4,5\n"
	_, err := Read(strings.NewReader(csv), "target")
	if err == nil {
		t.Fatal("Read() accepted a row with the wrong column count")
	}
}

func TestReadImputesMissingNumeric(t *testing.T) {
	var b strings.Builder
	b.WriteString("x,y,strength\n")
	for i := 0; i < 35; i++ {
		if i == 5 {
			fmt.Fprintf(&b, ",%d,%.1f\n", i, float64(i))
			continue
		}
		fmt.Fprintf(&b, "%d,%d,%.1f\n", i, i, float64(i))
	}
	ds, err := Read(strings.NewReader(b.String()), "strength")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	v := ds.X.At(5, 0)
	if math.IsNaN(v) {
		t.Error("missing value was not imputed")
	}
}

func TestTrainTestSplitReproducible(t *testing.T) {
	ds, err := Read(strings.NewReader(regressionCSV(50)), "strength")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	first, err := TrainTestSplit(ds, 0.3, 42)
	if err != nil {
		t.Fatalf("TrainTestSplit() error = %v", err)
	}
	second, err := TrainTestSplit(ds, 0.3, 42)
	if err != nil {
		t.Fatalf("TrainTestSplit() error = %v", err)
	}

	if len(first.TestIndices) != len(second.TestIndices) {
		t.Fatalf("test sizes differ: %d vs %d", len(first.TestIndices), len(second.TestIndices))
	}
	for i := range first.TestIndices {
		if first.TestIndices[i] != second.TestIndices[i] {
			t.Fatalf("TestIndices[%d] differ: %d vs %d", i, first.TestIndices[i], second.TestIndices[i])
		}
	}
}

func TestTrainTestSplitDisjointAndComplete(t *testing.T) {
	ds, err := Read(strings.NewReader(classificationCSV(60)), "")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	split, err := TrainTestSplit(ds, 0.3, 7)
	if err != nil {
		t.Fatalf("TrainTestSplit() error = %v", err)
	}

	seen := make(map[int]int)
	for _, idx := range split.TrainIndices {
		seen[idx]++
	}
	for _, idx := range split.TestIndices {
		seen[idx]++
	}
	if len(seen) != ds.NSamples {
		t.Errorf("train ∪ test covers %d rows, want %d", len(seen), ds.NSamples)
	}
	for idx, count := range seen {
		if count != 1 {
			t.Errorf("row %d appears %d times across splits", idx, count)
		}
	}
}

func TestTrainTestSplitStratifiedBalance(t *testing.T) {
	ds, err := Read(strings.NewReader(classificationCSV(60)), "")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	first, err := TrainTestSplit(ds, 0.3, 11)
	if err != nil {
		t.Fatalf("TrainTestSplit() error = %v", err)
	}
	second, err := TrainTestSplit(ds, 0.3, 11)
	if err != nil {
		t.Fatalf("TrainTestSplit() error = %v", err)
	}

	// Class iteration order is deterministic, so identical seeds give
	// identical test subsets.
	for i := range first.TestIndices {
		if first.TestIndices[i] != second.TestIndices[i] {
			t.Fatalf("TestIndices[%d] differ: %d vs %d", i, first.TestIndices[i], second.TestIndices[i])
		}
	}

	// Every class keeps roughly the requested fraction in the test split.
	totalByClass := make(map[int]int)
	testByClass := make(map[int]int)
	for i := 0; i < ds.Y.Len(); i++ {
		totalByClass[int(ds.Y.AtVec(i))]++
	}
	for _, idx := range first.TestIndices {
		testByClass[int(ds.Y.AtVec(idx))]++
	}
	for class, total := range totalByClass {
		want := int(float64(total) * 0.3)
		if want < 1 {
			want = 1
		}
		if testByClass[class] != want {
			t.Errorf("class %d test count = %d, want %d", class, testByClass[class], want)
		}
	}
}

func TestStandardScaler(t *testing.T) {
	ds, err := Read(strings.NewReader(regressionCSV(40)), "strength")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	scaler := NewStandardScaler()
	scaled, err := scaler.FitTransform(ds.X)
	if err != nil {
		t.Fatalf("FitTransform() error = %v", err)
	}

	r, c := scaled.Dims()
	for j := 0; j < c; j++ {
		var sum float64
		for i := 0; i < r; i++ {
			sum += scaled.At(i, j)
		}
		mean := sum / float64(r)
		if math.Abs(mean) > 1e-9 {
			t.Errorf("column %d mean = %v, want ~0", j, mean)
		}
	}
}

func TestStandardScalerNotFitted(t *testing.T) {
	scaler := NewStandardScaler()
	ds, _ := Read(strings.NewReader(regressionCSV(40)), "strength")
	if _, err := scaler.Transform(ds.X); err == nil {
		t.Error("Transform() on unfitted scaler should fail")
	}
}
