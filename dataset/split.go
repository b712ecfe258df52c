package dataset

import (
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/ensemblelab/ensemble/pkg/errors"
)

// Split is a disjoint partition of a dataset into train and test subsets.
type Split struct {
	XTrain *mat.Dense
	XTest  *mat.Dense
	YTrain *mat.VecDense
	YTest  *mat.VecDense

	TrainIndices []int
	TestIndices  []int
}

// TrainTestSplit shuffles row indices with a seeded PCG source and carves
// off the requested test fraction. Classification targets are split per
// class so both subsets keep the class balance. Repeated calls with the
// same seed partition identical input identically.
func TrainTestSplit(ds *Dataset, testFraction float64, seed uint64) (*Split, error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, errors.NewValueError("TrainTestSplit", "test fraction must be in (0, 1)")
	}

	n := ds.NSamples
	var testIdx []int
	if ds.IsClassification() {
		testIdx = stratifiedTestIndices(ds.Y, testFraction, seed)
	} else {
		testIdx = shuffledTestIndices(n, testFraction, seed)
	}

	if len(testIdx) == 0 || len(testIdx) == n {
		return nil, errors.NewDataFormatError(ds.TargetName, "split produced an empty train or test subset")
	}

	inTest := make(map[int]bool, len(testIdx))
	for _, idx := range testIdx {
		inTest[idx] = true
	}
	trainIdx := make([]int, 0, n-len(testIdx))
	for i := 0; i < n; i++ {
		if !inTest[i] {
			trainIdx = append(trainIdx, i)
		}
	}

	return &Split{
		XTrain:       selectRows(ds.X, trainIdx),
		XTest:        selectRows(ds.X, testIdx),
		YTrain:       selectVec(ds.Y, trainIdx),
		YTest:        selectVec(ds.Y, testIdx),
		TrainIndices: trainIdx,
		TestIndices:  testIdx,
	}, nil
}

func shuffledTestIndices(n int, testFraction float64, seed uint64) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	r := rand.New(rand.NewPCG(seed, seed))
	r.Shuffle(n, func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	testSize := int(float64(n) * testFraction)
	if testSize < 1 {
		testSize = 1
	}
	return indices[:testSize]
}

// stratifiedTestIndices samples the test fraction within each class.
func stratifiedTestIndices(y *mat.VecDense, testFraction float64, seed uint64) []int {
	classIndices := make(map[float64][]int)
	for i := 0; i < y.Len(); i++ {
		label := y.AtVec(i)
		classIndices[label] = append(classIndices[label], i)
	}

	// Iterate classes in a deterministic order.
	labels := make([]float64, 0, len(classIndices))
	for label := range classIndices {
		labels = append(labels, label)
	}
	sort.Float64s(labels)

	r := rand.New(rand.NewPCG(seed, seed))
	var testIdx []int
	for _, label := range labels {
		indices := classIndices[label]
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
		classTest := int(float64(len(indices)) * testFraction)
		if classTest < 1 && len(indices) > 1 {
			classTest = 1
		}
		testIdx = append(testIdx, indices[:classTest]...)
	}
	return testIdx
}

// SelectRows copies the given rows of X into a new matrix, preserving
// order. Combiners use it to materialize fold subsets.
func SelectRows(X *mat.Dense, indices []int) *mat.Dense {
	return selectRows(X, indices)
}

// SelectVec copies the given entries of y into a new vector.
func SelectVec(y *mat.VecDense, indices []int) *mat.VecDense {
	return selectVec(y, indices)
}

func selectRows(X *mat.Dense, indices []int) *mat.Dense {
	_, p := X.Dims()
	out := mat.NewDense(len(indices), p, nil)
	for i, idx := range indices {
		for j := 0; j < p; j++ {
			out.Set(i, j, X.At(idx, j))
		}
	}
	return out
}

func selectVec(y *mat.VecDense, indices []int) *mat.VecDense {
	out := mat.NewVecDense(len(indices), nil)
	for i, idx := range indices {
		out.SetVec(i, y.AtVec(idx))
	}
	return out
}
