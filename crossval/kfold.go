// Package crossval provides k-fold splitters and the resampled comparison
// between the two ensemble methods.
package crossval

import (
	"math/rand/v2"

	"github.com/ensemblelab/ensemble/pkg/errors"
)

// Fold is one train/test index partition.
type Fold struct {
	Train []int
	Test  []int
}

// KFold splits row indices into k consecutive folds, optionally shuffled
// with a fixed seed.
type KFold struct {
	NSplits int
	Shuffle bool
	Seed    uint64
}

// NewKFold creates a KFold splitter.
func NewKFold(nSplits int, shuffle bool, seed uint64) *KFold {
	return &KFold{NSplits: nSplits, Shuffle: shuffle, Seed: seed}
}

// Split partitions n rows into NSplits folds. Every row appears in exactly
// one test set; fold sizes differ by at most one.
func (k *KFold) Split(n int) ([]Fold, error) {
	if k.NSplits < 2 {
		return nil, errors.NewValueError("KFold.Split", "number of splits must be at least 2")
	}
	if n < k.NSplits {
		return nil, errors.NewInsufficientDataError("KFold.Split", k.NSplits, n)
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	if k.Shuffle {
		rng := rand.New(rand.NewPCG(k.Seed, k.Seed))
		rng.Shuffle(n, func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	folds := make([]Fold, k.NSplits)
	base := n / k.NSplits
	remainder := n % k.NSplits

	start := 0
	for f := 0; f < k.NSplits; f++ {
		size := base
		if f < remainder {
			size++
		}
		test := indices[start : start+size]
		train := make([]int, 0, n-size)
		train = append(train, indices[:start]...)
		train = append(train, indices[start+size:]...)

		folds[f] = Fold{
			Train: append([]int(nil), train...),
			Test:  append([]int(nil), test...),
		}
		start += size
	}
	return folds, nil
}

// StratifiedKFold splits rows so every fold's test set preserves the class
// proportions of the labels.
type StratifiedKFold struct {
	NSplits int
	Shuffle bool
	Seed    uint64
}

// NewStratifiedKFold creates a StratifiedKFold splitter.
func NewStratifiedKFold(nSplits int, shuffle bool, seed uint64) *StratifiedKFold {
	return &StratifiedKFold{NSplits: nSplits, Shuffle: shuffle, Seed: seed}
}

// Split partitions len(labels) rows into NSplits folds, distributing each
// class round-robin across folds.
func (k *StratifiedKFold) Split(labels []int) ([]Fold, error) {
	if k.NSplits < 2 {
		return nil, errors.NewValueError("StratifiedKFold.Split", "number of splits must be at least 2")
	}
	n := len(labels)
	if n < k.NSplits {
		return nil, errors.NewInsufficientDataError("StratifiedKFold.Split", k.NSplits, n)
	}

	// Group indices per class in a deterministic label order.
	byClass := make(map[int][]int)
	classOrder := make([]int, 0)
	for i, label := range labels {
		if _, ok := byClass[label]; !ok {
			classOrder = append(classOrder, label)
		}
		byClass[label] = append(byClass[label], i)
	}

	rng := rand.New(rand.NewPCG(k.Seed, k.Seed))
	testSets := make([][]int, k.NSplits)
	for _, class := range classOrder {
		group := byClass[class]
		if k.Shuffle {
			rng.Shuffle(len(group), func(i, j int) {
				group[i], group[j] = group[j], group[i]
			})
		}
		for i, idx := range group {
			f := i % k.NSplits
			testSets[f] = append(testSets[f], idx)
		}
	}

	folds := make([]Fold, k.NSplits)
	for f := 0; f < k.NSplits; f++ {
		inTest := make(map[int]bool, len(testSets[f]))
		for _, idx := range testSets[f] {
			inTest[idx] = true
		}
		train := make([]int, 0, n-len(testSets[f]))
		for i := 0; i < n; i++ {
			if !inTest[i] {
				train = append(train, i)
			}
		}
		folds[f] = Fold{Train: train, Test: testSets[f]}
	}
	return folds, nil
}
