package forest

import (
	"math"
	"math/rand/v2"
)

// TrainTestSplit shuffles 0..n-1 with a seeded generator and holds out
// ceil(n*testFrac) indices for validation.
func TrainTestSplit(n int, testFrac float64, seed uint64) (train, test []int) {
	if n <= 0 {
		return nil, nil
	}
	rng := rand.New(rand.NewPCG(seed, seed))
	perm := rng.Perm(n)
	nTest := int(math.Ceil(float64(n) * testFrac))
	if nTest >= n {
		nTest = n - 1
	}
	if nTest < 0 {
		nTest = 0
	}
	return perm[nTest:], perm[:nTest]
}

func MeanAbsoluteError(want, got []float64) float64 {
	if len(want) == 0 || len(want) != len(got) {
		return 0
	}
	var s float64
	for i := range want {
		s += math.Abs(want[i] - got[i])
	}
	return s / float64(len(want))
}
