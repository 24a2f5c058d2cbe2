// Package forest is a small random forest regressor: bootstrap-sampled CART
// trees with variance-reduction splits, averaged at prediction time.
package forest

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"
)

var (
	ErrEmpty  = errors.New("forest: empty training set")
	ErrShape  = errors.New("forest: feature rows and targets differ in length")
	ErrNotFit = errors.New("forest: model is not fit")
	ErrArity  = errors.New("forest: feature vector arity mismatch")
)

type Params struct {
	Trees           int
	Seed            uint64
	MinSamplesSplit int
	MinSamplesLeaf  int
	// MaxDepth of zero grows trees until leaves are pure.
	MaxDepth int
	// Bootstrap draws each tree's sample with replacement.
	Bootstrap bool
}

func DefaultParams() Params {
	return Params{
		Trees:           100,
		Seed:            42,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Bootstrap:       true,
	}
}

type Regressor struct {
	params Params
	trees  []*node
	arity  int
}

type node struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      *node
	right     *node
}

func New(p Params) *Regressor {
	if p.Trees <= 0 {
		p.Trees = 100
	}
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = 2
	}
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = 1
	}
	return &Regressor{params: p}
}

// Fit trains the forest. Training is deterministic for a given Params.Seed.
func (r *Regressor) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return ErrEmpty
	}
	if len(X) != len(y) {
		return ErrShape
	}
	arity := len(X[0])
	for _, row := range X {
		if len(row) != arity {
			return ErrArity
		}
	}
	rng := rand.New(rand.NewPCG(r.params.Seed, r.params.Seed^0x9e3779b97f4a7c15))
	trees := make([]*node, 0, r.params.Trees)
	n := len(X)
	for t := 0; t < r.params.Trees; t++ {
		treeRng := rand.New(rand.NewPCG(rng.Uint64(), rng.Uint64()))
		idx := make([]int, n)
		if r.params.Bootstrap {
			for i := range idx {
				idx[i] = treeRng.IntN(n)
			}
		} else {
			for i := range idx {
				idx[i] = i
			}
		}
		b := builder{X: X, y: y, arity: arity, p: r.params, rng: treeRng}
		trees = append(trees, b.grow(idx, 0))
	}
	r.trees = trees
	r.arity = arity
	return nil
}

func (r *Regressor) Fitted() bool {
	return len(r.trees) > 0
}

func (r *Regressor) Predict(x []float64) (float64, error) {
	if !r.Fitted() {
		return 0, ErrNotFit
	}
	if len(x) != r.arity {
		return 0, ErrArity
	}
	var sum float64
	for _, t := range r.trees {
		sum += t.predict(x)
	}
	return sum / float64(len(r.trees)), nil
}

func (r *Regressor) PredictAll(X [][]float64) ([]float64, error) {
	out := make([]float64, 0, len(X))
	for _, x := range X {
		v, err := r.Predict(x)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (n *node) predict(x []float64) float64 {
	cur := n
	for !cur.leaf {
		if x[cur.feature] <= cur.threshold {
			cur = cur.left
		} else {
			cur = cur.right
		}
	}
	return cur.value
}

type builder struct {
	X     [][]float64
	y     []float64
	arity int
	p     Params
	rng   *rand.Rand
}

func (b *builder) grow(idx []int, depth int) *node {
	mean := b.mean(idx)
	if len(idx) < b.p.MinSamplesSplit || (b.p.MaxDepth > 0 && depth >= b.p.MaxDepth) || b.pure(idx) {
		return &node{leaf: true, value: mean}
	}
	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return &node{leaf: true, value: mean}
	}
	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &node{
		feature:   feature,
		threshold: threshold,
		left:      b.grow(left, depth+1),
		right:     b.grow(right, depth+1),
	}
}

// bestSplit scans every feature, in a random order so ties are broken
// reproducibly but without favouring column 0, for the threshold that
// minimises the summed squared error of the two children.
func (b *builder) bestSplit(idx []int) (int, float64, bool) {
	n := len(idx)
	order := b.rng.Perm(b.arity)
	sorted := make([]int, n)
	bestScore := math.Inf(1)
	bestFeature := -1
	var bestThreshold float64

	var total, totalSq float64
	for _, i := range idx {
		total += b.y[i]
		totalSq += b.y[i] * b.y[i]
	}
	parentSSE := totalSq - total*total/float64(n)

	for _, f := range order {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool { return b.X[sorted[a]][f] < b.X[sorted[c]][f] })
		var leftSum, leftSq float64
		for k := 0; k < n-1; k++ {
			yi := b.y[sorted[k]]
			leftSum += yi
			leftSq += yi * yi
			nl := k + 1
			nr := n - nl
			cur := b.X[sorted[k]][f]
			next := b.X[sorted[k+1]][f]
			if cur == next {
				continue
			}
			if nl < b.p.MinSamplesLeaf || nr < b.p.MinSamplesLeaf {
				continue
			}
			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/float64(nl)) + (rightSq - rightSum*rightSum/float64(nr))
			if sse < bestScore {
				bestScore = sse
				bestFeature = f
				bestThreshold = cur + (next-cur)/2
			}
		}
	}
	if bestFeature < 0 || bestScore >= parentSSE {
		return 0, 0, false
	}
	return bestFeature, bestThreshold, true
}

func (b *builder) mean(idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var s float64
	for _, i := range idx {
		s += b.y[i]
	}
	return s / float64(len(idx))
}

func (b *builder) pure(idx []int) bool {
	for _, i := range idx[1:] {
		if b.y[i] != b.y[idx[0]] {
			return false
		}
	}
	return true
}
