package scoring

import (
	"context"
	"encoding/binary"
	"math"
	"math/rand"
	"runtime"

	"github.com/spaolacci/murmur3"
	"golang.org/x/sync/errgroup"
)

const eulerGamma = 0.5772156649

// IsolationForest is an ensemble of random isolation trees. Points that are
// isolated in few splits score as anomalous.
type IsolationForest struct {
	Trees      int   // ensemble size
	SampleSize int   // rows drawn per tree, capped at the row count
	Seed       int64 // ensemble seed; each tree derives its own RNG from it
	Workers    int   // concurrent tree builders; 0 means GOMAXPROCS

	roots []*iNode
	psi   int
}

type iNode struct {
	leaf  bool
	size  int
	dim   int
	split float64
	left  *iNode
	right *iNode
}

// Fit builds the ensemble on X. Trees are built concurrently, each with an
// RNG seeded from (Seed, tree index), so the result does not depend on
// Workers or scheduling.
func (f *IsolationForest) Fit(ctx context.Context, X [][]float64) error {
	n := len(X)
	trees := f.Trees
	if trees <= 0 {
		trees = 100
	}
	psi := f.SampleSize
	if psi <= 0 {
		psi = 256
	}
	if psi > n {
		psi = n
	}
	heightLimit := int(math.Ceil(math.Log2(float64(psi))))

	workers := f.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	roots := make([]*iNode, trees)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < trees; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(TreeSeed(f.Seed, i)))
			idx := rng.Perm(n)[:psi]
			sample := make([][]float64, psi)
			for j, k := range idx {
				sample[j] = X[k]
			}
			roots[i] = buildTree(rng, sample, 0, heightLimit)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.roots = roots
	f.psi = psi
	return nil
}

// TreeSeed derives the RNG seed of tree i from the ensemble seed.
func TreeSeed(seed int64, i int) int64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(seed))
	binary.LittleEndian.PutUint64(buf[8:], uint64(i))
	return int64(murmur3.Sum64(buf[:]))
}

func buildTree(rng *rand.Rand, X [][]float64, depth, limit int) *iNode {
	if len(X) <= 1 || depth >= limit {
		return &iNode{leaf: true, size: len(X)}
	}

	// Only features that vary within the node can split it.
	d := len(X[0])
	candidates := make([]int, 0, d)
	lo := make([]float64, d)
	hi := make([]float64, d)
	for j := 0; j < d; j++ {
		lo[j], hi[j] = X[0][j], X[0][j]
		for _, row := range X[1:] {
			if row[j] < lo[j] {
				lo[j] = row[j]
			}
			if row[j] > hi[j] {
				hi[j] = row[j]
			}
		}
		if hi[j] > lo[j] {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return &iNode{leaf: true, size: len(X)}
	}

	dim := candidates[rng.Intn(len(candidates))]
	split := lo[dim] + rng.Float64()*(hi[dim]-lo[dim])

	left := make([][]float64, 0, len(X))
	right := make([][]float64, 0, len(X))
	for _, row := range X {
		if row[dim] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &iNode{leaf: true, size: len(X)}
	}
	return &iNode{
		dim:   dim,
		split: split,
		left:  buildTree(rng, left, depth+1, limit),
		right: buildTree(rng, right, depth+1, limit),
	}
}

// averagePathLength is c(n), the mean path length of an unsuccessful search
// in a binary search tree of n nodes.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

func pathLength(node *iNode, x []float64) float64 {
	depth := 0
	for !node.leaf {
		if x[node.dim] < node.split {
			node = node.left
		} else {
			node = node.right
		}
		depth++
	}
	return float64(depth) + averagePathLength(node.size)
}

// ScoreSamples returns -2^(-E[h(x)]/c(psi)) for every row. Lower scores are
// more anomalous; values lie in [-1, 0).
func (f *IsolationForest) ScoreSamples(X [][]float64) []float64 {
	scores := make([]float64, len(X))
	if len(f.roots) == 0 {
		return scores
	}
	c := averagePathLength(f.psi)
	if c <= 0 {
		c = 1
	}
	for i, x := range X {
		sum := 0.0
		for _, root := range f.roots {
			sum += pathLength(root, x)
		}
		mean := sum / float64(len(f.roots))
		scores[i] = -math.Pow(2, -mean/c)
	}
	return scores
}
