package workload

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// DistributionKind names a random delay distribution. Samples are in
// milliseconds.
type DistributionKind string

const (
	// DistLinear samples uniformly from [Min, Max].
	DistLinear DistributionKind = "linear"
	// DistPowered raises a linear sample to Pow.
	DistPowered DistributionKind = "powered"
	// DistMultiplied multiplies N linear samples.
	DistMultiplied DistributionKind = "multiplied"
	// DistPoisson draws from a Poisson distribution with mean Lambda.
	DistPoisson DistributionKind = "poisson"
)

// poissonCutOff bounds the number of terms summed when inverting the Poisson CDF.
const poissonCutOff = 1000

// Distribution parameterizes random delays.
type Distribution struct {
	Kind   DistributionKind `yaml:"kind"`
	Min    float64          `yaml:"min"`
	Max    float64          `yaml:"max"`
	Pow    int              `yaml:"pow"`
	N      int              `yaml:"n"`
	Lambda float64          `yaml:"lambda"`
	Seed   uint64           `yaml:"seed"`
}

// Sampler draws delays from a Distribution. It is safe for concurrent use.
type Sampler struct {
	dist Distribution

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSampler validates d and returns a sampler for it. A zero Seed picks a
// random one.
func NewSampler(d Distribution) (*Sampler, error) {
	d.Kind = DistributionKind(strings.ToLower(string(d.Kind)))
	switch d.Kind {
	case DistLinear, DistPowered, DistMultiplied:
		if d.Min > d.Max {
			return nil, fmt.Errorf("distribution %s: min %v exceeds max %v", d.Kind, d.Min, d.Max)
		}
		if d.Kind == DistMultiplied && d.N < 1 {
			return nil, fmt.Errorf("distribution %s: n must be at least 1", d.Kind)
		}
	case DistPoisson:
		if d.Lambda <= 0 || math.Exp(-d.Lambda) == 0 {
			return nil, fmt.Errorf("distribution %s: lambda %v out of range", d.Kind, d.Lambda)
		}
	default:
		return nil, fmt.Errorf("unknown distribution %q", d.Kind)
	}

	seed := d.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Sampler{dist: d, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}, nil
}

// Sample returns one delay.
func (s *Sampler) Sample() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := s.sampleMillis()
	if ms < 0 || math.IsNaN(ms) {
		ms = 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}

func (s *Sampler) sampleMillis() float64 {
	d := s.dist
	switch d.Kind {
	case DistPowered:
		return math.Pow(s.linear(d.Min, d.Max), float64(d.Pow))
	case DistMultiplied:
		r := 1.0
		for i := 0; i < d.N; i++ {
			r *= s.linear(d.Min, d.Max)
		}
		return r
	case DistPoisson:
		return float64(s.poisson(d.Lambda))
	default:
		return s.linear(d.Min, d.Max)
	}
}

func (s *Sampler) linear(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

// poisson inverts the CDF term by term. The first term only seeds the sum, so
// the smallest value returned is 1.
func (s *Sampler) poisson(lambda float64) int {
	x := s.rng.Float64()
	term := math.Exp(-lambda)
	sum := term
	for k := 1; k < poissonCutOff; k++ {
		term *= lambda / float64(k)
		sum += term
		if sum >= x {
			return k
		}
	}
	return poissonCutOff
}
