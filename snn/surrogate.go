package snn

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Surrogate pairs the forward spike rule with the derivative used in its place
// during backpropagation.
type Surrogate interface {
	// Fire is the forward nonlinearity of the membrane potential minus threshold.
	Fire(x float64) float64
	// Derivative approximates dFire/dx.
	Derivative(x float64) float64
	Name() string
}

// Heaviside is 1 when x >= 0 and 0 otherwise.
func Heaviside(x float64) float64 {
	if x >= 0 {
		return 1
	}
	return 0
}

// FastSigmoid uses d = 1 / (1 + k|x|)^2.
type FastSigmoid struct{ Slope float64 }

func (FastSigmoid) Fire(x float64) float64 { return Heaviside(x) }
func (s FastSigmoid) Derivative(x float64) float64 {
	d := 1 + s.Slope*math.Abs(x)
	return 1 / (d * d)
}
func (FastSigmoid) Name() string { return "fast_sigmoid" }

// SigmoidSurrogate uses the derivative of sigmoid(kx).
type SigmoidSurrogate struct{ Slope float64 }

func (SigmoidSurrogate) Fire(x float64) float64 { return Heaviside(x) }
func (s SigmoidSurrogate) Derivative(x float64) float64 {
	sg := 1 / (1 + math.Exp(-s.Slope*x))
	return s.Slope * sg * (1 - sg)
}
func (SigmoidSurrogate) Name() string { return "sigmoid" }

// ATan uses the derivative of (1/pi) arctan(pi*alpha*x/2).
type ATan struct{ Alpha float64 }

func (ATan) Fire(x float64) float64 { return Heaviside(x) }
func (a ATan) Derivative(x float64) float64 {
	u := math.Pi / 2 * a.Alpha * x
	return a.Alpha / 2 / (1 + u*u)
}
func (ATan) Name() string { return "atan" }

// StraightThrough passes the incoming gradient unchanged.
type StraightThrough struct{}

func (StraightThrough) Fire(x float64) float64     { return Heaviside(x) }
func (StraightThrough) Derivative(float64) float64 { return 1 }
func (StraightThrough) Name() string               { return "straight_through" }

// SurrogateFactory builds a surrogate from a sharpness parameter.
type SurrogateFactory func(sharpness float64) Surrogate

var surrogateRegistry = struct {
	mu sync.RWMutex
	m  map[string]SurrogateFactory
}{
	m: make(map[string]SurrogateFactory),
}

func init() {
	initializeBuiltInSurrogates()
}

func initializeBuiltInSurrogates() {
	MustRegisterSurrogate("fast_sigmoid", func(k float64) Surrogate { return FastSigmoid{Slope: k} })
	MustRegisterSurrogate("sigmoid", func(k float64) Surrogate { return SigmoidSurrogate{Slope: k} })
	MustRegisterSurrogate("atan", func(k float64) Surrogate { return ATan{Alpha: k} })
	MustRegisterSurrogate("straight_through", func(float64) Surrogate { return StraightThrough{} })
}

// RegisterSurrogate adds a named surrogate factory.
func RegisterSurrogate(name string, factory SurrogateFactory) error {
	if name == "" {
		return errors.New("surrogate name is required")
	}
	if factory == nil {
		return errors.New("surrogate factory is required")
	}
	surrogateRegistry.mu.Lock()
	defer surrogateRegistry.mu.Unlock()
	if _, exists := surrogateRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrSurrogateExists, name)
	}
	surrogateRegistry.m[name] = factory
	return nil
}

func MustRegisterSurrogate(name string, factory SurrogateFactory) {
	if err := RegisterSurrogate(name, factory); err != nil {
		panic(err)
	}
}

// NewSurrogate builds the named surrogate with the given sharpness.
func NewSurrogate(name string, sharpness float64) (Surrogate, error) {
	surrogateRegistry.mu.RLock()
	factory, ok := surrogateRegistry.m[name]
	surrogateRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSurrogateNotFound, name)
	}
	return factory(sharpness), nil
}

// ListSurrogates returns the registered names in sorted order.
func ListSurrogates() []string {
	surrogateRegistry.mu.RLock()
	defer surrogateRegistry.mu.RUnlock()
	names := make([]string, 0, len(surrogateRegistry.m))
	for name := range surrogateRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
