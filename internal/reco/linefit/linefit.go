// Package linefit fits straight lines through drift-chamber hit positions.
//
// The model is position = Q + M*depth, fitted by weighted least squares with a
// common per-point resolution sigma. The fit is driven by gonum's optimize
// package from a two-point initial guess, and the goodness of fit is reported
// as the normalised deviation of chi-square from its expectation, which the
// track search uses purely as a ranking score.
package linefit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrFitFailure is returned when a candidate cannot be fitted: degenerate
// geometry, invalid input or a minimisation that did not converge.
var ErrFitFailure = errors.New("line fit failed")

const (
	// DefaultSigma is the single-hit position resolution in mm (400 um).
	DefaultSigma = 0.4
	// DefaultNominalSlope is the slope guess used when the first two points
	// share a depth.
	DefaultNominalSlope = 100.0
	// DefaultMaxIterations bounds the number of major minimiser iterations.
	DefaultMaxIterations = 100
	// DefaultGradientThreshold is the gradient infinity-norm at which the
	// minimiser is considered converged.
	DefaultGradientThreshold = 1e-6

	// maxCondition rejects normal matrices that are numerically singular.
	maxCondition = 1e12
)

// Config holds the fitter parameters. Zero fields take the defaults above.
type Config struct {
	Sigma             float64
	NominalSlope      float64
	MaxIterations     int
	GradientThreshold float64
}

// DefaultConfig returns the production fitter parameters.
func DefaultConfig() Config {
	return Config{
		Sigma:             DefaultSigma,
		NominalSlope:      DefaultNominalSlope,
		MaxIterations:     DefaultMaxIterations,
		GradientThreshold: DefaultGradientThreshold,
	}
}

func (c Config) withDefaults() Config {
	if c.Sigma == 0 {
		c.Sigma = DefaultSigma
	}
	if c.NominalSlope == 0 {
		c.NominalSlope = DefaultNominalSlope
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.GradientThreshold <= 0 {
		c.GradientThreshold = DefaultGradientThreshold
	}
	return c
}

// Result is the outcome of a successful fit.
type Result struct {
	M         float64 // slope
	Q         float64 // intercept
	ChisqComp float64 // |chi2 - dof| / sqrt(2*dof)
	Chi2      float64
	DOF       int
	PValue    float64 // chi-square survival probability
	SigmaM    float64
	SigmaQ    float64
	XData     []float64 // positions that were fitted
}

// Fitter performs line fits with a fixed configuration. It holds no mutable
// state and is safe for concurrent use.
type Fitter struct {
	cfg Config
}

// New returns a Fitter for cfg.
func New(cfg Config) *Fitter {
	return &Fitter{cfg: cfg.withDefaults()}
}

// Config returns the effective configuration.
func (f *Fitter) Config() Config { return f.cfg }

// InitialGuess returns the starting intercept and slope from the first two
// points. When both share a depth the nominal slope is used instead.
func InitialGuess(depths, positions []float64, nominalSlope float64) (q, m float64) {
	m = nominalSlope
	if dz := depths[1] - depths[0]; dz != 0 {
		m = (positions[1] - positions[0]) / dz
	}
	q = positions[0] - m*depths[0]
	return q, m
}

// ChiSquare returns sum(((p - q - m*z)/sigma)^2).
func ChiSquare(depths, positions []float64, sigma, q, m float64) float64 {
	var chi2 float64
	for i, z := range depths {
		r := (positions[i] - q - m*z) / sigma
		chi2 += r * r
	}
	return chi2
}

// ChisqComp returns |chi2 - dof| / sqrt(2*dof), the deviation of chi2 from
// the mean of a chi-square distribution in units of its standard deviation.
func ChisqComp(chi2 float64, dof int) float64 {
	d := distuv.ChiSquared{K: float64(dof)}
	return math.Abs(chi2-d.Mean()) / d.StdDev()
}

// Fit fits position = Q + M*depth through the given points. At least three
// points with two or more distinct depths are required.
func (f *Fitter) Fit(depths, positions []float64) (Result, error) {
	n := len(depths)
	if n != len(positions) {
		return Result{}, fmt.Errorf("%w: %d depths but %d positions", ErrFitFailure, n, len(positions))
	}
	if n < 3 {
		return Result{}, fmt.Errorf("%w: need at least 3 points, got %d", ErrFitFailure, n)
	}
	sigma := f.cfg.Sigma
	if sigma <= 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return Result{}, fmt.Errorf("%w: invalid sigma %v", ErrFitFailure, sigma)
	}
	for i := range depths {
		if !finite(depths[i]) || !finite(positions[i]) {
			return Result{}, fmt.Errorf("%w: non-finite point %d (%v, %v)", ErrFitFailure, i, depths[i], positions[i])
		}
	}

	// Work in centred coordinates so the normal matrix is well conditioned
	// regardless of where the chamber sits in the global frame.
	zbar := stat.Mean(depths, nil)
	pbar := stat.Mean(positions, nil)
	u := make([]float64, n)
	v := make([]float64, n)
	for i := range depths {
		u[i] = depths[i] - zbar
		v[i] = positions[i] - pbar
	}

	w := 1 / (sigma * sigma)
	var su, suu float64
	for _, x := range u {
		su += x
		suu += x * x
	}
	normal := mat.NewSymDense(2, []float64{
		w * float64(n), w * su,
		w * su, w * suu,
	})
	var chol mat.Cholesky
	if ok := chol.Factorize(normal); !ok || chol.Cond() > maxCondition {
		return Result{}, fmt.Errorf("%w: singular design (depths %v)", ErrFitFailure, depths)
	}

	q0, m0 := InitialGuess(depths, positions, f.cfg.NominalSlope)
	// Intercept in centred coordinates: v = a + m*u.
	x0 := []float64{q0 + m0*zbar - pbar, m0}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return ChiSquare(u, v, sigma, x[0], x[1])
		},
		Grad: func(grad, x []float64) {
			var g0, g1 float64
			for i := range u {
				r := v[i] - x[0] - x[1]*u[i]
				g0 += r
				g1 += r * u[i]
			}
			grad[0] = -2 * w * g0
			grad[1] = -2 * w * g1
		},
		Hess: func(hess *mat.SymDense, _ []float64) {
			hess.SetSym(0, 0, 2*normal.At(0, 0))
			hess.SetSym(0, 1, 2*normal.At(0, 1))
			hess.SetSym(1, 1, 2*normal.At(1, 1))
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: f.cfg.GradientThreshold,
		MajorIterations:   f.cfg.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-12,
			Iterations: 10,
		},
	}
	res, err := optimize.Minimize(problem, x0, settings, &optimize.Newton{})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrFitFailure, err)
	}
	if res.Status.Early() {
		return Result{}, fmt.Errorf("%w: minimiser stopped early: %s", ErrFitFailure, res.Status)
	}
	a, m := res.X[0], res.X[1]
	if !finite(a) || !finite(m) {
		return Result{}, fmt.Errorf("%w: non-finite parameters", ErrFitFailure)
	}
	q := a + pbar - m*zbar

	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return Result{}, fmt.Errorf("%w: covariance: %v", ErrFitFailure, err)
	}
	varM := cov.At(1, 1)
	varQ := cov.At(0, 0) + zbar*zbar*varM - 2*zbar*cov.At(0, 1)

	chi2 := ChiSquare(depths, positions, sigma, q, m)
	dof := n - 2
	xdata := make([]float64, n)
	copy(xdata, positions)

	return Result{
		M:         m,
		Q:         q,
		ChisqComp: ChisqComp(chi2, dof),
		Chi2:      chi2,
		DOF:       dof,
		PValue:    distuv.ChiSquared{K: float64(dof)}.Survival(chi2),
		SigmaM:    math.Sqrt(math.Max(varM, 0)),
		SigmaQ:    math.Sqrt(math.Max(varQ, 0)),
		XData:     xdata,
	}, nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
