package objective

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/seisinv/forward"
	"github.com/pthm-cable/seisinv/latent"
)

// ErrNonFinite is returned when a term value or gradient is NaN or infinite.
var ErrNonFinite = errors.New("objective: non-finite loss")

// Collaborators are the frozen models the objective evaluates against.
// Critic and Well may be nil when the corresponding terms are disabled.
type Collaborators struct {
	Generator forward.Generator
	Critic    forward.Critic
	Misfit    forward.Misfit
	Well      forward.WellConstraint
	Truth     forward.Field // ground truth for well probes
}

// TermValue is the evaluated value of one term.
type TermValue struct {
	Name     string
	Kind     Kind
	Value    float64 // weighted
	GradNorm float64 // norm of the weighted field gradient
}

// Result is the outcome of one objective evaluation.
type Result struct {
	Terms       []TermValue
	Combined    float64 // sum of non-detached term values
	Accuracy    float64 // mean well accuracy
	HasAccuracy bool
	Predicted   forward.Traces
}

// Aggregator evaluates a static term list for one field per iteration.
type Aggregator struct {
	terms  []Term
	collab Collaborators

	pending    forward.Field
	hasPending bool
}

// NewAggregator checks that every term has the collaborator it needs.
func NewAggregator(terms []Term, collab Collaborators) (*Aggregator, error) {
	if collab.Generator == nil {
		return nil, errors.New("objective: generator is required")
	}
	if collab.Misfit == nil {
		return nil, errors.New("objective: misfit is required")
	}
	for _, t := range terms {
		switch t.Kind {
		case KindCritic:
			if collab.Critic == nil {
				return nil, fmt.Errorf("objective: term %s needs a critic", t.Name)
			}
		case KindWell:
			if collab.Well == nil {
				return nil, fmt.Errorf("objective: term %s needs a well constraint", t.Name)
			}
		}
	}
	return &Aggregator{terms: terms, collab: collab}, nil
}

// Terms returns the term list.
func (a *Aggregator) Terms() []Term {
	return a.terms
}

// Evaluate computes every term for field, the generator output at z. Detached
// terms accumulate their gradient into z immediately; the rest is held until
// Backward.
func (a *Aggregator) Evaluate(z *latent.State, field forward.Field) (Result, error) {
	a.pending = forward.ZeroLike(field)
	a.hasPending = false

	res := Result{Terms: make([]TermValue, 0, len(a.terms))}
	var accSum float64
	var wells int

	for _, t := range a.terms {
		var value float64
		var grad forward.Field

		switch t.Kind {
		case KindCritic:
			score, g, err := a.collab.Critic.Score(field)
			if err != nil {
				return Result{}, fmt.Errorf("critic: %w", err)
			}
			// realism is maximized
			value = -t.Weight * score
			grad = scaled(g, -t.Weight)

		case KindWell:
			wr, err := a.collab.Well.Evaluate(field, a.collab.Truth, t.Well, t.Channel)
			if err != nil {
				return Result{}, fmt.Errorf("%s: %w", t.Name, err)
			}
			value = t.Weight * wr.Loss
			grad = scaled(wr.Grad, t.Weight)
			accSum += wr.Accuracy
			wells++

		case KindMisfit:
			mr, err := a.collab.Misfit.Misfit(field)
			if err != nil {
				return Result{}, fmt.Errorf("misfit: %w", err)
			}
			value = t.Weight * mr.Loss
			grad = scaled(mr.Grad, t.Weight)
			res.Predicted = mr.Predicted

		default:
			return Result{}, fmt.Errorf("objective: unknown term kind %v", t.Kind)
		}

		if !finite(value) || !allFinite(grad.Data) {
			return Result{}, fmt.Errorf("%w: term %s = %v", ErrNonFinite, t.Name, value)
		}

		if t.Detached {
			dz, err := a.collab.Generator.Pullback(z.Values, grad)
			if err != nil {
				return Result{}, fmt.Errorf("pullback of %s: %w", t.Name, err)
			}
			if err := z.Accumulate(dz, 1); err != nil {
				return Result{}, err
			}
		} else {
			if err := a.pending.AddScaled(1, grad); err != nil {
				return Result{}, fmt.Errorf("%s gradient: %w", t.Name, err)
			}
			a.hasPending = true
			res.Combined += value
		}

		res.Terms = append(res.Terms, TermValue{
			Name:     t.Name,
			Kind:     t.Kind,
			Value:    value,
			GradNorm: floats.Norm(grad.Data, 2),
		})
	}

	if wells > 0 {
		res.Accuracy = accSum / float64(wells)
		res.HasAccuracy = true
	}
	return res, nil
}

// Backward pulls the pending field gradient back through the generator and
// accumulates it into z. It must follow Evaluate for the same z.
func (a *Aggregator) Backward(z *latent.State) error {
	if !a.hasPending {
		// Only detached terms contributed; still mark the gradient populated.
		return z.Accumulate(make([]float64, z.Dim()), 1)
	}
	dz, err := a.collab.Generator.Pullback(z.Values, a.pending)
	if err != nil {
		return fmt.Errorf("pullback: %w", err)
	}
	if !allFinite(dz) {
		return fmt.Errorf("%w: latent gradient", ErrNonFinite)
	}
	a.hasPending = false
	return z.Accumulate(dz, 1)
}

// Reset clears per-run state, including the misfit collaborator's cache.
func (a *Aggregator) Reset() {
	a.pending = forward.Field{}
	a.hasPending = false
	a.collab.Misfit.Reset()
}

func scaled(f forward.Field, alpha float64) forward.Field {
	out := f.Clone()
	floats.Scale(alpha, out.Data)
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(xs []float64) bool {
	for _, v := range xs {
		if !finite(v) {
			return false
		}
	}
	return true
}
