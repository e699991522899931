// Package objective assembles the weighted loss terms of the inversion and
// accumulates their gradient into the latent.
package objective

import (
	"fmt"

	"github.com/pthm-cable/seisinv/config"
)

// Kind tags a loss term.
type Kind int

const (
	KindCritic Kind = iota
	KindWell
	KindMisfit
)

func (k Kind) String() string {
	switch k {
	case KindCritic:
		return "critic"
	case KindWell:
		return "well"
	case KindMisfit:
		return "misfit"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Term is one weighted contribution to the objective.
type Term struct {
	Kind   Kind
	Name   string
	Weight float64
	// Detached terms are pulled back and accumulated as soon as they are
	// evaluated and do not enter the combined loss.
	Detached bool

	// Well probe, KindWell only.
	Well    int
	Channel int
}

// Terms builds the term list in evaluation order: critic, one term per
// (well, channel) pair, then misfit. The misfit term is always present.
func Terms(cfg config.ObjectiveConfig) []Term {
	var terms []Term
	if cfg.UseCritic {
		terms = append(terms, Term{
			Kind:   KindCritic,
			Name:   "critic",
			Weight: cfg.LambdaPerceptual,
		})
	}
	if cfg.UseWell {
		for _, w := range cfg.Wells {
			for _, ch := range cfg.WellChannels {
				terms = append(terms, Term{
					Kind:     KindWell,
					Name:     fmt.Sprintf("well_%d_%d", w, ch),
					Weight:   cfg.LambdaWell,
					Detached: true,
					Well:     w,
					Channel:  ch,
				})
			}
		}
	}
	terms = append(terms, Term{
		Kind:   KindMisfit,
		Name:   "misfit",
		Weight: cfg.LambdaFWI,
	})
	return terms
}
