// Package source simulates the upstream transaction feed. The dashboard's
// real data arrives from an external registry; this generator stands in for
// it with a deterministic, seeded stream of retirement transactions.
package source

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	core "github.com/carbonscope-lab/carbonscope/internal/core/analytics"
)

// Project is one carbon project transactions retire against.
type Project struct {
	ID          string
	Name        string
	Methodology string
	PricePerTon decimal.Decimal
}

var defaultProjects = []Project{
	{ID: "prj-amazon-reforest", Name: "Amazon Reforestation", Methodology: "VM0007", PricePerTon: decimal.NewFromFloat(14.50)},
	{ID: "prj-kenya-cookstoves", Name: "Kenya Clean Cookstoves", Methodology: "GS-TPDDTEC", PricePerTon: decimal.NewFromFloat(9.75)},
	{ID: "prj-texas-wind", Name: "Texas Wind Power", Methodology: "ACM0002", PricePerTon: decimal.NewFromFloat(6.20)},
	{ID: "prj-indonesia-peatland", Name: "Indonesia Peatland Protection", Methodology: "VM0007", PricePerTon: decimal.NewFromFloat(18.00)},
	{ID: "prj-india-solar", Name: "India Rural Solar", Methodology: "AMS-I.D", PricePerTon: decimal.NewFromFloat(7.40)},
	{ID: "prj-biochar-nordic", Name: "Nordic Biochar", Methodology: "VM0044", PricePerTon: decimal.NewFromFloat(95.00)},
}

var paymentMethods = []string{"card", "invoice", "crypto", "bank_transfer"}

// Simulator produces retirement transactions over a rolling history window.
type Simulator struct {
	mu       sync.Mutex
	rng      *rand.Rand
	projects []Project
	actors   []string
	history  time.Duration
}

// NewSimulator seeds a generator. The same seed yields the same amounts,
// projects and timestamps; only record IDs differ between runs.
func NewSimulator(seed int64) *Simulator {
	rng := rand.New(rand.NewSource(seed))
	actors := make([]string, 40)
	for i := range actors {
		actors[i] = uuid.NewString()
	}
	return &Simulator{
		rng:      rng,
		projects: defaultProjects,
		actors:   actors,
		history:  90 * 24 * time.Hour,
	}
}

// Transactions generates n retirement transactions with timestamps spread
// over the trailing history window, ordered ascending by time.
func (s *Simulator) Transactions(ctx context.Context, n int) ([]core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	out := make([]core.Transaction, n)
	for i := range out {
		project := s.projects[s.rng.Intn(len(s.projects))]
		tons := decimal.NewFromFloat(0.25 + s.rng.Float64()*24).Round(2)

		// Timestamps walk forward through the window so the slice comes out
		// already ordered; jitter stays below the per-record step.
		step := int64(s.history) / int64(n)
		if step < 1 {
			step = 1
		}
		offset := time.Duration(float64(s.history) * float64(i) / float64(n))
		jitter := time.Duration(s.rng.Int63n(step))

		out[i] = core.Transaction{
			ID:            uuid.NewString(),
			OccurredAt:    now.Add(-s.history).Add(offset + jitter),
			Amount:        tons.Mul(project.PricePerTon).Round(2),
			CO2e:          tons,
			ProjectID:     project.ID,
			PaymentMethod: paymentMethods[s.rng.Intn(len(paymentMethods))],
			Methodology:   project.Methodology,
			ActorID:       s.actors[s.rng.Intn(len(s.actors))],
		}
	}
	return out, nil
}

// Projects returns the simulated project catalogue.
func (s *Simulator) Projects() []Project {
	return s.projects
}
