package orderwatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/craftline/storefront/internal/models"
)

type fixedRand struct{ n int }

func (r fixedRand) Intn(int) int { return r.n }

type PlannerSuite struct {
	suite.Suite
}

func (s *PlannerSuite) TestBackoffDelay() {
	p := NewPlanner(DefaultPlannerConfig(), nil)
	s.Equal(1*time.Minute, p.BackoffDelay(1))
	s.Equal(5*time.Minute, p.BackoffDelay(2))
	s.Equal(15*time.Minute, p.BackoffDelay(3))
	s.Equal(60*time.Minute, p.BackoffDelay(4))
	s.Equal(60*time.Minute, p.BackoffDelay(100))
}

func (s *PlannerSuite) TestNextCheckDelay_Active() {
	p := NewPlanner(DefaultPlannerConfig(), nil)
	s.Equal(30*time.Second, p.NextCheckDelay(models.DeliveryStatusOrdered))
	s.Equal(30*time.Second, p.NextCheckDelay(models.DeliveryStatusInTransit))
	s.Equal(30*time.Second, p.NextCheckDelay(models.DeliveryStatusOutForDelivery))
}

func (s *PlannerSuite) TestNextCheckDelay_Terminal() {
	p := NewPlanner(DefaultPlannerConfig(), nil)
	s.Equal(365*24*time.Hour, p.NextCheckDelay(models.DeliveryStatusDelivered))
	s.Equal(365*24*time.Hour, p.NextCheckDelay(models.DeliveryStatusReturned))
}

func (s *PlannerSuite) TestNextCheckDelay_Jitter() {
	cfg := DefaultPlannerConfig()
	cfg.ActiveMinDelay = 30 * time.Second
	cfg.ActiveMaxDelay = 90 * time.Second
	p := NewPlanner(cfg, fixedRand{n: 10})
	s.Equal(40*time.Second, p.NextCheckDelay(models.DeliveryStatusShipped))
}

func (s *PlannerSuite) TestConfigDefaults() {
	p := NewPlanner(PlannerConfig{}, nil)
	s.Equal(30*time.Second, p.cfg.ActiveMinDelay)
	s.Equal(1*time.Minute, p.cfg.Backoff1)
}

func TestPlannerSuite(t *testing.T) {
	suite.Run(t, new(PlannerSuite))
}
