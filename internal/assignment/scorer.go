package assignment

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"dispatch-engine/internal/common"
	"dispatch-engine/internal/driver"
	domainerrors "dispatch-engine/internal/errors"
	"dispatch-engine/internal/order"
)

const DefaultNotifyCount = 3

// Candidate is one scored driver for an order.
type Candidate struct {
	Driver        *driver.Driver `json:"driver"`
	DistanceKM    float64        `json:"distance_km"`
	DistanceScore float64        `json:"distance_score"`
	RatingScore   float64        `json:"rating_score"`
	ActivityScore float64        `json:"activity_score"`
	Score         float64        `json:"score"`
}

type Ranking struct {
	OrderID    uuid.UUID   `json:"order_id"`
	Candidates []Candidate `json:"candidates"`
	Eligible   int         `json:"eligible"`
}

// Rank scores every driver in pool against the order's pickup point and
// returns the best notifyCount. The pool must already hold only ONLINE
// drivers without an active order.
func Rank(o *order.Order, pool []*driver.Driver, notifyCount int, now time.Time) (*Ranking, error) {
	if len(pool) == 0 {
		return nil, domainerrors.NoDriversAvailable()
	}
	if notifyCount <= 0 {
		notifyCount = DefaultNotifyCount
	}

	pickup := o.Pickup()
	scored := make([]Candidate, 0, len(pool))
	for _, d := range pool {
		scored = append(scored, score(pickup, d, now))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Driver.ID < scored[j].Driver.ID
	})

	return &Ranking{
		OrderID:    o.ID,
		Candidates: scored[:min(notifyCount, len(scored))],
		Eligible:   len(scored),
	}, nil
}

func score(pickup common.Location, d *driver.Driver, now time.Time) Candidate {
	pos, ok := d.Position()
	if !ok {
		pos = common.NewLocation(0, 0)
	}
	km := common.HaversineDistance(pickup, pos)

	c := Candidate{
		Driver:        d,
		DistanceKM:    km,
		DistanceScore: math.Max(0, 100-km*10),
		RatingScore:   d.Rating * 20,
		ActivityScore: activityScore(d.LastActiveAt, now),
	}
	c.Score = c.DistanceScore + c.RatingScore + c.ActivityScore
	return c
}

// activityScore grows with the hours since the driver was last active.
// A driver never seen active scores the maximum. Longer idle time ranks higher;
// the direction is kept until product confirms it.
func activityScore(lastActive *time.Time, now time.Time) float64 {
	if lastActive == nil {
		return 100
	}
	hours := math.Max(0, now.Sub(*lastActive).Hours())
	return math.Min(100, hours*10)
}
