package admin

import (
	"time"

	"github.com/jinzhu/now"

	"trekreg/internal/model"
)

type Stats struct {
	Total           int `json:"total"`
	Completed       int `json:"completed"`
	Pending         int `json:"pending"`
	Failed          int `json:"failed"`
	RegisteredToday int `json:"registered_today"`
}

// ComputeStats counts rows per status and the rows registered since the
// start of the day containing at, in at's location.
func ComputeStats(rows []model.Registration, at time.Time) Stats {
	dayStart := now.With(at).BeginningOfDay()

	var s Stats
	for _, r := range rows {
		s.Total++
		switch r.PaymentStatus {
		case model.PaymentCompleted:
			s.Completed++
		case model.PaymentPending:
			s.Pending++
		case model.PaymentFailed:
			s.Failed++
		}
		if !r.RegisteredAt.Before(dayStart) {
			s.RegisteredToday++
		}
	}
	return s
}
