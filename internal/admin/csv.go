package admin

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/gosimple/slug"

	"trekreg/internal/model"
)

const csvDateLayout = "2006-01-02 15:04"

var csvHeader = []string{"Name", "Email", "Payment Status", "Ticket ID", "Registration Date"}

// WriteCSV writes one header row and one row per registration, in the
// order given.
func WriteCSV(w io.Writer, rows []model.Registration, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.FullName,
			r.Email,
			string(r.PaymentStatus),
			r.Ticket(),
			r.RegisteredAt.In(loc).Format(csvDateLayout),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func ExportFileName(eventName string, at time.Time) string {
	base := slug.Make(eventName)
	if base == "" {
		base = "registrations"
	} else {
		base += "-registrations"
	}
	return fmt.Sprintf("%s-%s.csv", base, at.Format("2006-01-02"))
}
