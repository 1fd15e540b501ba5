package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/dukerupert/appointments/internal/apiclient"
	"github.com/dukerupert/appointments/internal/layout"
	"github.com/dukerupert/appointments/internal/lifecycle"
	"github.com/dukerupert/appointments/internal/logging"
	"github.com/dukerupert/appointments/internal/model"
	"github.com/dukerupert/appointments/internal/timeofday"
)

func newAgendaCommand(opts *rootOptions) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "agenda",
		Short: "Print one day's appointments with their timeline columns.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			day := time.Now().In(loc)
			if date != "" {
				day, err = time.ParseInLocation("2006-01-02", date, loc)
				if err != nil {
					return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", date)
				}
			}

			client := apiclient.NewClient(cfg.StoreURL, nil, logging.New(cmd.ErrOrStderr(), cfg.LogLevel))
			appts, err := client.List(cmd.Context())
			if err != nil {
				return err
			}
			return renderAgenda(cmd.OutOrStdout(), day, lifecycle.FilterDay(appts, day))
		},
	}

	cmd.Flags().StringVarP(&date, "date", "d", "", "day to show as YYYY-MM-DD (default today)")
	return cmd
}

// renderAgenda writes the day's appointments in start order.
func renderAgenda(w io.Writer, day time.Time, appts []model.Appointment) error {
	if len(appts) == 0 {
		_, err := fmt.Fprintf(w, "No appointments on %s.\n", day.Format("Monday, January 2, 2006"))
		return err
	}

	byID := make(map[model.ID]model.Appointment, len(appts))
	for _, a := range appts {
		byID[a.ID] = a
	}
	result := layout.Compute(appts)

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.MaxColWidth = 40
	tbl.AddRow("TIME", "END", "COL", "TITLE", "LOCATION")
	for _, s := range result.Slots {
		a := byID[s.AppointmentID]
		tbl.AddRow(
			timeofday.Format(s.StartMinute),
			timeofday.Format(s.EndMinute),
			strconv.Itoa(s.Column+1)+"/"+strconv.Itoa(s.TotalColumns),
			a.Title,
			a.Location,
		)
	}

	if _, err := fmt.Fprintf(w, "%s (%d columns)\n", day.Format("Monday, January 2, 2006"), result.TotalColumns); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, tbl)
	return err
}
