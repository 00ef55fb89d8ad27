package cli

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"mentalhealth-ai.bd/companion/internal/apperr"
	"mentalhealth-ai.bd/companion/internal/core"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

func moodLabel(key string) string {
	for _, m := range core.Moods {
		if m.Key == key {
			return m.Label
		}
	}
	return key
}

func moodKeys() string {
	keys := make([]string, len(core.Moods))
	for i, m := range core.Moods {
		keys[i] = m.Key
	}
	return strings.Join(keys, ", ")
}

func dashboardCommands(run runner) []*cobra.Command {
	dashboard := &cobra.Command{
		Use:   "dashboard",
		Short: "Show your activity, today's mood and the daily quote",
		Args:  cobra.NoArgs,
		RunE: run(core.PathDashboard, func(ctx context.Context, app *App, _ []string) error {
			s, err := app.Sessions.RequireSession(ctx)
			if err != nil {
				return err
			}
			dash := core.NewDashboardService(app.Backend, app.Local, app.logger)

			app.printf("%s\n\n", headingStyle.Render("স্বাগতম, "+s.User.FullName()))
			stats := dash.LoadStats(ctx, s.User.ID)
			app.printf("মোট কথোপকথন: %d\n", stats.TotalChats)
			app.printf("সক্রিয় দিন:    %d\n", stats.ActiveDays)
			if stats.Source == core.SourceLocal {
				app.printf("%s\n", faintStyle.Render("(সংরক্ষিত তথ্য দেখানো হচ্ছে)"))
			}

			if mood, ok := dash.TodayMood(ctx, s.User.ID); ok {
				app.printf("আজকের মেজাজ: %s (%s)\n", moodLabel(mood), apperr.MsgMoodAlreadySaved)
			} else {
				app.printf("আজকের মেজাজ: %s\n", faintStyle.Render(moodKeys()))
			}

			q := core.DailyQuote(time.Now())
			app.printf("\n\"%s\"\n  - %s\n", q.Text, q.Author)
			return nil
		}),
	}

	mood := &cobra.Command{
		Use:   "mood <" + strings.ReplaceAll(moodKeys(), ", ", "|") + ">",
		Short: "Record today's mood",
		Args:  cobra.ExactArgs(1),
		RunE: run(core.PathDashboard, func(ctx context.Context, app *App, args []string) error {
			s, err := app.Sessions.RequireSession(ctx)
			if err != nil {
				return err
			}
			dash := core.NewDashboardService(app.Backend, app.Local, app.logger)
			if _, saved := dash.TodayMood(ctx, s.User.ID); saved {
				return apperr.ErrMoodAlreadySaved
			}
			res, err := dash.RecordMood(ctx, s.User.ID, strings.ToLower(strings.TrimSpace(args[0])))
			if err != nil {
				return err
			}
			app.printf("%s %s\n", apperr.MsgMoodSaved, moodLabel(res.Mood))
			if res.SavedTo == core.SourceLocal {
				app.printf("%s\n", faintStyle.Render("(এই ডিভাইসে রাখা হয়েছে, সংযোগ পেলে সিঙ্ক হবে)"))
			}
			return nil
		}),
	}

	return []*cobra.Command{dashboard, mood}
}
