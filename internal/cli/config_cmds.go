package cli

import (
	"context"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

const apiKeyName = "GEMINI_API_KEY"

var secretKeys = map[string]bool{
	"SUPABASE_ANON_KEY": true,
	apiKeyName:          true,
}

// mask keeps the first and last four characters of a secret.
func mask(v string) string {
	if v == "" {
		return "(not set)"
	}
	if len(v) <= 8 {
		return strings.Repeat("*", len(v))
	}
	return v[:4] + strings.Repeat("*", len(v)-8) + v[len(v)-4:]
}

func configCommand(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or adjust the resolved configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the configuration and where it came from",
		Args:  cobra.NoArgs,
		RunE: run("/", func(_ context.Context, app *App, _ []string) error {
			values := app.Config.Initialize(context.Background())
			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			app.printf("source: %s\n", app.Config.Origin())
			for _, k := range keys {
				v := app.Config.Get(k, "")
				if secretKeys[k] {
					v = mask(v)
				}
				app.printf("%-18s %s\n", k, v)
			}
			return nil
		}),
	}

	setKey := &cobra.Command{
		Use:   "set-api-key [key]",
		Short: "Store your own Gemini API key on this device",
		Args:  cobra.MaximumNArgs(1),
		RunE: run("/", func(_ context.Context, app *App, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				key = app.ask("Gemini API key: ")
			}
			if strings.TrimSpace(key) == "" {
				return app.Config.ResetOverride(apiKeyName)
			}
			if err := app.Config.SetOverride(apiKeyName, key); err != nil {
				return err
			}
			app.printf("API key সংরক্ষণ করা হয়েছে।\n")
			return nil
		}),
	}

	resetKey := &cobra.Command{
		Use:   "reset-api-key",
		Short: "Forget the stored API key",
		Args:  cobra.NoArgs,
		RunE: run("/", func(_ context.Context, app *App, _ []string) error {
			if err := app.Config.ResetOverride(apiKeyName); err != nil {
				return err
			}
			app.printf("API key মুছে ফেলা হয়েছে।\n")
			return nil
		}),
	}

	cmd.AddCommand(show, setKey, resetKey)
	return cmd
}
