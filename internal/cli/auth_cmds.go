package cli

import (
	"context"
	"net/url"

	"github.com/spf13/cobra"

	"mentalhealth-ai.bd/companion/internal/apperr"
	"mentalhealth-ai.bd/companion/internal/core"
)

func authCommands(run runner) []*cobra.Command {
	var in core.SignUpInput
	signup := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: run(core.PathSignup, func(ctx context.Context, app *App, _ []string) error {
			if in.Password == "" {
				in.Password = app.ask("পাসওয়ার্ড: ")
			}
			if in.ConfirmPassword == "" {
				in.ConfirmPassword = app.ask("পাসওয়ার্ড আবার দিন: ")
			}
			res, err := app.Sessions.SignUp(ctx, in)
			if err != nil {
				return err
			}
			if res.NeedsConfirmation {
				app.printf("নিবন্ধন সফল হয়েছে! %s ঠিকানায় পাঠানো লিংক দিয়ে ইমেইল নিশ্চিত করুন।\n", res.User.Email)
				return nil
			}
			app.printf("নিবন্ধন সফল হয়েছে! এখন লগইন করুন।\n")
			return nil
		}),
	}
	signup.Flags().StringVar(&in.FullName, "name", "", "Full name")
	signup.Flags().StringVar(&in.Email, "email", "", "E-mail address")
	signup.Flags().StringVar(&in.Password, "password", "", "Password (prompted when empty)")
	signup.Flags().StringVar(&in.ConfirmPassword, "confirm", "", "Password again (prompted when empty)")
	signup.Flags().BoolVar(&in.AgeAttestation, "age", false, "Confirm you are at least 18")
	signup.Flags().BoolVar(&in.TermsAcceptance, "terms", false, "Accept the terms of use")

	var (
		email, password, returnURL, redirect string
		remember                             bool
	)
	login := &cobra.Command{
		Use:   "login",
		Short: "Sign in with e-mail and password",
		Args:  cobra.NoArgs,
		RunE: run(core.PathLogin, func(ctx context.Context, app *App, _ []string) error {
			app.At(loginPage(returnURL, redirect))
			if password == "" && email != "" {
				password = app.ask("পাসওয়ার্ড: ")
			}
			s, err := app.Sessions.SignIn(ctx, email, password, remember)
			if err != nil {
				return err
			}
			app.printf("স্বাগতম, %s!\n", s.User.FullName())
			return nil
		}),
	}
	login.Flags().StringVar(&email, "email", "", "E-mail address")
	login.Flags().StringVar(&password, "password", "", "Password (prompted when empty)")
	login.Flags().BoolVar(&remember, "remember", true, "Keep the session for later runs")
	login.Flags().StringVar(&returnURL, "return-url", "", "Page to open after sign-in")
	login.Flags().StringVar(&redirect, "redirect", "", "Set to admin to continue to the admin panel")

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Args:  cobra.NoArgs,
		RunE: run(core.PathDashboard, func(ctx context.Context, app *App, _ []string) error {
			app.Sessions.SignOut(ctx)
			app.printf("লগআউট করা হয়েছে।\n")
			return nil
		}),
	}

	whoami := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: run("/", func(ctx context.Context, app *App, _ []string) error {
			s := app.Sessions.Current()
			if s == nil {
				app.printf("%s\n", apperr.MsgNotAuthenticated)
				return nil
			}
			role := "user"
			if app.Sessions.ResolveRole(ctx, s.User.ID) {
				role = "admin"
			}
			app.printf("%s <%s> (%s)\n", s.User.FullName(), s.User.Email, role)
			return nil
		}),
	}

	reset := &cobra.Command{
		Use:   "reset-password <email>",
		Short: "Send a password reset link",
		Args:  cobra.ExactArgs(1),
		RunE: run(core.PathLogin, func(ctx context.Context, app *App, args []string) error {
			if err := app.Sessions.ResetPassword(ctx, args[0]); err != nil {
				return err
			}
			app.printf("পাসওয়ার্ড রিসেট লিংক পাঠানো হয়েছে।\n")
			return nil
		}),
	}

	oauthURL := &cobra.Command{
		Use:   "oauth-url [provider]",
		Short: "Print the third-party sign-in address",
		Args:  cobra.MaximumNArgs(1),
		RunE: run(core.PathLogin, func(_ context.Context, app *App, args []string) error {
			provider := "google"
			if len(args) == 1 {
				provider = args[0]
			}
			app.printf("%s\n", app.Sessions.OAuthURL(provider))
			return nil
		}),
	}

	oauthComplete := &cobra.Command{
		Use:   "oauth-complete <access-token>",
		Short: "Finish a third-party sign-in with the token from the callback",
		Args:  cobra.ExactArgs(1),
		RunE: run(core.PathAuthCallback, func(ctx context.Context, app *App, args []string) error {
			s, err := app.Sessions.AdoptToken(ctx, args[0])
			if err != nil {
				return err
			}
			app.printf("স্বাগতম, %s!\n", s.User.FullName())
			return nil
		}),
	}

	return []*cobra.Command{signup, login, logout, whoami, reset, oauthURL, oauthComplete}
}

// loginPage is the login location carrying the requested follow-up.
func loginPage(returnURL, redirect string) string {
	q := url.Values{}
	if returnURL != "" {
		q.Set("returnUrl", returnURL)
	}
	if redirect != "" {
		q.Set("redirect", redirect)
	}
	if len(q) == 0 {
		return core.PathLogin
	}
	return core.PathLogin + "?" + q.Encode()
}
