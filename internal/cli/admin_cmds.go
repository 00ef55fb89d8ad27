package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mentalhealth-ai.bd/companion/internal/core"
	"mentalhealth-ai.bd/companion/internal/model"
	"mentalhealth-ai.bd/companion/internal/utils"
)

// adminRun gates fn on the admin role before it runs.
func adminRun(run runner, fn func(ctx context.Context, app *App, admin *core.AdminService, args []string) error) func(*cobra.Command, []string) error {
	return run(core.PathAdmin, func(ctx context.Context, app *App, args []string) error {
		admin := core.NewAdminService(app.Backend, app.Sessions, app.Local, app, app.Nav, app.logger)
		if _, err := admin.Gate(ctx); err != nil {
			return err
		}
		return fn(ctx, app, admin, args)
	})
}

// clip flattens s onto one line and cuts it to n characters for a table cell.
func clip(s string, n int) string {
	return utils.Truncate(strings.Join(strings.Fields(s), " "), n)
}

func adminCommand(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Back-office for administrators",
	}

	var userSearch string
	users := &cobra.Command{
		Use:   "users",
		Short: "List registered users",
		Args:  cobra.NoArgs,
		RunE: adminRun(run, func(ctx context.Context, app *App, admin *core.AdminService, _ []string) error {
			rows, err := admin.ListUsers(ctx)
			if err != nil {
				return err
			}
			rows = core.FilterRows(rows, userSearch, core.UserRowText)
			w := tabwriter.NewWriter(app.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tনাম\tইমেইল\tযোগদান")
			for _, u := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID, u.FullName, u.Email, u.CreatedAt.Local().Format("2006-01-02"))
			}
			return w.Flush()
		}),
	}
	users.Flags().StringVar(&userSearch, "search", "", "Keep rows containing this text")

	deleteUser := &cobra.Command{
		Use:   "delete-user <id>",
		Short: "Delete a user and their data",
		Args:  cobra.ExactArgs(1),
		RunE: adminRun(run, func(ctx context.Context, app *App, admin *core.AdminService, args []string) error {
			if err := admin.DeleteUser(ctx, args[0]); err != nil {
				return err
			}
			app.printf("ব্যবহারকারী মুছে ফেলা হয়েছে।\n")
			return nil
		}),
	}

	var chatSearch string
	chats := &cobra.Command{
		Use:   "chats",
		Short: "List recent conversations",
		Args:  cobra.NoArgs,
		RunE: adminRun(run, func(ctx context.Context, app *App, admin *core.AdminService, _ []string) error {
			rows, err := admin.ListChats(ctx)
			if err != nil {
				return err
			}
			rows = core.FilterRows(rows, chatSearch, func(c model.ChatMessage) string {
				text := c.Message + " " + c.Response
				if c.Author != nil {
					text += " " + c.Author.FullName + " " + c.Author.Email
				}
				return text
			})
			w := tabwriter.NewWriter(app.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "সময়\tব্যবহারকারী\tবার্তা\tউত্তর")
			for _, c := range rows {
				who := c.UserID
				if c.Author != nil {
					who = c.Author.FullName
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.CreatedAt.Local().Format("2006-01-02 15:04"), who, clip(c.Message, 40), clip(c.Response, 40))
			}
			return w.Flush()
		}),
	}
	chats.Flags().StringVar(&chatSearch, "search", "", "Keep rows containing this text")

	var postStatus, postSearch string
	posts := &cobra.Command{
		Use:   "posts",
		Short: "List blog posts",
		Args:  cobra.NoArgs,
		RunE: adminRun(run, func(ctx context.Context, app *App, admin *core.AdminService, _ []string) error {
			rows, err := admin.ListPosts(ctx, postStatus)
			if err != nil {
				return err
			}
			rows = core.FilterRows(rows, postSearch, core.PostRowText)
			w := tabwriter.NewWriter(app.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tশিরোনাম\tস্ট্যাটাস\tবিভাগ\tপড়ার সময়")
			for _, p := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d মিনিট\n", p.ID, clip(p.Title, 40), p.Status, p.Category, p.ReadTime)
			}
			return w.Flush()
		}),
	}
	posts.Flags().StringVar(&postStatus, "status", "", "draft or published")
	posts.Flags().StringVar(&postSearch, "search", "", "Keep rows containing this text")

	var in core.PostInput
	var contentFile string
	savePost := &cobra.Command{
		Use:   "post-save",
		Short: "Create a post, or update it when --id is given",
		Args:  cobra.NoArgs,
		RunE: adminRun(run, func(ctx context.Context, app *App, admin *core.AdminService, _ []string) error {
			if contentFile != "" {
				raw, err := os.ReadFile(contentFile)
				if err != nil {
					return fmt.Errorf("failed to read post content: %w", err)
				}
				in.Content = string(raw)
			}
			if in.ID != "" {
				current, err := admin.GetPost(ctx, in.ID)
				if err != nil {
					return err
				}
				in = mergePost(*current, in)
			}
			post, err := admin.SavePost(ctx, in)
			if err != nil {
				return err
			}
			app.printf("পোস্ট সংরক্ষণ করা হয়েছে: %s (%s)\n", post.Slug, post.Status)
			return nil
		}),
	}
	savePost.Flags().StringVar(&in.ID, "id", "", "Post to update")
	savePost.Flags().StringVar(&in.Title, "title", "", "Title")
	savePost.Flags().StringVar(&in.Slug, "slug", "", "Slug (derived from the title when empty)")
	savePost.Flags().StringVar(&in.Category, "category", "", "Category")
	savePost.Flags().StringVar(&in.Status, "status", "", "draft or published")
	savePost.Flags().IntVar(&in.ReadTime, "read-time", 0, "Reading time in minutes")
	savePost.Flags().StringVar(&in.Excerpt, "excerpt", "", "Short summary")
	savePost.Flags().StringVar(&in.FeaturedImage, "image", "", "Featured image URL")
	savePost.Flags().StringVar(&in.Content, "content", "", "HTML body")
	savePost.Flags().StringVar(&contentFile, "content-file", "", "Read the HTML body from this file")

	deletePost := &cobra.Command{
		Use:   "post-delete <id>",
		Short: "Delete a blog post",
		Args:  cobra.ExactArgs(1),
		RunE: adminRun(run, func(ctx context.Context, app *App, admin *core.AdminService, args []string) error {
			if err := admin.DeletePost(ctx, args[0]); err != nil {
				return err
			}
			app.printf("পোস্ট মুছে ফেলা হয়েছে।\n")
			return nil
		}),
	}

	overview := &cobra.Command{
		Use:   "overview",
		Short: "Show the headline counters",
		Args:  cobra.NoArgs,
		RunE: adminRun(run, func(ctx context.Context, app *App, admin *core.AdminService, _ []string) error {
			ov, err := admin.Overview(ctx)
			if err != nil {
				return err
			}
			app.printf("%s\n", headingStyle.Render("সারসংক্ষেপ"))
			app.printf("মোট ব্যবহারকারী:    %d (আজ %d)\n", ov.TotalUsers, ov.TodayUsers)
			app.printf("মোট চ্যাট:          %d (আজ %d)\n", ov.TotalChats, ov.TodayChats)
			app.printf("প্রকাশিত পোস্ট:     %d\n", ov.PublishedPosts)
			return nil
		}),
	}

	charts := &cobra.Command{
		Use:   "charts",
		Short: "Print the dashboard charts as tables",
		Args:  cobra.NoArgs,
		RunE: adminRun(run, func(_ context.Context, app *App, admin *core.AdminService, _ []string) error {
			for _, c := range admin.Charts() {
				app.printf("%s %s\n", headingStyle.Render(c.Title), faintStyle.Render("("+c.Kind+")"))
				w := tabwriter.NewWriter(app.out, 0, 4, 2, ' ', 0)
				for _, ds := range c.Datasets {
					for i, label := range c.Labels {
						fmt.Fprintf(w, "  %s\t%d\n", label, ds.Data[i])
					}
				}
				if err := w.Flush(); err != nil {
					return err
				}
			}
			return nil
		}),
	}

	var settings core.GeneralSettings
	var settingsCmd *cobra.Command
	settingsCmd = &cobra.Command{
		Use:   "settings",
		Short: "Show the general settings, or change them with flags",
		Args:  cobra.NoArgs,
		RunE: adminRun(run, func(_ context.Context, app *App, admin *core.AdminService, _ []string) error {
			current, err := admin.LoadSettings()
			if err != nil {
				return err
			}
			changed := current
			flags := settingsCmd.Flags()
			if flags.Changed("site-name") {
				changed.SiteName = settings.SiteName
			}
			if flags.Changed("contact-email") {
				changed.ContactEmail = settings.ContactEmail
			}
			if flags.Changed("daily-chat-limit") {
				changed.DailyChatLimit = settings.DailyChatLimit
			}
			if changed != current {
				if err := admin.SaveSettings(changed); err != nil {
					return err
				}
				app.printf("সেটিংস সংরক্ষণ করা হয়েছে।\n")
			}
			app.printf("site_name:        %s\n", changed.SiteName)
			app.printf("contact_email:    %s\n", changed.ContactEmail)
			app.printf("daily_chat_limit: %d\n", changed.DailyChatLimit)
			return nil
		}),
	}
	settingsCmd.Flags().StringVar(&settings.SiteName, "site-name", "", "Site name")
	settingsCmd.Flags().StringVar(&settings.ContactEmail, "contact-email", "", "Contact e-mail")
	settingsCmd.Flags().IntVar(&settings.DailyChatLimit, "daily-chat-limit", 0, "Messages a user may send per day")

	changePassword := &cobra.Command{
		Use:   "change-password",
		Short: "Change your own password",
		Args:  cobra.NoArgs,
		RunE: adminRun(run, func(ctx context.Context, app *App, admin *core.AdminService, _ []string) error {
			password := app.ask("নতুন পাসওয়ার্ড: ")
			confirm := app.ask("পাসওয়ার্ড আবার দিন: ")
			if err := admin.ChangePassword(ctx, password, confirm); err != nil {
				return err
			}
			app.printf("পাসওয়ার্ড পরিবর্তন করা হয়েছে।\n")
			return nil
		}),
	}

	cmd.AddCommand(users, deleteUser, chats, posts, savePost, deletePost, overview, charts, settingsCmd, changePassword)
	return cmd
}

// mergePost fills the fields left empty in an update from the stored post.
func mergePost(current model.BlogPost, in core.PostInput) core.PostInput {
	pick := func(v, fallback string) string {
		if strings.TrimSpace(v) == "" {
			return fallback
		}
		return v
	}
	in.Title = pick(in.Title, current.Title)
	in.Slug = pick(in.Slug, current.Slug)
	in.Category = pick(in.Category, current.Category)
	in.Status = pick(in.Status, current.Status)
	in.Excerpt = pick(in.Excerpt, current.Excerpt)
	in.FeaturedImage = pick(in.FeaturedImage, current.FeaturedImage)
	in.Content = pick(in.Content, current.Content)
	if in.ReadTime == 0 {
		in.ReadTime = current.ReadTime
	}
	return in
}
