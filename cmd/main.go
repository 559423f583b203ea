package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"cybercal/internal/api"
	"cybercal/internal/auth"
	"cybercal/internal/caldav"
	"cybercal/internal/calendar"
	"cybercal/internal/config"
	"cybercal/internal/form"
	"cybercal/internal/google"
	"cybercal/internal/ics"
	"cybercal/internal/models"
	"cybercal/internal/store"
	"cybercal/internal/syncer"
	"cybercal/internal/web"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "cybercal",
		Usage: "Browse and administer the cybersecurity training calendar.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api", Usage: "Session API base URL. Overrides CYBERCAL_API_BASE_URL."},
		},
		Commands: []*cli.Command{
			serveCommand(),
			loginCommand(),
			logoutCommand(),
			sessionsCommand(),
			exportCommand(),
			googleAuthCommand(),
			syncCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

// env bundles what every command needs.
type env struct {
	cfg    config.Config
	logger *slog.Logger
	client *api.Client
	store  *store.Store
	binder calendar.Binder
}

func setup(c *cli.Context) (*env, error) {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger := setupLogger(logLevel)

	cfg, err := config.Load(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if c.IsSet("api") {
		cfg.APIBaseURL = c.String("api")
	}

	client, err := api.NewClient(logger, cfg.APIBaseURL, nil)
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:    cfg,
		logger: logger,
		client: client,
		store:  store.New(logger, client),
		binder: calendar.NewBinder(cfg.Location),
	}, nil
}

// tokenStore opens the CLI's persisted admin token.
func (e *env) tokenStore() (*auth.FileStore, error) {
	dir := e.cfg.TokenDir
	if dir == "" {
		var err error
		if dir, err = auth.DefaultDir(); err != nil {
			return nil, err
		}
	}
	return auth.NewFileStore(dir)
}

func (e *env) admin() (*store.Admin, error) {
	tokens, err := e.tokenStore()
	if err != nil {
		return nil, err
	}
	if !auth.LoggedIn(tokens) {
		return nil, errors.New("please login first: run 'cybercal login'")
	}
	return e.store.As(tokens), nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the public calendar and the admin console.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address. Overrides CYBERCAL_ADDR."},
			&cli.StringSliceFlag{Name: "trusted-origin", Usage: "Extra origin (host:port) allowed to post forms."},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			addr := e.cfg.Addr
			if c.IsSet("addr") {
				addr = c.String("addr")
			}

			if _, err := e.store.ListAll(c.Context); err != nil {
				e.logger.Warn("Session API not reachable yet, pages will retry.", "api", e.cfg.APIBaseURL)
			}

			srv := web.New(e.logger, e.store, e.client, web.Options{
				Binder:         e.binder,
				CSRFKey:        e.cfg.CSRFKey,
				CookieHashKey:  e.cfg.CookieHashKey,
				CookieBlockKey: e.cfg.CookieBlockKey,
				Secure:         e.cfg.Production(),
				TrustedOrigins: c.StringSlice("trusted-origin"),
			})
			httpServer := &http.Server{
				Addr:              addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				httpServer.Shutdown(shutdownCtx)
			}()

			e.logger.Info("Serving calendar.", "addr", addr, "api", e.cfg.APIBaseURL, "timezone", e.cfg.Location.String())
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		},
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Log in as an administrator and keep the token for later commands.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Usage: "Admin email. Prompted when omitted."},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			reader := bufio.NewReader(os.Stdin)

			email := c.String("email")
			if email == "" {
				fmt.Print("Email: ")
				email, _ = reader.ReadString('\n')
				email = strings.TrimSpace(email)
			}
			fmt.Print("Password: ")
			password, _ := reader.ReadString('\n')
			password = strings.TrimRight(password, "\r\n")

			result, err := e.client.Login(c.Context, email, password)
			if err != nil {
				if errors.Is(err, api.ErrLoginFailed) {
					return errors.New(api.Message(err, "Invalid credentials"))
				}
				return fmt.Errorf("server error, please try again later: %w", err)
			}

			tokens, err := e.tokenStore()
			if err != nil {
				return err
			}
			if err := tokens.Set(result.Token); err != nil {
				return err
			}
			e.logger.Info("Saved admin token.", "file", tokens.Path())
			fmt.Printf("Welcome %s!\n", result.Admin.Name)
			return nil
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Forget the stored admin token.",
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			tokens, err := e.tokenStore()
			if err != nil {
				return err
			}
			if err := tokens.Clear(); err != nil {
				return err
			}
			fmt.Println("Logged out")
			return nil
		},
	}
}

func sessionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "title"},
		&cli.StringFlag{Name: "date", Usage: "Calendar date, YYYY-MM-DD, in CYBERCAL_TIMEZONE."},
		&cli.StringFlag{Name: "time", Usage: "Start time, HH:MM."},
		&cli.IntFlag{Name: "duration", Value: models.DefaultDurationMinutes, Usage: "Duration in minutes."},
		&cli.StringFlag{Name: "trainer"},
		&cli.StringFlag{Name: "description", Usage: "Markdown description."},
		&cli.StringFlag{Name: "link", Usage: "Meeting link."},
		&cli.StringFlag{Name: "topic", Value: models.DefaultTopic, Usage: "SOC, GRC or Threat Intel."},
	}
}

// applyFlags overwrites the fields whose flags were given.
func applyFlags(c *cli.Context, f form.Fields) form.Fields {
	set := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = strings.TrimSpace(c.String(name))
		}
	}
	set("title", &f.Title)
	set("date", &f.Date)
	set("time", &f.Time)
	set("trainer", &f.Trainer)
	set("description", &f.Description)
	set("link", &f.MeetingLink)
	set("topic", &f.Topic)
	if c.IsSet("duration") {
		f.DurationMinutes = c.Int("duration")
	}
	return f
}

func sessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "List and manage training sessions.",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List every session.",
				Action: func(c *cli.Context) error {
					e, err := setup(c)
					if err != nil {
						return err
					}
					sessions, err := e.store.ListAll(c.Context)
					if err != nil {
						return fmt.Errorf("failed to fetch sessions: %w", err)
					}
					return printSessions(os.Stdout, e.binder, sessions)
				},
			},
			{
				Name:  "day",
				Usage: "List the sessions on one calendar day.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "date", Usage: "YYYY-MM-DD. Defaults to today."},
				},
				Action: func(c *cli.Context) error {
					e, err := setup(c)
					if err != nil {
						return err
					}
					day := time.Now()
					if v := c.String("date"); v != "" {
						if day, err = time.ParseInLocation(models.DayLayout, v, e.cfg.Location); err != nil {
							return fmt.Errorf("invalid date '%s': %w", v, err)
						}
					}
					sessions, err := e.store.ListAll(c.Context)
					if err != nil {
						return fmt.Errorf("failed to fetch sessions: %w", err)
					}
					return printSessions(os.Stdout, e.binder, e.binder.SessionsOnDay(sessions, day))
				},
			},
			{
				Name:      "show",
				Usage:     "Show the authoritative record of a session.",
				ArgsUsage: "ID",
				Action: func(c *cli.Context) error {
					e, admin, id, err := adminWithID(c)
					if err != nil {
						return err
					}
					s, err := admin.GetByID(c.Context, id)
					if err != nil {
						return err
					}
					f := form.FromSession(s, e.cfg.Location)
					w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
					fmt.Fprintf(w, "ID\t%s\nTitle\t%s\nDate\t%s\nTime\t%s\nDuration\t%d min\nTrainer\t%s\nTopic\t%s\nLink\t%s\nDescription\t%s\n",
						s.ID, f.Title, f.Date, f.Time, f.DurationMinutes, s.TrainerName(), f.Topic, f.MeetingLink, f.Description)
					return w.Flush()
				},
			},
			{
				Name:  "add",
				Usage: "Create a session.",
				Flags: sessionFlags(),
				Action: func(c *cli.Context) error {
					e, err := setup(c)
					if err != nil {
						return err
					}
					admin, err := e.admin()
					if err != nil {
						return err
					}
					f := applyFlags(c, form.Blank())
					if missing := f.Missing(); len(missing) > 0 {
						return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
					}
					created, err := admin.Create(c.Context, f.Session("", e.cfg.Location))
					if err := reportMutation(e.logger, err); err != nil {
						return err
					}
					fmt.Printf("Session added successfully! %s\n", created.ID)
					return nil
				},
			},
			{
				Name:      "edit",
				Usage:     "Update a session. Unset flags keep the stored values.",
				ArgsUsage: "ID",
				Flags:     sessionFlags(),
				Action: func(c *cli.Context) error {
					e, admin, id, err := adminWithID(c)
					if err != nil {
						return err
					}
					current, err := admin.GetByID(c.Context, id)
					if err != nil {
						return fmt.Errorf("unable to load session for editing: %w", err)
					}
					f := applyFlags(c, form.FromSession(current, e.cfg.Location))
					if missing := f.Missing(); len(missing) > 0 {
						return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
					}
					_, err = admin.Update(c.Context, f.Session(id, e.cfg.Location))
					if err := reportMutation(e.logger, err); err != nil {
						return err
					}
					fmt.Println("Session updated successfully!")
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a session.",
				ArgsUsage: "ID",
				Action: func(c *cli.Context) error {
					e, admin, id, err := adminWithID(c)
					if err != nil {
						return err
					}
					if err := reportMutation(e.logger, admin.Remove(c.Context, id)); err != nil {
						return err
					}
					fmt.Println("Session deleted successfully!")
					return nil
				},
			},
		},
	}
}

func adminWithID(c *cli.Context) (*env, *store.Admin, string, error) {
	id := c.Args().First()
	if id == "" {
		return nil, nil, "", errors.New("missing session ID argument")
	}
	e, err := setup(c)
	if err != nil {
		return nil, nil, "", err
	}
	admin, err := e.admin()
	if err != nil {
		return nil, nil, "", err
	}
	return e, admin, id, nil
}

// reportMutation treats a failed reload after an accepted write as a warning.
func reportMutation(logger *slog.Logger, err error) error {
	var reloadErr *store.ReloadError
	if errors.As(err, &reloadErr) {
		logger.Warn("Change saved, but the session list could not be refreshed.", "error", reloadErr.Err)
		return nil
	}
	if api.IsUnauthorized(err) {
		return fmt.Errorf("%s (try 'cybercal login'): %w", api.Message(err, "not authorized"), err)
	}
	return err
}

func printSessions(out io.Writer, binder calendar.Binder, sessions []models.Session) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tTIME\tTITLE\tTOPIC\tTRAINER")
	for _, s := range sessions {
		day, window := s.Date, ""
		if win, ok := binder.DisplayWindow(s); ok {
			day = binder.DayKey(win.Start)
			window = win.Label()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", s.ID, day, window, s.Title, s.Topic, s.TrainerName())
	}
	return w.Flush()
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write the session collection as an iCalendar file.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file. Defaults to stdout."},
			&cli.StringFlag{Name: "name", Value: "Cybersecurity Training", Usage: "Calendar name."},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			sessions, err := e.store.ListAll(c.Context)
			if err != nil {
				return fmt.Errorf("failed to fetch sessions: %w", err)
			}

			var out io.Writer = os.Stdout
			if path := c.String("out"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("unable to create %s: %w", path, err)
				}
				defer f.Close()
				out = f
			}

			n, err := ics.Encode(out, c.String("name"), sessions, e.binder, time.Now())
			if err != nil {
				return fmt.Errorf("failed to encode calendar: %w", err)
			}
			e.logger.Info("Exported sessions.", "events", n, "skipped", len(sessions)-n)
			return nil
		},
	}
}

func googleAuthCommand() *cli.Command {
	return &cli.Command{
		Name:  "google-auth",
		Usage: "Authenticate with a Google account so sync can publish to Google Calendar.",
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			e.logger.Info("Starting Google authentication flow.")

			oauthConfig, err := google.GetOAuthConfigForAuthFlow(e.cfg.Google.ClientID, e.cfg.Google.ClientSecret)
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			token, err := google.TokenFromWeb(c.Context, oauthConfig, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			if err := google.SaveToken(e.cfg.Google.TokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			e.logger.Info("Successfully authenticated and saved token.", "file", e.cfg.Google.TokenFile)
			return nil
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Mirror the session collection into the configured calendars.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "once", Usage: "Run the sync cycle once and exit."},
			&cli.BoolFlag{Name: "dry-run", Usage: "Log what would be synced without making changes."},
			&cli.IntFlag{Name: "watch", Value: 300, Usage: "Run sync every N seconds. Overrides --once."},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			logger := e.logger

			if c.Bool("dry-run") {
				logger.Info("Performing a dry run. No changes will be made.")
			}

			var targets []syncer.Target
			if dav := e.cfg.CalDAV; dav.Enabled() {
				t, err := caldav.NewTarget(c.Context, logger, e.binder, dav.Endpoint, dav.Username, dav.Password, dav.CalendarName)
				if err != nil {
					return fmt.Errorf("failed to create caldav target: %w", err)
				}
				targets = append(targets, t)
			}
			if g := e.cfg.Google; g.Enabled() {
				t, err := google.NewTarget(c.Context, logger, e.binder, g.ClientID, g.ClientSecret, g.TokenFile, g.CalendarID)
				if err != nil {
					return fmt.Errorf("failed to create google target: %w", err)
				}
				targets = append(targets, t)
			}
			if len(targets) == 0 {
				return errors.New("no calendar configured: set CALDAV_* or GOOGLE_CALENDAR_ID")
			}
			logger.Info("Initialized publishing targets.", "count", len(targets))

			s, err := syncer.NewSyncer(logger, e.store, targets, e.cfg.SyncStateFile, c.Bool("dry-run"))
			if err != nil {
				return fmt.Errorf("failed to create syncer: %w", err)
			}

			// --watch flag takes precedence
			if c.IsSet("watch") {
				interval := time.Duration(c.Int("watch")) * time.Second
				if interval <= 0 {
					return fmt.Errorf("--watch must be positive, got %d", c.Int("watch"))
				}
				logger.Info("Starting watcher.", "interval", interval)
				ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
				defer stop()
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					if err := s.Sync(ctx); err != nil {
						logger.Error("Sync cycle failed", "error", err)
					}
					select {
					case <-ctx.Done():
						logger.Info("Watcher stopped.")
						return nil
					case <-ticker.C:
					}
				}
			}

			// --once is the default behavior if --watch is not set
			logger.Info("Running a single sync cycle.")
			if err := s.Sync(c.Context); err != nil {
				return fmt.Errorf("single sync cycle failed: %w", err)
			}
			return nil
		},
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
