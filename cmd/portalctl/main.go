package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	auth "github.com/gram-panchayat/go-portal-auth"
	"github.com/gram-panchayat/go-portal-auth/activitymap"
	"github.com/gram-panchayat/go-portal-auth/client"
)

const usage = `usage: portalctl <command> [flags]

commands:
  login            citizen login with mobile OTP
  admin -u USER    staff login, password read from stdin
  whoami           show the stored session
  profile          fetch the citizen profile with the stored token
  logout           clear the stored session
  routes PATH      check PATH against the portal route table
`

type App struct {
	cfg    auth.Options
	logger *glog.BaseLogger
	store  *auth.SessionStore
	creds  auth.CredentialClient
	closer func() error
	in     *bufio.Reader
	out    io.Writer
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	lgr := newLogger(os.Getenv("PORTAL_DEBUG") != "")

	cfg, err := auth.LoadOptions()
	if err != nil {
		lgr.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg, lgr, os.Stdin, os.Stdout)
	if err != nil {
		lgr.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, auth.Notice(err))
		lgr.Debug("command failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(debug bool) *glog.BaseLogger {
	if debug {
		return glog.NewLogger(
			glog.WithLoggerTypePretty(),
			glog.WithLevel(glog.Trace),
			glog.WithName("portalctl"),
			glog.WithAddSource(false),
			glog.WithRichErrorHandler(errors.ToSlogAttributes),
		)
	}
	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithName("portalctl"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)
}

// NewApp wires the store, its persister and the credential client
func NewApp(ctx context.Context, cfg auth.Options, lgr *glog.BaseLogger, in io.Reader, out io.Writer) (*App, error) {
	app := &App{
		cfg:    cfg,
		logger: lgr,
		in:     bufio.NewReader(in),
		out:    out,
	}

	persister, closer, err := OpenPersister(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.closer = closer

	app.store = auth.NewSessionStore(persister,
		auth.WithSessionLogger(app.GetLogger("session")),
		auth.WithSessionActivitySink(auditSink(app.GetLogger("audit"))),
	)
	if err := app.store.Load(ctx); err != nil {
		app.GetLogger("session").Warn("could not read stored session", "error", err)
	}

	credentials := client.NewCredentials(cfg, client.WithLogger(app.GetLogger("client")))
	app.creds = client.WithRetry(credentials, client.PolicyFromConfig(cfg), app.GetLogger("retry"))

	return app, nil
}

func (a *App) Close() {
	if a.closer != nil {
		if err := a.closer(); err != nil {
			a.logger.Warn("failed to close session backend", "error", err)
		}
	}
}

func (a *App) Run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return a.Login(ctx)
	case "admin":
		fs := flag.NewFlagSet("admin", flag.ContinueOnError)
		username := fs.String("u", "", "admin username")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return a.Admin(ctx, *username)
	case "whoami":
		return a.WhoAmI()
	case "profile":
		return a.Profile(ctx)
	case "logout":
		return a.Logout(ctx)
	case "routes":
		if len(args) == 0 {
			return auth.NewValidationError("PATH_REQUIRED", "routes needs a PATH")
		}
		return a.Routes(args[0])
	default:
		fmt.Fprint(a.out, usage)
		return auth.NewValidationError("UNKNOWN_COMMAND", "unknown command "+cmd)
	}
}

// Login drives the citizen flow from the terminal. ":restart" starts over,
// ":change" edits the mobile number and ":admin" switches to staff login.
func (a *App) Login(ctx context.Context) error {
	flow := auth.NewLoginFlow(a.creds, a.store,
		auth.WithFlowLogger(a.GetLogger("login")),
		auth.WithFlowActivitySink(auditSink(a.GetLogger("audit"))),
	)
	defer flow.Dispose()

	for {
		attempt := flow.Snapshot()
		if attempt.Step == auth.StepAuthenticated {
			return a.WhoAmI()
		}

		prompt := map[auth.Step]string{
			auth.StepMobileEntry:  "Mobile number",
			auth.StepOtpEntry:     "OTP",
			auth.StepRegistration: "Full name",
			auth.StepAdminEntry:   "Username",
		}[attempt.Step]

		if attempt.Step == auth.StepOtpEntry && attempt.DevCode != "" {
			fmt.Fprintf(a.out, "(dev OTP: %s)\n", attempt.DevCode)
		}

		line, err := a.prompt(prompt)
		if err != nil {
			return err
		}

		switch line {
		case ":restart":
			attempt, err = flow.StartOver(ctx)
		case ":change":
			attempt, err = flow.ChangeMobile(ctx)
		case ":admin":
			attempt, err = flow.SwitchToAdmin(ctx)
		case ":citizen":
			attempt, err = flow.SwitchToCitizen(ctx)
		default:
			attempt, err = a.submit(ctx, flow, attempt.Step, line)
		}

		if err != nil && attempt.Notice == "" {
			fmt.Fprintln(a.out, auth.Notice(err))
		}
		if attempt.Notice != "" {
			fmt.Fprintln(a.out, attempt.Notice)
		}
	}
}

func (a *App) submit(ctx context.Context, flow *auth.LoginFlow, step auth.Step, line string) (auth.LoginAttempt, error) {
	switch step {
	case auth.StepMobileEntry:
		return flow.SubmitMobile(ctx, line)
	case auth.StepOtpEntry:
		return flow.SubmitCode(ctx, line)
	case auth.StepRegistration:
		return flow.SubmitName(ctx, line)
	case auth.StepAdminEntry:
		password, err := a.prompt("Password")
		if err != nil {
			return flow.Snapshot(), err
		}
		return flow.SubmitAdmin(ctx, line, password)
	default:
		return flow.Snapshot(), auth.ErrInvalidStep
	}
}

func (a *App) Admin(ctx context.Context, username string) error {
	if username == "" {
		var err error
		if username, err = a.prompt("Username"); err != nil {
			return err
		}
	}
	password, err := a.prompt("Password")
	if err != nil {
		return err
	}

	flow := auth.NewAdminFlow(a.creds, a.store,
		auth.WithFlowLogger(a.GetLogger("admin")),
		auth.WithFlowActivitySink(auditSink(a.GetLogger("audit"))),
	)
	defer flow.Dispose()

	if _, err := flow.Submit(ctx, username, password); err != nil {
		return err
	}
	return a.WhoAmI()
}

func (a *App) WhoAmI() error {
	session, ok := a.store.Current()
	if !ok {
		fmt.Fprintln(a.out, "not logged in")
		return nil
	}

	switch id := session.Identity.(type) {
	case auth.CitizenIdentity:
		fmt.Fprintf(a.out, "citizen %s (%s)\n", id.DisplayName(), id.DisplayMobile())
	case auth.AdminIdentity:
		fmt.Fprintf(a.out, "%s %s (%s)\n", id.Role(), id.DisplayName(), id.Username)
	}

	if claims, err := session.Claims(); err == nil && !claims.ExpiresAt.IsZero() {
		state := "valid until"
		if claims.Expired(time.Now()) {
			state = "expired at"
		}
		fmt.Fprintf(a.out, "token %s %s\n", state, claims.ExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}

func (a *App) Profile(ctx context.Context) error {
	requester := client.NewAuthorized(a.cfg, a.store,
		client.WithAuthorizedLogger(a.GetLogger("client")),
		client.OnSessionInvalid(func(_ context.Context, loginPath string) {
			fmt.Fprintf(a.out, "session expired, log in again (%s)\n", loginPath)
		}),
	)

	profile, err := requester.Profile(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, print.MaybePrettyJSON(profile))
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.store.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "logged out")
	return nil
}

func (a *App) Routes(path string) error {
	nav := auth.NewNavigator(a.store, auth.PortalRoutes(a.cfg.GetLoginPath()))
	verdict := nav.Navigate(path)
	if verdict.Decision == auth.DecisionRedirect {
		fmt.Fprintf(a.out, "%s: redirect to %s (%s)\n", path, verdict.RedirectTo, verdict.Reason)
		return nil
	}
	fmt.Fprintf(a.out, "%s: %s\n", path, verdict.Decision)
	return nil
}

func (a *App) prompt(label string) (string, error) {
	fmt.Fprintf(a.out, "%s: ", label)
	line, err := a.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func auditSink(logger glog.Logger) auth.ActivitySink {
	return auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
		record := activitymap.Normalize(event)
		logger.Debug("activity",
			"verb", record.Verb,
			"actor", record.ActorID,
			"object", record.ObjectID,
			"metadata", print.MaybePrettyJSON(record.Metadata),
		)
		return nil
	})
}
