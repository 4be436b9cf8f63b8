package app

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/fastygo/magiclink/api/client"
	"github.com/fastygo/magiclink/domain"
	"github.com/fastygo/magiclink/ui/loginform"
)

// ErrUsage is returned for unknown commands or bad arguments.
var ErrUsage = domain.NewError(domain.ErrCodeInvalid, "usage")

var errNotLoggedIn = domain.NewError(domain.ErrCodeUnauthorized, "not logged in")

const usage = `usage: client [flags] <command> [args]

commands:
  login [email]          send a magic link (registers unknown emails)
  token <token>          store the token from the magic link
  whoami                 show the logged in account
  logout                 forget the stored token and user
  change-email <email>   change the email of the logged in account
  users [-page N] [-limit N]
                         list users
  user <id>              show one user
  profiles               list the profiles holding a session
  fetch [-X METHOD] [-q key=value]... [-d body] <path>
                         send an authenticated JSON request
`

type command func(ctx context.Context, args []string) error

// Usage writes the command list.
func (a *App) Usage() {
	fmt.Fprint(a.errOut, usage)
}

// Run executes the command named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.Usage()
		return ErrUsage
	}

	commands := map[string]command{
		"login":        a.login,
		"token":        a.token,
		"whoami":       a.whoami,
		"logout":       a.logout,
		"change-email": a.changeEmail,
		"users":        a.users,
		"user":         a.user,
		"profiles":     a.profiles,
		"fetch":        a.fetch,
	}
	cmd, ok := commands[args[0]]
	if !ok {
		a.Usage()
		return ErrUsage
	}
	a.logger.Debug("running command", zap.String("command", args[0]), zap.String("profile", a.session.Profile()))
	return cmd(ctx, args[1:])
}

func (a *App) newForm() *loginform.Form {
	return loginform.New(a.auth, a.session,
		loginform.WithNotifier(loginform.NewWriterNotifier(a.out)),
		loginform.WithLocale(a.cfg.Locale),
		loginform.WithLogger(a.logger),
		loginform.WithOnSuccess(func() {
			fmt.Fprintln(a.out, "Open the link from the email, then run: client token <token>")
		}),
	)
}

func (a *App) login(ctx context.Context, args []string) error {
	form := a.newForm()
	if err := form.Load(ctx); err != nil {
		return err
	}
	if form.State().View() == loginform.ViewAuthenticated {
		return form.Render(a.out)
	}

	email := ""
	if len(args) > 0 {
		email = args[0]
	} else {
		if err := form.Render(a.out); err != nil {
			return err
		}
		fmt.Fprint(a.out, form.EmailPrompt())
		line, err := bufio.NewReader(a.in).ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		email = strings.TrimSpace(line)
	}

	form.SetEmail(email)
	reqCtx, cancel := a.adapter.Attach(ctx)
	defer cancel()

	if err := form.Submit(reqCtx); err != nil {
		_ = form.Render(a.out)
		return err
	}
	if email == "" {
		return domain.ErrEmptyEmail
	}
	return nil
}

func (a *App) token(ctx context.Context, args []string) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		a.Usage()
		return ErrUsage
	}
	if _, err := a.session.SetToken(ctx, strings.TrimSpace(args[0])); err != nil {
		return err
	}
	return a.whoami(ctx, nil)
}

func (a *App) whoami(ctx context.Context, _ []string) error {
	token, err := a.session.Token(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return errNotLoggedIn
	}

	reqCtx, cancel := a.adapter.Attach(ctx)
	defer cancel()

	user, err := a.profile.Me(reqCtx, token)
	if err != nil {
		if domain.IsUnauthorized(err) {
			_ = a.session.Logout(ctx)
		}
		return err
	}
	if err := a.session.SetUser(ctx, user); err != nil {
		return err
	}

	form := a.newForm()
	if err := form.Load(ctx); err != nil {
		return err
	}
	return form.Render(a.out)
}

func (a *App) logout(ctx context.Context, _ []string) error {
	if err := a.newForm().Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) changeEmail(ctx context.Context, args []string) error {
	if len(args) != 1 {
		a.Usage()
		return ErrUsage
	}
	token, err := a.session.Token(ctx)
	if err != nil {
		return err
	}

	reqCtx, cancel := a.adapter.Attach(ctx)
	defer cancel()

	if err := a.auth.ChangeEmail(reqCtx, token, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Email change to %s requested\n", args[0])
	return nil
}

func (a *App) users(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("users", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	page := fs.Int("page", 0, "page number")
	limit := fs.Int("limit", 0, "page size")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}

	token, err := a.session.Token(ctx)
	if err != nil {
		return err
	}

	reqCtx, cancel := a.adapter.Attach(ctx)
	defer cancel()

	list, err := a.profile.ListUsers(reqCtx, token, *page, *limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL")
	for _, u := range list.Users {
		fmt.Fprintf(tw, "%s\t%s\n", u.ID, u.Email)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if list.Total > 0 {
		fmt.Fprintf(a.out, "page %d, %d of %d users\n", list.Page, len(list.Users), list.Total)
	}
	return nil
}

func (a *App) user(ctx context.Context, args []string) error {
	if len(args) != 1 {
		a.Usage()
		return ErrUsage
	}
	token, err := a.session.Token(ctx)
	if err != nil {
		return err
	}

	reqCtx, cancel := a.adapter.Attach(ctx)
	defer cancel()

	u, err := a.profile.Get(reqCtx, token, args[0])
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\t%s\n", u.ID)
	if u.HasEmail() {
		fmt.Fprintf(tw, "EMAIL\t%s\n", u.Email)
	}
	if u.Role != "" {
		fmt.Fprintf(tw, "ROLE\t%s\n", u.Role)
	}
	if u.Status != "" {
		fmt.Fprintf(tw, "STATUS\t%s\n", u.Status)
	}
	return tw.Flush()
}

func (a *App) profiles(ctx context.Context, _ []string) error {
	names, err := a.sessions.Profiles(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(a.out, "No stored sessions")
		return nil
	}
	for _, name := range names {
		mark := " "
		if name == a.session.Profile() {
			mark = "*"
		}
		fmt.Fprintf(a.out, "%s %s\n", mark, name)
	}
	return nil
}

// queryFlag collects repeated -q key=value flags.
type queryFlag struct {
	params client.Params
}

func (q *queryFlag) String() string {
	if q == nil || len(q.params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q.params))
	for k := range q.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func (q *queryFlag) Set(value string) error {
	key, val, ok := strings.Cut(value, "=")
	if !ok || key == "" {
		return fmt.Errorf("query parameter %q must be key=value", value)
	}
	q.params.Add(key, val)
	return nil
}

func (a *App) fetch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	method := fs.String("X", "GET", "HTTP method")
	body := fs.String("d", "", "request body")
	query := &queryFlag{params: client.Params{}}
	fs.Var(query, "q", "query parameter key=value, repeatable")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}
	if fs.NArg() != 1 {
		a.Usage()
		return ErrUsage
	}

	token, err := a.session.Token(ctx)
	if err != nil {
		return err
	}

	reqCtx, cancel := a.adapter.Attach(ctx)
	defer cancel()

	result, err := a.api.FetchJSON(token)(reqCtx, fs.Arg(0), *method, query.params, *body)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}

	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
