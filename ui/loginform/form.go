// Package loginform holds the state and rendering of the magic-link login
// form. The form is UI glue: it calls the login sequence, reports the
// outcome and clears the session when anything goes wrong.
package loginform

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/message"

	"github.com/fastygo/magiclink/domain"
)

// LoginService runs the request-link / register sequence.
type LoginService interface {
	Login(ctx context.Context, email string) (*domain.AccessToken, error)
}

// Session is the token and user storage shared with the rest of the client.
type Session interface {
	User(ctx context.Context) (*domain.User, error)
	Logout(ctx context.Context) error
}

// View is the screen the form currently shows.
type View int

const (
	ViewAnonymous View = iota
	ViewSubmitting
	ViewAuthenticated
)

func (v View) String() string {
	switch v {
	case ViewSubmitting:
		return "submitting"
	case ViewAuthenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// State is a snapshot of the form.
type State struct {
	User      *domain.User
	Email     string
	Error     string
	IsLoading bool
}

// View derives the displayed screen from the state.
func (s State) View() View {
	switch {
	case s.User != nil:
		return ViewAuthenticated
	case s.IsLoading:
		return ViewSubmitting
	default:
		return ViewAnonymous
	}
}

type Form struct {
	login     LoginService
	session   Session
	notifier  Notifier
	onSuccess func()
	printer   *message.Printer
	logger    *zap.Logger

	mu    sync.Mutex
	state State
}

type Option func(*Form)

// WithNotifier sets where success notifications go.
func WithNotifier(n Notifier) Option {
	return func(f *Form) {
		if n != nil {
			f.notifier = n
		}
	}
}

// WithOnSuccess registers a callback invoked after a successful submit.
func WithOnSuccess(fn func()) Option {
	return func(f *Form) {
		f.onSuccess = fn
	}
}

func WithLocale(locale string) Option {
	return func(f *Form) {
		f.printer = NewPrinter(locale)
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(f *Form) {
		if logger != nil {
			f.logger = logger
		}
	}
}

func New(login LoginService, session Session, opts ...Option) *Form {
	f := &Form{
		login:    login,
		session:  session,
		notifier: NopNotifier{},
		printer:  NewPrinter("en"),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Load reads the current user from the session.
func (f *Form) Load(ctx context.Context) error {
	user, err := f.session.User(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.state.User = user
	f.mu.Unlock()
	return nil
}

func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Form) SetEmail(email string) {
	f.mu.Lock()
	f.state.Email = email
	f.mu.Unlock()
}

// Submit sends the typed email through the login sequence. It returns
// domain.ErrSubmitInProgress while a previous submit is still running and
// does nothing for an empty email. On failure the error text is kept for
// display, the session is logged out and the error is returned.
func (f *Form) Submit(ctx context.Context) error {
	f.mu.Lock()
	if f.state.IsLoading {
		f.mu.Unlock()
		return domain.ErrSubmitInProgress
	}
	f.state.IsLoading = true
	email := strings.TrimSpace(f.state.Email)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.state.Email = ""
		f.state.IsLoading = false
		f.mu.Unlock()
	}()

	if email == "" {
		return nil
	}

	if _, err := f.login.Login(ctx, email); err != nil {
		f.fail(ctx, err)
		return err
	}

	f.mu.Lock()
	f.state.Error = ""
	f.mu.Unlock()

	f.notifier.Notify(Notification{
		Title:       text(f.printer, msgSuccessTitle),
		Description: text(f.printer, msgSuccessMessage, email),
		Status:      StatusSuccess,
		Duration:    9 * time.Second,
		Closable:    true,
	})
	if f.onSuccess != nil {
		f.onSuccess()
	}
	return nil
}

// Logout clears the user and the stored token.
func (f *Form) Logout(ctx context.Context) error {
	f.mu.Lock()
	f.state.User = nil
	f.mu.Unlock()
	return f.session.Logout(ctx)
}

func (f *Form) fail(ctx context.Context, err error) {
	f.mu.Lock()
	f.state.Error = text(f.printer, msgError, err.Error())
	f.mu.Unlock()

	f.logger.Warn("login failed", zap.Error(err))
	if logoutErr := f.Logout(ctx); logoutErr != nil {
		f.logger.Error("logout after failed login", zap.Error(logoutErr))
	}
}

// Render writes the text form for the current state.
func (f *Form) Render(w io.Writer) error {
	s := f.State()
	p := f.printer

	var b strings.Builder
	if s.User != nil {
		name := s.User.Email
		if !s.User.HasEmail() {
			name = s.User.ID
		}
		fmt.Fprintln(&b, text(p, msgUser, name))
		fmt.Fprintf(&b, "[%s]\n", text(p, msgLogout))
		_, err := io.WriteString(w, b.String())
		return err
	}

	fmt.Fprintln(&b, text(p, msgLogin))
	if s.Error != "" {
		fmt.Fprintf(&b, "! %s\n", s.Error)
	}
	fmt.Fprintf(&b, "%s: %s\n", text(p, msgEmail), s.Email)
	if s.IsLoading {
		fmt.Fprintf(&b, "[%s]\n", text(p, msgLoading))
	} else {
		fmt.Fprintf(&b, "[%s]\n", text(p, msgSubmit))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// EmailPrompt is the label shown before reading an email from a terminal.
func (f *Form) EmailPrompt() string {
	return text(f.printer, msgEmail) + ": "
}
