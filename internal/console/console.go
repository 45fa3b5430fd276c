// Package console implements the interactive admin console view. It drives
// the session manager and the directory syncer over a line-based terminal
// dialog: a login view while logged out, and a main view (admin or self
// service, depending on the role) while logged in. Any authentication
// failure mid-session drops back to the login view with the username
// prefilled, mirroring the original web console's behavior.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/acctl/acctl/internal/api"
	"github.com/acctl/acctl/internal/directory"
	"github.com/acctl/acctl/internal/passcheck"
	"github.com/acctl/acctl/internal/session"
)

// PasswordReader reads a secret without echoing it. The console falls back
// to a plain line read when none is injected (useful for tests and pipes).
type PasswordReader func(prompt string) (string, error)

// Console is the interactive view. It is single-threaded: all state changes
// happen from the command loop, never concurrently.
type Console struct {
	manager *session.Manager
	syncer  *directory.Syncer
	client  *api.Client
	logger  *slog.Logger

	in           *bufio.Reader
	out          io.Writer
	readPassword PasswordReader
}

// Options carries the injectable I/O endpoints of the console.
type Options struct {
	In           io.Reader
	Out          io.Writer
	ReadPassword PasswordReader
}

// New creates a console over the given session manager and directory syncer.
func New(manager *session.Manager, syncer *directory.Syncer, client *api.Client, logger *slog.Logger, opts Options) *Console {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	}
	c := &Console{
		manager: manager,
		syncer:  syncer,
		client:  client,
		logger:  logger,
		in:      bufio.NewReader(opts.In),
		out:     opts.Out,
	}
	c.readPassword = opts.ReadPassword
	if c.readPassword == nil {
		c.readPassword = func(prompt string) (string, error) {
			fmt.Fprint(c.out, prompt)
			return c.readLine()
		}
	}
	return c
}

// result of one view pass.
type viewResult int

const (
	viewQuit viewResult = iota
	viewLogout
	viewAuthFailure
)

// Run starts the console: restore the persisted session if any, then loop
// between the login and main views until the user quits or input ends.
func (c *Console) Run(ctx context.Context) error {
	sess, ok, err := c.manager.Restore(ctx)
	if err != nil {
		return err
	}

	for {
		if !ok {
			sess, ok, err = c.loginView(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return nil // input ended while logged out
			}
		}

		res, err := c.mainView(ctx, sess)
		if err != nil {
			return err
		}
		switch res {
		case viewQuit:
			return nil
		case viewLogout, viewAuthFailure:
			ok = false
		}
	}
}

// loginView prompts for credentials until a login succeeds or input ends.
// The returned bool is false when the user gave up (EOF).
func (c *Console) loginView(ctx context.Context) (session.Session, bool, error) {
	for {
		prefill := c.manager.LastUsername(ctx)
		prompt := "Username: "
		if prefill != "" {
			prompt = fmt.Sprintf("Username [%s]: ", prefill)
		}
		fmt.Fprint(c.out, prompt)
		username, err := c.readLine()
		if err != nil {
			return session.Session{}, false, nil
		}
		if username == "" {
			username = prefill
		}
		if username == "" {
			continue
		}

		password, err := c.readPassword("Password: ")
		if err != nil {
			return session.Session{}, false, nil
		}

		sess, err := c.manager.Login(ctx, username, password)
		if err != nil {
			if errors.Is(err, session.ErrInvalidCredentials) {
				c.errorBanner("Error logging in", "username and/or password are wrong!")
			} else {
				c.errorBanner("Error logging in", err.Error())
			}
			continue
		}
		fmt.Fprintf(c.out, "Logged in as %s (%s)\n", sess.Username, roleLabel(sess.IsAdmin))
		return sess, true, nil
	}
}

// mainView runs the command loop for an authenticated session. Admin
// sessions get the directory view; others get the self-service view.
func (c *Console) mainView(ctx context.Context, sess session.Session) (viewResult, error) {
	if sess.IsAdmin {
		if res, done := c.checkErr(c.refreshAndRender(ctx)); done {
			return res, nil
		}
	} else {
		fmt.Fprintf(c.out, "Account %s, password last changed %s\n",
			sess.Username, directory.FormatTimestamp(sess.LastChanged))
	}

	for {
		fmt.Fprint(c.out, "acctl> ")
		line, err := c.readLine()
		if err != nil {
			return viewQuit, nil
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]

		switch cmd {
		case "help":
			c.printHelp(sess.IsAdmin)
		case "whoami":
			cur, ok := c.manager.Current()
			if !ok {
				fmt.Fprintln(c.out, "not logged in")
				continue
			}
			fmt.Fprintf(c.out, "%s (%s), password last changed %s\n",
				cur.Username, roleLabel(cur.IsAdmin), directory.FormatTimestamp(cur.LastChanged))
		case "logout":
			if err := c.manager.Logout(ctx); err != nil {
				c.errorBanner("Logout", err.Error())
			}
			return viewLogout, nil
		case "quit", "exit":
			return viewQuit, nil
		case "passwd":
			target := sess.Username
			if len(args) > 0 {
				target = args[0]
			}
			if res, done := c.checkErr(c.changePassword(ctx, sess, target)); done {
				return res, nil
			}
		case "list":
			if !sess.IsAdmin {
				c.errorBanner("list", "only admins can list the directory")
				continue
			}
			if res, done := c.checkErr(c.refreshAndRender(ctx)); done {
				return res, nil
			}
		case "add":
			if !sess.IsAdmin {
				c.errorBanner("add", "only admins can add users")
				continue
			}
			if len(args) < 1 {
				c.errorBanner("add", "usage: add <username> [admin]")
				continue
			}
			admin := len(args) > 1 && args[1] == "admin"
			if res, done := c.checkErr(c.addUser(ctx, args[0], admin)); done {
				return res, nil
			}
		case "remove":
			if !sess.IsAdmin {
				c.errorBanner("remove", "only admins can remove users")
				continue
			}
			if len(args) != 1 {
				c.errorBanner("remove", "usage: remove <username>")
				continue
			}
			if res, done := c.checkErr(c.removeUser(ctx, args[0])); done {
				return res, nil
			}
		case "role":
			if !sess.IsAdmin {
				c.errorBanner("role", "only admins can change roles")
				continue
			}
			if len(args) != 1 {
				c.errorBanner("role", "usage: role <username>")
				continue
			}
			if res, done := c.checkErr(c.toggleRole(ctx, args[0])); done {
				return res, nil
			}
		default:
			c.errorBanner("console", fmt.Sprintf("unknown command %q, try 'help'", cmd))
		}
	}
}

// checkErr routes an operation error. Authentication failures end the main
// view (the session manager has already torn the session down via the
// client hook); everything else is shown as a banner and the view continues.
func (c *Console) checkErr(err error) (viewResult, bool) {
	if err == nil {
		return 0, false
	}
	if errors.Is(err, api.ErrUnauthorized) {
		c.errorBanner("Authentication failure", err.Error())
		return viewAuthFailure, true
	}
	c.errorBanner("API Error", err.Error())
	return 0, false
}

func (c *Console) refreshAndRender(ctx context.Context) error {
	snap, err := c.syncer.Refresh(ctx)
	if err != nil {
		return err
	}
	snap.Render(c.out)
	return nil
}

func (c *Console) addUser(ctx context.Context, name string, admin bool) error {
	password, confirm, err := c.promptNewPassword(name)
	if err != nil {
		return nil // input ended, drop back to the prompt
	}
	username, err := c.syncer.AddUser(ctx, name, password, confirm, admin)
	if errors.Is(err, directory.ErrPasswordMismatch) {
		c.errorBanner("Add User", err.Error())
		return nil
	}
	if err != nil {
		return err
	}
	c.successBanner("Add User", "successfully added user "+username)
	c.syncer.Snapshot().Render(c.out)
	return nil
}

func (c *Console) removeUser(ctx context.Context, name string) error {
	username, err := c.syncer.RemoveUser(ctx, name)
	if err != nil {
		return err
	}
	c.successBanner("Remove User", "successfully removed user "+username)
	c.syncer.Snapshot().Render(c.out)
	return nil
}

func (c *Console) toggleRole(ctx context.Context, name string) error {
	newState, err := c.syncer.ToggleRole(ctx, name)
	if errors.Is(err, directory.ErrUnknownUser) {
		c.errorBanner("Role", err.Error())
		return nil
	}
	if err != nil {
		return err
	}
	c.successBanner("Role", fmt.Sprintf("%s is now %s", name, roleLabel(newState)))
	c.syncer.Snapshot().Render(c.out)
	return nil
}

// changePassword updates a password. Admins go through the syncer (session
// authorization plus re-sync); non-admins may only change their own.
func (c *Console) changePassword(ctx context.Context, sess session.Session, target string) error {
	if !sess.IsAdmin && target != sess.Username {
		c.errorBanner("Password Update", "only admins can change other users' passwords")
		return nil
	}

	password, confirm, err := c.promptNewPassword(target)
	if err != nil {
		return nil
	}

	if sess.IsAdmin {
		username, err := c.syncer.UpdatePassword(ctx, target, password, confirm)
		if errors.Is(err, directory.ErrPasswordMismatch) {
			c.errorBanner("Password Update", err.Error())
			return nil
		}
		if err != nil {
			return err
		}
		c.successBanner("Password Update", "successfully updated password for "+username)
		c.syncer.Snapshot().Render(c.out)
		return nil
	}

	// Self-service path: no directory access, no re-sync.
	if password == "" || password != confirm {
		c.errorBanner("Password Update", directory.ErrPasswordMismatch.Error())
		return nil
	}
	username, err := c.client.UpdatePassword(ctx, c.manager.Token(), target, password)
	if err != nil {
		return err
	}
	c.manager.TouchLastChanged(ctx, time.Now())
	c.successBanner("Password Update", "successfully updated password for "+username)
	return nil
}

// promptNewPassword reads a new password and its confirmation, showing the
// strength estimate in between. The estimate is advisory only.
func (c *Console) promptNewPassword(username string) (password, confirm string, err error) {
	password, err = c.readPassword("New password: ")
	if err != nil {
		return "", "", err
	}
	if password != "" {
		res := passcheck.Score(password, username)
		fmt.Fprintf(c.out, "This is a %s password (estimated crack-time: %s)\n", res.Label, res.CrackTimeDisplay)
	}
	confirm, err = c.readPassword("Retype password: ")
	if err != nil {
		return "", "", err
	}
	return password, confirm, nil
}

func (c *Console) printHelp(admin bool) {
	fmt.Fprintln(c.out, "Commands:")
	if admin {
		fmt.Fprintln(c.out, "  list              show the user directory")
		fmt.Fprintln(c.out, "  add <user> [admin] add a user")
		fmt.Fprintln(c.out, "  remove <user>     remove a user")
		fmt.Fprintln(c.out, "  role <user>       toggle the admin role")
		fmt.Fprintln(c.out, "  passwd [user]     change a password")
	} else {
		fmt.Fprintln(c.out, "  passwd            change your password")
	}
	fmt.Fprintln(c.out, "  whoami            show the current session")
	fmt.Fprintln(c.out, "  logout            log out")
	fmt.Fprintln(c.out, "  quit              leave the console")
}

func (c *Console) errorBanner(heading, message string) {
	fmt.Fprintf(c.out, "!! %s: %s\n", heading, message)
}

func (c *Console) successBanner(heading, message string) {
	fmt.Fprintf(c.out, "ok %s: %s\n", heading, message)
}

func (c *Console) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func roleLabel(admin bool) string {
	if admin {
		return "Admin"
	}
	return "User"
}
