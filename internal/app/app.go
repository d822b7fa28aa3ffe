// Package app wires the client together: config, session, REST, realtime
// channel, synchronizer and renderer, with one defined teardown path.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/achuthan-s/oasis-chat-client/config"
	"github.com/achuthan-s/oasis-chat-client/internal/auth"
	"github.com/achuthan-s/oasis-chat-client/internal/cache"
	"github.com/achuthan-s/oasis-chat-client/internal/channel"
	"github.com/achuthan-s/oasis-chat-client/internal/domain"
	"github.com/achuthan-s/oasis-chat-client/internal/rest"
	"github.com/achuthan-s/oasis-chat-client/internal/session"
	"github.com/achuthan-s/oasis-chat-client/internal/view"
	"github.com/achuthan-s/oasis-chat-client/pkg/logger"
	"github.com/achuthan-s/oasis-chat-client/service"
)

// App holds every component of the running client.
type App struct {
	cfg      config.Config
	logger   logger.Logger
	store    *session.Store
	api      *rest.Client
	cache    *cache.MessageCache
	ch       channel.Channel
	sync     *service.RoomSync
	renderer *view.Terminal

	in  io.Reader
	out io.Writer
}

// NewApp builds the pieces that exist before authentication. in/out are the
// terminal streams (stdin/stdout in production).
func NewApp(cfg config.Config, in io.Reader, out io.Writer) *App {
	logg := logger.NewLogger(cfg.LogLevel).WithModule("app")
	return &App{
		cfg:      cfg,
		logger:   logg,
		store:    session.NewStore(cfg.SessionFile),
		api:      rest.NewClient(cfg.ServerURL),
		renderer: view.NewTerminal(out, true),
		in:       in,
		out:      out,
	}
}

// Run is the whole client lifecycle: resume or establish a session, enter
// the chat view, process terminal input until logout, quit or ctx
// cancellation.
func (a *App) Run(ctx context.Context) error {
	ctx = logger.NewContext(ctx, a.logger)

	sess, err := a.store.Load()
	if errors.Is(err, session.ErrNoSession) {
		// Absent or malformed stored session: re-prompt, never crash.
		sess, err = a.authenticate(ctx)
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return err
	}
	a.api.SetToken(sess.Token)

	if err := a.activate(ctx, sess); err != nil {
		return err
	}
	defer a.teardown(false)

	return a.inputLoop(ctx, sess)
}

// authenticate runs the login/register prompt until a session exists. Server
// rejections and network failures are shown inline and the form stays
// usable.
func (a *App) authenticate(ctx context.Context) (domain.Session, error) {
	controller := auth.NewController(a.api, a.store, logger.FromContext(ctx))
	scanner := bufio.NewScanner(a.in)

	for {
		kind, creds, err := promptCredentials(scanner, a.out)
		if err != nil {
			return domain.Session{}, err
		}

		sess, err := controller.Submit(ctx, kind, creds)
		if err == nil {
			return sess, nil
		}
		if ctx.Err() != nil {
			return domain.Session{}, ctx.Err()
		}
		fmt.Fprintln(a.out, auth.Describe(err))
	}
}

func promptCredentials(scanner *bufio.Scanner, out io.Writer) (auth.Kind, auth.Credentials, error) {
	readLine := func(prompt string) (string, error) {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		return strings.TrimSpace(scanner.Text()), nil
	}

	choice, err := readLine("login or register? [login] ")
	if err != nil {
		return "", auth.Credentials{}, err
	}
	kind := auth.KindLogin
	if strings.EqualFold(choice, string(auth.KindRegister)) {
		kind = auth.KindRegister
	}

	var creds auth.Credentials
	if creds.Username, err = readLine("username: "); err != nil {
		return "", auth.Credentials{}, err
	}
	if kind == auth.KindRegister {
		if creds.Email, err = readLine("email: "); err != nil {
			return "", auth.Credentials{}, err
		}
	}
	if creds.Password, err = readLine("password: "); err != nil {
		return "", auth.Credentials{}, err
	}
	return kind, creds, nil
}

// activate opens the cache and channel, starts the synchronizer, loads the
// room list and auto-joins the first room.
func (a *App) activate(ctx context.Context, sess domain.Session) error {
	msgCache, err := cache.Open(a.cfg.CacheDir)
	if err != nil {
		// Cache trouble degrades history fallback, nothing more.
		a.logger.Errorf("message cache unavailable: %v", err)
	}
	a.cache = msgCache

	a.ch, err = a.buildChannel(sess.Token)
	if err != nil {
		return err
	}

	a.sync = service.NewRoomSync(
		sess.User,
		a.ch,
		a.api,
		a.cache,
		a.renderer,
		a.logger,
		time.Duration(a.cfg.TypingIdleMS)*time.Millisecond,
	)
	if err := a.sync.Start(); err != nil {
		return fmt.Errorf("failed to open realtime channel: %w", err)
	}

	rooms, err := a.api.Rooms(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rooms: %w", err)
	}
	a.sync.SetRooms(rooms)
	if len(rooms) > 0 {
		a.sync.Join(rooms[0])
	}
	return nil
}

func (a *App) buildChannel(token string) (channel.Channel, error) {
	switch a.cfg.Transport {
	case config.TransportNATS:
		return channel.NewNATS(a.cfg.NATSURL, a.logger), nil
	default:
		return channel.NewWebsocket(a.cfg.ServerURL, token, a.logger)
	}
}

// inputLoop reads terminal lines until quit, logout or ctx cancellation.
func (a *App) inputLoop(ctx context.Context, sess domain.Session) error {
	fmt.Fprintf(a.out, "Signed in as %s. /rooms lists rooms, /join N switches, /logout, /quit.\n",
		view.Sanitize(sess.User.Username))

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := a.dispatch(line)
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
		}
	}
}

// dispatch handles one input line. Non-command lines are chat messages.
func (a *App) dispatch(line string) (quit bool, err error) {
	cmd, arg := parseCommand(line)
	switch cmd {
	case "/quit":
		return true, nil

	case "/logout":
		a.teardown(true)
		return true, nil

	case "/rooms":
		snap := a.sync.View()
		a.renderer.RoomList(snap.Rooms, snap.Current.ID)

	case "/join":
		snap := a.sync.View()
		idx, convErr := strconv.Atoi(arg)
		if convErr != nil || idx < 1 || idx > len(snap.Rooms) {
			fmt.Fprintln(a.out, "usage: /join N (see /rooms)")
			return false, nil
		}
		a.sync.Join(snap.Rooms[idx-1])

	case "/encrypt":
		a.sync.InputChanged()
		a.sync.Send(arg, true)

	default:
		// Line input is the closest the terminal gets to a keystroke.
		a.sync.InputChanged()
		a.sync.Send(line, false)
	}
	return false, nil
}

func parseCommand(line string) (cmd, arg string) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return "", line
	}
	cmd, arg, _ = strings.Cut(trimmed, " ")
	return cmd, strings.TrimSpace(arg)
}

// teardown is the single exit path: the synchronizer leaves its room and the
// channel closes; on logout the stored session is cleared as well. The cache
// is always closed last.
func (a *App) teardown(logout bool) {
	if a.sync != nil {
		if err := a.sync.Close(); err != nil {
			a.logger.Errorf("channel close failed: %v", err)
		}
		a.sync = nil
	}
	if logout {
		if err := a.store.Clear(); err != nil {
			a.logger.Errorf("failed to clear session: %v", err)
		} else {
			a.logger.Infof("logged out")
		}
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Errorf("cache close failed: %v", err)
	}
	a.cache = nil
}
