// Command client is a line-oriented development client for the relay.
// It reconnects on its own, asking only for the messages it missed and
// restoring its login with the last resume token.
package main

import (
	"bufio"
	"chat-relay/domain"
	"chat-relay/protocol"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

type Config struct {
	RelayAddr       string        `envconfig:"RELAY_ADDR" default:"localhost:8080"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"WARN"`
	Colours         bool          `envconfig:"RELAY_COLOURS" default:"true"`
	MaxReconnectGap time.Duration `envconfig:"RELAY_MAX_RECONNECT_GAP" default:"10s"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	color.Enable = config.Colours

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	st := &state{}
	for {
		ws, err := dial(ctx, config, st, log)
		if err != nil {
			if ctx.Err() != nil {
				return exitOK, nil
			}
			return exitRuntime, err
		}
		err = st.serve(ctx, ws, lines, os.Stdout)
		_ = ws.Close()
		if ctx.Err() != nil || errors.Is(err, io.EOF) {
			return exitOK, nil
		}
		fmt.Println(color.Yellow.Sprint("Connection lost, reconnecting..."))
		log.Debug("Connection lost", "error", err)
	}
}

func readLines(r io.Reader, lines chan<- string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
	close(lines)
}

// dial connects with exponential backoff, resuming after the last message
// seen and replaying the resume token when there is one.
func dial(ctx context.Context, config Config, st *state, log *slog.Logger) (*websocket.Conn, error) {
	operation := func() (*websocket.Conn, error) {
		ws, _, err := websocket.DefaultDialer.DialContext(ctx, st.url(config.RelayAddr), nil)
		return ws, err
	}
	ws, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(&backoff.ExponentialBackOff{
			InitialInterval:     250 * time.Millisecond,
			RandomizationFactor: backoff.DefaultRandomizationFactor,
			Multiplier:          backoff.DefaultMultiplier,
			MaxInterval:         config.MaxReconnectGap,
		}),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug("Dial failed", "address", config.RelayAddr, "retry_in", next, "error", err)
		}))
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", config.RelayAddr, err)
	}
	if token := st.resumeToken(); token != "" {
		if err = ws.WriteMessage(websocket.TextMessage, []byte("/resume "+token)); err != nil {
			_ = ws.Close()
			return nil, err
		}
	}
	return ws, nil
}

// state survives reconnects.
type state struct {
	mu    sync.Mutex
	last  domain.MessageID
	token string
}

func (s *state) url(addr string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	if s.last > 0 {
		u.RawQuery = url.Values{"since": {strconv.FormatUint(uint64(s.last), 10)}}.Encode()
	}
	return u.String()
}

func (s *state) resumeToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// serve pumps stdin to the socket and frames to out until either side ends.
// io.EOF means the user closed stdin.
func (s *state) serve(ctx context.Context, ws *websocket.Conn, lines <-chan string, out io.Writer) error {
	errc := make(chan error, 1)
	go func() {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				errc <- err
				return
			}
			line, err := s.render(data)
			if err != nil {
				continue
			}
			if line != "" {
				fmt.Fprintln(out, line)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			return err
		case line, ok := <-lines:
			if !ok {
				return io.EOF
			}
			if err := ws.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return err
			}
		}
	}
}

// render formats one frame and records what must survive a reconnect.
func (s *state) render(frame []byte) (string, error) {
	msg, notice, err := protocol.Decode(frame)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg != nil {
		if msg.ID <= s.last {
			return "", nil
		}
		s.last = msg.ID
		return fmt.Sprintf("[%s] %s: %s",
			msg.CreatedAt.Local().Format(time.TimeOnly),
			color.Cyan.Sprint(msg.Author),
			msg.Content), nil
	}

	if notice == nil {
		return "", nil
	}
	switch notice.Kind {
	case domain.NoticeToken:
		s.token = notice.Text
		return color.Gray.Sprint("(session saved, it will be resumed after a reconnect)"), nil
	case domain.NoticeError:
		return color.Red.Sprint(notice.Text), nil
	case domain.NoticeUsage:
		return color.Yellow.Sprint(notice.Text), nil
	default:
		return color.Green.Sprint(notice.Text), nil
	}
}
