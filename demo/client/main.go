// Command imapc-demo is a runnable transport harness around the
// sans-I/O imapc.Engine, proving the engine's pieces compose into a
// working session end to end — the client-side counterpart of the
// teacher's demo/basic and demo/complete (which wire imap.NewServer()
// with its option functions into a running server). §6 scopes the
// socket/TLS transport out of the engine itself; this is that external
// collaborator.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/alienscience/goimapc"
	"github.com/alienscience/goimapc/utf7"
)

var (
	version = "version-undefined"
	commit  = "commit-undefined"
)

func main() {
	cfgPath := flag.String("config", "imapc-demo.toml", "path to the connection config file")
	idle := flag.Bool("idle", false, "after selecting the mailbox, IDLE instead of exiting")
	printVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *printVersion {
		fmt.Printf("imapc-demo %s (%s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := LoadConfig(*cfgPath)
	if err != nil {
		imapc.Logger.Fatal().Err(err).Msg("failed to load config")
	}
	imapc.Logger.Info().Str("config", cfg.String()).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *idle); err != nil {
		imapc.Logger.Fatal().Err(err).Msg("session failed")
	}
}

func run(ctx context.Context, cfg *Config, idle bool) error {
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	conn, err := net.DialTimeout("tcp", addr, 15*time.Second)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if cfg.TLS {
		tlsConn := tls.Client(conn, &tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: cfg.InsecureSkipTLSVerify,
		})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return fmt.Errorf("tls handshake: %w", err)
		}
		conn = tlsConn
	}

	d := &driver{conn: conn, engine: imapc.NewEngine(), cfg: cfg}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.readPump(gctx) })
	g.Go(func() error { return d.run(gctx, idle) })

	err = g.Wait()
	conn.Close()
	if err != nil && gctx.Err() != nil {
		return nil // shut down cleanly on context cancellation
	}
	return err
}

// driver owns the single-threaded engine-driving loop: readPump only
// ever feeds bytes into inbound; everything that mutates the Engine
// (Feed, the command methods, Outbound) runs on the run goroutine,
// honoring §5's single-logical-task requirement.
type driver struct {
	conn    net.Conn
	engine  *imapc.Engine
	cfg     *Config
	inbound chan []byte

	loginSent   bool
	selectSent  bool
	idleSent    bool
	idleSession *imapc.IdleSession
}

// readPump blocks on conn.Read and forwards chunks to inbound. It is
// the only goroutine that touches the connection's read side,
// mirroring the read-goroutine half of lorduskordus-aerion's IDLE
// implementation, which this engine's IdleSession/Dispatcher replace
// on the write side with plain queued bytes instead of a channel
// close.
func (d *driver) readPump(ctx context.Context) error {
	d.inbound = make(chan []byte, 16)
	defer close(d.inbound)
	buf := make([]byte, 32*1024)
	for {
		n, err := d.conn.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case d.inbound <- chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err != nil {
			return err
		}
	}
}

func (d *driver) run(ctx context.Context, idle bool) error {
	done := make(chan error, 1)

	d.engine.OnBye(func(text string) {
		imapc.Logger.Warn().Str("text", text).Msg("server sent BYE")
	})
	d.engine.OnMailboxUpdate(func(status imapc.MailboxStatus) {
		imapc.Logger.Debug().
			Str("mailbox", status.Name).
			Uint32("exists", status.Exists).
			Uint32("recent", status.Recent).
			Msg("mailbox status")
	})
	d.engine.OnFetch(func(item *imapc.FetchItem) {
		imapc.Logger.Info().Int32("seq", item.SeqNum).Msg("fetch")
	})

	encodedMailbox, err := utf7.Encode(d.cfg.Mailbox)
	if err != nil {
		return fmt.Errorf("encode mailbox name: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-done:
			return err
		case chunk, ok := <-d.inbound:
			if !ok {
				return nil
			}
			if err := d.engine.Feed(chunk); err != nil {
				return fmt.Errorf("protocol error: %w", err)
			}
			if err := d.afterFeed(encodedMailbox, idle, done); err != nil {
				return err
			}
			if err := d.drainOutbound(); err != nil {
				return err
			}
		}
	}
}

// afterFeed reacts to the engine's state once per Feed call, issuing
// the next command in the LOGIN -> SELECT -> (IDLE | LOGOUT) sequence
// as soon as the prior one's preconditions are met. The teacher's
// ServerGreeting/NotAuthenticated entry actions (§4.6) are what this
// mirrors on the client side: each state transition triggers the next
// outbound command rather than a handler table.
func (d *driver) afterFeed(mailbox string, idle bool, done chan<- error) error {
	switch d.engine.State() {
	case imapc.NotAuthenticated:
		if d.loginSent {
			return nil
		}
		d.loginSent = true
		return d.engine.Login(d.cfg.Username, d.cfg.Password, func(err error) {
			if err != nil {
				done <- fmt.Errorf("login: %w", err)
			}
		})
	case imapc.Authenticated:
		if d.selectSent {
			return nil
		}
		d.selectSent = true
		return d.engine.Select(mailbox, func(status imapc.MailboxStatus, err error) {
			if err != nil {
				done <- fmt.Errorf("select %s: %w", mailbox, err)
				return
			}
			if !idle {
				d.engine.Logout(func(err error) { done <- err })
			}
		})
	case imapc.Selected:
		if idle && !d.idleSent {
			d.idleSent = true
			session, err := d.engine.Idle(func(err error) {
				if err != nil {
					done <- fmt.Errorf("idle: %w", err)
				}
			})
			if err != nil {
				return fmt.Errorf("idle: %w", err)
			}
			d.idleSession = session
		}
	}
	return nil
}

func (d *driver) drainOutbound() error {
	for {
		data, ok := d.engine.Outbound()
		if !ok {
			return nil
		}
		if _, err := d.conn.Write(data); err != nil {
			return err
		}
	}
}
