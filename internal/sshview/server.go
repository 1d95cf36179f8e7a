// Package sshview serves an animated noise field to SSH terminals.
package sshview

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gliderlabs/ssh"

	"github.com/MeKo-Tech/noisefield/internal/driver"
	"github.com/MeKo-Tech/noisefield/internal/noise"
	"github.com/MeKo-Tech/noisefield/internal/palette"
)

// Config configures the SSH viewer.
type Config struct {
	Addr        string
	HostKeyPath string
	Params      noise.Params
	Speed       float64
	Interval    time.Duration
	// MaxSize caps the slice edge regardless of the terminal size.
	MaxSize int
	Ramp    *palette.Ramp
	Clock   clock.Clock
	Logger  *slog.Logger
}

// Server accepts SSH sessions and runs one animator per session.
type Server struct {
	cfg      Config
	srv      *ssh.Server
	logger   *slog.Logger
	sessions atomic.Int64
}

// New validates cfg, creates the host key if missing and prepares the
// listener.
func New(cfg Config) (*Server, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 96
	}
	if cfg.Speed == 0 {
		cfg.Speed = driver.DefaultSpeed
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	s := &Server{cfg: cfg, logger: cfg.Logger}
	s.srv = &ssh.Server{
		Addr:    cfg.Addr,
		Handler: s.handleSession,
	}
	if cfg.HostKeyPath != "" {
		if err := EnsureHostKey(cfg.HostKeyPath); err != nil {
			return nil, fmt.Errorf("host key: %w", err)
		}
		if err := s.srv.SetOption(ssh.HostKeyFile(cfg.HostKeyPath)); err != nil {
			return nil, fmt.Errorf("set host key: %w", err)
		}
	}
	return s, nil
}

func (s *Server) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// ListenAndServe blocks until the server is closed.
func (s *Server) ListenAndServe() error {
	s.log().Info("SSH viewer listening", "addr", s.cfg.Addr)
	err := s.srv.ListenAndServe()
	if errors.Is(err, ssh.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting sessions and waits for open ones to end.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Sessions returns the number of connected viewers.
func (s *Server) Sessions() int64 { return s.sessions.Load() }

func (s *Server) handleSession(sess ssh.Session) {
	ptyReq, winCh, ok := sess.Pty()
	if !ok {
		fmt.Fprintln(sess, "Error: PTY required. Use: ssh -t ...")
		_ = sess.Exit(1)
		return
	}

	s.sessions.Add(1)
	defer s.sessions.Add(-1)

	user := sess.User()
	log := s.log().With("user", user, "remote", sess.RemoteAddr().String())
	log.Info("Viewer connected", "width", ptyReq.Window.Width, "height", ptyReq.Window.Height)

	windows := make(chan window, 1)
	go func() {
		defer close(windows)
		for win := range winCh {
			select {
			case windows <- window{win.Width, win.Height}:
			default:
				// drop stale size, keep the newest
				select {
				case <-windows:
				default:
				}
				windows <- window{win.Width, win.Height}
			}
		}
	}()

	err := s.stream(sess.Context(), sess, sess, window{ptyReq.Window.Width, ptyReq.Window.Height}, windows)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errQuit) && !errors.Is(err, io.EOF) {
		log.Warn("Viewer stream ended", "error", err)
	}
	log.Info("Viewer disconnected")
}

// EnsureHostKey writes a new ed25519 host key to path unless one exists.
func EnsureHostKey(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	slog.Info("Generating new host key", "path", path)

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	keyBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := pem.Encode(f, &pem.Block{Type: "PRIVATE KEY", Bytes: keyBytes}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
