package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/noisefield/internal/driver"
	"github.com/MeKo-Tech/noisefield/internal/palette"
	"github.com/MeKo-Tech/noisefield/internal/sshview"
)

var sshCmd = &cobra.Command{
	Use:   "ssh",
	Short: "Serve an animated noise view over SSH",
	Long: `SSH starts an SSH server. Every session gets its own animation of the 3D
field drawn with half-block characters and sized to the terminal.

Keys: n next noise kind, +/- octaves, ]/[ frequency, l legacy mode, q quit.`,
	RunE: runSSH,
}

func init() {
	rootCmd.AddCommand(sshCmd)

	sshCmd.Flags().String("addr", "127.0.0.1:2222", "Listen address (host:port)")
	sshCmd.Flags().String("host-key", "", "Host key path, created if missing (default: <output-dir>/ssh_host_ed25519)")
	sshCmd.Flags().Float64("speed", driver.DefaultSpeed, "Depth advance per second")
	sshCmd.Flags().Duration("interval", driver.DefaultInterval, "Time between frames")
	sshCmd.Flags().Int("max-size", 96, "Largest slice edge regardless of terminal size")
	sshCmd.Flags().String("ramp", "gray", "Colour ramp")

	bindFlags(sshCmd, []flagBinding{
		{"ssh.addr", "addr"},
		{"ssh.host_key", "host-key"},
		{"ssh.speed", "speed"},
		{"ssh.interval", "interval"},
		{"ssh.max_size", "max-size"},
		{"ssh.ramp", "ramp"},
	})
}

func runSSH(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	params, err := noiseParams()
	if err != nil {
		return err
	}
	ramp, err := palette.Lookup(viper.GetString("ssh.ramp"))
	if err != nil {
		return err
	}
	hostKey := viper.GetString("ssh.host_key")
	if hostKey == "" {
		hostKey = filepath.Join(viper.GetString("output-dir"), "ssh_host_ed25519")
	}
	if err := os.MkdirAll(filepath.Dir(hostKey), 0o700); err != nil {
		return err
	}

	srv, err := sshview.New(sshview.Config{
		Addr:        viper.GetString("ssh.addr"),
		HostKeyPath: hostKey,
		Params:      params,
		Speed:       viper.GetFloat64("ssh.speed"),
		Interval:    viper.GetDuration("ssh.interval"),
		MaxSize:     viper.GetInt("ssh.max_size"),
		Ramp:        ramp,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("ssh shutdown failed", "error", err, "sessions", srv.Sessions())
		}
	}()

	return srv.ListenAndServe()
}
