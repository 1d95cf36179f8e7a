package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/noisefield/internal/driver"
	"github.com/MeKo-Tech/noisefield/internal/render"
	"github.com/MeKo-Tech/noisefield/internal/terminal"
	"github.com/MeKo-Tech/noisefield/internal/worker"
)

var animateCmd = &cobra.Command{
	Use:   "animate",
	Short: "Animate slices through the 3D field",
	Long: `Animate moves a size x size window through the depth axis of the 3D field.
Depth advances by --speed per second of frame time.

By default frames are written as a numbered PNG sequence. Frame time is
simulated, so the output does not depend on how fast the machine is.
With --terminal the animation plays in real time in the current terminal
until interrupted or --frames frames were shown.`,
	RunE: runAnimate,
}

func init() {
	rootCmd.AddCommand(animateCmd)

	animateCmd.Flags().Int("frames", 60, "Number of frames (0 with --terminal runs until interrupted)")
	animateCmd.Flags().Int("size", 128, "Slice edge in pixels")
	animateCmd.Flags().Float64("speed", driver.DefaultSpeed, "Depth advance per second")
	animateCmd.Flags().Duration("interval", driver.DefaultInterval, "Time between frames")
	animateCmd.Flags().Float64("x", 0, "X coordinate of the window")
	animateCmd.Flags().Float64("y", 0, "Y coordinate of the window")
	animateCmd.Flags().Float64("start-depth", 0, "Depth of the first frame")
	animateCmd.Flags().Bool("alpha", false, "Copy the intensity into the alpha channel")
	animateCmd.Flags().Bool("label", false, "Stamp depth and frame time into each frame")
	animateCmd.Flags().IntP("workers", "w", 0, "Number of parallel encoders (default: number of CPUs)")
	animateCmd.Flags().Bool("progress", true, "Show a progress bar")
	animateCmd.Flags().String("frames-dir", "", "Directory for the PNG sequence (default: <output-dir>/frames)")
	animateCmd.Flags().Bool("terminal", false, "Play in the terminal instead of writing PNGs")
	addImageFlags(animateCmd, "animate")

	bindFlags(animateCmd, []flagBinding{
		{"animate.frames", "frames"},
		{"animate.size", "size"},
		{"animate.speed", "speed"},
		{"animate.interval", "interval"},
		{"animate.x", "x"},
		{"animate.y", "y"},
		{"animate.start_depth", "start-depth"},
		{"animate.alpha", "alpha"},
		{"animate.label", "label"},
		{"animate.workers", "workers"},
		{"animate.progress", "progress"},
		{"animate.frames_dir", "frames-dir"},
		{"animate.terminal", "terminal"},
	})
}

func runAnimate(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	params, err := noiseParams()
	if err != nil {
		return err
	}
	frames := viper.GetInt("animate.frames")
	if frames < 0 {
		return fmt.Errorf("--frames must be >= 0, got %d", frames)
	}
	live := viper.GetBool("animate.terminal")

	cfg := driver.Config{
		Params:     params,
		Size:       viper.GetInt("animate.size"),
		Speed:      viper.GetFloat64("animate.speed"),
		Interval:   viper.GetDuration("animate.interval"),
		OriginX:    viper.GetFloat64("animate.x"),
		OriginY:    viper.GetFloat64("animate.y"),
		StartDepth: viper.GetFloat64("animate.start_depth"),
		Alpha:      viper.GetBool("animate.alpha"),
		Logger:     logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if live {
		cfg.Clock = clock.New()
		anim, err := driver.NewAnimator(cfg)
		if err != nil {
			return err
		}
		err = playTerminal(ctx, cmd.OutOrStdout(), anim, frames)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	if frames == 0 {
		return fmt.Errorf("--frames must be > 0 when writing a PNG sequence")
	}
	settings, err := imageSettingsFrom("animate")
	if err != nil {
		return err
	}
	mock := clock.NewMock()
	cfg.Clock = mock
	anim, err := driver.NewAnimator(cfg)
	if err != nil {
		return err
	}
	return writeSequence(ctx, anim, mock, frameSequence{
		frames:   frames,
		interval: viper.GetDuration("animate.interval"),
		dir:      framesDir(),
		settings: settings,
		label:    viper.GetBool("animate.label"),
		workers:  viper.GetInt("animate.workers"),
		progress: viper.GetBool("animate.progress"),
	})
}

func framesDir() string {
	if dir := viper.GetString("animate.frames_dir"); dir != "" {
		return dir
	}
	return filepath.Join(viper.GetString("output-dir"), "frames")
}

type frameSequence struct {
	frames   int
	interval time.Duration
	dir      string
	settings imageSettings
	label    bool
	workers  int
	progress bool
}

// writeSequence steps the animator on a simulated clock and encodes frames
// in batches on the worker pool. Frames are sampled in order; only encoding
// runs in parallel.
func writeSequence(ctx context.Context, anim *driver.Animator, mock *clock.Mock, seq frameSequence) error {
	if seq.interval <= 0 {
		seq.interval = driver.DefaultInterval
	}
	if seq.workers <= 0 {
		seq.workers = runtime.NumCPU()
	}
	if err := os.MkdirAll(seq.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create frames dir: %w", err)
	}

	logger.Info("Rendering animation",
		"frames", seq.frames,
		"interval", seq.interval,
		"workers", seq.workers,
		"dir", seq.dir,
		"params", anim.Params().String(),
	)

	progress := worker.NewProgress(seq.frames, "frames", seq.progress)
	var done, failed int
	pool := worker.New(worker.Config{
		Workers: seq.workers,
		Logger:  logger,
		OnProgress: func(completed, _, batchFailed int) {
			progress.Update(done+completed, seq.frames, failed+batchFailed)
		},
	})

	batch := seq.workers * 2
	for start := 0; start < seq.frames; start += batch {
		n := min(batch, seq.frames-start)
		tasks := make([]worker.Task, 0, n)
		for range n {
			mock.Add(seq.interval)
			frame, err := anim.Step(ctx)
			if err != nil {
				progress.Done()
				return err
			}
			tasks = append(tasks, frameTask(frame, seq))
		}

		for _, r := range pool.Run(ctx, tasks) {
			done++
			if r.Err != nil {
				failed++
				logger.Error("Frame failed", "frame", r.Task.Name, "error", r.Err)
			}
		}
		if err := ctx.Err(); err != nil {
			progress.Done()
			return err
		}
	}
	progress.Done()
	logger.Info(progress.Summary())

	if failed > 0 {
		return fmt.Errorf("%d frames failed to render", failed)
	}
	return nil
}

func frameTask(f driver.Frame, seq frameSequence) worker.Task {
	name := fmt.Sprintf("frame_%05d.png", f.Index)
	return worker.Task{
		Name: name,
		Run: func(ctx context.Context) (string, error) {
			img, err := seq.settings.draw(f.Pixels, f.Size, f.Params.Gain)
			if err != nil {
				return "", err
			}
			if seq.label {
				render.DrawLabel(img, frameLabel(f))
			}
			path := filepath.Join(seq.dir, name)
			if err := render.WritePNG(path, img, seq.settings.compression); err != nil {
				return "", err
			}
			return path, nil
		},
	}
}

func frameLabel(f driver.Frame) string {
	return fmt.Sprintf("#%d z=%.3f t=%s", f.Index, f.Depth, f.Elapsed.Round(time.Millisecond))
}

func playTerminal(ctx context.Context, out io.Writer, anim *driver.Animator, frames int) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	settings, err := imageSettingsFrom("animate")
	if err != nil {
		return err
	}
	enc := terminal.NewEncoder(settings.ramp, anim.Params().Gain)

	io.WriteString(out, terminal.HideCursor()+terminal.ClearScreen())
	defer io.WriteString(out, terminal.Reset+terminal.ShowCursor()+"\n")

	errDone := errors.New("frame limit reached")
	err = anim.Run(ctx, func(f driver.Frame) error {
		body, err := enc.Encode(f.Intensities(), f.Size)
		if err != nil {
			return err
		}
		var sb strings.Builder
		sb.WriteString(terminal.MoveTo(1, 1))
		sb.WriteString(body)
		sb.WriteString(terminal.ClearLine())
		sb.WriteString(frameLabel(f))
		if _, err := io.WriteString(out, sb.String()); err != nil {
			return err
		}
		if frames > 0 && f.Index+1 >= frames {
			cancel(errDone)
		}
		return nil
	})
	if errors.Is(context.Cause(ctx), errDone) {
		logger.Debug("Animation finished", "frames", frames, "skipped_ticks", anim.Skipped())
		return nil
	}
	return err
}
