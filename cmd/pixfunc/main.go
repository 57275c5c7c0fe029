// Command pixfunc runs small image pipelines under different schedules.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/pixfunc"
)

type globalFlags struct {
	config  string
	workers int
	trace   bool
	verbose bool
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var g globalFlags
	root := &cobra.Command{
		Use:          "pixfunc",
		Short:        "Realize image pipelines under different schedules",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if g.verbose {
				level = slog.LevelDebug
			}
			pixfunc.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&g.config, "config", "", "YAML realizer configuration")
	pf.IntVar(&g.workers, "workers", 0, "worker pool size (0 uses the config or GOMAXPROCS)")
	pf.BoolVar(&g.trace, "trace", false, "print every stored value")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newGradientCmd(&g),
		newSchedulesCmd(&g),
		newBrightenCmd(&g),
		newBlurCmd(&g),
		newLoopNestCmd(),
	)
	return root
}

// realizer builds a Realizer from the config file and flags. Flags win.
func (g *globalFlags) realizer(out io.Writer) (*pixfunc.Realizer, error) {
	cfg := pixfunc.DefaultConfig()
	if g.config != "" {
		var err error
		if cfg, err = pixfunc.LoadConfig(g.config); err != nil {
			return nil, err
		}
	}
	if g.workers > 0 {
		cfg.Workers = g.workers
	}
	if g.trace {
		cfg.TraceStores = true
	}
	return pixfunc.NewRealizer(pixfunc.WithConfig(cfg), pixfunc.WithOutput(out))
}

func newGradientCmd(g *globalFlags) *cobra.Command {
	var (
		width, height int
		output        string
	)
	cmd := &cobra.Command{
		Use:   "gradient",
		Short: "Realize gradient(x, y) = x + y and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := g.realizer(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer r.Close()

			f, _, _, err := newGradient()
			if err != nil {
				return err
			}
			b, err := r.Realize(f, pixfunc.Extents(width, height))
			if err != nil {
				return err
			}
			if output != "" {
				return pixfunc.SaveImage(b, output)
			}
			w := cmd.OutOrStdout()
			for y := range height {
				for x := range width {
					fmt.Fprintf(w, "%4d", b.Int(x, y))
				}
				fmt.Fprintln(w)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&width, "width", 8, "region width")
	cmd.Flags().IntVar(&height, "height", 8, "region height")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write a PNG instead of printing")
	return cmd
}

func newSchedulesCmd(g *globalFlags) *cobra.Command {
	var width, height int
	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "Realize the gradient under every schedule in the gallery",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := g.realizer(io.Discard)
			if err != nil {
				return err
			}
			defer r.Close()

			w := cmd.OutOrStdout()
			p := message.NewPrinter(language.English)
			region := pixfunc.Extents(width, height)
			var want []int32
			for _, s := range gallery {
				f, x, y, err := newGradient()
				if err != nil {
					return err
				}
				s.apply(f, x, y)
				if err := f.Err(); err != nil {
					return fmt.Errorf("schedule %s: %w", s.name, err)
				}

				start := time.Now()
				b, err := r.Realize(f, region)
				if err != nil {
					return fmt.Errorf("schedule %s: %w", s.name, err)
				}
				elapsed := time.Since(start)

				got := pixfunc.Data[int32](b)
				if want == nil {
					want = got
				} else if !slices.Equal(want, got) {
					return fmt.Errorf("schedule %s: result differs from %s", s.name, gallery[0].name)
				}

				fmt.Fprintf(w, "== %s: %s\n%s", s.name, s.about, f.LoopNest())
				p.Fprintf(w, "%d values in %v\n\n", region.Size(), elapsed.Round(time.Microsecond))
			}
			p.Fprintf(w, "%d schedules agree over %d x %d\n", len(gallery), width, height)
			return nil
		},
	}
	cmd.Flags().IntVar(&width, "width", 350, "region width")
	cmd.Flags().IntVar(&height, "height", 250, "region height")
	return cmd
}

func newBrightenCmd(g *globalFlags) *cobra.Command {
	var factor float64
	cmd := &cobra.Command{
		Use:   "brighten <input> <output>",
		Short: "Multiply every sample of an image by a factor",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if factor < 0 {
				return errors.New("factor must not be negative")
			}
			in, err := pixfunc.LoadImage(args[0])
			if err != nil {
				return err
			}
			f, err := newBrighten(in, factor)
			if err != nil {
				return err
			}
			r, err := g.realizer(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer r.Close()

			out, err := r.Realize(f, in.Region())
			if err != nil {
				return err
			}
			return pixfunc.SaveImage(out, args[1])
		},
	}
	cmd.Flags().Float64Var(&factor, "factor", 1.5, "brightness factor")
	return cmd
}

func newBlurCmd(g *globalFlags) *cobra.Command {
	var clamp bool
	cmd := &cobra.Command{
		Use:   "blur <input> <output>",
		Short: "Apply a 3x3 box blur",
		Long: "Apply a separable 3x3 box blur. Without --clamp the output is " +
			"the input inset by one pixel on every side.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := pixfunc.LoadImage(args[0])
			if err != nil {
				return err
			}
			f, err := newBlur(in, clamp)
			if err != nil {
				return err
			}
			r, err := g.realizer(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer r.Close()

			region := in.Region()
			if !clamp {
				if in.Width() < 3 || in.Height() < 3 {
					return fmt.Errorf("%s is too small to blur without --clamp", args[0])
				}
				region[0] = pixfunc.Range{Min: 1, Extent: in.Width() - 2}
				region[1] = pixfunc.Range{Min: 1, Extent: in.Height() - 2}
			}
			out, err := r.Realize(f, region)
			if err != nil {
				return err
			}
			return pixfunc.SaveImage(out, args[1])
		},
	}
	cmd.Flags().BoolVar(&clamp, "clamp", false, "clamp reads to the image edge and keep the full frame")
	return cmd
}

func newLoopNestCmd() *cobra.Command {
	var (
		name          string
		width, height int
	)
	cmd := &cobra.Command{
		Use:   "loopnest",
		Short: "Print the loop nest a gallery schedule produces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := findSchedule(name)
			if err != nil {
				return err
			}
			f, x, y, err := newGradient()
			if err != nil {
				return err
			}
			s.apply(f, x, y)
			if err := f.Err(); err != nil {
				return err
			}
			nest, err := pixfunc.Lower(f, pixfunc.Extents(width, height))
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprint(w, f.LoopNest())
			fmt.Fprintln(w)
			fmt.Fprint(w, nest)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "schedule", "default", "gallery schedule name")
	cmd.Flags().IntVar(&width, "width", 8, "region width")
	cmd.Flags().IntVar(&height, "height", 8, "region height")
	return cmd
}
