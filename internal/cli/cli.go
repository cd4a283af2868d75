// Package cli implements the offline marble command-line interface.
package cli

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/jcodog/marble-api/internal/marble"
)

const appName = "marble"

const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
	now    func() time.Time
}

func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: log.NewWithOptions(w, log.Options{
			Prefix:          appName,
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           level,
		}),
		now: time.Now,
	}
}

func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Generate deterministic marble patterns",
		Long:         `marble renders the same seeded marble patterns as the HTTP API, writing SVG or PNG files locally.`,
		SilenceUsage: true,
	}

	root.AddCommand(c.renderCommand())
	root.AddCommand(c.paramsCommand())
	return root
}

// requestFlags are shared by every command that builds a marble request.
type requestFlags struct {
	color      string
	datetime   string
	username   string
	size       string
	resolution string
	sharp      bool
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.color, "color", "c", string(marble.DefaultColor), "color preset")
	cmd.Flags().StringVarP(&f.datetime, "datetime", "d", "", "ISO-8601 timestamp (default: now)")
	cmd.Flags().StringVarP(&f.username, "username", "u", "", "username mixed into the seed")
	cmd.Flags().StringVarP(&f.size, "size", "s", string(marble.DefaultSize), "aspect ratio: 16:9, 9:16 or 1:1")
	cmd.Flags().StringVarP(&f.resolution, "resolution", "r", string(marble.DefaultResolution), "native, 2k, 4k or 8k")
	cmd.Flags().BoolVar(&f.sharp, "sharp", false, "apply the sharpening convolution")
}

func (f requestFlags) request(now time.Time) (marble.Request, error) {
	var (
		req marble.Request
		err error
	)
	if req.Color, err = marble.ParseColor(f.color); err != nil {
		return req, err
	}
	if req.Size, err = marble.ParseSize(f.size); err != nil {
		return req, err
	}
	if req.Resolution, err = marble.ParseResolution(f.resolution); err != nil {
		return req, err
	}

	req.Time = now
	if f.datetime != "" {
		if req.Time, err = marble.ParseDatetime(f.datetime); err != nil {
			return req, err
		}
	}
	req.Username = f.username
	req.Sharp = f.sharp
	return req, nil
}
