package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jcodog/marble-api/internal/marble"
)

type layerView struct {
	WarpFrequency [2]float64 `json:"warp_frequency"`
	VeinFrequency [2]float64 `json:"vein_frequency"`
	WarpSeed      int        `json:"warp_seed"`
	VeinSeed      int        `json:"vein_seed"`
	Opacity       float64    `json:"opacity"`
	Gamma         float64    `json:"gamma"`
	Displacement  float64    `json:"displacement"`
	Blur          float64    `json:"blur"`
}

type paramsView struct {
	SeedKey       string            `json:"seed_key"`
	Seed          string            `json:"seed"`
	Color         marble.Color      `json:"color"`
	Frame         marble.Dimensions `json:"frame"`
	Output        marble.Dimensions `json:"output"`
	BaseFrequency float64           `json:"base_frequency"`
	Octaves       int               `json:"octaves"`
	SeedOffset    int               `json:"seed_offset"`
	Rotation      float64           `json:"rotation"`
	VeinContrast  float64           `json:"vein_contrast"`
	Pulses        int               `json:"pulses"`
	PulseWidth    float64           `json:"pulse_width"`
	Table         string            `json:"table"`
	Layers        []layerView       `json:"layers"`
}

func (c *CLI) paramsCommand() *cobra.Command {
	var flags requestFlags

	cmd := &cobra.Command{
		Use:   "params",
		Short: "Print the derived pattern parameters as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := flags.request(c.now())
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(describe(marble.Generate(req)), "", "  ")
			if err != nil {
				return fmt.Errorf("encode params: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
	flags.register(cmd)
	return cmd
}

func describe(doc marble.Document) paramsView {
	p := doc.Params
	view := paramsView{
		SeedKey:       doc.Request.SeedKey(),
		Seed:          fmt.Sprintf("%08x", doc.Seed),
		Color:         doc.Request.Color,
		Frame:         doc.Frame,
		Output:        doc.Output,
		BaseFrequency: p.BaseFrequency,
		Octaves:       p.Octaves,
		SeedOffset:    p.SeedOffset,
		Rotation:      p.Rotation,
		VeinContrast:  p.VeinContrast,
		Pulses:        p.Pulses,
		PulseWidth:    p.PulseWidth,
		Table:         p.Table.String(),
	}
	for _, l := range p.Layers {
		view.Layers = append(view.Layers, layerView(l))
	}
	return view
}
