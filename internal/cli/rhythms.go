package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/synheart/synheart-monitor/internal/rhythm"
)

var rhythmsJSON bool

var rhythmsCmd = &cobra.Command{
	Use:   "rhythms",
	Short: "List the rhythm catalog",
	Long:  `Lists every rhythm a patient can be switched to, with its rate range.`,
	RunE:  runRhythms,
}

func init() {
	rhythmsCmd.Flags().BoolVar(&rhythmsJSON, "json", false, "Print as JSON")
}

type rhythmRow struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MinRate    int    `json:"minRate"`
	MaxRate    int    `json:"maxRate"`
	AtrialRate int    `json:"atrialRate,omitempty"`
	Lethal     bool   `json:"lethal"`
}

func runRhythms(cmd *cobra.Command, args []string) error {
	defs := rhythm.All()
	rows := make([]rhythmRow, 0, len(defs))
	for _, d := range defs {
		rows = append(rows, rhythmRow{
			ID:         d.ID,
			Name:       d.Name,
			MinRate:    d.MinRate,
			MaxRate:    d.MaxRate,
			AtrialRate: d.AtrialRate,
			Lethal:     d.IsLethal,
		})
	}

	if rhythmsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	fmt.Println("Available rhythms:")
	fmt.Println()
	for _, r := range rows {
		lethal := ""
		if r.Lethal {
			lethal = "lethal"
		}
		fmt.Printf("  %-26s %-30s %3d-%-3d bpm  %s\n", r.ID, r.Name, r.MinRate, r.MaxRate, lethal)
	}
	fmt.Println()
	return nil
}
