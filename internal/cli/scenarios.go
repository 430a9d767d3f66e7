package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/synheart/synheart-monitor/internal/rhythm"
)

var scenariosDir string

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List and describe ward scenarios",
}

var listScenariosCmd = &cobra.Command{
	Use:   "list",
	Short: "List available scenarios",
	Long:  `Lists all built-in and local scenarios with their descriptions.`,
	RunE:  runListScenarios,
}

var describeScenarioCmd = &cobra.Command{
	Use:   "describe <scenario>",
	Short: "Describe a scenario in detail",
	Long:  `Shows a scenario's roster and the rhythm changes scripted in each phase.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDescribeScenario,
}

func init() {
	scenariosCmd.PersistentFlags().StringVar(&scenariosDir, "scenario-dir", "", "Directory of additional scenario files")
	scenariosCmd.AddCommand(listScenariosCmd)
	scenariosCmd.AddCommand(describeScenarioCmd)
}

func runListScenarios(cmd *cobra.Command, args []string) error {
	registry, err := loadScenarios(scenariosDir)
	if err != nil {
		return err
	}

	scenarios := registry.ListWithDescriptions()
	if len(scenarios) == 0 {
		fmt.Println("No scenarios found")
		return nil
	}

	fmt.Println("Available scenarios:")
	fmt.Println()
	for _, name := range registry.List() {
		fmt.Printf("  %-20s %s\n", name, scenarios[name])
	}
	fmt.Println()
	return nil
}

func runDescribeScenario(cmd *cobra.Command, args []string) error {
	registry, err := loadScenarios(scenariosDir)
	if err != nil {
		return err
	}
	scen, err := registry.Get(args[0])
	if err != nil {
		return err
	}

	duration := scen.Duration
	if duration == "" {
		duration = "unlimited"
	}
	fmt.Printf("Scenario: %s\n", scen.Name)
	fmt.Printf("Description: %s\n", scen.Description)
	fmt.Printf("Duration: %s\n\n", duration)

	fmt.Println("Patients:")
	for _, p := range scen.Patients {
		rhythmID := p.Rhythm
		if rhythmID == "" {
			rhythmID = rhythm.Default
		}
		fmt.Printf("  %-10s %-20s room %-6s %s\n", p.Key, p.Name, p.Room, rhythmID)
		if p.Diagnosis != "" {
			fmt.Printf("             %s\n", p.Diagnosis)
		}
		if p.Pacer != nil {
			fmt.Printf("             pacer: %s @ %d bpm\n", p.Pacer.Mode, p.Pacer.Rate)
		}
		if len(p.NoiseSignatures) > 0 {
			fmt.Printf("             noise: %s\n", strings.Join(p.NoiseSignatures, ", "))
		}
	}

	if len(scen.Phases) > 0 {
		fmt.Println("\nPhases:")
		for i, phase := range scen.Phases {
			fmt.Printf("  %d. %s (duration: %s)\n", i+1, phase.Name, phase.Duration)
			keys := make([]string, 0, len(phase.Rhythms))
			for key := range phase.Rhythms {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				fmt.Printf("     %s -> %s\n", key, phase.Rhythms[key])
			}
			if len(phase.LeadOff) > 0 {
				fmt.Printf("     lead-off toggled: %s\n", strings.Join(phase.LeadOff, ", "))
			}
		}
	}

	fmt.Println()
	return nil
}
