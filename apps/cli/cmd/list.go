package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/abdul-hamid-achik/flowspec/packages/scenario"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list <file|directory>",
	Short: "List the steps of scenario files",
	Long: `Print the step tree of each scenario: setup, steps and teardown,
with condition branches, loop and parallel bodies indented below their step.

Examples:
  flowspec list checkout.yaml
  flowspec list ./scenarios/`,
	Args: cobra.MinimumNArgs(1),
	RunE: listCommand,
}

func listCommand(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no .yaml, .yml or .json scenario files found")
	}

	for _, file := range files {
		s, err := scenario.LoadFile(file)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error parsing %s: %v\n", file, err)
			continue
		}
		printScenario(cmd.OutOrStdout(), file, s)
	}

	return nil
}

func printScenario(w io.Writer, file string, s *scenario.Scenario) {
	fmt.Fprintf(w, "\n%s: %s\n", file, s.Name)
	phases := []struct {
		phase scenario.Phase
		steps []*scenario.Step
	}{
		{scenario.PhaseSetup, s.Setup},
		{scenario.PhaseMain, s.Steps},
		{scenario.PhaseTeardown, s.Teardown},
	}
	for _, p := range phases {
		if len(p.steps) == 0 {
			continue
		}
		fmt.Fprintf(w, "  %s:\n", p.phase)
		printSteps(w, p.steps, 2)
	}
}

func printSteps(w io.Writer, steps []*scenario.Step, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, st := range steps {
		line := indent + "- " + st.Name
		if st.HasCall() {
			line += "  " + st.API
		}
		if st.Kind != scenario.KindPlain {
			line += fmt.Sprintf("  [%s]", st.Kind)
		}
		fmt.Fprintln(w, line)

		switch st.Kind {
		case scenario.KindConditional:
			fmt.Fprintf(w, "%s  if %s\n", indent, st.Condition.If)
			printSteps(w, st.Condition.Then, depth+2)
			if len(st.Condition.Else) > 0 {
				fmt.Fprintf(w, "%s  else\n", indent)
				printSteps(w, st.Condition.Else, depth+2)
			}
		case scenario.KindLoop:
			fmt.Fprintf(w, "%s  for %s in %v\n", indent, st.Loop.Variable, st.Loop.Items)
			printSteps(w, st.Loop.Steps, depth+2)
		case scenario.KindParallel:
			fmt.Fprintf(w, "%s  each %s in %v\n", indent, st.Parallel.Variable, st.Parallel.Items)
			printSteps(w, st.Parallel.Steps, depth+2)
		}
	}
}
