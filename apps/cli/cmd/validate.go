package cmd

import (
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/flowspec/packages/scenario"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file|directory>",
	Short: "Validate scenario files without running them",
	Long: `Parse and validate scenario files without sending any request.
Every defect of a file is reported, not only the first.

Examples:
  flowspec validate checkout.yaml
  flowspec validate ./scenarios/`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no .yaml, .yml or .json scenario files found")
	}

	invalid := 0
	for _, file := range files {
		err := validateFile(file)
		if err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s\n", file)
			continue
		}
		invalid++

		var verr *scenario.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(cmd.ErrOrStderr(), "Invalid: %s\n", file)
			for _, d := range verr.Defects() {
				fmt.Fprintf(cmd.ErrOrStderr(), "  * %s\n", d)
			}
			continue
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s: %v\n", file, err)
	}

	if invalid > 0 {
		return fmt.Errorf("validation failed: %d of %d file(s) invalid", invalid, len(files))
	}

	return nil
}
