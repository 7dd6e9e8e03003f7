package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/abdul-hamid-achik/flowspec/packages/core/config"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new flowspec project",
	Long: `Initialize a new flowspec project in the current directory.

This creates:
  - flowspec.config.json  - Runner configuration
  - example.yaml          - Example scenario

Examples:
  flowspec init
  flowspec init --force`,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

const exampleScenario = `scenario:
  name: order lifecycle
  description: Create a user, place orders for each product, then clean up.
  config:
    base_url: http://localhost:3000
    timeout: 10s
    retry: 1
    headers:
      User-Agent: flowspec

  setup:
    - name: create_user
      api: POST /users
      request:
        body:
          name: "user-${random_string(6)}"
          email: "${random_string(8)}@example.com"
      extract:
        - name: user_id
          path: $.id
      assert:
        - status_code == 201

  steps:
    - name: login
      api: POST /auth/login
      request:
        body:
          user_id: ${user_id}
      extract:
        - name: token
          path: $.token
        - name: role
          path: $.role
          optional: true
      assert:
        - status_code == 200
        - len(token) > 0

    - name: place_orders
      loop:
        items: [1, 2, 3]
        variable: product_id
        steps:
          - name: order
            api: POST /orders
            request:
              headers:
                Authorization: "Bearer ${token}"
              body:
                product_id: ${product_id}
                quantity: 1
            assert:
              - status_code == 201

    - name: admin_report
      condition:
        if: role == "admin"
        then:
          - name: report
            api: GET /admin/report
            request:
              headers:
                Authorization: "Bearer ${token}"
        else:
          - name: profile
            api: GET /users/{id}
            request:
              path:
                id: ${user_id}

  teardown:
    - name: delete_user
      api: DELETE /users/{id}
      request:
        path:
          id: ${user_id}
`

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	configFile := filepath.Join(cwd, "flowspec.config.json")
	exampleFile := filepath.Join(cwd, "example.yaml")

	if !forceInit {
		for _, f := range []string{configFile, exampleFile} {
			if _, err := os.Stat(f); err == nil {
				return fmt.Errorf("file already exists: %s (use --force to overwrite)", f)
			}
		}
	}

	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://localhost:3000"
	if err := cfg.SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	if err := os.WriteFile(exampleFile, []byte(exampleScenario), 0644); err != nil {
		return fmt.Errorf("failed to create example file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", exampleFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\nflowspec project initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'flowspec run example.yaml' to execute the example scenario.\n")

	return nil
}
