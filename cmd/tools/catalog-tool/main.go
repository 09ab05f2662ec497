// Package main implements catalog-tool, which validates and edits workflow catalog files.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"workflow-engine/internal/common/logger"
	"workflow-engine/internal/engine/registry"
	"workflow-engine/internal/models"
	"workflow-engine/pkg/catalog"
)

var (
	catalogPath string
	policyName  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "catalog-tool",
		Short: "Validate and edit workflow catalog files",
		Long: `catalog-tool checks workflow catalog files against the same schema and
SLO policy the engine applies at startup, and adds definitions to them.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&catalogPath, "path", "configs/catalog.json", "catalog file")
	root.PersistentFlags().StringVar(&policyName, "policy", string(registry.PolicyStrict), "SLO policy: strict or permissive")

	root.AddCommand(validateCmd(), listCmd(), addCmd())
	return root
}

func parsePolicy() (registry.Policy, error) {
	switch p := registry.Policy(policyName); p {
	case registry.PolicyStrict, registry.PolicyPermissive:
		return p, nil
	default:
		return "", fmt.Errorf("unknown policy %q", policyName)
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate every workflow in the catalog",
		Long: `Validate every workflow in the catalog.

Examples:
  catalog-tool validate --path configs/catalog.json
  catalog-tool validate --policy permissive`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			policy, err := parsePolicy()
			if err != nil {
				return err
			}
			cat, err := catalog.Load(catalogPath)
			if err != nil {
				return fmt.Errorf("failed to load catalog: %w", err)
			}
			if len(cat.Workflows) == 0 {
				return fmt.Errorf("catalog contains no workflows")
			}

			reg := registry.New(policy, logger.NewNoOpLogger())
			loaded, problems := reg.LoadCatalog(cat, policy)
			for _, p := range problems {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %v\n", p)
			}
			if len(problems) > 0 {
				return fmt.Errorf("%d of %d workflows failed validation", len(problems), len(cat.Workflows))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Catalog validation passed. Found %d workflows.\n", loaded)
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the workflows of the catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := catalog.Load(catalogPath)
			if err != nil {
				return fmt.Errorf("failed to load catalog: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tRISK\tROLLBACK\tTAGS")
			for _, def := range cat.Workflows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", def.ID, def.Metadata.RiskLevel, def.Metadata.RollbackStrategy, strings.Join(def.Metadata.IntentTags, ","))
			}
			return w.Flush()
		},
	}
}

func addCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a workflow definition to the catalog",
		Long: `Add a workflow definition read from a JSON file. The definition is validated
first; the catalog file is created when it does not exist.

Examples:
  catalog-tool add --file round_up.json
  catalog-tool add --file round_up.json --path configs/catalog.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			policy, err := parsePolicy()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var def models.WorkflowDefinition
			if err := json.Unmarshal(data, &def); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}

			reg := registry.New(policy, logger.NewNoOpLogger())
			if err := reg.Validate(def, policy); err != nil {
				return err
			}

			cat, err := catalog.Load(catalogPath)
			if os.IsNotExist(err) {
				cat = catalog.New("1.0.0")
			} else if err != nil {
				return fmt.Errorf("failed to load catalog: %w", err)
			}
			if err := cat.Add(def); err != nil {
				return err
			}
			if err := catalog.Save(cat, catalogPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added workflow: %s\n", def.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "JSON file holding one workflow definition")
	return cmd
}
