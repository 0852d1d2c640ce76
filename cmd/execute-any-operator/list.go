package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/execute-any-operator/internal/operator"
)

type listOptions struct {
	jsonOutput bool
}

func newListCmd() *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the supported operators and their aliases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registrations := operator.DefaultRegistry().List()
			if opts.jsonOutput {
				return renderListJSON(cmd, registrations)
			}
			return renderListTable(cmd, registrations)
		},
	}

	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

func kind(reg operator.Registration) string {
	if reg.IsSensor() {
		return "sensor"
	}
	return "operator"
}

func renderListTable(cmd *cobra.Command, registrations []operator.Registration) error {
	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

	fmt.Fprintln(writer, "OPERATOR\tKIND\tDESCRIPTION")
	for _, reg := range registrations {
		fmt.Fprintf(writer, "%s\t%s\t%s\n", reg.ClassName, kind(reg), reg.Description)
		for _, alias := range reg.Aliases {
			fmt.Fprintf(writer, "  %s\t\t\n", alias)
		}
	}

	return writer.Flush()
}

type listJSONOperator struct {
	ClassName   string   `json:"class_name"`
	Kind        string   `json:"kind"`
	Aliases     []string `json:"aliases"`
	Description string   `json:"description"`
}

func renderListJSON(cmd *cobra.Command, registrations []operator.Registration) error {
	payload := make([]listJSONOperator, 0, len(registrations))
	for _, reg := range registrations {
		payload = append(payload, listJSONOperator{
			ClassName:   reg.ClassName,
			Kind:        kind(reg),
			Aliases:     append([]string{}, reg.Aliases...),
			Description: strings.TrimSpace(reg.Description),
		})
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}
