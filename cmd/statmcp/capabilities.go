package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var listCapabilitiesCmd = &cobra.Command{
	Use:   "list-capabilities",
	Short: "Dump registered tools, resources, and prompts",
	Long: `list-capabilities builds the catalog exactly as start and serve-http
would, then prints every registered tool, resource, and prompt name and
description to stdout. Useful for verifying a deployment's patterns.toml
and worker script set before pointing a client at the server.`,
	RunE: runListCapabilities,
}

func runListCapabilities(cmd *cobra.Command, args []string) error {
	d, err := bootstrap(configPath, debug)
	if err != nil {
		return err
	}
	defer d.Close(context.Background())

	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Tools:")
	cursor := ""
	for {
		page, err := d.server.Tools.List(cursor, nil)
		if err != nil {
			return err
		}
		for _, t := range page.Entries {
			printEntry(out, t.Name, t.Description)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	fmt.Fprintln(out, "\nResources:")
	cursor = ""
	for {
		page, err := d.server.Resources.List(cursor, nil)
		if err != nil {
			return err
		}
		for _, r := range page.Entries {
			printEntry(out, r.URI, r.Description)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	fmt.Fprintln(out, "\nPrompts:")
	cursor = ""
	for {
		page, err := d.server.Prompts.List(cursor, nil)
		if err != nil {
			return err
		}
		for _, p := range page.Entries {
			printEntry(out, p.Name, p.Description)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	return nil
}

func printEntry(out io.Writer, name, description string) {
	fmt.Fprintf(out, "  %-24s %s\n", name, description)
}
