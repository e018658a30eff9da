package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"uttervault/internal/api"
	"uttervault/internal/bootstrap"
)

const listTextWidth = 48

var listColumns = []column{
	{title: "ID"},
	{title: "Language"},
	{title: "Text"},
	{title: "Speaker"},
	{title: "Audio"},
	{title: "Recordings", right: true},
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var page int
	var language string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Browse utterances one page at a time, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			repo, closeRepo, err := bootstrap.OpenRepository(commandCtx(cmd), cfg)
			if err != nil {
				return err
			}
			defer closeRepo() //nolint:errcheck

			resp, err := api.NewCatalogService(repo, cfg.Store.PageSize).List(commandCtx(cmd), page, language)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, resp)
			}

			out := cmd.OutOrStdout()
			if len(resp.Items) == 0 {
				if resp.Language != "" {
					fmt.Fprintln(out, "No utterances match the current filters.")
				} else {
					fmt.Fprintln(out, "No utterances found.")
				}
				return nil
			}
			rows := make([][]string, 0, len(resp.Items))
			for _, item := range resp.Items {
				audio := "-"
				if item.PrimaryAudio != nil {
					audio = item.PrimaryAudio.Ext
					if audio == "" {
						audio = "?"
					}
				}
				rows = append(rows, []string{
					item.ID,
					item.Language,
					truncate(item.Text, listTextWidth),
					item.Speaker,
					audio,
					strconv.Itoa(item.Recordings),
				})
			}
			fmt.Fprintln(out, renderTable(listColumns, rows))
			fmt.Fprintf(out, "Page %d of %d (%d utterances)\n", resp.Page, resp.TotalPages, resp.Total)
			return nil
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 1, "Page number (1-based)")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Case-insensitive substring of the language tag")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the page as JSON")
	return cmd
}
