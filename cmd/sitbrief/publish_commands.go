package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"sitbrief/internal/app"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write metadata, topics and paged articles as JSON into the export directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.Application) error {
				report, err := a.Exporter.Export(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Exported %d articles and %d topics into %d pages (%s)\n",
					report.Articles, report.Topics, report.Pages, a.Config().Export.OutputDir)
				for _, key := range report.Keys {
					fmt.Fprintf(out, "  %s\n", key)
				}
				return nil
			})
		},
	}
}

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var clean bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Upload the export directory to the object store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.Application) error {
				if a.Syncer == nil {
					return fmt.Errorf("object store is not configured")
				}
				report, err := a.Syncer.Sync(cmd.Context(), clean)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Uploaded %d objects, deleted %d\n", len(report.Uploaded), len(report.Deleted))

				objects, err := a.Syncer.List(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(objects))
				for _, o := range objects {
					rows = append(rows, []string{o.Key, strconv.FormatInt(o.Size, 10), o.LastModified.Format("2006-01-02 15:04")})
				}
				fmt.Fprintln(out, renderTable([]string{"Key", "Bytes", "Modified"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&clean, "clean", false, "Delete remote objects that are no longer exported")
	return cmd
}

func newPublishCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Export and then sync with cleanup",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.Application) error {
				report, err := a.Publisher.Publish(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Exported %d files\n", len(report.Export.Keys))
				if a.Syncer == nil {
					fmt.Fprintln(out, "Object store not configured; skipped upload")
					return nil
				}
				fmt.Fprintf(out, "Uploaded %d objects, deleted %d\n", len(report.Sync.Uploaded), len(report.Sync.Deleted))
				return nil
			})
		},
	}
}

func newAggregateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate",
		Short: "Collect headlines from the configured sources into headlines.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.Application) error {
				report, err := a.Headlines.Collect(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(report.Headlines))
				for _, h := range report.Headlines {
					rows = append(rows, []string{h.Source, h.Title, h.URL})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable([]string{"Source", "Title", "URL"}, rows, nil))
				fmt.Fprintf(out, "%d headlines from %d sources\n", report.TotalCount, len(report.Sources))
				return nil
			})
		},
	}
}
