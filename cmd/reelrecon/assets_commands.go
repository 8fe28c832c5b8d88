package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"reelrecon/internal/assets"
)

func newAssetsCommand(ctx *commandContext) *cobra.Command {
	assetsCmd := &cobra.Command{
		Use:     "assets",
		Aliases: []string{"library"},
		Short:   "Browse and manage the asset library",
	}
	assetsCmd.AddCommand(newAssetsListCommand(ctx))
	assetsCmd.AddCommand(newAssetsShowCommand(ctx))
	assetsCmd.AddCommand(newAssetsDeleteCommand(ctx))
	assetsCmd.AddCommand(newAssetsStarCommand(ctx))
	return assetsCmd
}

type assetListOutput struct {
	Assets   []assets.Asset `json:"assets"`
	Cached   bool           `json:"cached"`
	Warnings []string       `json:"warnings,omitempty"`
}

func newAssetsListCommand(ctx *commandContext) *cobra.Command {
	var (
		filter assets.Filter
		cached bool
		asJSON bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assets from both stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLibrary(func(lib *assets.Reconciler) error {
				var (
					list     []assets.Asset
					warnings []string
				)
				if cached {
					cachedList, at, err := lib.ListCached(cmd.Context(), filter)
					if err != nil {
						return err
					}
					list = cachedList
					if at.IsZero() {
						warnings = append(warnings, "no cached listing yet; run without --cached to fetch one")
					} else {
						warnings = append(warnings, "cached listing from "+formatTime(at))
					}
				} else {
					fresh, err := lib.List(cmd.Context(), filter)
					if err != nil {
						return err
					}
					list = fresh
					warnings = sourceWarnings(lib.Sources())
				}
				if limit > 0 && len(list) > limit {
					list = list[:limit]
				}

				if asJSON {
					if list == nil {
						list = []assets.Asset{}
					}
					return writeJSON(cmd, assetListOutput{Assets: list, Cached: cached, Warnings: warnings})
				}
				stderr := cmd.ErrOrStderr()
				for _, w := range warnings {
					fmt.Fprintln(stderr, "note: "+w)
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No assets")
					return nil
				}
				rows := make([][]string, 0, len(list))
				for _, a := range list {
					star := ""
					if a.Starred {
						star = "★"
					}
					rows = append(rows, []string{a.ID, a.Type, truncate(a.Title, 48), orDash(a.CreatedAt), star, string(a.Origin)})
				}
				printTable(cmd, []string{"ID", "Type", "Title", "Created", "★", "Source"}, rows, nil)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&filter.Types, "type", "t", nil, "Filter by asset type (repeatable)")
	cmd.Flags().StringVar(&filter.CollectionID, "collection", "", "Only assets in this collection")
	cmd.Flags().BoolVar(&filter.Starred, "starred", false, "Only starred assets")
	cmd.Flags().StringVarP(&filter.Search, "search", "s", "", "Case-insensitive text search")
	cmd.Flags().StringVar(&filter.SourceJobID, "job", "", "Only assets produced by this job")
	cmd.Flags().BoolVar(&cached, "cached", false, "Use the last saved listing without contacting the backend")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum assets to show")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func sourceWarnings(results []assets.SourceResult) []string {
	var out []string
	for _, res := range results {
		if res.Err != nil {
			out = append(out, fmt.Sprintf("%s store unavailable: %v", res.Origin, res.Err))
		}
	}
	return out
}

func newAssetsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <asset-id>",
		Short: "Show one asset with its content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLibrary(func(lib *assets.Reconciler) error {
				asset, err := lib.Get(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, asset)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:      %s\n", asset.ID)
				fmt.Fprintf(out, "Type:    %s\n", asset.Type)
				fmt.Fprintf(out, "Title:   %s\n", asset.Title)
				fmt.Fprintf(out, "Created: %s\n", orDash(asset.CreatedAt))
				fmt.Fprintf(out, "Starred: %s\n", yesNo(asset.Starred))
				fmt.Fprintf(out, "Source:  %s\n", asset.Origin)
				if asset.SourceJobID != "" {
					fmt.Fprintf(out, "Job:     %s\n", asset.SourceJobID)
				}
				if len(asset.Collections) > 0 {
					names := make([]string, 0, len(asset.Collections))
					for _, c := range asset.Collections {
						names = append(names, c.Name)
					}
					fmt.Fprintf(out, "Collections: %s\n", strings.Join(names, ", "))
				}
				body := asset.Content
				if body == "" {
					body = asset.Preview
				}
				if body != "" {
					fmt.Fprintln(out)
					fmt.Fprintln(out, body)
				}
				return nil
			})
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newAssetsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <asset-id>",
		Short: "Delete an asset from whichever store holds it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLibrary(func(lib *assets.Reconciler) error {
				res, err := lib.Delete(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return describeMutationError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s from the %s store\n", res.ID, res.Backend)
				return nil
			})
		},
	}
}

func newAssetsStarCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "star <asset-id>",
		Short: "Toggle an asset's starred flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLibrary(func(lib *assets.Reconciler) error {
				res, err := lib.ToggleStar(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return describeMutationError(err)
				}
				verb := "Unstarred"
				if res.Starred {
					verb = "Starred"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s store)\n", verb, res.ID, res.Backend)
				return nil
			})
		},
	}
}

func describeMutationError(err error) error {
	if errors.Is(err, assets.ErrAssetNotFound) {
		return errors.New("asset not found in either store")
	}
	return err
}
