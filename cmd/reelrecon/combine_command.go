package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"reelrecon/internal/assets"
	"reelrecon/internal/combined"
)

func newCombineCommand(ctx *commandContext) *cobra.Command {
	var (
		target    string
		metric    string
		platforms []string
		limit     int
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "combine [asset-id]...",
		Short: "Merge one creator's per-platform scrape results into a ranked view",
		Long: "Combine ranks the reels of several scrape reports for the same creator.\n" +
			"Pass asset ids explicitly, or --target to use the newest report per platform.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && strings.TrimSpace(target) == "" {
				return errors.New("pass asset ids or --target")
			}
			if strings.TrimSpace(metric) == "" {
				metric = ctx.configValue().Library.RankMetric
			}
			return ctx.withLibrary(func(lib *assets.Reconciler) error {
				var (
					inputs []combined.PlatformResult
					err    error
				)
				if len(args) > 0 {
					inputs, err = loadPlatformResults(cmd, lib, args)
				} else {
					inputs, err = latestPerPlatform(cmd, lib, target)
				}
				if err != nil {
					return err
				}

				sel, err := combined.Combine(inputs, combined.WithMetric(metric))
				if err != nil {
					return err
				}
				if asJSON {
					if sel.Single != nil {
						return writeJSON(cmd, sel.Single)
					}
					return writeJSON(cmd, sel.Combined)
				}
				if sel.Single != nil {
					single := sel.Single
					fmt.Fprintf(cmd.OutOrStdout(), "@%s on %s (job %s)\n", single.Target, assets.PlatformLabel(single.Platform), single.JobID)
					renderItems(cmd, single.Items, metric, limit, false)
					return nil
				}
				res := sel.Combined
				labels := make([]string, 0, len(res.Platforms))
				for _, name := range res.PlatformNames() {
					labels = append(labels, fmt.Sprintf("%s (%d)", assets.PlatformLabel(name), res.Platforms[name].ItemCount))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "@%s across %s, ranked by %s\n", res.Target, strings.Join(labels, ", "), res.Metric)
				renderItems(cmd, res.Visible(platforms...), res.Metric, limit, true)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "Creator username to combine the newest reports for")
	cmd.Flags().StringVar(&metric, "metric", "", "Field to rank by (defaults to library.rank_metric)")
	cmd.Flags().StringSliceVarP(&platforms, "platform", "p", nil, "Only show items from these platforms (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum items to show")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func loadPlatformResults(cmd *cobra.Command, lib *assets.Reconciler, ids []string) ([]combined.PlatformResult, error) {
	inputs := make([]combined.PlatformResult, 0, len(ids))
	for _, id := range ids {
		asset, err := lib.Get(cmd.Context(), strings.TrimSpace(id))
		if err != nil {
			return nil, err
		}
		res, err := assets.PlatformResult(asset)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, res)
	}
	return inputs, nil
}

// latestPerPlatform picks the newest scrape report for target on each
// platform. The listing is newest first, so the first hit per platform wins.
func latestPerPlatform(cmd *cobra.Command, lib *assets.Reconciler, target string) ([]combined.PlatformResult, error) {
	reports, err := lib.List(cmd.Context(), assets.Filter{Types: []string{assets.TypeScrapeReport}})
	if err != nil {
		return nil, err
	}
	reports, err = lib.AttachOriginals(cmd.Context(), reports)
	if err != nil {
		return nil, fmt.Errorf("load scrape reports: %w", err)
	}
	var results []combined.PlatformResult
	for _, report := range reports {
		res, err := assets.PlatformResult(report)
		if err != nil {
			continue
		}
		results = append(results, res)
	}

	want := combined.NormalizeTarget(target)
	for _, group := range combined.GroupByTarget(results) {
		if group.Target != want {
			continue
		}
		seen := make(map[string]struct{})
		var picked []combined.PlatformResult
		for _, res := range group.Results {
			if _, ok := seen[res.Platform]; ok {
				continue
			}
			seen[res.Platform] = struct{}{}
			picked = append(picked, res)
		}
		return picked, nil
	}
	return nil, fmt.Errorf("no scrape reports found for @%s", want)
}

func renderItems(cmd *cobra.Command, items []combined.Item, metric string, limit int, withPlatform bool) {
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	printer := message.NewPrinter(language.English)
	headers := []string{"#", metricHeader(metric), "Caption", "URL"}
	aligns := []columnAlignment{alignRight, alignRight, alignLeft, alignLeft}
	if withPlatform {
		headers = append(headers, "Platform", "Job")
		aligns = append(aligns, alignLeft, alignLeft)
	}
	rows := make([][]string, 0, len(items))
	for i, item := range items {
		row := []string{
			strconv.Itoa(i + 1),
			printer.Sprintf("%d", int64(item.Metric(metric))),
			truncate(stringValue(item, "caption"), 50),
			orDash(stringValue(item, "url")),
		}
		if withPlatform {
			row = append(row, assets.PlatformLabel(item.Platform()), item.SourceJobID())
		}
		rows = append(rows, row)
	}
	printTable(cmd, headers, rows, aligns)
}

func stringValue(item combined.Item, key string) string {
	v, _ := item[key].(string)
	return v
}

func metricHeader(metric string) string {
	metric = strings.TrimSpace(strings.ReplaceAll(metric, "_", " "))
	if metric == "" {
		metric = combined.DefaultMetric
	}
	return cases.Title(language.English).String(metric)
}
