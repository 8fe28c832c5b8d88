package assets

import (
	"sort"
	"strings"
)

// merge combines both sources, dropping legacy entries the structured store
// already holds, either under the same id or as a migrated copy.
func merge(structured, legacy []Asset) []Asset {
	out := make([]Asset, 0, len(structured)+len(legacy))
	seen := make(map[string]struct{}, len(structured)*2)
	for _, a := range structured {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		if orig := originalID(a); orig != "" {
			seen[orig] = struct{}{}
		}
		out = append(out, a)
	}
	for _, a := range legacy {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Apply filters assets in precedence order (type, collection, starred, text,
// source job) and sorts them newest first. Ties keep input order.
func Apply(in []Asset, f Filter) []Asset {
	types := make(map[string]struct{}, len(f.Types))
	for _, t := range f.Types {
		if t = strings.TrimSpace(t); t != "" {
			types[t] = struct{}{}
		}
	}
	search := strings.ToLower(strings.TrimSpace(f.Search))

	out := make([]Asset, 0, len(in))
	for _, a := range in {
		if len(types) > 0 {
			if _, ok := types[a.Type]; !ok {
				continue
			}
		}
		if f.CollectionID != "" && !a.InCollection(f.CollectionID) {
			continue
		}
		if f.Starred && !a.Starred {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(a.Title), search) && !strings.Contains(strings.ToLower(a.Preview), search) {
			continue
		}
		if f.SourceJobID != "" && a.SourceJobID != f.SourceJobID {
			continue
		}
		out = append(out, a)
	}
	SortNewestFirst(out)
	return out
}

// SortNewestFirst orders assets by created_at descending using plain string
// comparison, so malformed timestamps still sort.
func SortNewestFirst(list []Asset) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt > list[j].CreatedAt
	})
}
