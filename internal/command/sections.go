package command

import (
	"sort"

	"github.com/TaomasSpace/clubhall-guard/pkg/cmd"
)

// Section is one category of commands, sorted by name.
type Section struct {
	Category string
	Commands []cmd.Command
}

// Sections groups commands by category. Categories listed in weights come
// first in weight order; the rest follow alphabetically.
func Sections(all []cmd.Command, weights map[string]int) []Section {
	byCategory := make(map[string][]cmd.Command)
	for _, c := range all {
		cat := "Other"
		if meta, ok := Meta(c); ok {
			cat = meta.Category()
		}
		byCategory[cat] = append(byCategory[cat], c)
	}

	out := make([]Section, 0, len(byCategory))
	for cat, cmds := range byCategory {
		sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name() < cmds[j].Name() })
		out = append(out, Section{Category: cat, Commands: cmds})
	}
	sort.Slice(out, func(i, j int) bool {
		wi, oki := weights[out[i].Category]
		wj, okj := weights[out[j].Category]
		if oki != okj {
			return oki
		}
		if wi != wj {
			return wi < wj
		}
		return out[i].Category < out[j].Category
	})
	return out
}
