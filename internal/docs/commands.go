// Package docs renders the command reference from the registry.
package docs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/bwmarrin/discordgo"

	"github.com/TaomasSpace/clubhall-guard/internal/command"
	"github.com/TaomasSpace/clubhall-guard/pkg/cmd"
)

var reference = template.Must(template.New("commands").Funcs(template.FuncMap{
	"options": options,
}).Parse(`# Commands
{{range .}}
## {{.Category}}
{{range .Commands}}
- **/{{.Name}}** - {{.Description}}{{range options .}}
  - ` + "`{{.}}`" + `{{end}}{{end}}
{{end}}`))

// Render writes a markdown reference of every command in registry.
func Render(w io.Writer, registry *cmd.Registry, weights map[string]int) error {
	return reference.Execute(w, command.Sections(registry.GetAll(), weights))
}

// WriteFile renders the reference to path, creating parent directories.
func WriteFile(path string, registry *cmd.Registry, weights map[string]int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Render(f, registry, weights); err != nil {
		f.Close()
		return fmt.Errorf("render %s: %w", path, err)
	}
	return f.Close()
}

// options lists subcommands as "name: description" lines.
func options(c cmd.Command) []string {
	def := command.Definition(c)
	if def == nil {
		return nil
	}
	var out []string
	for _, o := range def.Options {
		if o.Type != discordgo.ApplicationCommandOptionSubCommand {
			continue
		}
		out = append(out, strings.TrimSpace(def.Name+" "+o.Name)+": "+o.Description)
	}
	return out
}
