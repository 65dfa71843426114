package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"git.home.luguber.info/inful/omnipreview/internal/config"
)

// RenderersCmd implements the 'renderers' command.
type RenderersCmd struct {
	All bool `help:"Include disabled renderers."`
}

func (r *RenderersCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.LoadConfig()
	if err != nil {
		return err
	}
	return ListRenderers(cfg, r.All, g.out())
}

// ListRenderers prints the renderer table in dispatch order.
func ListRenderers(cfg *config.Config, all bool, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tNAME\tTYPE\tLANGUAGES\tEXTENSIONS\tENABLED")
	n := 0
	for _, rc := range cfg.Renderers {
		if !rc.IsEnabled() && !all {
			continue
		}
		n++
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%t\n",
			n, rc.Name, rc.Kind(), listOrDefault(rc.Languages), listOrDefault(rc.Extensions), rc.IsEnabled())
	}
	return tw.Flush()
}

func listOrDefault(items []string) string {
	if len(items) == 0 {
		return "(default)"
	}
	return strings.Join(items, ",")
}
