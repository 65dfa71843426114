package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/omnipreview/cmd/omnipreview/commands"
	"git.home.luguber.info/inful/omnipreview/internal/config"
	ferrors "git.home.luguber.info/inful/omnipreview/internal/foundation/errors"
	"git.home.luguber.info/inful/omnipreview/internal/version"
)

func main() {
	cli := &commands.CLI{}
	global := &commands.Global{Out: os.Stdout}

	ctx := kong.Parse(cli,
		kong.Name("omnipreview"),
		kong.Description("Render documents in the background and serve live previews."),
		kong.UsageOnError(),
		kong.Vars{
			"version":     version.String(),
			"config_path": config.DefaultPath,
		},
	)

	if err := ctx.Run(global, cli); err != nil {
		adapter := ferrors.NewCLIErrorAdapter(cli.Verbose, slog.Default())
		os.Exit(adapter.Report(os.Stderr, err))
	}
}
