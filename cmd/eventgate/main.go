// Command eventgate inspects event journals and pipeline settings.
package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
)

// Global is passed to every command's Run method.
type Global struct {
	Out    io.Writer
	Logger *slog.Logger
}

// CLI is the root command.
type CLI struct {
	Verbose bool `short:"v" help:"Enable verbose logging"`

	Journal JournalCmd `cmd:"" help:"Inspect an event journal"`
	Config  ConfigCmd  `cmd:"" help:"Validate or watch a settings file"`
}

// AfterApply configures logging once flags are parsed.
func (c *CLI) AfterApply(g *Global) error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	g.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(g.Logger)
	return nil
}

func newParser(cli *CLI, g *Global, opts ...kong.Option) (*kong.Kong, error) {
	opts = append([]kong.Option{
		kong.Name("eventgate"),
		kong.Description("Inspect domain event journals and eventgate settings."),
		kong.UsageOnError(),
		kong.Bind(g),
	}, opts...)
	return kong.New(cli, opts...)
}

func main() {
	var cli CLI
	g := &Global{Out: os.Stdout, Logger: slog.Default()}

	parser, err := newParser(&cli, g)
	if err != nil {
		panic(err)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)
	parser.FatalIfErrorf(ctx.Run(g))
}
