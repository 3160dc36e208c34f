// fmtware serves or converts JSON documents in any of the formats the
// fmtware package supports.
//
// Serve mode exposes a JSON file over HTTP; clients pick the encoding with
// the ?format= query parameter:
//
//	fmtware serve --file users.json --key data
//	curl 'localhost:8080/?format=csv'
//
// Convert mode encodes a file once and writes the result:
//
//	fmtware convert --to xlsx --output users.xlsx users.json
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bjaus/fmtware"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fmtware",
		Short:         "re-encode JSON documents into other formats",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCmd(), newConvertCmd(), newFormatsCmd())
	return cmd
}

// options are the flags shared by every subcommand that builds a
// Formatter.
type options struct {
	settingsPath string
	key          string
	forceArray   bool
	filename     string
	verbose      bool

	flags *pflag.FlagSet
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	o.flags = fs
	fs.StringVar(&o.settingsPath, "settings", "", "YAML or JSONC file with plugin settings")
	fs.StringVar(&o.key, "key", "", "dot path of the subtree to encode")
	fs.BoolVar(&o.forceArray, "force-array", false, "treat a scalar at --key as an empty sequence")
	fs.StringVar(&o.filename, "filename", "", "download filename for every format")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "log at debug level")
}

func (o *options) logger() *slog.Logger {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (o *options) formatter(log *slog.Logger, extra ...fmtware.Option) (*fmtware.Formatter, error) {
	opts := []fmtware.Option{fmtware.WithLogger(log)}
	if o.settingsPath != "" {
		s, err := fmtware.LoadSettings(o.settingsPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, fmtware.WithSettings(s))
	}
	if o.key != "" {
		opts = append(opts, fmtware.WithKey(o.key))
	}
	// An unset flag leaves forceArray to the settings file.
	if o.flags != nil && o.flags.Changed("force-array") {
		opts = append(opts, fmtware.WithForceArray(o.forceArray))
	}
	if o.filename != "" {
		opts = append(opts, fmtware.WithFilename(o.filename))
	}
	return fmtware.New(append(opts, extra...)...)
}

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "list the available formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := fmtware.NewRegistry(fmtware.DefaultPlugins()...)
			if err != nil {
				return err
			}
			for _, name := range registry.Formats() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
