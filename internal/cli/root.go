// Package cli implements the mimetree command line tool.
package cli

import (
	"io"
	"os"

	"github.com/emersion/go-mbox"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mimetree/go-mimetree/entity"
	"github.com/mimetree/go-mimetree/redo"
)

var rootCmd = &cobra.Command{
	Use:   "mimetree",
	Short: "Parse MIME messages into entity trees",
	Long: `mimetree parses RFC 822/MIME messages, tolerating the malformed
input found in real-world mail, and either dumps the resulting entity tree
or extracts the decoded bodies to a directory.`,
}

// Execute runs the tool.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.Bool("strict", false, "fail on the first parse error instead of recovering")
	pf.Bool("verbose", false, "log diagnostics to stderr as they occur")
	pf.Bool("mbox", false, "treat the input as an mbox and process every message in it")
	pf.Bool("uu", false, "sniff plain text bodies for embedded uuencoded files")
	pf.String("nested", "nest", "nested message policy: ignore, nest, or replace")

	_ = viper.BindPFlags(pf)
	viper.SetEnvPrefix("MIMETREE")
	viper.AutomaticEnv()

	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(extractCmd)
}

// newParser builds a parser from the persistent configuration.
func newParser(extra ...entity.Option) (*entity.Parser, error) {
	opts := []entity.Option{}

	if viper.GetBool("strict") {
		opts = append(opts, entity.FailFast())
	}
	if viper.GetBool("verbose") {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
		opts = append(opts, entity.WithLogger(logger))
	}
	if viper.GetBool("uu") {
		opts = append(opts, entity.WithRedoers(redo.NewUU()))
	}

	switch nested := viper.GetString("nested"); nested {
	case "ignore":
		opts = append(opts, entity.ExtractNested(entity.NestedIgnore))
	case "nest":
		opts = append(opts, entity.ExtractNested(entity.NestedNest))
	case "replace":
		opts = append(opts, entity.ExtractNested(entity.NestedReplace))
	default:
		return nil, errors.Errorf("unknown nested policy %q", nested)
	}

	opts = append(opts, extra...)
	return entity.NewParser(opts...), nil
}

// eachMessage opens the input and invokes fn once per message: once for a
// plain message file, once per mbox entry with --mbox.
func eachMessage(path string, fn func(r io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening %q", path)
	}
	defer func() { _ = f.Close() }()

	if !viper.GetBool("mbox") {
		return fn(f)
	}

	mr := mbox.NewReader(f)
	for {
		msg, err := mr.NextMessage()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "reading mbox %q", path)
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}
