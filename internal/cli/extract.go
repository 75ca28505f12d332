package cli

import (
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mimetree/go-mimetree/entity"
	"github.com/mimetree/go-mimetree/filer"
)

var extractDir string

var extractCmd = &cobra.Command{
	Use:   "extract <message-file>",
	Short: "Decode and write every leaf body to the output directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := filer.New(afero.NewOsFs(), extractDir)

		p, err := newParser(entity.WithFiler(out))
		if err != nil {
			return err
		}
		defer func() { _ = p.Close() }()

		return eachMessage(args[0], func(r io.Reader) error {
			root, err := p.Parse(r)
			if err != nil {
				// a failed strict parse leaves partial output behind
				_ = out.Purge()
				return err
			}

			err = root.Walk(func(ent *entity.Entity, _ int) error {
				if ent.Body != nil && ent.Body.Path() != "" {
					fmt.Println(ent.Body.Path())
				}
				return nil
			})
			if err != nil {
				return err
			}

			for _, warning := range p.Results().Warnings() {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", warning)
			}
			for _, msg := range p.Results().Errors() {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", msg)
			}
			return nil
		})
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractDir, "output", "o", "extracted",
		"directory to write decoded bodies into")
}
