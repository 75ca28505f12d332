package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mimetree/go-mimetree/entity"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <message-file>",
	Short: "Print the parsed entity tree and diagnostics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newParser()
		if err != nil {
			return err
		}
		defer func() { _ = p.Close() }()

		return eachMessage(args[0], func(r io.Reader) error {
			root, err := p.Parse(r)
			if err != nil {
				return err
			}

			err = root.Walk(func(ent *entity.Entity, depth int) error {
				indent := strings.Repeat("  ", depth)
				if ent.IsMultipart() {
					fmt.Printf("%s%s [%d part(s)]\n",
						indent, ent.EffectiveType(), len(ent.Parts))
					return nil
				}
				var size int64
				if ent.Body != nil {
					size = ent.Body.Len()
				}
				fmt.Printf("%s%s (%d byte(s))\n", indent, ent.EffectiveType(), size)
				return nil
			})
			if err != nil {
				return err
			}

			for _, msg := range p.Results().Messages() {
				fmt.Println(msg)
			}
			return nil
		})
	},
}
