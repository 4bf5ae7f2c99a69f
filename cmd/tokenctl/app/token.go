package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moweilong/tokenservice/pkg/tokenclient"
)

func newTokenCommand(a *tokenctl) *cobra.Command {
	var section string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print an access token",
		Long: `Print an access token for the TokenService section, or for --section which
inherits every value it does not set from TokenService.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			c, release, err := a.container(ctx)
			if err != nil {
				return err
			}
			defer release()

			var source tokenclient.TokenSource
			if section == "" {
				client, err := tokenclient.AddDefault(c)
				if err != nil {
					return err
				}
				source = client
			} else {
				client, err := tokenclient.AddSection(c, section)
				if err != nil {
					return err
				}
				source = client
			}

			token, err := source.GetAccessToken(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&section, "section", "", "Configuration section of the token source.")
	return cmd
}
