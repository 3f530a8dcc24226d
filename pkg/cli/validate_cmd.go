package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"geopkg-maker/internal/geopkg"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file.gpkg>",
		Short: "Check an existing GeoPackage against the map-server compatibility contracts",
		Long: "Verifies the GeoPackage application id, the fractional-second UTC " +
			"timestamp format in gpkg_contents, and the lower-case geometry column " +
			"registration of every layer.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := geopkg.Open(args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			if err := geopkg.Validate(cmd.Context(), db); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
			return nil
		},
	}
}
