package daemon

import (
	"fmt"

	"github.com/reearth/cms-items-api/internal/constants"
	"github.com/spf13/cobra"
)

func (a *App) installVersion() {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Returns the running version of " + constants.ServiceCmdName + " and exits",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return getVersion() },
	}
	a.cmd.AddCommand(cmd)
}

// getVersion prints the current service version.
func getVersion() (err error) {
	fmt.Printf("%s\t%s\n", constants.ServiceCmdName, constants.Version)
	return nil
}
