package debug

import (
	"fmt"

	"github.com/spf13/cobra"
)

var suspendAllCmd = &cobra.Command{
	Use:     "suspendall",
	Short:   "suspend every thread in the runtime",
	Aliases: []string{"sa"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupSuspend,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := TargetSession.Controller().SuspendAll(); err != nil {
			return err
		}
		fmt.Println("all threads suspended")
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(suspendAllCmd)
}
