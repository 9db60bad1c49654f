package debug

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "cancel every outstanding suspension and pending request",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupOthers,
	},
	Run: func(cmd *cobra.Command, args []string) {
		TargetSession.Controller().Reset()
		fmt.Println("agent state reset")
	},
}

func init() {
	debugRootCmd.AddCommand(resetCmd)
}
