package debug

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resumeAllCmd = &cobra.Command{
	Use:     "resumeall",
	Short:   "undo one suspendall",
	Aliases: []string{"ra"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupSuspend,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := TargetSession.Controller().ResumeAll(); err != nil {
			return err
		}
		fmt.Println("resumed")
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(resumeAllCmd)
}
