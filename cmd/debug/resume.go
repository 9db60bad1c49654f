package debug

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:     "resume <tid>",
	Short:   "resume one thread",
	Aliases: []string{"res"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupSuspend,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("invalid arguments")
		}
		t, err := parseThreadID(args[0])
		if err != nil {
			return err
		}
		ctl := TargetSession.Controller()
		if err := ctl.ResumeThread(t); err != nil {
			return err
		}
		count, err := ctl.SuspendCount(t)
		if err != nil {
			return err
		}
		fmt.Printf("thread %d suspend count %d\n", t, count)
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(resumeCmd)
}
