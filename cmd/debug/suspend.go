package debug

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var suspendDeferred bool

var suspendCmd = &cobra.Command{
	Use:     "suspend <tid>",
	Short:   "suspend one thread",
	Aliases: []string{"sus"},
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
		if err := ctl.SuspendThread(t, suspendDeferred); err != nil {
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
	suspendCmd.Flags().BoolVar(&suspendDeferred, "deferred", false, "apply an earlier deferred suspend")
	debugRootCmd.AddCommand(suspendCmd)
}
