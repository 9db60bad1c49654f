package debug

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/vmdbg/vm"
)

var startCmd = &cobra.Command{
	Use:   "start <tid>",
	Short: "start a spawned thread and deliver its start event",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupThreads,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("invalid arguments")
		}
		t, err := parseThreadID(args[0])
		if err != nil {
			return err
		}
		TargetRuntime.StartThread(t)
		if err := TargetSession.Dispatch(vm.EventThreadStart, t, vm.Location{}); err != nil {
			return err
		}
		count, err := TargetSession.Controller().SuspendCount(t)
		if err != nil {
			return err
		}
		fmt.Printf("thread %d started, suspend count %d\n", t, count)
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(startCmd)
}
