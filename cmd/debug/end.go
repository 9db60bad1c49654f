package debug

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/vmdbg/vm"
)

var endCmd = &cobra.Command{
	Use:   "end <tid>",
	Short: "deliver a thread's end event and let it die",
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
		if err := TargetSession.Dispatch(vm.EventThreadEnd, t, vm.Location{}); err != nil {
			return err
		}
		TargetRuntime.EndThread(t)
		fmt.Printf("thread %d ended\n", t)
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(endCmd)
}
