package debug

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/vmdbg/vm"
)

var popFrameCount int

var popFrameCmd = &cobra.Command{
	Use:     "popframe <tid>",
	Short:   "pop frames off a suspended thread",
	Aliases: []string{"pop"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupFrames,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("invalid arguments")
		}
		t, err := parseThreadID(args[0])
		if err != nil {
			return err
		}

		// The simulated runtime completes a pop the way a real one does:
		// the briefly-resumed thread reports a step event. Route it back
		// through the session on its own goroutine, like a real thread
		// would.
		TargetRuntime.AfterResume = func(t vm.ThreadID) {
			go TargetSession.Dispatch(vm.EventSingleStep, t, vm.Location{})
		}
		defer func() { TargetRuntime.AfterResume = nil }()

		if err := TargetSession.Controller().PopFrames(t, popFrameCount-1); err != nil {
			return err
		}
		fmt.Printf("popped %d frame(s) of thread %d\n", popFrameCount, t)
		return nil
	},
}

func init() {
	popFrameCmd.Flags().IntVar(&popFrameCount, "count", 1, "number of frames to pop")
	debugRootCmd.AddCommand(popFrameCmd)
}
