package debug

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/vmdbg/vm"
)

var threadsCmd = &cobra.Command{
	Use:     "threads",
	Short:   "list the threads the agent tracks",
	Aliases: []string{"t"},
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupThreads,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctl := TargetSession.Controller()

		threads, err := TargetSession.Runtime().AllThreads()
		if err != nil {
			return err
		}
		threads = append(threads, ctl.AllLightweight()...)

		for _, t := range threads {
			state, err := ctl.ApplicationThreadStatus(t)
			if err != nil {
				return err
			}
			count, err := ctl.SuspendCount(t)
			if err != nil {
				return err
			}
			mark := ""
			if ctl.IsDebugThread(t) {
				mark = " [debug]"
			}
			fmt.Printf("thread %d: %s, suspend count %d%s\n", t, state, count, mark)
		}
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(threadsCmd)
}

func parseThreadID(arg string) (vm.ThreadID, error) {
	v, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid thread id: %v", err)
	}
	return vm.ThreadID(v), nil
}
