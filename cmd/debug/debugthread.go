package debug

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var debugThreadRemove bool

var debugThreadCmd = &cobra.Command{
	Use:   "debugthread <tid>",
	Short: "mark a thread as agent-owned so suspendall skips it",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupEvents,
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
		if debugThreadRemove {
			if err := ctl.RemoveDebugThread(t); err != nil {
				return err
			}
			fmt.Printf("thread %d is an application thread again\n", t)
			return nil
		}
		if err := ctl.AddDebugThread(t); err != nil {
			return err
		}
		fmt.Printf("thread %d is now a debug thread\n", t)
		return nil
	},
}

func init() {
	debugThreadCmd.Flags().BoolVar(&debugThreadRemove, "remove", false, "unmark instead")
	debugRootCmd.AddCommand(debugThreadCmd)
}
