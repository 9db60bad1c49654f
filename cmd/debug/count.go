package debug

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var countCmd = &cobra.Command{
	Use:   "count <tid>",
	Short: "show a thread's suspend count",
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
		count, err := TargetSession.Controller().SuspendCount(t)
		if err != nil {
			return err
		}
		fmt.Printf("thread %d suspend count %d\n", t, count)
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(countCmd)
}
