package debug

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/vmdbg/vm"
)

var stopCmd = &cobra.Command{
	Use:   "stop <tid> <throwable>",
	Short: "throw an exception object in a thread",
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupOthers,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return errors.New("invalid arguments")
		}
		t, err := parseThreadID(args[0])
		if err != nil {
			return err
		}
		obj, err := strconv.ParseInt(args[1], 0, 64)
		if err != nil {
			return fmt.Errorf("invalid throwable ref: %v", err)
		}
		if err := TargetSession.Controller().Stop(t, vm.ObjectRef(obj)); err != nil {
			return err
		}
		fmt.Printf("stop requested for thread %d\n", t)
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(stopCmd)
}
