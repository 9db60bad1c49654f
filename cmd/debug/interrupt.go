package debug

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var interruptCmd = &cobra.Command{
	Use:   "interrupt <tid>",
	Short: "interrupt a thread",
	Long: `interrupt a thread.

If the thread is in the middle of handling an event the interrupt is
held and delivered when the event finishes.`,
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupOthers,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("invalid arguments")
		}
		t, err := parseThreadID(args[0])
		if err != nil {
			return err
		}
		if err := TargetSession.Controller().Interrupt(t); err != nil {
			return err
		}
		fmt.Printf("thread %d interrupted\n", t)
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(interruptCmd)
}
