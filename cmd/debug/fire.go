package debug

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/vmdbg/vm"
)

var fireLoc string

var fireCmd = &cobra.Command{
	Use:   "fire <kind> <tid>",
	Short: "deliver an event on a thread",
	Long: `deliver an event on a thread, as the runtime would when the thread
trips a breakpoint, steps, throws, or touches a watched field.`,
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupEvents,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return errors.New("invalid arguments")
		}
		kind, err := parseEventKind(args[0])
		if err != nil {
			return err
		}
		t, err := parseThreadID(args[1])
		if err != nil {
			return err
		}

		var loc vm.Location
		if fireLoc != "" {
			idx, err := strconv.ParseInt(fireLoc, 0, 64)
			if err != nil {
				return fmt.Errorf("invalid location: %v", err)
			}
			loc.CodeIndex = idx
		}

		return TargetSession.Dispatch(kind, t, loc)
	},
}

func init() {
	fireCmd.Flags().StringVar(&fireLoc, "at", "", "code index of the event location")
	debugRootCmd.AddCommand(fireCmd)
}
