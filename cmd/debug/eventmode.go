package debug

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/vmdbg/vm"
)

var eventModeCmd = &cobra.Command{
	Use:   "eventmode <enable|disable> <kind> [tid]",
	Short: "enable or disable an event kind, per thread or globally",
	Long: `enable or disable an event kind, per thread or globally.

When the thread has not started yet the request is queued and applied
by its start event.`,
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupEvents,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) < 2 || len(args) > 3 {
			return errors.New("invalid arguments")
		}

		var mode vm.EventMode
		switch args[0] {
		case "enable":
			mode = vm.ModeEnable
		case "disable":
			mode = vm.ModeDisable
		default:
			return fmt.Errorf("invalid mode: %s", args[0])
		}

		kind, err := parseEventKind(args[1])
		if err != nil {
			return err
		}

		var t vm.ThreadID
		if len(args) == 3 {
			if t, err = parseThreadID(args[2]); err != nil {
				return err
			}
		}

		return TargetSession.Controller().SetEventMode(mode, kind, t)
	},
}

func init() {
	debugRootCmd.AddCommand(eventModeCmd)
}

func parseEventKind(arg string) (vm.EventKind, error) {
	kinds := map[string]vm.EventKind{
		"step":       vm.EventSingleStep,
		"breakpoint": vm.EventBreakpoint,
		"exception":  vm.EventException,
		"access":     vm.EventFieldAccess,
		"modify":     vm.EventFieldModification,
		"entry":      vm.EventMethodEntry,
		"exit":       vm.EventMethodExit,
	}
	if k, ok := kinds[strings.ToLower(arg)]; ok {
		return k, nil
	}
	return vm.EventNone, fmt.Errorf("invalid event kind: %s", arg)
}
