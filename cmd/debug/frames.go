package debug

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var framesCmd = &cobra.Command{
	Use:   "frames <tid>",
	Short: "show a thread's frame depth and generation",
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
		fmt.Printf("thread %d: %d frame(s), frame generation %d\n",
			t, TargetRuntime.FrameCount(t), TargetSession.Controller().FrameGeneration(t))
		return nil
	},
}

func init() {
	debugRootCmd.AddCommand(framesCmd)
}
