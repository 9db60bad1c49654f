package debug

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var spawnLite bool

var spawnCmd = &cobra.Command{
	Use:   "spawn <tid>",
	Short: "create a not-yet-started thread in the simulated runtime",
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
		TargetRuntime.CreateThread(t, spawnLite, false)
		fmt.Printf("spawned thread %d (lightweight: %v), not started\n", t, spawnLite)
		return nil
	},
}

func init() {
	spawnCmd.Flags().BoolVar(&spawnLite, "lite", false, "create a lightweight thread")
	debugRootCmd.AddCommand(spawnCmd)
}
