/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hitzhangjie/vmdbg/agent"
	"github.com/hitzhangjie/vmdbg/cmd/debug"
	"github.com/hitzhangjie/vmdbg/vm"
	"github.com/hitzhangjie/vmdbg/vm/sim"
)

// simCmd represents the sim command
var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "debug a simulated runtime",
	Long: `debug a simulated runtime.

A simulated managed runtime is started with a few pre-existing threads,
then the interactive shell drives the agent against it. This is the
playground mode: no real VM is needed to exercise suspend/resume,
deferred event modes and frame popping.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

		rt := sim.NewRuntime()
		for i := 1; i <= viper.GetInt("sim.threads"); i++ {
			rt.CreateThread(vm.ThreadID(i), false, true)
			rt.SetFrames(vm.ThreadID(i), 8)
		}

		session := agent.New(rt, log,
			agent.WithRetainLightweight(viper.GetBool("retain-lightweight")))
		if err := session.Controller().OnHook(); err != nil {
			return err
		}
		debug.TargetSession = session
		debug.TargetRuntime = rt
		return nil
	},
	PostRun: func(cmd *cobra.Command, args []string) {
		debug.CurrentSession = debug.NewDebugSession().AtExit(debug.Cleanup)
		debug.CurrentSession.Start()
	},
}

func init() {
	simCmd.Flags().Int("threads", 3, "number of pre-existing threads")
	simCmd.Flags().Bool("retain-lite", false, "keep lightweight thread records after their last resume")
	_ = viper.BindPFlag("sim.threads", simCmd.Flags().Lookup("threads"))
	_ = viper.BindPFlag("retain-lightweight", simCmd.Flags().Lookup("retain-lite"))
	rootCmd.AddCommand(simCmd)
}
