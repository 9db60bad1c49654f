package debug

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/hitzhangjie/vmdbg/agent"
	"github.com/hitzhangjie/vmdbg/vm/sim"
)

const (
	cmdGroupAnnotation = "cmd_group_annotation"

	cmdGroupThreads = "1-threads"
	cmdGroupSuspend = "2-suspend"
	cmdGroupEvents  = "3-events"
	cmdGroupFrames  = "4-frames"
	cmdGroupOthers  = "5-other"
	cmdGroupCobra   = "other"

	cmdGroupDelimiter = "-"

	prefix    = "vmdbg> "
	descShort = "vmdbg interactive debugging commands"
)

var debugRootCmd = &cobra.Command{
	Use:   "help [command]",
	Short: descShort,
}

var (
	CurrentSession *DebugSession

	// TargetSession is the agent session the shell commands operate on,
	// set up by the launching command before the shell starts.
	TargetSession *agent.Session

	// TargetRuntime is the simulated runtime behind TargetSession; shell
	// commands use it to spawn threads and fire events.
	TargetRuntime *sim.Runtime
)

// DebugSession is the interactive debugging session
type DebugSession struct {
	done   chan bool
	prefix string
	root   *cobra.Command
	liner  *liner.State
	last   string

	defers []func()
}

// NewDebugSession creates a interaction manager for debugging
func NewDebugSession() *DebugSession {

	fn := func(cmd *cobra.Command, args []string) {
		// short description
		fmt.Println(cmd.Short)
		fmt.Println()

		// usage
		fmt.Println(cmd.Use)
		fmt.Println(cmd.Flags().FlagUsages())

		// command groups
		usage := helpMessageByGroups(cmd)
		fmt.Println(usage)
	}
	debugRootCmd.SetHelpFunc(fn)

	return &DebugSession{
		done:   make(chan bool),
		prefix: prefix,
		root:   debugRootCmd,
		liner:  liner.NewLiner(),
		last:   "",
	}
}

func (s *DebugSession) Start() {
	s.liner.SetCompleter(completer)
	s.liner.SetTabCompletionStyle(liner.TabPrints)

	defer func() {
		for idx := len(s.defers) - 1; idx >= 0; idx-- {
			s.defers[idx]()
		}
	}()

	for {
		select {
		case <-s.done:
			s.liner.Close()
			return
		default:
		}

		txt, err := s.liner.Prompt(s.prefix)
		if err != nil {
			panic(err)
		}

		txt = strings.TrimSpace(txt)
		if len(txt) != 0 {
			s.last = txt
			s.liner.AppendHistory(txt)
		} else {
			txt = s.last
		}

		s.root.SetArgs(strings.Split(txt, " "))
		s.root.Execute()
	}
}

func (s *DebugSession) AtExit(fn func()) *DebugSession {
	s.defers = append(s.defers, fn)
	return s
}

func (s *DebugSession) Stop() {
	close(s.done)
}

func completer(line string) []string {
	cmds := []string{}
	for _, c := range debugRootCmd.Commands() {
		// complete cmd
		if strings.HasPrefix(c.Use, line) {
			cmds = append(cmds, strings.Split(c.Use, " ")[0])
		}
		// complete cmd's aliases
		for _, alias := range c.Aliases {
			if strings.HasPrefix(alias, line) {
				cmds = append(cmds, alias)
			}
		}
	}
	return cmds
}

// helpMessageByGroups classifies commands by group, then renders the help
func helpMessageByGroups(cmd *cobra.Command) string {

	// key:group, val:sorted commands in same group
	groups := map[string][]string{}
	for _, c := range cmd.Commands() {
		// commands without a group go into the other group
		var groupName string
		v, ok := c.Annotations[cmdGroupAnnotation]
		if !ok {
			groupName = "other"
		} else {
			groupName = v
		}

		groupCmds, ok := groups[groupName]
		groupCmds = append(groupCmds, fmt.Sprintf("  %-16s:%s", c.Name(), c.Short))
		sort.Strings(groupCmds)

		groups[groupName] = groupCmds
	}

	if len(groups[cmdGroupCobra]) != 0 {
		groups[cmdGroupOthers] = append(groups[cmdGroupOthers], groups[cmdGroupCobra]...)
	}
	delete(groups, cmdGroupCobra)

	// sort by group name
	groupNames := []string{}
	for k, _ := range groups {
		groupNames = append(groupNames, k)
	}
	sort.Strings(groupNames)

	// render each group, commands sorted within the group
	buf := bytes.Buffer{}
	for _, groupName := range groupNames {
		commands, _ := groups[groupName]

		group := strings.Split(groupName, cmdGroupDelimiter)[1]
		buf.WriteString(fmt.Sprintf("- [%s]\n", group))

		for _, cmd := range commands {
			buf.WriteString(fmt.Sprintf("%s\n", cmd))
		}
		buf.WriteString("\n")
	}
	return buf.String()
}

// Cleanup tears the debugging session down
func Cleanup() {
	if TargetSession == nil {
		return
	}
	if err := TargetSession.Close(); err != nil {
		fmt.Printf("close session err: %v\n", err)
	}
}
