package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/devilmonastery/tessera/internal/config"
)

const shellPrompt = "tessera> "

var errShellStdin = errors.New("standard input is read by the shell; pass --file <path> or --json instead of --file -")

// shellStdin stands in for standard input inside the shell, whose scanner
// owns the real one.
type shellStdin struct{}

func (shellStdin) Read([]byte) (int, error) { return 0, errShellStdin }

func newShellCommand(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run commands interactively",
		Long: `Start a prompt that runs tessera commands one line at a time.

Global flags given to 'shell' apply to every command. A failing command prints
its error and the prompt continues. Commands cannot read standard input, so
'--file -' is rejected. Type 'exit' or 'quit' to leave.

Example:
  $ tessera shell --api-uri https://api.example.com
  tessera> auth login
  tessera> os list-buckets -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := getCliContext(cmd)
			inherited := inheritedFlags(cmd.Root().PersistentFlags())

			nested := deps
			nested.nested = true
			nested.In = shellStdin{}
			nested.Store = cc.Store
			nested.ConfigPath = cc.ConfigPath
			nested.LoadEnv = func() (*config.Env, error) { return cc.Env, nil }

			scanner := bufio.NewScanner(cc.In)
			for {
				if err := cmd.Context().Err(); err != nil {
					return nil
				}
				fmt.Fprint(cc.Err, shellPrompt)
				if !scanner.Scan() {
					fmt.Fprintln(cc.Err)
					return scanner.Err()
				}

				line := strings.TrimSpace(scanner.Text())
				switch line {
				case "":
					continue
				case "exit", "quit":
					return nil
				}

				words, err := shellquote.Split(line)
				if err != nil {
					fmt.Fprintf(cc.Err, "Error: %s\n", err)
					continue
				}

				argv := append(append([]string{}, inherited...), words...)
				if err := Execute(cmd.Context(), nested, argv); err != nil {
					cc.Logger.Debug("shell command failed", "line", line, "error", err)
					fmt.Fprintf(cc.Err, "Error: %s\n", FormatError(err))
				}
			}
		},
	}
}

// inheritedFlags renders the global flags set on the shell invocation so
// each line runs with the same settings.
func inheritedFlags(fs *pflag.FlagSet) []string {
	var args []string
	fs.VisitAll(func(f *pflag.Flag) {
		if !f.Changed || strings.HasPrefix(f.Name, "log") || f.Name == "alsologtostderr" {
			return
		}
		args = append(args, fmt.Sprintf("--%s=%s", f.Name, f.Value.String()))
	})
	return args
}
