package cmd

import (
	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for fluxbuild.

To load completions:

Bash:
  $ source <(fluxbuild completion bash)

  # To load completions for each session, execute once:
  $ fluxbuild completion bash > /etc/bash_completion.d/fluxbuild

Zsh:
  $ fluxbuild completion zsh > "${fpath[1]}/_fluxbuild"

Fish:
  $ fluxbuild completion fish > ~/.config/fish/completions/fluxbuild.fish

PowerShell:
  PS> fluxbuild completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletionV2(out, true)
		case "zsh":
			return cmd.Root().GenZshCompletion(out)
		case "fish":
			return cmd.Root().GenFishCompletion(out, true)
		default:
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
	},
}
