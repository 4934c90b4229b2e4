package commands

import (
	"github.com/spf13/cobra"

	"github.com/xupit3r/tinylm/internal/transformer"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for tinylm.

To load completions:

Bash:
  $ tinylm completion bash > ~/.local/share/bash-completion/completions/tinylm
  $ source ~/.local/share/bash-completion/completions/tinylm

Zsh:
  $ tinylm completion zsh > ~/.zsh/completion/_tinylm
  $ echo 'fpath=(~/.zsh/completion $fpath)' >> ~/.zshrc
  $ echo 'autoload -Uz compinit && compinit' >> ~/.zshrc

Fish:
  $ tinylm completion fish > ~/.config/fish/completions/tinylm.fish

PowerShell:
  PS> tinylm completion powershell | Out-String | Invoke-Expression
  # To persist, add the output to your PowerShell profile
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	PersistentPreRunE:     func(cmd *cobra.Command, args []string) error { return nil },
	RunE:                  runCompletion,
}

func init() {
	rootCmd.AddCommand(completionCmd)

	rootCmd.RegisterFlagCompletionFunc("activation", completeActivation)
}

func runCompletion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	switch args[0] {
	case "bash":
		return cmd.Root().GenBashCompletion(out)
	case "zsh":
		return cmd.Root().GenZshCompletion(out)
	case "fish":
		return cmd.Root().GenFishCompletion(out, true)
	case "powershell":
		return cmd.Root().GenPowerShellCompletionWithDesc(out)
	}
	return nil
}

// completeActivation offers the supported feed-forward activations
func completeActivation(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{
		string(transformer.ActivationGELU) + "\texact error-function GELU",
		string(transformer.ActivationGELUTanh) + "\ttanh approximation of GELU",
	}, cobra.ShellCompDirectiveNoFileComp
}
