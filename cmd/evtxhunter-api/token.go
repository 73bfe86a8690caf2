package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/evtxhunter/evtxhunter/internal/apiauth"
)

var tokenName string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Provision bearer tokens for the Alerts API",
}

var tokenHashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Hash a bearer token for auth.static_tokens",
	Long: `hash prompts for a raw bearer token without echoing it to the
terminal, then prints a YAML snippet with its bcrypt hash that can be
pasted into auth.static_tokens in the server config.

Example:
  evtxhunter-api token hash --name ops-oncall`,
	RunE: runTokenHash,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenHashCmd)

	tokenHashCmd.Flags().StringVar(&tokenName, "name", "", "name to associate with the token (required)")
	tokenHashCmd.MarkFlagRequired("name")
}

func runTokenHash(cmd *cobra.Command, args []string) error {
	raw, err := promptSecret("Enter bearer token: ")
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("token must not be empty")
	}

	confirm, err := promptSecret("Confirm bearer token: ")
	if err != nil {
		return fmt.Errorf("read token confirmation: %w", err)
	}
	if raw != confirm {
		return fmt.Errorf("tokens do not match")
	}

	hash, err := apiauth.HashToken(raw)
	if err != nil {
		return fmt.Errorf("hash token: %w", err)
	}

	fmt.Printf("\nauth:\n  static_tokens:\n    - name: %s\n      secret_hash: %q\n", tokenName, hash)
	return nil
}

// promptSecret prompts for a secret without echoing it to the terminal,
// falling back to plain line reading when stdin isn't a TTY (e.g. piped
// input in a script).
func promptSecret(prompt string) (string, error) {
	fmt.Print(prompt)

	fd := int(syscall.Stdin)
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
