package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and store the session token",
		RunE:  runLogin,
	}

	cmd.Flags().StringP("username", "u", "", "username (prompted when omitted)")

	return cmd
}

func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Create a new account",
		RunE:  runRegister,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session token",
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the logged-in user and server",
		RunE:  runWhoami,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := cmd.Context()

	username, _ := cmd.Flags().GetString("username") //nolint:errcheck // flag is registered above
	if username == "" {
		var err error

		username, err = promptLine("Username: ")
		if err != nil {
			return err
		}
	}

	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	store := sessionStore(logger)
	client := newAPIClient(store, nil, logger)

	token, err := client.Login(ctx, username, password)
	if err != nil {
		return err
	}

	meta := map[string]string{
		"username": username,
		"server":   resolvedCfg.ServerURL,
	}
	if err := store.Set(token, meta); err != nil {
		return err
	}

	logger.Info("login successful", "username", username)
	statusf("Login successful.\n")

	return nil
}

func runRegister(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := cmd.Context()

	username, err := promptLine("Username: ")
	if err != nil {
		return err
	}

	email, err := promptLine("Email: ")
	if err != nil {
		return err
	}

	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return err
	}

	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	client := newAPIClient(sessionStore(logger), nil, logger)

	message, err := client.Register(ctx, username, email, password)
	if err != nil {
		return err
	}

	if message == "" {
		message = "Registration successful. Run 'vidqueue login' to sign in."
	}

	statusf("%s\n", message)

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	logger := buildLogger()

	if err := sessionStore(logger).Clear(); err != nil {
		return err
	}

	statusf("Logged out.\n")

	return nil
}

func runWhoami(_ *cobra.Command, _ []string) error {
	logger := buildLogger()
	store := sessionStore(logger)

	if _, err := store.Token(); err != nil {
		return fmt.Errorf("not logged in, run 'vidqueue login' first")
	}

	meta := store.Meta()

	fmt.Printf("User:   %s\n", meta["username"])
	fmt.Printf("Server: %s\n", resolvedCfg.ServerURL)

	return nil
}

// promptLine reads one line from stdin.
func promptLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	reader := bufio.NewReader(os.Stdin)

	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}

	return strings.TrimSpace(line), nil
}

// promptPassword reads a password without echoing it. Falls back to a
// plain line read when stdin is not a terminal (piped input in tests
// and scripts).
func promptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptLine(prompt)
	}

	fmt.Fprint(os.Stderr, prompt)

	raw, err := term.ReadPassword(fd)

	fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	return strings.TrimSpace(string(raw)), nil
}
