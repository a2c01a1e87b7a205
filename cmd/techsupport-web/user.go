package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/foxzi/techsupport/internal/web/models"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "User management commands",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new user",
	RunE:  runUserCreate,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	RunE:  runUserList,
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete [email]",
	Short: "Delete a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserDelete,
}

var userResetPasswordCmd = &cobra.Command{
	Use:   "reset-password [email]",
	Short: "Reset user password",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserResetPassword,
}

var (
	userEmail    string
	userPassword string
	userName     string
	userYes      bool
)

func init() {
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "User email")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "User password (will prompt if not provided)")
	userCreateCmd.Flags().StringVar(&userName, "name", "", "User name")
	_ = userCreateCmd.MarkFlagRequired("email")

	userDeleteCmd.Flags().BoolVarP(&userYes, "yes", "y", false, "Do not ask for confirmation")

	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userDeleteCmd)
	userCmd.AddCommand(userResetPasswordCmd)

	userCmd.PersistentFlags().StringVarP(&configFile, "config", "c", defaultConfigFile, "Path to configuration file")
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	password := userPassword
	if password == "" {
		if password, err = promptPassword("Enter password: "); err != nil {
			return err
		}
	}

	name := userName
	if name == "" {
		name = strings.SplitN(userEmail, "@", 2)[0]
	}
	user := models.User{Name: name, Email: strings.TrimSpace(userEmail), Password: password}
	if err := models.Validate(user); err != nil {
		return err
	}

	p, err := openProvider(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	if _, exists := p.UserByEmail(user.Email); exists {
		return fmt.Errorf("user with email %s already exists", user.Email)
	}
	if _, err := p.AddUser(cmd.Context(), user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "User %s created successfully\n", user.Email)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	p, err := openProvider(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-36s  %-30s  %-20s  %s\n", "ID", "Email", "Name", "Created")
	fmt.Fprintln(out, strings.Repeat("-", 100))
	for _, u := range p.Users() {
		fmt.Fprintf(out, "%-36s  %-30s  %-20s  %s\n", u.ID, u.Email, u.Name, u.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runUserDelete(cmd *cobra.Command, args []string) error {
	email := strings.TrimSpace(args[0])

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	p, err := openProvider(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	user, ok := p.UserByEmail(email)
	if !ok {
		return fmt.Errorf("user %s not found", email)
	}

	if !userYes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Are you sure you want to delete user %s? [y/N]: ", email)) {
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
		return nil
	}

	if err := p.DeleteUser(cmd.Context(), user.ID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "User %s deleted\n", email)
	return nil
}

func runUserResetPassword(cmd *cobra.Command, args []string) error {
	email := strings.TrimSpace(args[0])

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	p, err := openProvider(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	user, ok := p.UserByEmail(email)
	if !ok {
		return fmt.Errorf("user %s not found", email)
	}

	password, err := promptPassword("Enter new password: ")
	if err != nil {
		return err
	}
	if len(password) < models.MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", models.MinPasswordLength)
	}

	user.Password = password
	if err := p.UpdateUser(cmd.Context(), user); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Password for %s updated successfully\n", email)
	return nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	pwBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	fmt.Print("Confirm password: ")
	pwBytes2, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	if string(pwBytes) != string(pwBytes2) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(pwBytes), nil
}

// confirm asks a y/N question and defaults to no
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprint(out, question)
	reader := bufio.NewReader(in)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
