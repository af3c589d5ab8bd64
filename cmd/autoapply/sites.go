package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/amishk599/autoapply/internal/config"
	"github.com/amishk599/autoapply/internal/secrets"
	"github.com/spf13/cobra"
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List configured sites",
	Long:  "Reads the config and prints a table of all configured sites.",
	RunE:  runSites,
}

var sitesLoginCmd = &cobra.Command{
	Use:   "login <site>",
	Short: "Store login credentials for a site in the OS keychain",
	Long:  "Reads a username and password from stdin and stores them in the OS keychain.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSitesLogin,
}

var sitesLogoutCmd = &cobra.Command{
	Use:   "logout <site>",
	Short: "Remove stored credentials for a site",
	Args:  cobra.ExactArgs(1),
	RunE:  runSitesLogout,
}

func init() {
	sitesCmd.AddCommand(sitesLoginCmd, sitesLogoutCmd)
	rootCmd.AddCommand(sitesCmd)
}

func runSites(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	keyring := secrets.NewKeyring()
	fmt.Printf("%-20s %-12s %-10s %s\n", "Site", "Kind", "Status", "Login")
	fmt.Println(strings.Repeat("─", 58))

	enabled, disabled := 0, 0
	for _, s := range cfg.Sites {
		status := "enabled"
		if !s.Enabled {
			status = "disabled"
			disabled++
		} else {
			enabled++
		}
		fmt.Printf("%-20s %-12s %-10s %s\n", s.Name, s.Kind, status, loginState(s, keyring))
	}

	fmt.Printf("\nTotal: %d sites (%d enabled, %d disabled)\n", len(cfg.Sites), enabled, disabled)
	return nil
}

func loginState(s config.SiteConfig, k *secrets.Keyring) string {
	if s.Kind != config.KindHTMLBoard || s.LoginURL == "" {
		return "-"
	}
	if _, _, err := k.Credentials(s.Name); err != nil {
		if s.RequireLogin {
			return "missing"
		}
		return "anonymous"
	}
	return "stored"
}

func runSitesLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	site, ok := cfg.Site(args[0])
	if !ok {
		return fmt.Errorf("unknown site %q", args[0])
	}
	if site.LoginURL == "" {
		return fmt.Errorf("site %s has no login_url", site.Name)
	}

	in := bufio.NewReader(os.Stdin)
	fmt.Fprintf(os.Stderr, "%s username: ", site.Name)
	user, err := in.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read username: %w", err)
	}
	fmt.Fprintf(os.Stderr, "%s password: ", site.Name)
	pass, err := in.ReadString('\n')
	if err != nil && pass == "" {
		return fmt.Errorf("read password: %w", err)
	}

	if err := secrets.NewKeyring().Store(site.Name, strings.TrimSpace(user), strings.TrimRight(pass, "\r\n")); err != nil {
		return err
	}
	fmt.Printf("credentials for %s stored in the keychain\n", site.Name)
	return nil
}

func runSitesLogout(cmd *cobra.Command, args []string) error {
	if err := secrets.NewKeyring().Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("credentials for %s removed\n", args[0])
	return nil
}
