package main

import (
	"fmt"
	"net/url"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ssavin/vetsync/internal/config"
)

// --- sync ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize with the main server",
	Long: `Synchronize with the main server.

By default runs a full pass: connection check, upload of queued local
changes, then download of branch reference data. Use --upload or
--download to run a single leg.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		uploadOnly, _ := cmd.Flags().GetBool("upload")
		downloadOnly, _ := cmd.Flags().GetBool("download")
		if uploadOnly && downloadOnly {
			return fmt.Errorf("--upload and --download are mutually exclusive")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/sync/full"
		switch {
		case uploadOnly:
			path = "/sync/upload"
		case downloadOnly:
			path = "/sync/download"
		}

		printStep("Syncing...")
		resp, err := client.post(cmd.Context(), path, nil)
		if err != nil {
			return err
		}

		var status struct {
			IsOnline     bool `json:"isOnline"`
			PendingCount int  `json:"pendingCount"`
		}
		if err := decodeJSON(resp, &status); err != nil {
			return err
		}

		printSuccess("Sync complete (%d changes still pending)", status.PendingCount)
		return nil
	},
}

func init() {
	syncCmd.Flags().Bool("upload", false, "upload queued changes only")
	syncCmd.Flags().Bool("download", false, "download reference data only")
}

// --- login ---

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Log in against the main server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := args[0]

		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		passBytes, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/login", map[string]string{
			"username": username,
			"password": string(passBytes),
		})
		if err != nil {
			return err
		}

		var session struct {
			Username string `json:"username"`
			FullName string `json:"full_name"`
			Role     string `json:"role"`
		}
		if err := decodeJSON(resp, &session); err != nil {
			return err
		}

		name := session.FullName
		if name == "" {
			name = session.Username
		}
		printSuccess("Logged in as %s (%s)", name, session.Role)
		return nil
	},
}

// --- branches ---

var branchesCmd = &cobra.Command{
	Use:   "branches",
	Short: "List branches of the main server",
	RunE: func(cmd *cobra.Command, args []string) error {
		serverURL, _ := cmd.Flags().GetString("server-url")
		apiKey, _ := cmd.Flags().GetString("api-key")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/branches"
		q := url.Values{}
		if serverURL != "" {
			q.Set("serverUrl", serverURL)
		}
		if apiKey != "" {
			q.Set("apiKey", apiKey)
		}
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var result struct {
			Branches []struct {
				ID      string `json:"id"`
				Name    string `json:"name"`
				Address string `json:"address"`
			} `json:"branches"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Branches) == 0 {
			fmt.Println("No branches found.")
			return nil
		}
		for _, b := range result.Branches {
			line := fmt.Sprintf("%s  %s", colorize(colorCyan, b.ID), b.Name)
			if b.Address != "" {
				line += "  (" + b.Address + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	branchesCmd.Flags().String("server-url", "", "probe this server URL instead of the configured one")
	branchesCmd.Flags().String("api-key", "", "probe with this API key instead of the configured one")
}

// --- queue ---

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show the sync queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/queue?limit=%d", limit))
		if err != nil {
			return err
		}

		var result struct {
			Pending int `json:"pending"`
			Items   []struct {
				ID           int64  `json:"id"`
				ActionType   string `json:"action_type"`
				Status       string `json:"status"`
				ErrorMessage string `json:"error_message"`
				CreatedAt    string `json:"created_at"`
			} `json:"items"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printStatus("Pending", "%d", result.Pending)
		for _, item := range result.Items {
			status := item.Status
			switch status {
			case "success":
				status = colorize(colorGreen, status)
			case "error":
				status = colorize(colorRed, status)
			default:
				status = colorize(colorYellow, status)
			}
			line := fmt.Sprintf("%6d  %-20s %s  %s", item.ID, item.ActionType, status, item.CreatedAt)
			if item.ErrorMessage != "" {
				line += "  " + colorize(colorRed, item.ErrorMessage)
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	queueCmd.Flags().Int("limit", 20, "maximum number of queue items to list")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
