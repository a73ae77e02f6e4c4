// Package main implements the marketctl CLI for manual operations against
// the marketd HTTP server.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the marketd HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "marketctl",
	Short: "CLI for marketd HTTP server operations",
	Long: `marketctl is a command-line interface for driving marketd sessions.
It triggers commissioned work, supplies the human decisions the orchestrator
waits on, and inspects session state, balances, and the live event feed.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8787", "marketd server URL")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(approveBidsCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(balancesCmd)
	rootCmd.AddCommand(watchCmd)
}

// getJSON performs a GET and decodes the JSON response into out.
func getJSON(path string, timeout time.Duration, out any) error {
	client := &http.Client{Timeout: timeout}

	url := serverURL + path
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// postJSON performs a POST with a JSON body and decodes the response into
// out when out is non-nil.
func postJSON(path string, body, out any) error {
	reqJSON, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := serverURL + path
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check marketd server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		var health struct {
			Status string `json:"status"`
		}
		if err := getJSON("/health", 5*time.Second, &health); err != nil {
			return err
		}
		fmt.Printf("Server Status: %s\n", health.Status)
		return nil
	},
}

// statusCmd shows the current session
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session state",
	RunE: func(cmd *cobra.Command, args []string) error {
		var status json.RawMessage
		if err := getJSON("/api/status", 10*time.Second, &status); err != nil {
			return err
		}
		return printIndented(status)
	},
}

var (
	triggerPaperURL    string
	triggerBudget      int64
	triggerDescription string
)

// triggerCmd starts a new session
var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Trigger a new commissioned work session",
	Long: `Trigger a new commissioned work session.

Examples:
  marketctl trigger --paper-url https://arxiv.org/abs/1706.03762 --budget 1000
  marketctl trigger --paper-url https://example.org/paper --budget 500 --description "turn it into a course"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if triggerPaperURL == "" {
			return fmt.Errorf("--paper-url is required")
		}
		if triggerBudget <= 0 {
			return fmt.Errorf("--budget must be positive")
		}

		body := map[string]any{
			"paperUrl":    triggerPaperURL,
			"budget":      triggerBudget,
			"description": triggerDescription,
		}
		var started struct {
			RequestID string `json:"requestId"`
			Status    string `json:"status"`
		}
		if err := postJSON("/api/marketplace/trigger", body, &started); err != nil {
			return err
		}
		fmt.Printf("Session %s: %s\n", started.RequestID, started.Status)
		return nil
	},
}

var (
	approveAnalystAccount   string
	approveAnalystPrice     int64
	approveArchitectAccount string
	approveArchitectPrice   int64
)

// approveBidsCmd resolves the bid-approval wait
var approveBidsCmd = &cobra.Command{
	Use:   "approve-bids",
	Short: "Approve bids and set the price allocation for both roles",
	Long: `Approve bids while the session is in AWAITING_BID_APPROVAL.

Example:
  marketctl approve-bids \
    --analyst-account 0.0.1001 --analyst-price 400 \
    --architect-account 0.0.1002 --architect-price 500`,
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{
			"analystAccountId":   approveAnalystAccount,
			"analystPrice":       approveAnalystPrice,
			"architectAccountId": approveArchitectAccount,
			"architectPrice":     approveArchitectPrice,
		}
		if err := postJSON("/api/marketplace/bid-approval", body, nil); err != nil {
			return err
		}
		fmt.Println("Bid approval accepted")
		return nil
	},
}

var (
	reviewAnalystApproved   bool
	reviewAnalystScore      int
	reviewAnalystFeedback   string
	reviewArchitectApproved bool
	reviewArchitectScore    int
	reviewArchitectFeedback string
)

// reviewCmd resolves the review wait
var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Submit the client review for both deliverables",
	Long: `Submit the client review while the session is in AWAITING_REVIEW.

Example:
  marketctl review \
    --analyst-approved --analyst-score 95 --analyst-feedback "thorough" \
    --architect-approved --architect-score 88`,
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{
			"analystApproved":   reviewAnalystApproved,
			"analystScore":      reviewAnalystScore,
			"analystFeedback":   reviewAnalystFeedback,
			"architectApproved": reviewArchitectApproved,
			"architectScore":    reviewArchitectScore,
			"architectFeedback": reviewArchitectFeedback,
		}
		if err := postJSON("/api/marketplace/review", body, nil); err != nil {
			return err
		}
		fmt.Println("Review accepted")
		return nil
	},
}

// resetCmd abandons the current session
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Abandon the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := postJSON("/api/marketplace/reset", map[string]any{}, nil); err != nil {
			return err
		}
		fmt.Println("Session reset")
		return nil
	},
}

// balancesCmd shows settled balances
var balancesCmd = &cobra.Command{
	Use:   "balances",
	Short: "Show settled account balances",
	RunE: func(cmd *cobra.Command, args []string) error {
		var balances struct {
			Asset    string `json:"asset"`
			Balances []struct {
				Name    string `json:"name"`
				Account string `json:"account"`
				Balance int64  `json:"balance"`
			} `json:"balances"`
		}
		if err := getJSON("/api/monitor/balances", 10*time.Second, &balances); err != nil {
			return err
		}

		fmt.Printf("Asset: %s\n", balances.Asset)
		for _, b := range balances.Balances {
			fmt.Printf("  %-10s %-20s %d\n", b.Name, b.Account, b.Balance)
		}
		return nil
	},
}

// watchCmd streams the live event feed
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream the live session event feed",
	Long:  `Stream server-sent events from the session feed until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		url := serverURL + "/api/marketplace/feed"
		resp, err := http.Get(url)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return statusError(resp)
		}

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			fmt.Println(strings.TrimPrefix(line, "data: "))
		}
		return scanner.Err()
	},
}

func printIndented(raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("failed to format response: %w", err)
	}
	fmt.Println(buf.String())
	return nil
}

func init() {
	triggerCmd.Flags().StringVar(&triggerPaperURL, "paper-url", "", "URL of the paper to commission work on")
	triggerCmd.Flags().Int64Var(&triggerBudget, "budget", 0, "budget to lock in escrow")
	triggerCmd.Flags().StringVar(&triggerDescription, "description", "", "free-form description of the commission")

	approveBidsCmd.Flags().StringVar(&approveAnalystAccount, "analyst-account", "", "account to pay for the analyst role")
	approveBidsCmd.Flags().Int64Var(&approveAnalystPrice, "analyst-price", 0, "approved price for the analyst role")
	approveBidsCmd.Flags().StringVar(&approveArchitectAccount, "architect-account", "", "account to pay for the architect role")
	approveBidsCmd.Flags().Int64Var(&approveArchitectPrice, "architect-price", 0, "approved price for the architect role")

	reviewCmd.Flags().BoolVar(&reviewAnalystApproved, "analyst-approved", false, "approve the analyst deliverable")
	reviewCmd.Flags().IntVar(&reviewAnalystScore, "analyst-score", 0, "score for the analyst (0-100)")
	reviewCmd.Flags().StringVar(&reviewAnalystFeedback, "analyst-feedback", "", "feedback for the analyst")
	reviewCmd.Flags().BoolVar(&reviewArchitectApproved, "architect-approved", false, "approve the architect deliverable")
	reviewCmd.Flags().IntVar(&reviewArchitectScore, "architect-score", 0, "score for the architect (0-100)")
	reviewCmd.Flags().StringVar(&reviewArchitectFeedback, "architect-feedback", "", "feedback for the architect")
}
