package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	seriesBestOf int
	declineFlag  bool
	afterFlag    uint64
	waitFlag     int
)

func init() {
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(challengeCmd)
	rootCmd.AddCommand(respondCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(rematchCmd)
	rootCmd.AddCommand(readyCmd)
	rootCmd.AddCommand(unreadyCmd)
	rootCmd.AddCommand(spectatorsCmd)
	rootCmd.AddCommand(spectateCmd)
	rootCmd.AddCommand(lobbyCmd)

	challengeCmd.Flags().IntVar(&seriesBestOf, "best-of", 0, "Challenge to a best-of-N series instead of a single match")
	respondCmd.Flags().BoolVar(&declineFlag, "decline", false, "Decline instead of accepting")
	viewCmd.Flags().Uint64Var(&afterFlag, "after", 0, "Wait for a revision newer than this one")
	viewCmd.Flags().IntVar(&waitFlag, "wait", 25, "Seconds to wait with --after")
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health of the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return performRequest(http.MethodGet, "/health", nil, nil)
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Get application metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return performRequest(http.MethodGet, "/metrics", nil, nil)
	},
}

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Show what the player currently sees",
	RunE: func(cmd *cobra.Command, args []string) error {
		query := url.Values{}
		if cmd.Flags().Changed("after") {
			query.Set("after", strconv.FormatUint(afterFlag, 10))
			query.Set("wait", strconv.Itoa(waitFlag))
		}
		return playerRequest(http.MethodGet, "/view", query, nil)
	},
}

var challengeCmd = &cobra.Command{
	Use:   "challenge <user>",
	Short: "Challenge another player to a match or series",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{"to": args[0], "kind": "single"}
		if seriesBestOf > 0 {
			body["kind"] = "series"
			body["bestOf"] = seriesBestOf
		}
		return playerRequest(http.MethodPost, "/challenges", nil, body)
	},
}

var respondCmd = &cobra.Command{
	Use:   "respond <challenge-id>",
	Short: "Accept or decline an incoming challenge",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return playerRequest(http.MethodPost, "/challenges/respond", nil, map[string]any{"id": args[0], "accept": !declineFlag})
	},
}

var openCmd = &cobra.Command{
	Use:   "open <challenge-id>",
	Short: "Follow a challenge until it is answered",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return playerRequest(http.MethodPost, "/challenges/open", nil, map[string]any{"id": args[0]})
	},
}

var moveCmd = &cobra.Command{
	Use:   "move <0-8>",
	Short: "Place your symbol on a slot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("slot must be a number: %w", err)
		}
		return playerRequest(http.MethodPost, "/move", nil, map[string]any{"index": index})
	},
}

var rematchCmd = &cobra.Command{
	Use:       "rematch <request|accept|decline>",
	Short:     "Offer, accept or decline a rematch",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"request", "accept", "decline"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return playerRequest(http.MethodPost, "/rematch/"+args[0], nil, nil)
	},
}

var readyCmd = &cobra.Command{
	Use:   "ready",
	Short: "Signal that you want the next series game",
	RunE: func(cmd *cobra.Command, args []string) error {
		return playerRequest(http.MethodPost, "/series/ready", nil, nil)
	},
}

var unreadyCmd = &cobra.Command{
	Use:   "unready",
	Short: "Withdraw your readiness for the next series game",
	RunE: func(cmd *cobra.Command, args []string) error {
		return playerRequest(http.MethodPost, "/series/unready", nil, nil)
	},
}

var spectatorsCmd = &cobra.Command{
	Use:       "spectators <on|off>",
	Short:     "Allow or block spectators on your match",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return playerRequest(http.MethodPost, "/spectators/toggle", nil, map[string]any{"allow": args[0] == "on"})
	},
}

var spectateCmd = &cobra.Command{
	Use:   "spectate <match-id>",
	Short: "Watch another players' match",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return playerRequest(http.MethodPost, "/spectate", nil, map[string]any{"id": args[0]})
	},
}

var lobbyCmd = &cobra.Command{
	Use:   "lobby",
	Short: "Return to the lobby",
	RunE: func(cmd *cobra.Command, args []string) error {
		return playerRequest(http.MethodPost, "/lobby", nil, nil)
	},
}

func playerRequest(method, endpoint string, query url.Values, body any) error {
	if user == "" {
		return errors.New("no player given: use --user or DUEL_USER")
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("user", user)
	return performRequest(method, endpoint, query, body)
}

func performRequest(method, endpoint string, query url.Values, body any) error {
	target := host + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	fmt.Printf("Making request to %s\n", target)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	fmt.Printf("Status Code: %d\n", resp.StatusCode)
	fmt.Println("Response Body:")
	var pretty bytes.Buffer
	if json.Indent(&pretty, respBody, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(respBody))
	}
	return nil
}
