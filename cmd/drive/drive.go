// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package drive provides the CLI surface for the operator-facing drive
// commands (pause/resume/ping-now/quarantine release/config), issued over
// the HTTP status surface the running daemon exposes.
package drive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinkershack/drive-revenant/config"
)

func baseURL() string {
	cfg := config.GetConfig()
	return fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
}

func NewDriveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drive",
		Short: "Control managed drives on a running daemon",
	}
	cmd.AddCommand(newPauseCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newPingNowCmd())
	cmd.AddCommand(newReleaseQuarantineCmd())
	cmd.AddCommand(newSetConfigCmd())
	return cmd
}

func doPost(path string, body []byte) error {
	client := &http.Client{Timeout: 5 * time.Second}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(http.MethodPost, baseURL()+path, reader)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("daemon returned %s: %s", resp.Status, string(payload))
	}
	return nil
}

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause [letter]",
		Short: "Pause a drive (user pause, stays paused through global resume)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doPost("/drives/"+args[0]+"/pause", nil)
		},
	}
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume [letter]",
		Short: "Resume a user-paused drive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doPost("/drives/"+args[0]+"/resume", nil)
		},
	}
}

func newPingNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping-now [letter]",
		Short: "Request an immediate probe on the next tick",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doPost("/drives/"+args[0]+"/ping-now", nil)
		},
	}
}

func newReleaseQuarantineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release-quarantine [letter]",
		Short: "Release a drive from quarantine early",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doPost("/drives/"+args[0]+"/quarantine/release", nil)
		},
	}
}

func newSetConfigCmd() *cobra.Command {
	var intervalSec int
	var driveType string
	var enabled bool

	cmd := &cobra.Command{
		Use:   "set-config [letter]",
		Short: "Update a drive's interval, type, or enabled state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]any{}
			if cmd.Flags().Changed("interval-sec") {
				payload["interval_sec"] = intervalSec
			}
			if cmd.Flags().Changed("type") {
				payload["type"] = driveType
			}
			if cmd.Flags().Changed("enabled") {
				payload["enabled"] = enabled
			}
			body, err := json.Marshal(payload)
			if err != nil {
				return err
			}
			client := &http.Client{Timeout: 5 * time.Second}
			req, err := http.NewRequest(http.MethodPut, baseURL()+"/drives/"+args[0]+"/config", bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 300 {
				out, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("daemon returned %s: %s", resp.Status, string(out))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&intervalSec, "interval-sec", 0, "New probe interval in seconds")
	cmd.Flags().StringVar(&driveType, "type", "", "Drive type: SSD, HDD, or Removable")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "Whether the drive is enabled")
	return cmd
}
