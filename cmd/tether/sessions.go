package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/tether/internal/config"
	"github.com/aretw0/tether/pkg/adapters/redis"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect live sessions",
	Long: `List and inspect live sessions, either from the shared Redis directory
(when redis is configured) or from a running server's /sessions endpoint.`,
}

var sessionsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List live sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		peers, err := listPeers(cmd)
		if err != nil {
			return err
		}
		if len(peers) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No live sessions found.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderPeers(peers, time.Now()))
		return nil
	},
}

var sessionsInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Show a single session as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		peers, err := listPeers(cmd)
		if err != nil {
			return err
		}
		for _, p := range peers {
			if p.ID == args[0] {
				data, err := json.MarshalIndent(p, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
		}
		return fmt.Errorf("session %q: %w", args[0], domain.ErrSessionNotFound)
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsLsCmd)
	sessionsCmd.AddCommand(sessionsInspectCmd)
	sessionsCmd.PersistentFlags().String("server", "http://localhost:8080", "Base URL of a running tether server")
}

func listPeers(cmd *cobra.Command) ([]domain.Peer, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	if cfg.Redis.Enabled {
		return listFromRedis(ctx, cfg)
	}
	server, _ := cmd.Flags().GetString("server")
	return listFromServer(ctx, server)
}

func listFromRedis(ctx context.Context, cfg config.Config) ([]domain.Peer, error) {
	dir := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
		redis.WithPrefix(cfg.Redis.Prefix),
		redis.WithTTL(cfg.Redis.TTL),
	)
	defer dir.Close()
	return dir.List(ctx)
}

func listFromServer(ctx context.Context, base string) ([]domain.Peer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(base, "/")+"/sessions", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.New(strings.TrimSpace(fmt.Sprintf("server returned %s: %s", resp.Status, body)))
	}

	var peers []domain.Peer
	if err := json.NewDecoder(resp.Body).Decode(&peers); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return peers, nil
}

func renderPeers(peers []domain.Peer, now time.Time) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "PATH", "REMOTE", "CONNECTED", "AGE"})
	for _, p := range peers {
		tw.AppendRow(table.Row{
			p.ID,
			p.Path,
			p.RemoteAddr,
			p.ConnectedAt.Format(time.RFC3339),
			now.Sub(p.ConnectedAt).Truncate(time.Second).String(),
		})
	}
	return tw.Render()
}
