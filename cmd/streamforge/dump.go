package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func newDumpCmd() *cobra.Command {
	var addr, token string
	cmd := &cobra.Command{
		Use:   "dump <path>",
		Short: "Ask a running serve instance to write a state dump",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			body, err := json.Marshal(map[string]string{"path": args[0]})
			if err != nil {
				return err
			}
			req, err := http.NewRequest(http.MethodPost, addr+"/v1/dump", bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("dump: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("dump: admin API returned %s", resp.Status)
			}
			fmt.Printf("state written to %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:8970", "admin API base URL")
	cmd.Flags().StringVar(&token, "token", "", "bearer token for the admin API")
	return cmd
}
