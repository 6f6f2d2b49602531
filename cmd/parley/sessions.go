package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"parley/session"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions := session.ListAllSessions(sessionsLimit)
		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}
		for _, info := range sessions {
			name := info.Name
			if name == "" {
				name = "(unnamed)"
			}
			fmt.Printf("%-12s %-16s %-20s %s\n", info.SessionID[:min(12, len(info.SessionID))], info.DateStr(), info.Project, name)
		}
		return nil
	},
}

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "maximum sessions to list")
}
