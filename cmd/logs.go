package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs <job-id>",
	Short: "Show the log stream of an automation run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, st, err := newService(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		logs, err := svc.GetLogs(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(logs) == 0 {
			fmt.Println("기록된 로그가 없습니다.")
			return nil
		}
		// Stored newest first; print oldest first for reading.
		for i := len(logs) - 1; i >= 0; i-- {
			fmt.Printf("%s  %s\n", logs[i].CreatedAt.Local().Format("2006-01-02 15:04:05"), logs[i].Message)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
}
