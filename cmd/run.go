package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pyramid-ing/tmgkfl/internal/accountlock"
	"github.com/pyramid-ing/tmgkfl/internal/automation"
	"github.com/pyramid-ing/tmgkfl/internal/observability"
	"github.com/pyramid-ing/tmgkfl/internal/service"
)

var runFlags struct {
	loginID  string
	loginPW  string
	keyword  string
	minDelay int
	maxDelay int
	count    int
	messages []string
	follow   bool
	like     bool
	repost   bool
	comment  bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an interactive engagement session against a search keyword",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		svc := service.New(appCfg, st, accountlock.NewRegistry(), observability.GetLogger())

		rc := automation.RunConfig{
			LoginID:  runFlags.loginID,
			LoginPW:  runFlags.loginPW,
			Keyword:  runFlags.keyword,
			MinDelay: runFlags.minDelay,
			MaxDelay: runFlags.maxDelay,
			MaxCount: runFlags.count,
			Messages: runFlags.messages,
			Follow:   runFlags.follow,
			Like:     runFlags.like,
			Repost:   runFlags.repost,
			Comment:  runFlags.comment,
		}

		jobID, err := svc.StartAutomation(ctx, rc)
		if err != nil {
			return err
		}
		fmt.Printf("작업 시작: %s\n", jobID)

		svc.Wait()

		logs, err := svc.GetLogs(cmd.Context(), jobID)
		if err != nil {
			return err
		}
		for i := len(logs) - 1; i >= 0; i-- {
			fmt.Printf("%s  %s\n", logs[i].CreatedAt.Local().Format("15:04:05"), logs[i].Message)
		}
		return nil
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.loginID, "id", "", "Threads login id")
	f.StringVar(&runFlags.loginPW, "pw", "", "Threads login password")
	f.StringVarP(&runFlags.keyword, "keyword", "k", "", "search keyword")
	f.IntVar(&runFlags.minDelay, "min-delay", 3, "minimum delay between actions in seconds")
	f.IntVar(&runFlags.maxDelay, "max-delay", 10, "maximum delay between actions in seconds")
	f.IntVarP(&runFlags.count, "count", "n", 10, "number of posts to process")
	f.StringArrayVarP(&runFlags.messages, "message", "m", nil, "candidate comment message (repeatable)")
	f.BoolVar(&runFlags.follow, "follow", false, "follow post authors")
	f.BoolVar(&runFlags.like, "like", false, "like posts")
	f.BoolVar(&runFlags.repost, "repost", false, "repost posts")
	f.BoolVar(&runFlags.comment, "comment", false, "comment on posts")

	_ = runCmd.MarkFlagRequired("id")
	_ = runCmd.MarkFlagRequired("pw")
	_ = runCmd.MarkFlagRequired("keyword")

	rootCmd.AddCommand(runCmd)
}
