package cmd

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/pyramid-ing/tmgkfl/internal/accountlock"
	"github.com/pyramid-ing/tmgkfl/internal/observability"
	"github.com/pyramid-ing/tmgkfl/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage scheduled post jobs",
}

// jobImportFile is the JSON shape accepted by `jobs import`.
type jobImportFile struct {
	LoginID string `json:"loginId"`
	LoginPW string `json:"loginPw"`
	Posts   []struct {
		Subject     string    `json:"subject"`
		Desc        string    `json:"desc"`
		ScheduledAt time.Time `json:"scheduledAt"`
	} `json:"posts"`
}

var jobsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Schedule posts from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return errors.Wrap(err, "read import file")
		}
		var file jobImportFile
		if err := json.Unmarshal(data, &file); err != nil {
			return errors.Wrap(err, "parse import file")
		}

		req := service.CreatePostJobsRequest{LoginID: file.LoginID, LoginPW: file.LoginPW}
		for _, p := range file.Posts {
			req.Posts = append(req.Posts, service.PostInput{
				Subject:     p.Subject,
				Desc:        p.Desc,
				ScheduledAt: p.ScheduledAt,
			})
		}

		svc, st, err := newService(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		res, err := svc.CreatePostJobs(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Println(res.Message)
		return nil
	},
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all post jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, st, err := newService(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		jobs, err := svc.GetPostJobs(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tACCOUNT\tSCHEDULED\tSTATUS\tRESULT")
		for _, j := range jobs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				j.ID, j.LoginID, j.ScheduledAt.Local().Format("2006-01-02 15:04"), j.Status, j.ResultMsg)
		}
		return w.Flush()
	},
}

var jobsRetryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Move a failed job back to pending",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return errors.Wrap(err, "invalid job id")
		}

		svc, st, err := newService(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := svc.RetryPostJob(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("작업 %d번을 다시 예약했습니다.\n", id)
		return nil
	},
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a post job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return errors.Wrap(err, "invalid job id")
		}

		svc, st, err := newService(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := svc.DeletePostJob(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("작업 %d번을 삭제했습니다.\n", id)
		return nil
	},
}

func newService(cmd *cobra.Command) (*service.Service, interface{ Close() error }, error) {
	st, err := openStore(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	svc := service.New(appCfg, st, accountlock.NewRegistry(), observability.GetLogger())
	return svc, st, nil
}

func init() {
	jobsCmd.AddCommand(jobsImportCmd, jobsListCmd, jobsRetryCmd, jobsDeleteCmd)
	rootCmd.AddCommand(jobsCmd)
}
