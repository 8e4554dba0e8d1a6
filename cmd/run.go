package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/olegkizyma008-rgb/Atlas-sub002/cmd/server"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/logger"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/models"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator"
)

var runCmd = &cobra.Command{
	Use:   "run [message]",
	Short: "Execute one request from the command line",
	Long: `Run a single request through the full pipeline and print the result:
the reply for chat, the plan report and summary for tasks, the analysis
for dev mode.

Examples:
  atlas run "Привіт, як справи?"
  atlas run "Створи папку /tmp/demo і поклади туди README"
  atlas run --password s3cret "виправ себе"`,
	Args: cobra.MinimumNArgs(1),
	Run:  runOnce,
}

func init() {
	runCmd.Flags().String("session", "", "session id to continue (empty starts a new one)")
	runCmd.Flags().String("password", "", "dev-mode intervention password")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) {
	logLevel := viper.GetString("log-level")
	if viper.GetBool("debug") {
		logLevel = "debug"
	}
	log, err := logger.CreateLogger(viper.GetString("log-file"), logLevel, viper.GetString("log-format"), viper.GetString("log-file") == "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	settings, err := models.LoadSettings(viper.GetViper())
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}

	rt, err := server.NewRuntime(settings, log, viper.GetString("mcp-config"), "")
	if err != nil {
		log.Fatalf("Failed to build runtime: %v", err)
	}
	defer rt.Close()

	sessionID, _ := cmd.Flags().GetString("session")
	password, _ := cmd.Flags().GetString("password")
	orch, sess := rt.OrchestratorFor(sessionID)

	result := orch.Execute(cmd.Context(), orchestrator.Request{
		UserMessage: strings.Join(args, " "),
		Session:     sess,
		Password:    password,
	})

	printResult(result, sess.ID)
	if !result.Success {
		os.Exit(1)
	}
}

func printResult(result *orchestrator.Result, sessionID string) {
	fmt.Printf("session: %s\nmode: %s\n", sessionID, result.Mode)

	if result.Reply != "" {
		fmt.Printf("\n%s\n", result.Reply)
		return
	}
	if result.Plan != nil {
		fmt.Printf("\nPlan:\n%s\n", orchestrator.PlanReport(result.Plan))
	}
	if result.Analysis != nil && result.Analysis.Report != nil {
		fmt.Printf("\nAnalysis: %s\n", result.Analysis.Report.Summary)
		for _, problem := range result.Analysis.Report.Problems {
			fmt.Printf("  - [%s] %s: %s\n", problem.Severity, problem.Signature, problem.Hypothesis)
		}
	}
	if result.Summary != "" {
		fmt.Printf("\n%s\n", result.Summary)
	}
}
