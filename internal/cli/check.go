package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/relayguard/relayguard/internal/allowlist"
	"github.com/relayguard/relayguard/internal/estimate"
	"github.com/relayguard/relayguard/internal/model"
	"github.com/relayguard/relayguard/internal/policy"
	"github.com/relayguard/relayguard/internal/session"
)

var (
	checkPlanPath     string
	checkAllowlist    string
	checkSessionID    string
	checkSessionIndex string
	checkMaxSpend     string
	checkSkipSession  bool
	checkFormat       string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkPlanPath, "plan", "", "Path to plan JSON file (required)")
	checkCmd.Flags().StringVar(&checkAllowlist, "allowlist", "", "Path to adapter allowlist YAML")
	checkCmd.Flags().StringVar(&checkSessionID, "session", "", "Session identifier to evaluate against")
	checkCmd.Flags().StringVar(&checkSessionIndex, "session-index", "", "Base URL of the session index service")
	checkCmd.Flags().StringVar(&checkMaxSpend, "max-spend", "", "Override spend cap in wei (replaces the session budget)")
	checkCmd.Flags().BoolVar(&checkSkipSession, "skip-session", false, "Skip the session delegation check")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
	checkCmd.MarkFlagRequired("plan")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate a plan against policy without submitting it",
	Long: "Loads a plan from a JSON file and runs the full policy pipeline:\n" +
		"structural validation, adapter allowlist, session delegation, spend cap.\n\n" +
		"Exit code 0 if the plan would be allowed, 1 if denied.\n" +
		"Use in CI or pre-flight tooling; nothing is ever submitted.",
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(checkPlanPath)
	if err != nil {
		return fmt.Errorf("read plan: %w", err)
	}

	var plan model.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return fmt.Errorf("parse plan: %w", err)
	}

	if err := plan.Validate(time.Now()); err != nil {
		printVerdict(model.PolicyResult{Allowed: false, Code: codeOf(err), Message: err.Error()}, nil)
		os.Exit(1)
	}

	allow, err := allowlist.Load(checkAllowlist)
	if err != nil {
		return fmt.Errorf("load allowlist: %w", err)
	}

	var oracle session.Oracle
	if checkSessionIndex != "" {
		oracle = session.NewClient(checkSessionIndex, 0)
	}

	var override *model.PolicyOverride
	if checkMaxSpend != "" || checkSkipSession {
		override = &model.PolicyOverride{
			MaxSpendUnits:    checkMaxSpend,
			SkipSessionCheck: checkSkipSession,
		}
	}

	engine := policy.NewEngine(oracle, nil)
	ctx := context.Background()

	result, err := engine.Evaluate(ctx, &plan, allow, checkSessionID, override)
	if err != nil {
		return err
	}

	est := estimate.Plan(ctx, &plan, nil)
	printVerdict(result, &est)

	if !result.Allowed {
		os.Exit(1)
	}
	return nil
}

func codeOf(err error) string {
	if pe, ok := err.(*model.PlanError); ok {
		return pe.Code
	}
	return model.CodePlanInvalid
}

func printVerdict(result model.PolicyResult, est *model.SpendEstimate) {
	if checkFormat == "json" {
		out := map[string]any{"allowed": result.Allowed}
		if !result.Allowed {
			out["code"] = result.Code
			out["message"] = result.Message
			if len(result.Details) > 0 {
				out["details"] = result.Details
			}
		}
		if est != nil && est.SpendWei != nil {
			out["spendWei"] = est.SpendWei.String()
			out["determinable"] = est.Determinable
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return
	}

	if result.Allowed {
		fmt.Println("ALLOW")
	} else {
		fmt.Printf("DENY %s: %s\n", result.Code, result.Message)
		for k, v := range result.Details {
			fmt.Printf("  %s: %v\n", k, v)
		}
	}
	if est != nil && est.SpendWei != nil {
		fmt.Printf("spend: %s wei (determinable=%v)\n", est.SpendWei, est.Determinable)
	}
}
