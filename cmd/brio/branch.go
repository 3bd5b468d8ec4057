package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brioproj/brio/internal/domain"
	"github.com/brioproj/brio/internal/lifecycle"
)

var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Create, run, merge, and recover branches",
}

var (
	branchCreateName       string
	branchCreateAgents     []string
	branchCreateParallel   int
	branchCreateAutoMerge  bool
	branchCreateMergeStrat string
	branchCreateFrom       string
)

var branchCreateCmd = &cobra.Command{
	Use:   "create <path>",
	Short: "Create a branch from a filesystem path or another branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel(".")
		if err != nil {
			return err
		}
		defer k.Close()

		source := lifecycle.FromPath(args[0])
		if branchCreateFrom != "" {
			parentID, err := domain.ParseBranchId(branchCreateFrom)
			if err != nil {
				return fmt.Errorf("invalid --from branch id: %w", err)
			}
			source = lifecycle.FromBranch(parentID)
		}

		assignments := make([]domain.AgentAssignment, 0, len(branchCreateAgents))
		for i, name := range branchCreateAgents {
			assignments = append(assignments, domain.AgentAssignment{
				AgentID:  domain.AgentId(name),
				Priority: uint8(i),
			})
		}

		strategy := domain.Sequential()
		if branchCreateParallel > 0 {
			strategy = domain.ParallelStrategy(branchCreateParallel)
		}

		cfg := domain.BranchConfig{
			Name:              branchCreateName,
			Agents:            assignments,
			ExecutionStrategy: strategy,
			AutoMerge:         branchCreateAutoMerge,
			MergeStrategy:     branchCreateMergeStrat,
		}

		id, err := k.manager.CreateBranch(source, cfg)
		if err != nil {
			return fmt.Errorf("creating branch: %w", err)
		}

		fmt.Println(id.String())
		return nil
	},
}

var branchRunCmd = &cobra.Command{
	Use:   "run <branch-id>",
	Short: "Execute a branch's agent assignments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := domain.ParseBranchId(args[0])
		if err != nil {
			return fmt.Errorf("invalid branch id: %w", err)
		}

		k, err := openKernel(".")
		if err != nil {
			return err
		}
		defer k.Close()

		if err := k.manager.ExecuteBranch(context.Background(), id); err != nil {
			return fmt.Errorf("executing branch: %w", err)
		}

		fmt.Printf("branch %s completed\n", id)
		return nil
	},
}

var (
	branchMergeStrategy   string
	branchMergeApprove    bool
)

var branchMergeCmd = &cobra.Command{
	Use:   "merge <branch-id> [branch-id...]",
	Short: "Merge one or more completed branches",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]domain.BranchId, 0, len(args))
		for _, a := range args {
			id, err := domain.ParseBranchId(a)
			if err != nil {
				return fmt.Errorf("invalid branch id %q: %w", a, err)
			}
			ids = append(ids, id)
		}

		k, err := openKernel(".")
		if err != nil {
			return err
		}
		defer k.Close()

		result, err := k.manager.Merge(context.Background(), ids, branchMergeStrategy, branchMergeApprove)
		if err != nil {
			return fmt.Errorf("merging branches: %w", err)
		}

		if len(result.Conflicts) > 0 {
			fmt.Printf("merge request %s has %d conflict(s):\n", result.MergeRequestID, len(result.Conflicts))
			for _, c := range result.Conflicts {
				fmt.Printf("  %s: %s\n", c.FilePath, c.Kind.String())
			}
			return nil
		}

		fmt.Printf("merge request %s completed\n", result.MergeRequestID)
		return nil
	},
}

var branchRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Reset crashed Active branches back to Pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel(".")
		if err != nil {
			return err
		}
		defer k.Close()

		recovered, err := k.manager.Recover()
		if err != nil {
			return fmt.Errorf("recovering branches: %w", err)
		}

		if len(recovered) == 0 {
			fmt.Println("no branches required recovery")
			return nil
		}

		ids := make([]string, len(recovered))
		for i, id := range recovered {
			ids[i] = id.String()
		}
		fmt.Printf("recovered: %s\n", strings.Join(ids, ", "))
		return nil
	},
}

func init() {
	branchCreateCmd.Flags().StringVar(&branchCreateName, "name", "", "branch name")
	branchCreateCmd.Flags().StringSliceVar(&branchCreateAgents, "agent", nil, "agent id to assign (repeatable)")
	branchCreateCmd.Flags().IntVar(&branchCreateParallel, "parallel", 0, "max concurrent agents (0 means sequential)")
	branchCreateCmd.Flags().BoolVar(&branchCreateAutoMerge, "auto-merge", false, "merge automatically once execution completes")
	branchCreateCmd.Flags().StringVar(&branchCreateMergeStrat, "merge-strategy", "union", "merge strategy to use on auto-merge")
	branchCreateCmd.Flags().StringVar(&branchCreateFrom, "from", "", "fork from an existing branch id instead of a path")

	branchMergeCmd.Flags().StringVar(&branchMergeStrategy, "strategy", "union", "merge strategy name")
	branchMergeCmd.Flags().BoolVar(&branchMergeApprove, "requires-approval", false, "hold the merge request for manual approval")

	branchCmd.AddCommand(branchCreateCmd, branchRunCmd, branchMergeCmd, branchRecoverCmd)
}
