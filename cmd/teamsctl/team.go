package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ytnobody/teamsctl/internal/claim"
	"github.com/ytnobody/teamsctl/internal/coordinator"
	"github.com/ytnobody/teamsctl/internal/discovery"
	"github.com/ytnobody/teamsctl/internal/procconfig"
)

// teamCmd is the root of the team CLI surface: spawn, attach, messaging,
// task management, and lifecycle, all delegating to one Coordinator per
// invocation.
var teamCmd = &cobra.Command{
	Use:   "team",
	Short: "Manage a team of autonomous coding agents",
}

var teamFlagTeamID string

func init() {
	rootCmd.AddCommand(teamCmd)

	teamCmd.PersistentFlags().StringVar(&teamFlagTeamID, "team", "", "team id (defaults to PI_TEAMS_TEAM_ID)")

	teamCmd.AddCommand(teamSpawnCmd)
	teamCmd.AddCommand(teamAttachCmd)
	teamCmd.AddCommand(teamDetachCmd)
	teamCmd.AddCommand(teamDMCmd)
	teamCmd.AddCommand(teamBroadcastCmd)
	teamCmd.AddCommand(teamSendCmd)
	teamCmd.AddCommand(teamSteerCmd)
	teamCmd.AddCommand(teamTaskCmd)
	teamCmd.AddCommand(teamKillCmd)
	teamCmd.AddCommand(teamShutdownCmd)

	teamTaskCmd.AddCommand(teamTaskAddCmd)
	teamTaskCmd.AddCommand(teamTaskListCmd)

	teamAttachCmd.AddCommand(teamAttachListCmd)

	teamSpawnCmd.Flags().StringVar(&spawnMode, "mode", "fresh", "fresh or branch")
	teamSpawnCmd.Flags().StringVar(&spawnWorkspace, "workspace", "shared", "shared or worktree")
	teamSpawnCmd.Flags().BoolVar(&spawnPlan, "plan", false, "require a plan-approval gate before work starts")
	teamSpawnCmd.Flags().StringVar(&spawnModel, "model", "", "model override, e.g. provider/model-id")
	teamSpawnCmd.Flags().StringVar(&spawnThinking, "thinking", "", "thinking level override")

	teamAttachCmd.Flags().BoolVar(&attachClaimForce, "claim", false, "force-acquire the attach claim even if held by another session")

	teamDMCmd.Flags().StringVar(&dmTo, "to", "", "recipient teammate name")
	teamDMCmd.Flags().StringVar(&dmText, "text", "", "message body")

	teamBroadcastCmd.Flags().StringVar(&broadcastText, "text", "", "message body")

	teamSendCmd.Flags().StringVar(&sendOutcome, "outcome", "approve", "approve or reject")
	teamSendCmd.Flags().StringVar(&sendFeedback, "feedback", "", "feedback to include with the decision")

	teamSteerCmd.Flags().StringVar(&steerTo, "to", "", "running teammate name")
	teamSteerCmd.Flags().StringVar(&steerText, "text", "", "steering instruction")

	teamTaskAddCmd.Flags().StringVar(&taskAddOwner, "owner", "", "initial owner (empty leaves the task unassigned)")

	teamShutdownCmd.Flags().BoolVar(&shutdownAll, "all", false, "shut down every online worker")
	teamKillCmd.Flags().StringVar(&killName, "name", "", "teammate name to kill")
}

var (
	spawnMode      string
	spawnWorkspace string
	spawnPlan      bool
	spawnModel     string
	spawnThinking  string

	attachClaimForce bool

	dmTo, dmText string

	broadcastText string

	sendOutcome, sendFeedback string

	steerTo, steerText string

	taskAddOwner string

	shutdownAll bool
	killName    string
)

var teamSpawnCmd = &cobra.Command{
	Use:   "spawn [name]",
	Short: "Spawn a new teammate worker process",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		return withSession(func(s *session) error {
			res := s.coord.Execute(context.Background(), coordinator.ActionMemberSpawn, coordinator.Params{
				Name:          name,
				Mode:          spawnMode,
				WorkspaceMode: spawnWorkspace,
				PlanRequired:  spawnPlan,
				Model:         spawnModel,
				Thinking:      spawnThinking,
			})
			return report(res)
		})
	},
}

var teamAttachCmd = &cobra.Command{
	Use:   "attach [teamId]",
	Short: "Attach this session to a team (acquiring the exclusive claim)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		teamID := teamFlagTeamID
		if len(args) == 1 {
			teamID = args[0]
		}
		s, err := openSession(teamID, attachClaimForce)
		if err != nil {
			return err
		}
		defer s.close()
		fmt.Printf("attached to %s\n", s.teamID)
		return nil
	},
}

var teamAttachListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known teams and their claim freshness",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := procconfig.FromEnv(procconfig.Defaults(), envLookup)
		teams, err := discovery.List(cfg.TeamsRootDir, time.Now(), cfg.StaleMs)
		if err != nil {
			return err
		}
		if len(teams) == 0 {
			fmt.Println("no teams found")
			return nil
		}
		for _, t := range teams {
			status := "fresh"
			if t.IsStale {
				status = "stale"
			}
			holder := "none"
			if t.HasClaim {
				holder = t.Claim.HolderSessionID
			}
			fmt.Printf("%-20s members=%-3d claim=%s(%s)\n", t.Config.TeamID, len(t.Config.Members), status, holder)
		}
		return nil
	},
}

var teamDetachCmd = &cobra.Command{
	Use:   "detach",
	Short: "Force-release whatever attach claim a team directory currently holds",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := procconfig.FromEnv(procconfig.Defaults(), envLookup)
		teamID := teamFlagTeamID
		if teamID == "" {
			teamID = cfg.TeamID
		}
		if teamID == "" {
			return fmt.Errorf("teamsctl: no team id (set --team or PI_TEAMS_TEAM_ID)")
		}
		teamDir := teamDirFor(cfg, teamID)
		status, err := claim.Release(context.Background(), teamDir, "", claim.ReleaseOptions{Force: true})
		if err != nil {
			return err
		}
		fmt.Println(status)
		return nil
	},
}

var teamDMCmd = &cobra.Command{
	Use:   "dm",
	Short: "Send a direct message to one teammate",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *session) error {
			res := s.coord.Execute(context.Background(), coordinator.ActionMessageDM, coordinator.Params{To: dmTo, Text: dmText})
			return report(res)
		})
	},
}

var teamBroadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Broadcast a message to every known worker, live teammate and task owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *session) error {
			res := s.coord.Execute(context.Background(), coordinator.ActionMessageBroadcast, coordinator.Params{Text: broadcastText})
			return report(res)
		})
	},
}

var teamSendCmd = &cobra.Command{
	Use:   "send [name]",
	Short: "Resolve a pending plan-approval gate (approve or reject)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *session) error {
			action := coordinator.ActionPlanApprove
			if sendOutcome == "reject" {
				action = coordinator.ActionPlanReject
			} else if sendOutcome != "approve" {
				return fmt.Errorf("usage: --outcome must be approve or reject")
			}
			res := s.coord.Execute(context.Background(), action, coordinator.Params{Name: args[0], Feedback: sendFeedback})
			return report(res)
		})
	},
}

var teamSteerCmd = &cobra.Command{
	Use:   "steer",
	Short: "Send a live steering instruction to a running teammate",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *session) error {
			res := s.coord.Execute(context.Background(), coordinator.ActionMessageSteer, coordinator.Params{To: steerTo, Text: steerText})
			return report(res)
		})
	},
}

var teamTaskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect and create tasks",
}

var teamTaskAddCmd = &cobra.Command{
	Use:   "add [subject]",
	Short: "Create a task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subject := joinArgs(args)
		return withSession(func(s *session) error {
			task, err := s.coord.CreateTask(subject, taskAddOwner)
			if err != nil {
				return err
			}
			fmt.Printf("created %s\n", task.ID)
			return nil
		})
	},
}

var teamTaskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks in this team's task list",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *session) error {
			tasks, err := s.coord.Tasks()
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Println("no tasks")
				return nil
			}
			for _, t := range tasks {
				fmt.Printf("%-10s [%-11s] owner=%-14s %s\n", t.ID, t.Status, orDash(t.Owner), t.Subject)
			}
			return nil
		})
	},
}

var teamKillCmd = &cobra.Command{
	Use:   "kill",
	Short: "Forcibly stop a teammate and unassign its tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *session) error {
			res := s.coord.Execute(context.Background(), coordinator.ActionMemberKill, coordinator.Params{Name: killName})
			return report(res)
		})
	},
}

var teamShutdownCmd = &cobra.Command{
	Use:   "shutdown [name]",
	Short: "Request a graceful shutdown for one worker or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		return withSession(func(s *session) error {
			res := s.coord.Execute(context.Background(), coordinator.ActionMemberShutdown, coordinator.Params{Name: name, All: shutdownAll || name == ""})
			return report(res)
		})
	},
}

func withSession(fn func(*session) error) error {
	return withSessionForce(false, fn)
}

func withSessionForce(force bool, fn func(*session) error) error {
	s, err := openSession(teamFlagTeamID, force)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(s)
}

func joinArgs(args []string) string {
	out := args[0]
	for _, a := range args[1:] {
		out += " " + a
	}
	return out
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
