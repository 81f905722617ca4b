package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tangthinker/unibackup/internal/config"
	"github.com/tangthinker/unibackup/internal/ipc"
	"github.com/tangthinker/unibackup/internal/schedule"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Discard the stored session and open a browser for manual login",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		t, err := c.Login()
		if err != nil {
			return err
		}
		printQueued(t)
		fmt.Println("Complete the login in the browser window on the server.")
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup [console-id]",
	Short: "Back up one console, or all consoles with retries",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		if len(args) == 0 {
			t, err := c.BatchBackup()
			if err != nil {
				return err
			}
			printQueued(t)
			return nil
		}

		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		t, err := c.Backup(id)
		if err != nil {
			return err
		}
		printQueued(t)
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that the stored session is still logged in",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		t, err := c.Probe()
		if err != nil {
			return err
		}
		printQueued(t)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the worker, session, schedule and recent logs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		s, err := c.Status()
		if err != nil {
			return err
		}
		logs, _ := cmd.Flags().GetInt("logs")
		fmt.Println(renderStatus(s, logs))
		return nil
	},
}

var targetCmd = &cobra.Command{
	Use:     "target",
	Aliases: []string{"console"},
	Short:   "Manage backup consoles",
}

var targetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List consoles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		ts, err := c.Targets()
		if err != nil {
			return err
		}
		fmt.Println(renderTargets(ts))
		return nil
	},
}

var targetAddCmd = &cobra.Command{
	Use:   "add <name> <backup-url>",
	Short: "Add a console",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		t, err := c.AddTarget(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Console '%s' added with id %d\n", t.Name, t.ID)
		return nil
	},
}

var targetRemoveCmd = &cobra.Command{
	Use:     "rm <console-id>",
	Aliases: []string{"remove", "delete"},
	Short:   "Remove a console",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		c, err := dial()
		if err != nil {
			return err
		}
		if err := c.RemoveTarget(id); err != nil {
			return err
		}
		fmt.Printf("Console %d removed\n", id)
		return nil
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Show or change the backup and connectivity check schedules",
}

var scheduleGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the schedules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		d, err := c.Schedule()
		if err != nil {
			return err
		}
		fmt.Println(renderSchedule(d))
		return nil
	},
}

var scheduleSetCmd = &cobra.Command{
	Use:   "set <backup|check> (<value> <unit> | off)",
	Short: "Change one schedule",
	Example: `  unibackup schedule set backup 12 hours
  unibackup schedule set check 30 minutes
  unibackup schedule set check off`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		current, err := c.Schedule()
		if err != nil {
			return err
		}

		cfg := current.Schedule
		if err := applyScheduleArgs(&cfg, args); err != nil {
			return err
		}

		d, err := c.SetSchedule(cfg)
		if err != nil {
			return err
		}
		fmt.Println(renderSchedule(d))
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "unibackup.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

func init() {
	statusCmd.Flags().IntP("logs", "n", 10, "number of log lines to show")

	targetCmd.AddCommand(targetListCmd)
	targetCmd.AddCommand(targetAddCmd)
	targetCmd.AddCommand(targetRemoveCmd)

	scheduleCmd.AddCommand(scheduleGetCmd)
	scheduleCmd.AddCommand(scheduleSetCmd)

	configInitCmd.Flags().BoolP("force", "f", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
}

// applyScheduleArgs edits the job named by args[0] in cfg.
func applyScheduleArgs(cfg *schedule.Config, args []string) error {
	var job *schedule.Job
	switch schedule.Kind(strings.ToLower(args[0])) {
	case schedule.KindBackup:
		job = &cfg.Backup
	case schedule.KindCheck:
		job = &cfg.Check
	default:
		return fmt.Errorf("unknown schedule %q, want backup or check", args[0])
	}

	if len(args) == 2 {
		switch strings.ToLower(args[1]) {
		case "off", "disable", "disabled":
			job.Enabled = false
			return nil
		case "on", "enable", "enabled":
			job.Enabled = true
			return nil
		}
		return fmt.Errorf("expected <value> <unit>, on or off")
	}

	value, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid interval value %q", args[1])
	}
	unit, err := schedule.ParseUnit(args[2])
	if err != nil {
		return err
	}
	job.Enabled = true
	job.Value = value
	job.Unit = unit
	return nil
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid console id %q", s)
	}
	return id, nil
}

func printQueued(t ipc.TaskData) {
	fmt.Printf("Queued '%s' (%s)\n", t.Label, t.TaskID)
}
