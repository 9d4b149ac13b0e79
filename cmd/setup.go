package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/airtimehq/airtime/pkg/meeting"
	"github.com/airtimehq/airtime/pkg/store"
)

// Setup command flags.
var (
	setupName           string
	setupDate           string
	setupMen            int
	setupWomen          int
	setupNonbinary      int
	setupNonInteractive bool
)

// SetupCmd creates a new meeting record.
var SetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Set up a new meeting",
	Long: `Set up a new meeting: name, date, and participant counts per category.

The setup creates the meeting record and prints the session token. Start
the meeting afterwards with 'airtime meeting run'; open the remote
control in a second terminal with 'airtime meeting popout'.

Categories with zero participants get no speaker button and never appear
in the statistics report.

Examples:
  # Interactive setup (prompts for each field)
  airtime setup

  # Non-interactive setup
  airtime setup --name "Sprint Planning" --date 2025-03-14 --men 4 --women 3 --nonbinary 1`,
	RunE: runSetup,
}

func init() {
	SetupCmd.Flags().StringVar(&setupName, "name", "", "Meeting name")
	SetupCmd.Flags().StringVar(&setupDate, "date", "", "Meeting date (YYYY-MM-DD)")
	SetupCmd.Flags().IntVar(&setupMen, "men", 0, "Number of men participating")
	SetupCmd.Flags().IntVar(&setupWomen, "women", 0, "Number of women participating")
	SetupCmd.Flags().IntVar(&setupNonbinary, "nonbinary", 0, "Number of nonbinary participants")
	SetupCmd.Flags().BoolVar(&setupNonInteractive, "non-interactive", false, "Fail instead of prompting for input")
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	data := &store.SetupData{
		Name: setupName,
		Date: setupDate,
		Participants: map[meeting.Category]int{
			meeting.CategoryMen:       setupMen,
			meeting.CategoryWomen:     setupWomen,
			meeting.CategoryNonbinary: setupNonbinary,
		},
	}

	if data.Name == "" || data.Date == "" {
		if setupNonInteractive {
			return fmt.Errorf("--name and --date are required in non-interactive mode")
		}
		if err := promptSetup(cmd, data); err != nil {
			return err
		}
	}

	m := store.MeetingFromSetup(data)
	m.Active = true
	if err := m.Validate(); err != nil {
		return err
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if err := st.SaveSetupData(ctx, data); err != nil {
		return fmt.Errorf("saving setup data: %w", err)
	}
	if err := st.SaveCurrentMeeting(ctx, m); err != nil {
		return fmt.Errorf("saving meeting: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Meeting %q (%s) is ready.\n", m.Name, m.Date)
	fmt.Fprintf(out, "  participants: %d men, %d women, %d nonbinary\n",
		m.Participants[meeting.CategoryMen],
		m.Participants[meeting.CategoryWomen],
		m.Participants[meeting.CategoryNonbinary])
	fmt.Fprintf(out, "  session:      %s\n", m.Session)
	fmt.Fprintln(out, "\nStart it with: airtime meeting run")
	return nil
}

// promptSetup fills in missing fields interactively.
func promptSetup(cmd *cobra.Command, data *store.SetupData) error {
	reader := bufio.NewReader(os.Stdin)
	out := cmd.OutOrStdout()

	if data.Name == "" {
		fmt.Fprint(out, "Meeting name: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading meeting name: %w", err)
		}
		data.Name = strings.TrimSpace(line)
	}

	if data.Date == "" {
		fmt.Fprint(out, "Meeting date (YYYY-MM-DD): ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading meeting date: %w", err)
		}
		data.Date = strings.TrimSpace(line)
	}

	for _, c := range meeting.Categories() {
		if data.Participants[c] != 0 {
			continue
		}
		fmt.Fprintf(out, "Number of %s [0]: ", c)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading participant count: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		count, err := strconv.Atoi(line)
		if err != nil || count < 0 {
			return fmt.Errorf("invalid count for %s: %q", c, line)
		}
		data.Participants[c] = count
	}

	return nil
}
