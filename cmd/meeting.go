package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/airtimehq/airtime/config"
	"github.com/airtimehq/airtime/pkg/buildinfo"
	"github.com/airtimehq/airtime/pkg/channel"
	"github.com/airtimehq/airtime/pkg/coordinator"
	aterrors "github.com/airtimehq/airtime/pkg/errors"
	"github.com/airtimehq/airtime/pkg/logging"
	"github.com/airtimehq/airtime/pkg/meeting"
	"github.com/airtimehq/airtime/pkg/observability"
	"github.com/airtimehq/airtime/pkg/store"
	"github.com/airtimehq/airtime/pkg/timer"
)

// Meeting command flags.
var (
	meetingMetricsAddr string
	meetingSession     string
)

// MeetingCmd represents the meeting command group.
var MeetingCmd = &cobra.Command{
	Use:   "meeting",
	Short: "Run and control a meeting",
	Long: `Run and control a speaking-time meeting.

'meeting run' is the main session: it owns the meeting record, measures
speaking time, and commits every completed turn. 'meeting popout' is an
optional remote control in a second terminal; it mirrors the session and
forwards button presses over the message channel. If the channel drops,
the popout freezes at its last known state while the main session keeps
measuring.

Keys in both sessions:
  m / w / n   start the men / women / nonbinary speaker
  p or space  pause (commits the current turn)
  e           end the meeting
  q           quit`,
}

// meetingRunCmd runs the main meeting session.
var meetingRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the main meeting session",
	Long: `Run the main meeting session for the meeting created with 'airtime setup'.

This process owns the meeting record. Speaking turns are committed and
persisted here; a popout only mirrors them. If a previous session was
interrupted mid-turn, the turn resumes from its persisted start time.

Examples:
  airtime meeting run
  airtime meeting run --metrics-addr 127.0.0.1:9190`,
	RunE: runMeetingRun,
}

// meetingPopoutCmd runs the popout remote control.
var meetingPopoutCmd = &cobra.Command{
	Use:   "popout",
	Short: "Open the popout remote control",
	Long: `Open the popout remote control for a running meeting.

The popout shows the current speaker and elapsed time and forwards key
presses to the main session. It never commits speaking time itself: if
the main session is gone, presses have no effect.

By default the popout reads the session token from the stored meeting
record. Pass --session to attach to a meeting started elsewhere.

Examples:
  airtime meeting popout
  airtime meeting popout --session 4fe3b9c2-...`,
	RunE: runMeetingPopout,
}

// meetingStatusCmd shows the current meeting state.
var meetingStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current meeting state",
	Long: `Show the persisted state of the current meeting.

The record is written by the main session on every transition, so this
reflects the last committed state, not a live view.

Examples:
  airtime meeting status
  airtime meeting status --output json`,
	RunE: runMeetingStatus,
}

// meetingEndCmd ends the current meeting from outside a session.
var meetingEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End the current meeting",
	Long: `End the current meeting and finalize its record.

Any in-progress turn is committed using its persisted start time. A
running session or popout is told over the channel that the meeting
ended. Run 'airtime stats' afterwards for the fairness report.

Examples:
  airtime meeting end`,
	RunE: runMeetingEnd,
}

func init() {
	meetingRunCmd.Flags().StringVar(&meetingMetricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address (host:port)")
	meetingPopoutCmd.Flags().StringVar(&meetingSession, "session", "", "Session token of the meeting to attach to")

	MeetingCmd.AddCommand(meetingRunCmd)
	MeetingCmd.AddCommand(meetingPopoutCmd)
	MeetingCmd.AddCommand(meetingStatusCmd)
	MeetingCmd.AddCommand(meetingEndCmd)
}

func runMeetingRun(cmd *cobra.Command, args []string) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	m, err := loadCurrentMeeting(ctx, st)
	if err != nil {
		return err
	}
	if !m.Active {
		return fmt.Errorf("meeting %q has already ended; run 'airtime stats' or 'airtime setup'", m.Name)
	}

	log, closeLog, err := meetingLogger(cfg, m, "primary")
	if err != nil {
		return err
	}
	defer closeLog()

	transport := openTransport(ctx, cfg, m.Session, channel.RolePrimary, log)
	defer transport.Close()

	metrics := observability.DefaultTimerMetrics()
	if addr := metricsAddress(cfg); addr != "" {
		go serveMetrics(addr, log)
	}

	out := cmd.OutOrStdout()
	display := timer.WithDisplay(func(formatted string, _ float64) {
		fmt.Fprintf(out, "\r  %s ", formatted)
	})

	primary, err := coordinator.NewPrimary(coordinator.PrimaryDeps{
		Meeting:   m,
		Timer:     timer.New(timer.WithTickInterval(cfg.TickInterval), display),
		Store:     st,
		Transport: transport,
		Logger:    log,
		Metrics:   metrics,
	})
	if err != nil {
		return err
	}

	go primary.Run(ctx)

	fmt.Fprintf(out, "Meeting %q (%s)\n", m.Name, m.Date)
	printKeyHelp(out, m)

	err = keyLoop(ctx, out, keyHandlers{
		start: func(c meeting.Category) error {
			if err := primary.StartSpeaking(ctx, c, true); err != nil {
				return err
			}
			fmt.Fprintf(out, "\r%s speaking        \n", c)
			return nil
		},
		pause: func() error {
			if err := primary.PauseSpeaking(ctx, true); err != nil {
				return err
			}
			fmt.Fprint(out, "\rpaused           \n")
			return nil
		},
		end: func() error {
			return primary.EndMeeting(ctx, true)
		},
		activeQuit: func() bool {
			// The beforeunload analog: quitting mid-meeting needs a
			// second confirmation, and leaves the meeting resumable.
			return primary.Active()
		},
		ended: primary.Ended(),
	})
	if err != nil {
		return err
	}

	if !primary.Active() {
		fmt.Fprintln(out, "\nMeeting ended. Run 'airtime stats' for the fairness report.")
	} else {
		fmt.Fprintln(out, "\nSession closed; the meeting stays active. 'airtime meeting run' resumes it.")
	}
	return nil
}

func runMeetingPopout(cmd *cobra.Command, args []string) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	session := meetingSession
	if session == "" {
		m, err := loadCurrentMeeting(ctx, st)
		if err != nil {
			return fmt.Errorf("no session token: %w (pass --session or run 'airtime setup')", err)
		}
		session = m.Session
	}

	log, closeLog, err := meetingLogger(cfg, nil, "popout")
	if err != nil {
		return err
	}
	defer closeLog()

	transport := openTransport(ctx, cfg, session, channel.RolePopout, log)
	defer transport.Close()

	out := cmd.OutOrStdout()
	display := timer.WithDisplay(func(formatted string, _ float64) {
		fmt.Fprintf(out, "\r  %s ", formatted)
	})

	secondary, err := coordinator.NewSecondary(coordinator.SecondaryDeps{
		Session:   session,
		Timer:     timer.New(timer.WithTickInterval(cfg.TickInterval), display),
		Store:     st,
		Transport: transport,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	go secondary.Run(ctx)

	if err := secondary.Announce(ctx); err != nil {
		fmt.Fprintln(out, "Main session not reachable yet; showing the last persisted state.")
		if err := secondary.FallbackFromStore(ctx); err != nil {
			log.Warn("no persisted meeting to fall back to", logging.Err(err))
		}
	}

	fmt.Fprintln(out, "Popout attached. Keys: m/w/n start, p pause, e end, q quit.")

	err = keyLoop(ctx, out, keyHandlers{
		start: func(c meeting.Category) error {
			if err := secondary.StartSpeaking(ctx, c); err != nil {
				return err
			}
			fmt.Fprintf(out, "\r%s speaking        \n", c)
			return nil
		},
		pause: func() error {
			if err := secondary.PauseSpeaking(ctx); err != nil {
				return err
			}
			fmt.Fprint(out, "\rpaused           \n")
			return nil
		},
		end: func() error {
			return secondary.EndMeeting(ctx)
		},
		activeQuit: func() bool { return false },
		ended:      secondary.Ended(),
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "\nPopout closed.")
	return nil
}

func runMeetingStatus(cmd *cobra.Command, args []string) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	m, err := loadCurrentMeeting(ctx, st)
	if err != nil {
		return err
	}

	return renderOutput(cmd, cfg.OutputFormat, m, func() string {
		state := "ended"
		if m.Active {
			state = "active"
		}
		speaker := "nobody"
		if m.CurrentSpeaker != nil {
			speaker = string(*m.CurrentSpeaker)
		}
		return fmt.Sprintf("Meeting:  %s (%s)\nState:    %s\nSpeaking: %s\nCommitted time: %s across %d participants\nSession:  %s\n",
			m.Name, m.Date, state, speaker,
			timer.FormatTime(m.AllSpeakingTime()), m.TotalParticipants(), m.Session)
	})
}

func runMeetingEnd(cmd *cobra.Command, args []string) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	m, err := loadCurrentMeeting(ctx, st)
	if err != nil {
		return err
	}
	if !m.Active {
		return fmt.Errorf("meeting %q has already ended", m.Name)
	}

	log, closeLog, err := meetingLogger(cfg, m, "primary")
	if err != nil {
		return err
	}
	defer closeLog()

	transport := openTransport(ctx, cfg, m.Session, channel.RolePrimary, log)
	defer transport.Close()

	primary, err := coordinator.NewPrimary(coordinator.PrimaryDeps{
		Meeting:   m,
		Timer:     timer.New(),
		Store:     st,
		Transport: transport,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	if err := primary.EndMeeting(ctx, true); err != nil {
		return err
	}

	final := primary.Snapshot()
	fmt.Fprintf(cmd.OutOrStdout(), "Meeting %q ended. Total speaking time %s.\nRun 'airtime stats' for the fairness report.\n",
		final.Name, timer.FormatTime(final.AllSpeakingTime()))
	return nil
}

// loadCurrentMeeting loads the in-progress meeting. A malformed record
// falls back to a fresh meeting rebuilt from the setup data, with a
// notice; committed speaking time from the damaged record is lost.
func loadCurrentMeeting(ctx context.Context, st store.Store) (*meeting.Meeting, error) {
	m, err := st.LoadCurrentMeeting(ctx)
	if err == nil {
		m.Normalize()
		return m, nil
	}

	if aterrors.IsMalformed(err) {
		data, serr := st.LoadSetupData(ctx)
		if serr == nil {
			fmt.Fprintln(os.Stderr, "Warning: stored meeting data was unreadable; starting over from setup.")
			fresh := store.MeetingFromSetup(data)
			fresh.Active = true
			if werr := st.SaveCurrentMeeting(ctx, fresh); werr != nil {
				return nil, werr
			}
			return fresh, nil
		}
	}

	if aterrors.IsNotFound(err) {
		return nil, fmt.Errorf("no meeting found; run 'airtime setup' first")
	}
	return nil, err
}

// meetingLogger builds the session logger, attaching the JSONL event
// journal when enabled. The returned func flushes and closes the journal.
func meetingLogger(cfg *config.CLIConfig, m *meeting.Meeting, component string) (logging.Logger, func(), error) {
	if !cfg.Journal {
		return newLogger(cfg, component), func() {}, nil
	}

	dataDir, err := cfg.GetDataDir()
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating data directory: %w", err)
	}

	name := component
	if m != nil {
		name = m.Date
	}
	path := filepath.Join(dataDir, fmt.Sprintf("journal-%s.jsonl", name))
	sink := logging.NewJournalSink(logging.JournalSinkConfig{
		Writer: logging.NewFileJournalWriter(path),
	})

	log := newLogger(cfg, component, sink)
	return log, func() { _ = sink.Close() }, nil
}

// openTransport connects the redis message channel. When redis is not
// reachable the session runs detached: a dead loopback stands in, sends
// fail quietly, and nothing is ever received.
func openTransport(ctx context.Context, cfg *config.CLIConfig, session string, role channel.Role, log logging.Logger) channel.Transport {
	client, err := connectToRedis(ctx, cfg)
	if err == nil {
		tr, terr := channel.NewRedisTransport(client, session, role, log)
		if terr == nil {
			return tr
		}
		err = terr
	}

	log.Warn("message channel unavailable, running detached", logging.Err(err))
	tr, peer := channel.NewLoopbackPair()
	_ = peer.Close()
	return tr
}

func metricsAddress(cfg *config.CLIConfig) string {
	if meetingMetricsAddr != "" {
		return meetingMetricsAddr
	}
	return cfg.MetricsAddress
}

func serveMetrics(addr string, log logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/version", buildinfo.Handler("airtime"))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("metrics endpoint stopped", logging.Err(err))
	}
}

func printKeyHelp(out io.Writer, m *meeting.Meeting) {
	fmt.Fprint(out, "Keys: ")
	for _, c := range meeting.Categories() {
		if m.Selectable(c) {
			fmt.Fprintf(out, "%c=%s  ", c[0], c)
		}
	}
	fmt.Fprintln(out, "p=pause  e=end  q=quit")
}

// keyHandlers are the actions bound to the session keys.
type keyHandlers struct {
	start      func(meeting.Category) error
	pause      func() error
	end        func() error
	activeQuit func() bool
	ended      <-chan struct{}
}

// keyLoop drives the single-key terminal UI. Without a terminal on stdin
// it just waits for the meeting to end or the context to cancel.
func keyLoop(ctx context.Context, out io.Writer, h keyHandlers) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		select {
		case <-h.ended:
		case <-ctx.Done():
		}
		return nil
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("entering raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	keys := make(chan byte)
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				close(keys)
				return
			}
			if n > 0 {
				select {
				case keys <- buf[0]:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	quitArmed := false
	for {
		select {
		case <-h.ended:
			// Give the final prints a moment to land before restoring.
			time.Sleep(50 * time.Millisecond)
			return nil
		case <-ctx.Done():
			return nil
		case key, ok := <-keys:
			if !ok {
				return nil
			}

			var err error
			switch key {
			case 'm':
				err = h.start(meeting.CategoryMen)
			case 'w':
				err = h.start(meeting.CategoryWomen)
			case 'n':
				err = h.start(meeting.CategoryNonbinary)
			case 'p', ' ':
				err = h.pause()
			case 'e':
				err = h.end()
			case 'q', 3: // 3 is ctrl-c in raw mode
				if h.activeQuit() && !quitArmed {
					quitArmed = true
					fmt.Fprint(out, "\rMeeting is still active. Press q again to close this session without ending it.\n")
					continue
				}
				return nil
			default:
				continue
			}
			quitArmed = false

			if err != nil {
				if aterrors.IsValidation(err) {
					fmt.Fprintf(out, "\r%v\n", err)
					continue
				}
				if aterrors.IsMeetingEnded(err) {
					return nil
				}
				return err
			}
		}
	}
}
