package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/reelimport/internal/client"
	"github.com/raphaelgruber/reelimport/internal/models"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var followProgress bool

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show import progress",
	Long: `Show discovery progress, secondary imports and queue depth.

Examples:
  reelimport progress           # One snapshot
  reelimport progress --follow  # Live view until the crawl drains`,
	Args: cobra.NoArgs,
	RunE: runProgress,
}

func init() {
	progressCmd.Flags().BoolVarP(&followProgress, "follow", "f", false, "keep watching the progress stream")
}

func runProgress(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if !followProgress {
		r, err := apiClient.Progress(ctx)
		if err != nil {
			return fmt.Errorf("progress: %w", err)
		}
		if jsonOut {
			return printJSON(r)
		}
		printf("%s", formatReport(*r))
		return nil
	}

	if jsonOut || !term.IsTerminal(int(os.Stdout.Fd())) {
		return followPlain(ctx, apiClient)
	}
	return RunProgressUI(apiClient)
}

// followPlain prints one line per report until the import drains.
func followPlain(ctx context.Context, c *client.Client) error {
	err := c.WatchProgress(ctx, func(r models.ProgressReport) error {
		if jsonOut {
			if err := printJSON(r); err != nil {
				return err
			}
		} else {
			printf("%s  queued %d\n", formatProgress(r.Discovery), pendingJobs(r.Jobs))
		}
		if drained(r) {
			return errDrained
		}
		return nil
	})
	if errors.Is(err, errDrained) {
		return nil
	}
	return err
}

var errDrained = errors.New("import drained")

// pendingJobs counts jobs that have not reached a final state.
func pendingJobs(counts []models.JobCount) int {
	n := 0
	for _, c := range counts {
		if !c.State.Terminal() {
			n += c.Count
		}
	}
	return n
}

// drained reports whether discovery has finished and nothing is queued.
func drained(r models.ProgressReport) bool {
	switch r.Discovery.Status {
	case models.RunStatusComplete, models.RunStatusFailed, models.RunStatusStopped:
		return pendingJobs(r.Jobs) == 0
	}
	return false
}

func formatReport(r models.ProgressReport) string {
	var b strings.Builder
	b.WriteString(formatProgress(r.Discovery) + "\n")
	for _, p := range r.Secondary {
		b.WriteString(formatProgress(p) + "\n")
	}
	fmt.Fprintf(&b, "queued jobs: %d\n", pendingJobs(r.Jobs))
	return b.String()
}

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// reportMsg carries a report from the stream.
type reportMsg models.ProgressReport

// streamErrMsg ends the view when the stream breaks.
type streamErrMsg struct{ err error }

// progressModel is the bubbletea model for the live progress view.
type progressModel struct {
	report   *models.ProgressReport
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel() progressModel {
	return progressModel{
		progress: progress.New(
			progress.WithDefaultBlend(),
			progress.WithWidth(40),
		),
		theme: defaultTheme,
	}
}

// Init starts the progress bar animation. Reports arrive via Program.Send.
func (m progressModel) Init() tea.Cmd {
	return m.progress.Init()
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case reportMsg:
		r := models.ProgressReport(msg)
		m.report = &r
		if drained(r) {
			m.done = true
			return m, tea.Quit
		}
		return m, nil

	case streamErrMsg:
		m.err = msg.err
		m.done = true
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}
	if m.report == nil {
		return "Waiting for progress...\n"
	}

	d := m.report.Discovery
	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", d.Status))
	bar := m.progress.ViewAs(d.CompletionPercentage / 100)
	counts := fmt.Sprintf("%d/%d films  page %d/%d", d.TotalImported, d.TotalKnown, d.LastPageProcessed, d.TotalPages)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", status, bar, counts)
	for _, p := range m.report.Secondary {
		fmt.Fprintf(&b, "  %s\n", formatProgress(p))
	}
	fmt.Fprintf(&b, "  queued jobs: %d\n", pendingJobs(m.report.Jobs))
	b.WriteString(m.theme.hintStyle().Render("Press q to stop watching; the import keeps running") + "\n")
	return b.String()
}

func (m progressModel) finalView() string {
	if m.quitting {
		return m.theme.hintStyle().Render("\nImport continues in background.\nUse 'reelimport progress' to check status.\n")
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Progress stream failed: %s\n", m.err))
	}
	if m.report == nil {
		return ""
	}
	d := m.report.Discovery
	if d.Status == models.RunStatusFailed {
		return m.theme.errorStyle().Render(fmt.Sprintf("✗ Discovery failed at pages %v\n", d.FailedPages))
	}
	return m.theme.completedStyle().Render("✓ Import drained") + "\n\n" + formatReport(*m.report)
}

// RunProgressUI follows the progress stream in an interactive view.
// Returns nil when the import drains or the user quits.
func RunProgressUI(c *client.Client) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := tea.NewProgram(newProgressModel())
	go func() {
		err := c.WatchProgress(ctx, func(r models.ProgressReport) error {
			p.Send(reportMsg(r))
			return nil
		})
		if err != nil && ctx.Err() == nil {
			p.Send(streamErrMsg{err: err})
		}
	}()

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}
	if m, ok := finalModel.(progressModel); ok && !m.quitting && m.err != nil {
		return m.err
	}
	return nil
}
