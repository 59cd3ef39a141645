package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/lordvcs/ccusage_indicator/internal/indicator"
	"github.com/lordvcs/ccusage_indicator/internal/usage"
)

// Controller is the refresh loop the TUI displays and triggers.
type Controller interface {
	Start(indicator.Display) error
	Trigger()
	Stop()
}

type Options struct {
	Controller Controller
	Command    string
	NoColor    bool
	AltScreen  bool
}

type Model struct {
	trigger func()
	command string

	width  int
	height int

	now time.Time

	view    indicator.View
	hasView bool

	spinner spinner.Model
	styles  styles
}

type styles struct {
	title   lipgloss.Style
	dim     lipgloss.Style
	panel   lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
	accent  lipgloss.Style
	error   lipgloss.Style
	help    lipgloss.Style
	loading lipgloss.Style
}

type viewMsg struct {
	view indicator.View
}

type clockTickMsg struct {
	at time.Time
}

func NewModel(opts Options) Model {
	trigger := func() {}
	if opts.Controller != nil {
		trigger = opts.Controller.Trigger
	}
	st := defaultStyles(opts.NoColor)
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(st.loading))

	return Model{
		trigger: trigger,
		command: opts.Command,
		now:     time.Now(),
		spinner: sp,
		styles:  st,
	}
}

func defaultStyles(noColor bool) styles {
	basePanel := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	if noColor {
		return styles{
			title:   lipgloss.NewStyle().Bold(true),
			dim:     lipgloss.NewStyle(),
			panel:   basePanel,
			label:   lipgloss.NewStyle().Bold(true),
			value:   lipgloss.NewStyle(),
			ok:      lipgloss.NewStyle().Bold(true),
			warn:    lipgloss.NewStyle().Bold(true),
			bad:     lipgloss.NewStyle().Bold(true),
			accent:  lipgloss.NewStyle().Bold(true),
			error:   lipgloss.NewStyle().Bold(true),
			help:    lipgloss.NewStyle(),
			loading: lipgloss.NewStyle(),
		}
	}
	return styles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("130")).Padding(0, 1),
		dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		panel:   basePanel.BorderForeground(lipgloss.Color("173")),
		label:   lipgloss.NewStyle().Foreground(lipgloss.Color("109")),
		value:   lipgloss.NewStyle().Foreground(lipgloss.Color("255")),
		ok:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		warn:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		bad:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		accent:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("216")),
		error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		help:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		loading: lipgloss.NewStyle().Foreground(lipgloss.Color("117")),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, clockCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch v := msg.(type) {
	case tea.KeyMsg:
		switch v.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			return m, triggerCmd(m.trigger)
		}
	case tea.WindowSizeMsg:
		m.width = v.Width
		m.height = v.Height
	case clockTickMsg:
		m.now = v.at
		return m, clockCmd()
	case viewMsg:
		m.view = v.view
		m.hasView = true
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(v)
		return m, cmd
	}
	return m, nil
}

func (m Model) busy() bool {
	return !m.hasView || m.view.State != indicator.StateReady
}

func (m Model) View() string {
	if m.width <= 0 || m.height <= 0 {
		return "initializing..."
	}

	header := m.renderHeader()
	body := m.renderBody()
	footer := m.styles.help.Render("r refresh now  q quit")

	top := lipgloss.JoinVertical(lipgloss.Left, header, body, "")
	combined := pinFooterToBottom(top, footer, m.height)
	return clipToViewport(combined, m.width, m.height)
}

func (m Model) renderHeader() string {
	title := m.styles.title.Render(" ccusage indicator ")

	stateText, stateStyle := m.stateText()
	left := title + "  " + m.styles.label.Render("state: ") + stateStyle.Render(stateText)
	if m.hasView && !m.view.NextRefreshAt.IsZero() {
		refreshText := "[next refresh in " + humanDuration(m.view.NextRefreshAt.Sub(m.now)) + "]"
		left += " " + m.styles.dim.Render(refreshText)
	}
	right := m.styles.dim.Render(m.now.Format("15:04:05"))
	return joinWithPaddingKeepRight(left, right, m.width)
}

func (m Model) stateText() (string, lipgloss.Style) {
	if !m.hasView || m.view.State == indicator.StateLoading {
		return "loading", m.styles.loading
	}
	if m.view.State == indicator.StateRefreshing {
		return "refreshing", m.styles.loading
	}
	snap := m.view.Snapshot
	if snap == nil {
		return "idle", m.styles.dim
	}
	switch snap.Outcome {
	case usage.OutcomeError:
		return "error", m.styles.bad
	case usage.OutcomeActive:
		return "ok", m.styles.ok
	case usage.OutcomeEnded:
		return "ended", m.styles.warn
	case usage.OutcomeNoSession:
		return "no session", m.styles.dim
	default:
		return "unknown", m.styles.warn
	}
}

func (m Model) renderBody() string {
	contentWidth := max(20, m.width-4)

	if contentWidth >= 94 {
		panelOverhead := horizontalOverhead(m.styles.panel)
		panelWidth, spacerWidth := splitEqualPanelContentWidths(contentWidth, panelOverhead)
		left := m.renderSessionPanel(panelWidth)
		right := m.renderDetailsPanel(panelWidth)
		return lipgloss.JoinHorizontal(lipgloss.Top, left, strings.Repeat(" ", spacerWidth), right)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderSessionPanel(contentWidth),
		m.renderDetailsPanel(contentWidth),
	)
}

func (m Model) renderSessionPanel(width int) string {
	label := usage.LabelLoading
	status := usage.StatusLoading
	if m.hasView {
		label = m.view.Label
		status = m.view.Status
	}

	labelStyle := m.styles.value
	if m.hasView && m.view.State == indicator.StateReady && m.view.Snapshot != nil {
		snap := m.view.Snapshot
		switch {
		case snap.Outcome == usage.OutcomeError:
			labelStyle = m.styles.error
		case snap.Metrics.PercentageConsumed != nil:
			labelStyle = percentStyle(*snap.Metrics.PercentageConsumed, m.styles)
		}
	}

	labelLine := labelStyle.Render(label)
	if m.busy() {
		labelLine = m.spinner.View() + " " + labelLine
	}

	lines := []string{
		m.styles.accent.Render("current session"),
		labelLine,
		m.styles.dim.Render(status),
	}
	for i := range lines {
		lines[i] = ansi.Truncate(lines[i], max(4, width), "...")
	}
	return m.styles.panel.Width(max(20, width)).Render(strings.Join(lines, "\n"))
}

func (m Model) renderDetailsPanel(width int) string {
	remaining := "n/a"
	used := "n/a"
	basis := "n/a"
	updated := "never"

	var snap *usage.Snapshot
	if m.hasView {
		snap = m.view.Snapshot
	}
	if snap != nil {
		if mins := snap.Metrics.RemainingMinutes; mins != nil {
			remaining = usage.FormatRemaining(*mins, false)
		}
		if pct := snap.Metrics.PercentageConsumed; pct != nil {
			used = fmt.Sprintf("%d%%", *pct)
		}
		switch {
		case snap.TokenLimit != nil:
			basis = "token limit " + compactCount(*snap.TokenLimit)
		case snap.Metrics.PercentageConsumed != nil:
			basis = "projected total"
		}
		if !snap.FetchedAt.IsZero() {
			updated = humanDuration(m.now.Sub(snap.FetchedAt)) + " ago"
		}
	}

	lines := []string{
		m.styles.label.Render("remaining: ") + m.styles.value.Render(remaining),
		m.styles.label.Render("used: ") + m.styles.value.Render(used),
		m.styles.label.Render("basis: ") + m.styles.value.Render(basis),
		m.styles.label.Render("last update: ") + m.styles.value.Render(updated),
		m.styles.label.Render("command: ") + m.styles.dim.Render(m.command),
		m.diagnosticsLine(snap),
	}
	for i := range lines {
		lines[i] = ansi.Truncate(lines[i], max(4, width), "...")
	}
	return m.styles.panel.Width(max(20, width)).Render(strings.Join(lines, "\n"))
}

func (m Model) diagnosticsLine(snap *usage.Snapshot) string {
	if snap == nil {
		return m.styles.dim.Render("diagnostics: waiting for first refresh")
	}
	if trimmed := strings.TrimSpace(snap.Error); trimmed != "" {
		return m.styles.error.Render("error: " + trimmed)
	}

	warnings := make([]string, 0, len(snap.Warnings))
	seen := map[string]struct{}{}
	for _, warning := range snap.Warnings {
		trimmed := strings.TrimSpace(warning)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		warnings = append(warnings, trimmed)
	}
	if len(warnings) > 0 {
		value := warnings[0]
		if len(warnings) > 1 {
			value = fmt.Sprintf("%s (+%d more)", warnings[0], len(warnings)-1)
		}
		return m.styles.warn.Render("warning: " + value)
	}
	return m.styles.ok.Render("diagnostics: ok")
}

func percentStyle(percent int, styles styles) lipgloss.Style {
	switch {
	case percent >= 90:
		return styles.bad
	case percent >= 70:
		return styles.warn
	default:
		return styles.ok
	}
}

func compactCount(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	if v < 1000 {
		return fmt.Sprintf("%s%d", sign, v)
	}
	units := []string{"", "k", "m", "b", "t"}
	value := float64(v)
	unitIndex := 0
	for value >= 1000 && unitIndex < len(units)-1 {
		value /= 1000
		unitIndex++
	}
	decimals := 0
	switch {
	case value >= 100:
		decimals = 0
	case value >= 10:
		decimals = 1
	default:
		decimals = 2
	}
	formatted := fmt.Sprintf("%.*f", decimals, value)
	if decimals > 0 {
		formatted = strings.TrimRight(strings.TrimRight(formatted, "0"), ".")
	}
	return fmt.Sprintf("%s%s%s", sign, formatted, units[unitIndex])
}

func clockCmd() tea.Cmd {
	return tea.Tick(1*time.Second, func(t time.Time) tea.Msg {
		return clockTickMsg{at: t}
	})
}

// triggerCmd runs off the update loop because Trigger waits for the
// controller to accept the request.
func triggerCmd(trigger func()) tea.Cmd {
	return func() tea.Msg {
		trigger()
		return nil
	}
}

// Run starts the controller with the program as its display and blocks until
// the user quits.
func Run(opts Options) error {
	if opts.Controller == nil {
		return errors.New("missing controller")
	}
	model := NewModel(opts)
	progOpts := []tea.ProgramOption{}
	if opts.AltScreen {
		progOpts = append(progOpts, tea.WithAltScreen())
	}
	prog := tea.NewProgram(model, progOpts...)

	display := indicator.DisplayFunc(func(v indicator.View) {
		prog.Send(viewMsg{view: v})
	})
	if err := opts.Controller.Start(display); err != nil {
		return err
	}
	defer opts.Controller.Stop()

	_, err := prog.Run()
	return err
}

func joinWithPaddingKeepRight(left, right string, width int) string {
	if width <= 0 {
		return ""
	}
	rightWidth := lipgloss.Width(right)
	if rightWidth >= width {
		return truncateRunes(right, width)
	}
	maxLeftWidth := width - rightWidth - 1
	if maxLeftWidth < 0 {
		maxLeftWidth = 0
	}
	left = truncateRunes(left, maxLeftWidth)
	leftWidth := lipgloss.Width(left)
	padding := width - leftWidth - rightWidth
	if padding < 1 {
		padding = 1
	}
	return left + strings.Repeat(" ", padding) + right
}

func truncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	return ansi.Truncate(s, maxRunes, "")
}

func clipToViewport(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for i := range lines {
		lines[i] = truncateRunes(lines[i], width)
		pad := width - lipgloss.Width(lines[i])
		if pad > 0 {
			lines[i] += strings.Repeat(" ", pad)
		}
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func pinFooterToBottom(top, footer string, height int) string {
	if height <= 0 {
		return ""
	}
	footerLines := []string{}
	if footer != "" {
		footerLines = strings.Split(footer, "\n")
	}
	topLines := []string{}
	if top != "" {
		topLines = strings.Split(top, "\n")
	}

	maxTopLines := height - len(footerLines)
	if maxTopLines < 0 {
		maxTopLines = 0
	}
	if len(topLines) > maxTopLines {
		topLines = topLines[:maxTopLines]
	}
	for len(topLines) < maxTopLines {
		topLines = append(topLines, "")
	}

	all := append(topLines, footerLines...)
	if len(all) == 0 {
		return ""
	}
	return strings.Join(all, "\n")
}

func humanDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return d.String()
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd%dh", int(d.Hours())/24, int(d.Hours())%24)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func splitEqualPanelContentWidths(contentWidth, panelOverhead int) (panelWidth int, spacerWidth int) {
	if contentWidth <= 0 {
		return 0, 0
	}
	// 2*(panel content + panel overhead) + spacer == full content width.
	usable := contentWidth - panelOverhead
	if usable < 3 {
		return 1, 1
	}
	if usable%2 == 0 {
		spacerWidth = 2
	} else {
		spacerWidth = 1
	}
	panelWidth = (usable - spacerWidth) / 2
	if panelWidth < 1 {
		panelWidth = 1
	}
	return panelWidth, spacerWidth
}

func horizontalOverhead(style lipgloss.Style) int {
	// Probe with a stable non-trivial width to avoid edge-case minimum sizing.
	const probeWidth = 40
	overhead := lipgloss.Width(style.Width(probeWidth).Render("")) - probeWidth
	if overhead < 0 {
		return 0
	}
	return overhead
}
