// Package ui renders the tuner panel: a split histogram over the dataset,
// category filters, and the fine-tune/apply submission form.
package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/prernadh/yolo-model-tuner-runner/internal/domain"
	"github.com/prernadh/yolo-model-tuner-runner/internal/exec"
	"github.com/prernadh/yolo-model-tuner-runner/internal/stats"
	tunerconfig "github.com/prernadh/yolo-model-tuner-runner/internal/tuner/config"
	"github.com/prernadh/yolo-model-tuner-runner/internal/tuner/hubclient"
	"github.com/prernadh/yolo-model-tuner-runner/internal/viewfilter"
)

type screen int

const (
	screenStats screen = iota
	screenParams
)

const (
	operatorFineTune = domain.OperatorFineTune
	operatorApply    = domain.OperatorApplyModel

	barWidth = 36
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	notifyStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	overlayStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 2)

	trainBarStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	valBarStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	bothBarStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	untaggedBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type statsMsg struct {
	seq    uint64
	counts hubclient.TagCounts
	err    error
}

type refreshTickMsg struct{}

type notifyTickMsg struct {
	gen uint64
}

type targetSelectedMsg struct {
	target exec.Target
}

type outcomeMsg struct {
	delegated bool
	jobRef    string
	result    map[string]any
}

type submitErrMsg struct {
	err error
}

type overlayOpenedMsg struct{}

type probeWarnMsg struct{}

// Client is the hub surface the panel needs. *hubclient.Client satisfies it.
type Client interface {
	exec.Provider
	GetTagCounts(ctx context.Context) (hubclient.TagCounts, error)
	Close() error
}

type Options struct {
	Config tunerconfig.Config
	Client Client
	// Sink receives the active view-filter stages. Nil means filter changes
	// are displayed but not pushed anywhere.
	Sink viewfilter.Sink
}

type model struct {
	cfg    tunerconfig.Config
	client Client
	sink   viewfilter.Sink

	tracker     *exec.Tracker
	probe       *exec.Probe
	coordinator *exec.Coordinator
	overlay     *targetOverlay

	screen   screen
	stats    stats.CategoryStats
	statsSeq uint64
	statsErr string
	category viewfilter.Category

	detInput     textinput.Model
	weightsInput textinput.Model
	exportInput  textinput.Model
	epochsInput  textinput.Model
	deviceInput  textinput.Model
	confInput    textinput.Model
	paramsFocus  int
	operator     string

	status     string
	statusErr  bool
	lastJobRef string

	selectedCh chan exec.Target
	outcomeCh  chan outcomeMsg
	errCh      chan error
	probeCh    chan struct{}

	width  int
	height int
}

// Run builds the panel and blocks until the user quits.
func Run(opts Options) error {
	m := newModel(opts)
	program := tea.NewProgram(m, tea.WithAltScreen())
	_, err := program.Run()
	m.teardown()
	return err
}

func newModel(opts Options) *model {
	m := &model{
		cfg:        opts.Config,
		client:     opts.Client,
		sink:       opts.Sink,
		overlay:    newTargetOverlay(),
		operator:   operatorFineTune,
		selectedCh: make(chan exec.Target, 4),
		outcomeCh:  make(chan outcomeMsg, 4),
		errCh:      make(chan error, 4),
		probeCh:    make(chan struct{}, 1),
	}

	m.tracker = exec.NewTracker(exec.Callbacks{
		OnSuccess: func(delegated bool, jobRef string, result map[string]any) {
			m.outcomeCh <- outcomeMsg{delegated: delegated, jobRef: jobRef, result: result}
		},
		OnError: func(err error) { m.errCh <- err },
	})
	m.probe = exec.NewProbe(m, exec.ProbeOptions{
		OnEmpty: func(exec.Surface) {
			select {
			case m.probeCh <- struct{}{}:
			default:
			}
		},
	})
	m.coordinator = exec.NewCoordinator(opts.Client, m.tracker, m.probe, m.overlay, exec.Callbacks{
		OnOptionSelected: func(target exec.Target) { m.selectedCh <- target },
	})

	detInput := textinput.New()
	detInput.Placeholder = "ground_truth"
	detInput.SetValue(opts.Config.DetField)
	detInput.CharLimit = 120
	detInput.Width = 40
	detInput.Focus()

	weightsInput := textinput.New()
	weightsInput.Placeholder = "yolov8n.pt"
	weightsInput.CharLimit = 240
	weightsInput.Width = 40

	exportInput := textinput.New()
	exportInput.Placeholder = "optional export path"
	exportInput.CharLimit = 240
	exportInput.Width = 40

	epochsInput := textinput.New()
	epochsInput.Placeholder = "10"
	epochsInput.CharLimit = 4
	epochsInput.Width = 8

	deviceInput := textinput.New()
	deviceInput.Placeholder = "0"
	deviceInput.CharLimit = 2
	deviceInput.Width = 4

	confInput := textinput.New()
	confInput.Placeholder = "0.25"
	confInput.CharLimit = 6
	confInput.Width = 8

	m.detInput = detInput
	m.weightsInput = weightsInput
	m.exportInput = exportInput
	m.epochsInput = epochsInput
	m.deviceInput = deviceInput
	m.confInput = confInput
	return m
}

// Surfaces implements exec.Inspector for the probe.
func (m *model) Surfaces() []exec.Surface {
	return []exec.Surface{m.overlay}
}

func (m *model) teardown() {
	m.probe.Close()
	m.tracker.Reset()
	_ = m.client.Close()
}

func (m *model) Init() tea.Cmd {
	m.statsSeq++
	return tea.Batch(
		refreshStatsCmd(m.client, m.statsSeq),
		refreshTickCmd(m.refreshInterval()),
		waitSelectedCmd(m.selectedCh),
		waitOutcomeCmd(m.outcomeCh),
		waitErrCmd(m.errCh),
		waitOverlayCmd(m.overlay.opened),
		waitProbeCmd(m.probeCh),
		textinput.Blink,
	)
}

func (m *model) refreshInterval() time.Duration {
	seconds := m.cfg.RefreshSeconds
	if seconds <= 0 {
		seconds = 5
	}
	return time.Duration(seconds) * time.Second
}

func refreshStatsCmd(client Client, seq uint64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer cancel()
		counts, err := client.GetTagCounts(ctx)
		return statsMsg{seq: seq, counts: counts, err: err}
	}
}

func refreshTickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}

func notifyTickCmd(gen uint64) tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return notifyTickMsg{gen: gen}
	})
}

func waitSelectedCmd(ch chan exec.Target) tea.Cmd {
	return func() tea.Msg {
		target, ok := <-ch
		if !ok {
			return nil
		}
		return targetSelectedMsg{target: target}
	}
}

func waitOutcomeCmd(ch chan outcomeMsg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func waitErrCmd(ch chan error) tea.Cmd {
	return func() tea.Msg {
		err, ok := <-ch
		if !ok {
			return nil
		}
		return submitErrMsg{err: err}
	}
}

func waitOverlayCmd(ch chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return overlayOpenedMsg{}
	}
}

func waitProbeCmd(ch chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return probeWarnMsg{}
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case statsMsg:
		if msg.seq != m.statsSeq {
			// A newer refresh is already in flight.
			return m, nil
		}
		if msg.err != nil {
			m.statsErr = msg.err.Error()
			return m, nil
		}
		m.statsErr = ""
		m.stats = stats.Compute(
			msg.counts.Counts[domain.TagTrain],
			msg.counts.Counts[domain.TagVal],
			msg.counts.Total,
		)
		return m, nil

	case refreshTickMsg:
		m.statsSeq++
		return m, tea.Batch(
			refreshStatsCmd(m.client, m.statsSeq),
			refreshTickCmd(m.refreshInterval()),
		)

	case notifyTickMsg:
		if m.tracker.Tick(msg.gen) {
			return m, notifyTickCmd(msg.gen)
		}
		return m, nil

	case targetSelectedMsg:
		m.setStatus(fmt.Sprintf("target: %s", msg.target.Name), false)
		return m, waitSelectedCmd(m.selectedCh)

	case outcomeMsg:
		cmd := waitOutcomeCmd(m.outcomeCh)
		if msg.delegated {
			m.lastJobRef = msg.jobRef
			m.setStatus("", false)
			_, gen := m.tracker.Notification()
			return m, tea.Batch(cmd, notifyTickCmd(gen))
		}
		m.setStatus(summarizeResult(msg.result), false)
		m.statsSeq++
		return m, tea.Batch(cmd, refreshStatsCmd(m.client, m.statsSeq))

	case submitErrMsg:
		m.setStatus(msg.err.Error(), true)
		return m, waitErrCmd(m.errCh)

	case overlayOpenedMsg:
		return m, waitOverlayCmd(m.overlay.opened)

	case probeWarnMsg:
		m.setStatus("no execution targets are available; check the hub's orchestrator configuration", true)
		return m, waitProbeCmd(m.probeCh)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}

	if m.overlay.Visible() {
		switch msg.String() {
		case "up", "k":
			m.overlay.moveCursor(-1)
		case "down", "j":
			m.overlay.moveCursor(1)
		case "enter":
			m.overlay.selectCurrent()
		case "esc", "q":
			m.overlay.Dismiss()
		}
		return m, nil
	}

	if notification, _ := m.tracker.Notification(); notification.Visible && msg.String() == "x" {
		m.tracker.Dismiss()
		return m, nil
	}

	switch m.screen {
	case screenStats:
		return m.handleStatsKey(msg)
	case screenParams:
		return m.handleParamsKey(msg)
	}
	return m, nil
}

func (m *model) handleStatsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "1":
		m.applyCategory(viewfilter.CategoryTrain)
	case "2":
		m.applyCategory(viewfilter.CategoryVal)
	case "3":
		m.applyCategory(viewfilter.CategoryBoth)
	case "4":
		m.applyCategory(viewfilter.CategoryUntagged)
	case "0", "esc":
		m.applyCategory(viewfilter.CategoryNone)
	case "r":
		m.statsSeq++
		return m, refreshStatsCmd(m.client, m.statsSeq)
	case "t":
		m.openParams(operatorFineTune)
	case "a":
		m.openParams(operatorApply)
	case "enter":
		m.openParams(m.operator)
	}
	return m, nil
}

func (m *model) openParams(operator string) {
	m.operator = operator
	m.screen = screenParams
	m.paramsFocus = 0
	m.syncParamsFocus()
}

// applyCategory toggles the filter: clicking the active category clears it.
func (m *model) applyCategory(category viewfilter.Category) {
	if category != viewfilter.CategoryNone && category == m.category {
		category = viewfilter.CategoryNone
	}
	m.category = category
	if m.sink != nil {
		m.sink.SetStages(viewfilter.Build(category))
	}
}

func (m *model) paramsFields() []*textinput.Model {
	if m.operator == operatorApply {
		return []*textinput.Model{&m.detInput, &m.weightsInput, &m.confInput, &m.deviceInput}
	}
	return []*textinput.Model{&m.detInput, &m.weightsInput, &m.exportInput, &m.epochsInput, &m.deviceInput}
}

func (m *model) syncParamsFocus() {
	fields := m.paramsFields()
	if m.paramsFocus >= len(fields) {
		m.paramsFocus = len(fields) - 1
	}
	for i, field := range fields {
		if i == m.paramsFocus {
			field.Focus()
		} else {
			field.Blur()
		}
	}
}

func (m *model) handleParamsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	fields := m.paramsFields()
	switch msg.String() {
	case "esc":
		m.screen = screenStats
		return m, nil
	case "tab", "down":
		m.paramsFocus = (m.paramsFocus + 1) % len(fields)
		m.syncParamsFocus()
		return m, nil
	case "shift+tab", "up":
		m.paramsFocus = (m.paramsFocus - 1 + len(fields)) % len(fields)
		m.syncParamsFocus()
		return m, nil
	case "ctrl+o":
		if m.operator == operatorFineTune {
			m.operator = operatorApply
		} else {
			m.operator = operatorFineTune
		}
		m.paramsFocus = 0
		m.syncParamsFocus()
		return m, nil
	case "enter":
		return m, m.submit()
	}

	var cmd tea.Cmd
	*fields[m.paramsFocus], cmd = fields[m.paramsFocus].Update(msg)
	return m, cmd
}

func (m *model) submit() tea.Cmd {
	params, err := m.buildParams()
	if err != nil {
		m.setStatus(err.Error(), true)
		return nil
	}
	request := exec.Request{Operator: m.operator, Params: params}
	if err := m.coordinator.Submit(context.Background(), request); err != nil {
		m.setStatus(err.Error(), true)
		return nil
	}
	m.setStatus("submitting "+operatorLabel(m.operator)+"...", false)
	return nil
}

func (m *model) buildParams() (map[string]any, error) {
	detField := strings.TrimSpace(m.detInput.Value())
	if detField == "" {
		detField = m.cfg.DetField
	}
	params := map[string]any{
		"det_field": detField,
		"dataset":   m.cfg.Dataset,
	}
	if len(m.cfg.Classes) > 0 {
		params["classes"] = m.cfg.Classes
	}
	if weights := strings.TrimSpace(m.weightsInput.Value()); weights != "" {
		params["weights_path"] = weights
	}

	if m.operator == operatorApply {
		if raw := strings.TrimSpace(m.confInput.Value()); raw != "" {
			conf, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, domain.InvalidArgument("confidence must be a number")
			}
			params["confidence"] = conf
		}
	} else {
		if export := strings.TrimSpace(m.exportInput.Value()); export != "" {
			params["export_uri"] = export
		}
		if raw := strings.TrimSpace(m.epochsInput.Value()); raw != "" {
			epochs, err := strconv.Atoi(raw)
			if err != nil {
				return nil, domain.InvalidArgument("epochs must be an integer")
			}
			params["epochs"] = epochs
		}
	}
	if raw := strings.TrimSpace(m.deviceInput.Value()); raw != "" {
		device, err := strconv.Atoi(raw)
		if err != nil {
			return nil, domain.InvalidArgument("device index must be an integer")
		}
		params["target_device_index"] = device
	}
	return params, nil
}

func (m *model) setStatus(text string, isErr bool) {
	m.status = text
	m.statusErr = isErr
}

func (m *model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("YOLO Model Tuner") + "  " + mutedStyle.Render(m.cfg.Dataset) + "\n\n")

	switch m.screen {
	case screenStats:
		b.WriteString(m.viewStats())
	case screenParams:
		b.WriteString(m.viewParams())
	}

	if notification, _ := m.tracker.Notification(); notification.Visible {
		b.WriteString("\n" + notifyStyle.Render(fmt.Sprintf("%s (%ds)", notification.Message, notification.RemainingTicks)))
		b.WriteString(mutedStyle.Render("  [x] dismiss") + "\n")
	}

	if m.status != "" {
		style := okStyle
		if m.statusErr {
			style = errStyle
		}
		b.WriteString("\n" + style.Render(m.status) + "\n")
	}
	if m.lastJobRef != "" {
		b.WriteString(mutedStyle.Render("last job: "+m.lastJobRef) + "\n")
	}

	if m.overlay.Visible() {
		b.WriteString("\n" + m.viewOverlay())
	}
	return b.String()
}

func (m *model) viewStats() string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("Dataset splits") + "\n")
	if m.statsErr != "" {
		b.WriteString(errStyle.Render("stats unavailable: "+m.statsErr) + "\n")
	}

	rows := []struct {
		label    string
		count    int
		category viewfilter.Category
		style    lipgloss.Style
	}{
		{"train only", m.stats.TrainOnly, viewfilter.CategoryTrain, trainBarStyle},
		{"val only", m.stats.ValOnly, viewfilter.CategoryVal, valBarStyle},
		{"both", m.stats.Both, viewfilter.CategoryBoth, bothBarStyle},
		{"untagged", m.stats.Untagged, viewfilter.CategoryUntagged, untaggedBarStyle},
	}
	for _, row := range rows {
		marker := "  "
		if m.category == row.category {
			marker = "> "
		}
		ratio := m.stats.Ratio(row.count)
		bar := renderBar(ratio, barWidth)
		b.WriteString(fmt.Sprintf("%s%-10s %s %5d %5.1f%%\n", marker, row.label, row.style.Render(bar), row.count, ratio*100))
	}
	b.WriteString(mutedStyle.Render(fmt.Sprintf("total %d, tagged %d", m.stats.Total, m.stats.Tagged())) + "\n")
	if m.category != viewfilter.CategoryNone {
		b.WriteString(okStyle.Render("filter: "+string(m.category)) + "\n")
	}

	b.WriteString("\n" + mutedStyle.Render("[1-4] filter category [0] clear  [r]efresh  [t]rain [a]pply  [q]uit"))
	return b.String()
}

func renderBar(ratio float64, width int) string {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio*float64(width) + 0.5)
	if filled == 0 && ratio > 0 {
		filled = 1
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func (m *model) viewParams() string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("Run "+operatorLabel(m.operator)) + "  " + mutedStyle.Render("[ctrl+o] switch operator") + "\n\n")

	fields := m.paramsFields()
	labels := []string{"Detections field:", "Weights path:", "Export URI:", "Epochs:", "Device index:"}
	if m.operator == operatorApply {
		labels = []string{"Detections field:", "Weights path:", "Confidence:", "Device index:"}
	}
	for i, field := range fields {
		b.WriteString(focusPrefix(m.paramsFocus == i) + labels[i] + "\n")
		b.WriteString("    " + field.View() + "\n")
	}

	b.WriteString("\n" + mutedStyle.Render("[tab] next field  [enter] submit  [esc] back"))
	return b.String()
}

func (m *model) viewOverlay() string {
	visible, targets, cursor := m.overlay.snapshot()
	if !visible {
		return ""
	}
	var b strings.Builder
	b.WriteString(sectionStyle.Render("Select execution target") + "\n")
	for i, target := range targets {
		marker := "  "
		if i == cursor {
			marker = "> "
		}
		kind := "immediate"
		if target.Delegated {
			kind = "delegated"
		}
		line := fmt.Sprintf("%s%-16s %s", marker, target.Name, mutedStyle.Render(kind))
		if i == cursor {
			line = okStyle.Render(fmt.Sprintf("%s%-16s", marker, target.Name)) + " " + mutedStyle.Render(kind)
		}
		b.WriteString(line + "\n")
	}
	b.WriteString(mutedStyle.Render("[enter] run  [esc] cancel"))
	return overlayStyle.Render(b.String())
}

func operatorLabel(operator string) string {
	if operator == operatorApply {
		return "apply model"
	}
	return "fine-tune"
}

func focusPrefix(active bool) string {
	if active {
		return "> "
	}
	return "  "
}

func summarizeResult(result map[string]any) string {
	if len(result) == 0 {
		return "completed"
	}
	if weights, ok := result["weights"].(string); ok && weights != "" {
		return "completed: " + weights
	}
	if detField, ok := result["det_field"].(string); ok && detField != "" {
		return "completed: predictions written to " + detField
	}
	return "completed"
}
