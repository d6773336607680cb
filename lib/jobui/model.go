// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/junegunn/fzf/src/util"

	"github.com/bureau-foundation/auditdesk/auditapi"
	"github.com/bureau-foundation/auditdesk/lib/actions"
	"github.com/bureau-foundation/auditdesk/lib/clock"
	"github.com/bureau-foundation/auditdesk/lib/jobstore"
	"github.com/bureau-foundation/auditdesk/lib/jobsync"
	"github.com/bureau-foundation/auditdesk/lib/schema/job"
)

// Actions is the action coordinator as the dashboard uses it.
// *actions.Coordinator implements it.
type Actions interface {
	Pending() actions.PendingAction
	Subscribe(callback func(actions.PendingAction)) func()
	Request(kind actions.Kind, target string) (actions.PendingAction, error)
	Cancel() bool
	Confirm(ctx context.Context) (actions.Outcome, error)
}

// Sync is the synchronizer as the dashboard uses it. *jobsync.Runtime
// implements it.
type Sync interface {
	Status() jobsync.Status
	Subscribe() (<-chan struct{}, func())
	Reload(ctx context.Context) error
}

// DefaultRequestTimeout bounds a confirmed action or a reload,
// retries included.
const DefaultRequestTimeout = 30 * time.Second

// Config holds configuration for creating a Model.
type Config struct {
	Store   *jobstore.Store
	Actions Actions
	Sync    Sync

	// Theme defaults to DefaultTheme, Keys to DefaultKeyMap.
	Theme *Theme
	Keys  *KeyMap

	// Plain drops all color and text attributes.
	Plain bool

	// Output is the terminal the program draws on. If nil, os.Stdout
	// is used.
	Output io.Writer

	// RequestTimeout bounds confirmed actions and reloads. Zero means
	// DefaultRequestTimeout.
	RequestTimeout time.Duration

	// Clock drives the change highlight. If nil, clock.Real() is used.
	Clock clock.Clock
}

type storeChangeMsg struct {
	change jobstore.Change
}

type syncChangeMsg struct{}

type pendingChangeMsg struct{}

type actionResultMsg struct {
	outcome actions.Outcome
	err     error
}

type reloadResultMsg struct {
	err error
}

type heatTickMsg struct{}

// Model is the bubbletea model for the job dashboard.
type Model struct {
	store          *jobstore.Store
	actions        Actions
	sync           Sync
	theme          Theme
	keys           KeyMap
	renderer       *lipgloss.Renderer
	plain          bool
	clock          clock.Clock
	requestTimeout time.Duration

	width  int
	height int
	ready  bool

	filter  Filter
	slab    *util.Slab
	matches []FilterMatch
	counts  map[job.Status]int
	total   int

	cursor       int
	scrollOffset int
	selectedID   string // selection follows the job, not the row

	status     jobsync.Status
	sawSession bool
	pending    actions.PendingAction

	notice       string
	noticeError  bool
	noticeSerial uint64

	heat        *heatTracker
	tickRunning bool

	storeChanges <-chan jobstore.Change
	syncChanges  <-chan struct{}
	pendingWakes chan struct{}
	closers      []func()

	exitReason string
}

// NewModel subscribes to the store, the synchronizer and the
// coordinator and returns a model showing the store's current
// contents. Call Close once the program has exited.
func NewModel(config Config) Model {
	model := Model{
		store:          config.Store,
		actions:        config.Actions,
		sync:           config.Sync,
		theme:          DefaultTheme,
		keys:           DefaultKeyMap,
		plain:          config.Plain,
		clock:          config.Clock,
		requestTimeout: config.RequestTimeout,
		slab:           newSlab(),
		heat:           newHeatTracker(),
		pendingWakes:   make(chan struct{}, 1),
	}
	if config.Theme != nil {
		model.theme = *config.Theme
	}
	if config.Keys != nil {
		model.keys = *config.Keys
	}
	if model.clock == nil {
		model.clock = clock.Real()
	}
	if model.requestTimeout <= 0 {
		model.requestTimeout = DefaultRequestTimeout
	}
	output := config.Output
	if output == nil {
		output = os.Stdout
	}
	model.renderer = newRenderer(output, config.Plain)

	storeChanges, disposeStore := model.store.Subscribe()
	syncChanges, disposeSync := model.sync.Subscribe()
	wakes := model.pendingWakes
	disposePending := model.actions.Subscribe(func(actions.PendingAction) {
		select {
		case wakes <- struct{}{}:
		default:
		}
	})
	model.storeChanges = storeChanges
	model.syncChanges = syncChanges
	model.closers = []func(){disposePending, disposeSync, disposeStore}

	model.status = model.sync.Status()
	model.sawSession = model.status.Generation > 0
	model.pending = model.actions.Pending()
	model.refresh()
	return model
}

// Close unregisters the model's subscriptions.
func (model Model) Close() {
	for _, closer := range model.closers {
		closer()
	}
}

// ExitReason says why the dashboard quit on its own ("logged out",
// "session ended"), or "" when the user quit.
func (model Model) ExitReason() string {
	return model.exitReason
}

// Init implements tea.Model.
func (model Model) Init() tea.Cmd {
	return tea.Batch(
		listenStore(model.storeChanges),
		listenSync(model.syncChanges),
		listenPending(model.pendingWakes),
	)
}

func listenStore(channel <-chan jobstore.Change) tea.Cmd {
	return func() tea.Msg {
		change, ok := <-channel
		if !ok {
			return nil
		}
		return storeChangeMsg{change: change}
	}
}

func listenSync(channel <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-channel; !ok {
			return nil
		}
		return syncChangeMsg{}
	}
}

func listenPending(channel <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-channel
		return pendingChangeMsg{}
	}
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		return model.handleKey(message)

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.ready = true
		model.ensureCursorVisible()

	case storeChangeMsg:
		model.heat.record(message.change, model.clock.Now())
		model.refresh()
		commands := []tea.Cmd{listenStore(model.storeChanges)}
		if !model.tickRunning && model.heat.hasHot(model.clock.Now()) {
			model.tickRunning = true
			commands = append(commands, scheduleHeatTick())
		}
		return model, tea.Batch(commands...)

	case syncChangeMsg:
		return model.handleSyncChange()

	case pendingChangeMsg:
		model.pending = model.actions.Pending()
		return model, listenPending(model.pendingWakes)

	case actionResultMsg:
		return model.handleActionResult(message)

	case reloadResultMsg:
		if message.err != nil {
			return model, model.setNotice("reload failed: "+describeError(message.err), true)
		}
		return model, model.setNotice("job list reloaded", false)

	case heatTickMsg:
		if model.heat.hasHot(model.clock.Now()) {
			return model, scheduleHeatTick()
		}
		model.tickRunning = false

	case logRecordMsg:
		return model, model.setNotice(message.summary, message.level >= slog.LevelError)

	case noticeFadeMsg:
		if message.serial == model.noticeSerial {
			model.notice = ""
			model.noticeError = false
		}
	}
	return model, nil
}

func scheduleHeatTick() tea.Cmd {
	return tea.Tick(heatTickInterval, func(time.Time) tea.Msg {
		return heatTickMsg{}
	})
}

// setNotice shows text in the status bar and schedules its removal.
func (model *Model) setNotice(text string, isError bool) tea.Cmd {
	model.noticeSerial++
	model.notice = text
	model.noticeError = isError
	serial := model.noticeSerial
	return tea.Tick(noticeFadeDelay, func(time.Time) tea.Msg {
		return noticeFadeMsg{serial: serial}
	})
}

func (model Model) handleSyncChange() (tea.Model, tea.Cmd) {
	model.status = model.sync.Status()
	if model.status.Generation > 0 {
		model.sawSession = true
	}
	if model.sawSession && model.status.State == jobsync.StateOffline {
		model.exitReason = "session ended"
		if model.pending.Kind == actions.KindLogout {
			model.exitReason = "logged out"
		}
		return model, tea.Quit
	}
	return model, listenSync(model.syncChanges)
}

func (model Model) handleActionResult(message actionResultMsg) (tea.Model, tea.Cmd) {
	model.pending = model.actions.Pending()
	outcome, err := message.outcome, message.err

	// A logout always ends the local session, whatever the server said.
	if outcome.Kind == actions.KindLogout {
		model.exitReason = "logged out"
		return model, tea.Quit
	}
	if err != nil {
		if errors.Is(err, actions.ErrDiscarded) {
			return model, model.setNotice("session changed; result discarded", false)
		}
		return model, model.setNotice(describeError(err), true)
	}
	switch outcome.Kind {
	case actions.KindStop:
		return model, model.setNotice("stopped job "+outcome.Target, false)
	case actions.KindDelete:
		return model, model.setNotice("deleted job "+outcome.Target, false)
	}
	return model, nil
}

// describeError turns an action or sync error into status bar text.
func describeError(err error) string {
	var validation *actions.ValidationError
	var rejected *actions.RejectedError
	switch {
	case errors.As(err, &validation):
		return validation.Message
	case errors.As(err, &rejected):
		if rejected.Target == "" {
			return fmt.Sprintf("%s rejected: %s", rejected.Kind, rejected.Message)
		}
		return fmt.Sprintf("%s %s rejected: %s", rejected.Kind, rejected.Target, rejected.Message)
	case errors.Is(err, actions.ErrBusy):
		return "another action is still in flight"
	case errors.Is(err, jobsync.ErrNoSession):
		return "not logged in"
	case auditapi.IsUnauthorized(err):
		return "session expired"
	case auditapi.IsTransient(err):
		return "network problem: " + err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	default:
		return err.Error()
	}
}

func (model Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	if message.Type == tea.KeyCtrlC {
		return model, tea.Quit
	}

	switch model.pending.Phase {
	case actions.PhaseAwaitingConfirmation:
		switch {
		case key.Matches(message, model.keys.Confirm):
			model.pending.Phase = actions.PhaseInFlight
			return model, model.confirm()
		case key.Matches(message, model.keys.Cancel):
			model.actions.Cancel()
			model.pending = model.actions.Pending()
		}
		return model, nil
	case actions.PhaseInFlight:
		// Only navigation while the request runs.
		model.handleNavigation(message)
		return model, nil
	}

	if model.filter.Active {
		return model.handleFilterKeys(message)
	}

	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit

	case key.Matches(message, model.keys.FilterActivate):
		model.filter.Active = true

	case key.Matches(message, model.keys.FilterClear):
		if model.filter.Input != "" {
			model.filter.Clear()
			model.refresh()
		} else {
			model.notice = ""
		}

	case key.Matches(message, model.keys.Stop):
		return model, model.request(actions.KindStop, model.selectedID)

	case key.Matches(message, model.keys.Delete):
		return model, model.request(actions.KindDelete, model.selectedID)

	case key.Matches(message, model.keys.Logout):
		return model, model.request(actions.KindLogout, "")

	case key.Matches(message, model.keys.Reload):
		notice := model.setNotice("reloading job list…", false)
		return model, tea.Batch(notice, model.reload())

	default:
		model.handleNavigation(message)
	}
	return model, nil
}

func (model Model) handleFilterKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch message.Type {
	case tea.KeyEsc:
		if model.filter.Input == "" {
			model.filter.Active = false
			return model, nil
		}
		model.filter.Clear()
	case tea.KeyEnter:
		model.filter.Active = false
		return model, nil
	case tea.KeyBackspace:
		if !model.filter.HandleBackspace() {
			return model, nil
		}
	case tea.KeyRunes, tea.KeySpace:
		for _, character := range message.Runes {
			model.filter.HandleRune(character)
		}
	case tea.KeyUp, tea.KeyDown:
		model.handleNavigation(message)
		return model, nil
	default:
		return model, nil
	}
	// Snap to the best match as the query changes.
	model.selectedID = ""
	model.cursor = 0
	model.scrollOffset = 0
	model.refresh()
	return model, nil
}

func (model *Model) handleNavigation(message tea.KeyMsg) {
	page := max(model.visibleHeight(), 1)
	switch {
	case key.Matches(message, model.keys.Up):
		model.moveCursor(-1)
	case key.Matches(message, model.keys.Down):
		model.moveCursor(1)
	case key.Matches(message, model.keys.PageUp):
		model.moveCursor(-page)
	case key.Matches(message, model.keys.PageDown):
		model.moveCursor(page)
	case key.Matches(message, model.keys.Home):
		model.moveCursor(-len(model.matches))
	case key.Matches(message, model.keys.End):
		model.moveCursor(len(model.matches))
	}
}

func (model *Model) moveCursor(delta int) {
	if len(model.matches) == 0 {
		return
	}
	model.cursor = min(max(model.cursor+delta, 0), len(model.matches)-1)
	model.selectedID = model.matches[model.cursor].View.ID
	model.ensureCursorVisible()
}

// request raises a pending action. The overlay appears on the next
// render; nothing is sent until it is confirmed.
func (model *Model) request(kind actions.Kind, target string) tea.Cmd {
	if kind != actions.KindLogout && target == "" {
		return model.setNotice("no job selected", true)
	}
	pending, err := model.actions.Request(kind, target)
	if err != nil {
		return model.setNotice(describeError(err), true)
	}
	model.pending = pending
	return nil
}

func (model Model) confirm() tea.Cmd {
	coordinator, timeout := model.actions, model.requestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		outcome, err := coordinator.Confirm(ctx)
		return actionResultMsg{outcome: outcome, err: err}
	}
}

func (model Model) reload() tea.Cmd {
	runtime, timeout := model.sync, model.requestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return reloadResultMsg{err: runtime.Reload(ctx)}
	}
}

// refresh re-reads the store, re-applies the filter and puts the
// cursor back on the selected job.
func (model *Model) refresh() {
	views := model.store.List()
	model.total = len(views)
	model.counts = make(map[job.Status]int, len(job.Statuses))
	for _, view := range views {
		model.counts[view.Status]++
	}
	model.matches = model.filter.Apply(views, model.slab)

	found := false
	for index, match := range model.matches {
		if match.View.ID == model.selectedID {
			model.cursor = index
			found = true
			break
		}
	}
	if !found {
		model.cursor = min(model.cursor, len(model.matches)-1)
		model.cursor = max(model.cursor, 0)
		model.selectedID = ""
		if len(model.matches) > 0 {
			model.selectedID = model.matches[model.cursor].View.ID
		}
	}
	model.ensureCursorVisible()
}

func (model Model) selected() *jobstore.View {
	if model.cursor < 0 || model.cursor >= len(model.matches) {
		return nil
	}
	view := model.matches[model.cursor].View
	return &view
}

// visibleHeight is the number of list rows between the header line
// and the separator plus status bar.
func (model Model) visibleHeight() int {
	return model.height - 3
}

func (model Model) listWidth() int {
	return model.width * 55 / 100
}

func (model *Model) ensureCursorVisible() {
	visible := model.visibleHeight()
	if visible <= 0 {
		return
	}
	model.scrollOffset = min(model.scrollOffset, max(len(model.matches)-visible, 0))
	if model.cursor < model.scrollOffset {
		model.scrollOffset = model.cursor
	}
	if model.cursor >= model.scrollOffset+visible {
		model.scrollOffset = model.cursor - visible + 1
	}
}

func (model Model) style() lipgloss.Style {
	return model.renderer.NewStyle()
}

// View implements tea.Model.
func (model Model) View() string {
	if !model.ready {
		return "Loading..."
	}

	var sections []string
	if bar := model.filter.View(model.renderer, model.theme, model.width); bar != "" {
		sections = append(sections, bar)
	} else {
		sections = append(sections, model.renderHeader())
	}

	visible := max(model.visibleHeight(), 0)
	detail := detailPane{renderer: model.renderer, theme: model.theme, plain: model.plain}
	divider := model.style().Foreground(model.theme.BorderColor).Width(1).Height(visible).
		Render(strings.TrimSuffix(strings.Repeat("│\n", visible), "\n"))
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top,
		model.renderList(),
		divider,
		detail.render(model.selected(), model.width-model.listWidth()-1, visible),
	))

	sections = append(sections,
		model.style().Foreground(model.theme.BorderColor).Render(strings.Repeat("─", model.width)),
		model.renderStatusBar(),
	)
	output := strings.Join(sections, "\n")

	if model.pending.Phase != actions.PhaseNone {
		caseNumber := ""
		if view, ok := model.store.Get(model.pending.Target); ok {
			caseNumber = view.CaseNumber
		}
		lines, anchorX, anchorY := renderConfirm(model.renderer, model.theme, model.pending, caseNumber, model.width, model.height)
		output = spliceOverlay(output, lines, anchorX, anchorY)
	}
	return output
}

func (model Model) renderList() string {
	rowWidth := max(model.listWidth()-1, 0)
	visible := max(model.visibleHeight(), 0)
	box := model.style().Width(rowWidth).Height(visible)

	if len(model.matches) == 0 {
		return lipgloss.JoinHorizontal(lipgloss.Top,
			model.style().Width(rowWidth).Height(visible).
				Align(lipgloss.Center, lipgloss.Center).
				Foreground(model.theme.FaintText).
				Render(model.emptyText()),
			renderScrollbar(model.renderer, model.theme, visible, 0, visible, 0),
		)
	}

	now := model.clock.Now()
	rows := make([]string, 0, visible)
	for index := model.scrollOffset; index < model.scrollOffset+visible && index < len(model.matches); index++ {
		rows = append(rows, model.renderRow(model.matches[index], index == model.cursor, rowWidth, now))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		box.Render(strings.Join(rows, "\n")),
		renderScrollbar(model.renderer, model.theme, visible, len(model.matches), visible, model.scrollOffset),
	)
}

func (model Model) emptyText() string {
	if model.filter.Input != "" {
		return "No jobs match the filter."
	}
	switch model.status.State {
	case jobsync.StateOffline:
		return "Not connected."
	case jobsync.StateConnecting:
		return "Connecting…"
	case jobsync.StateLoading:
		return "Loading jobs…"
	}
	if !model.status.SnapshotLoaded {
		return "Job list not loaded. Press r to retry."
	}
	return "No jobs yet."
}

// Column widths of a list row, after the two-column status marker.
const (
	idColumn      = 8
	featureColumn = 12
	branchColumn  = 10
	scoreColumn   = 7
)

func (model Model) renderRow(match FilterMatch, selected bool, width int, now time.Time) string {
	view := match.View
	base := model.style().Foreground(model.theme.NormalText)
	faint := model.style().Foreground(model.theme.FaintText)
	if selected {
		base = base.Background(model.theme.SelectedBackground).Foreground(model.theme.SelectedForeground).Bold(true)
		faint = faint.Background(model.theme.SelectedBackground)
	}

	marker := " "
	if view.Optimistic {
		marker = "~"
	}
	icon := base.Foreground(model.theme.StatusColor(view.Status)).Render(statusIcon(view.Status)) + faint.Render(marker)

	id := view.ID
	if view.Provisional {
		id = "new"
	}
	score := ""
	if view.Accuracy != nil {
		score = formatAccuracy(*view.Accuracy)
	}

	caseWidth := max(width-2-idColumn-featureColumn-branchColumn-scoreColumn, 8)
	row := icon +
		faint.Render(pad(id, idColumn)) +
		highlightCase(view.CaseNumber, match.CasePositions, caseWidth, base, base.Background(model.theme.MatchBackground)) +
		faint.Render(pad(string(view.Feature), featureColumn)) +
		faint.Render(pad(view.Branch, branchColumn)) +
		base.Render(fmt.Sprintf("%*s", scoreColumn, score))

	rowStyle := model.style().Width(width).MaxWidth(width)
	if selected {
		return rowStyle.Background(model.theme.SelectedBackground).Render(row)
	}
	if model.heat.heat(view.ID, now) > 0 {
		accent := model.theme.HotAccentPut
		if model.heat.kind(view.ID) == heatRevert {
			accent = model.theme.HotAccentRevert
		}
		return rowStyle.Background(accent).Render(row)
	}
	return rowStyle.Render(row)
}

// pad fits text into a column, truncating with an ellipsis and
// leaving one space of gutter.
func pad(text string, width int) string {
	text = ansi.Truncate(text, width-1, "…")
	return text + strings.Repeat(" ", max(width-ansi.StringWidth(text), 0))
}

// highlightCase renders the case number with the filter's matched runes
// in the highlight style, fitted to width.
func highlightCase(caseNumber string, positions []int, width int, base, highlight lipgloss.Style) string {
	runes := []rune(caseNumber)
	if len(runes) >= width {
		runes = append(runes[:max(width-2, 0)], '…')
	}
	matched := make(map[int]bool, len(positions))
	for _, position := range positions {
		matched[position] = true
	}
	var out strings.Builder
	for index, character := range runes {
		if matched[index] && character != '…' {
			out.WriteString(highlight.Render(string(character)))
		} else {
			out.WriteString(base.Render(string(character)))
		}
	}
	out.WriteString(base.Render(strings.Repeat(" ", max(width-len(runes), 0))))
	return out.String()
}

func (model Model) renderHeader() string {
	rule := model.style().Foreground(model.theme.BorderColor)
	title := model.style().Bold(true).Foreground(model.theme.HeaderForeground)
	faint := model.style().Foreground(model.theme.FaintText)

	left := rule.Render("───") + " " + title.Render("auditdesk") + " "
	if model.status.Username != "" {
		left += rule.Render("──") + " " + faint.Render(model.status.Username) + " "
	}

	parts := []string{fmt.Sprintf("%d jobs", model.total)}
	for _, status := range job.Statuses {
		if count := model.counts[status]; count > 0 {
			parts = append(parts, model.style().Foreground(model.theme.StatusColor(status)).
				Render(fmt.Sprintf("%d %s", count, status)))
		}
	}
	right := " " + strings.Join(parts, "  ") + " " + rule.Render("─")

	fill := max(model.width-ansi.StringWidth(left)-ansi.StringWidth(right), 1)
	return left + rule.Render(strings.Repeat("─", fill)) + right
}

// syncLabel names the synchronizer state for the status bar.
func syncLabel(status jobsync.Status) string {
	switch status.State {
	case jobsync.StateReconnecting:
		if status.RetryIn > 0 {
			return fmt.Sprintf("reconnecting in %s", status.RetryIn.Round(time.Second))
		}
		return "reconnecting"
	case jobsync.StateLoading:
		return "loading"
	case jobsync.StateLive:
		if !status.SnapshotLoaded {
			return "live, list incomplete"
		}
		return "live"
	default:
		return string(status.State)
	}
}

func (model Model) renderStatusBar() string {
	help := model.style().Foreground(model.theme.HelpText)
	stateColor := model.theme.StatusCompleted
	if model.status.State != jobsync.StateLive || !model.status.SnapshotLoaded {
		stateColor = model.theme.StatusProcessing
	}
	bar := " " + model.style().Foreground(stateColor).Bold(true).Render("["+syncLabel(model.status)+"]")

	switch {
	case model.pending.Phase == actions.PhaseAwaitingConfirmation:
		bar += help.Render("  y confirm  n cancel")
	case model.filter.Active:
		bar += help.Render("  type to filter  ↑↓ move  Enter keep  Esc clear")
	default:
		bar += help.Render("  q quit  ↑↓ move  / filter  s stop  d delete  r reload  L logout")
	}
	if len(model.matches) > 0 {
		bar += help.Render(fmt.Sprintf("  %d/%d", model.cursor+1, len(model.matches)))
	}

	switch {
	case model.notice != "":
		color := model.theme.NoticeInfo
		if model.noticeError {
			color = model.theme.NoticeError
		}
		bar += "  " + model.style().Foreground(color).Bold(true).Render(model.notice)
	case model.status.LastError != nil:
		bar += "  " + model.style().Foreground(model.theme.NoticeError).Render(describeError(model.status.LastError))
	}
	return ansi.Truncate(bar, model.width, "…")
}
