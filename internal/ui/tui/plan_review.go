package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/klauern/mirrorsync/internal/plan"
)

// ReviewAction is the user's decision on a plan.
type ReviewAction int

const (
	// ReviewActionNone means the user quit without deciding.
	ReviewActionNone ReviewAction = iota
	// ReviewActionApply means the user approved the plan.
	ReviewActionApply
	// ReviewActionAbort means the user rejected the plan.
	ReviewActionAbort
)

// PlanReviewResult contains the result of the plan review interaction.
type PlanReviewResult struct {
	Action ReviewAction
}

// Approved reports whether the plan should be executed.
func (r PlanReviewResult) Approved() bool {
	return r.Action == ReviewActionApply
}

type planReviewKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Kind    key.Binding
	Filter  key.Binding
	Apply   key.Binding
	Abort   key.Binding
	Help    key.Binding
	Quit    key.Binding
	ClearFl key.Binding
}

func defaultPlanReviewKeyMap() planReviewKeyMap {
	return planReviewKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Kind: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "cycle kind"),
		),
		Filter: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "filter"),
		),
		Apply: key.NewBinding(
			key.WithKeys("enter", "a"),
			key.WithHelp("enter/a", "apply"),
		),
		Abort: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "abort"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		ClearFl: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "clear filter"),
		),
	}
}

var planReviewStyles = struct {
	Title       lipgloss.Style
	Help        lipgloss.Style
	Filter      lipgloss.Style
	FilterInput lipgloss.Style
	Confirm     lipgloss.Style
	Status      lipgloss.Style
	Warning     lipgloss.Style
	Detail      lipgloss.Style
}{
	Title:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Padding(0, 1),
	Help:        lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	Filter:      lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
	FilterInput: lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
	Confirm:     lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true).Padding(1, 2),
	Status:      lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1),
	Warning:     lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
	Detail:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
}

const (
	planReviewKindWidth   = 8
	planReviewPathWidth   = 36
	planReviewPadding     = 2
	planReviewColumnCount = 3
	planReviewReserved    = 12
)

// PlanReviewModel lists every change of a plan and asks for approval.
type PlanReviewModel struct {
	table     table.Model
	actions   []plan.Action
	filtered  []plan.Action
	counts    map[plan.Kind]int
	plan      *plan.Plan
	keys      planReviewKeyMap
	result    PlanReviewResult
	kind      int // index into plan.Kinds, -1 for all
	filter    string
	filtering bool
	confirm   bool
	showHelp  bool
	width     int
	pathWidth int
	quitting  bool
}

// NewPlanReviewModel creates a review model for p.
func NewPlanReviewModel(p *plan.Plan) PlanReviewModel {
	actions := p.Changes()
	m := PlanReviewModel{
		actions:   actions,
		filtered:  actions,
		counts:    p.Counts(),
		plan:      p,
		keys:      defaultPlanReviewKeyMap(),
		kind:      -1,
		pathWidth: planReviewPathWidth,
	}

	t := table.New(
		table.WithColumns(m.columns()),
		table.WithRows(m.rows()),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	m.table = t
	return m
}

func (m PlanReviewModel) columns() []table.Column {
	return []table.Column{
		{Title: "Kind", Width: planReviewKindWidth},
		{Title: "Source", Width: m.pathWidth},
		{Title: "Destination", Width: m.pathWidth},
	}
}

func (m PlanReviewModel) rows() []table.Row {
	rows := make([]table.Row, len(m.filtered))
	for i, a := range m.filtered {
		kind := a.Kind.String()
		if a.Transform {
			kind += "*"
		}
		rows[i] = table.Row{
			kind,
			truncateText(a.Source, m.pathWidth),
			truncateText(a.Dest, m.pathWidth),
		}
	}
	return rows
}

func (m *PlanReviewModel) resize(width int) {
	m.width = width
	available := width - planReviewKindWidth - planReviewPadding*planReviewColumnCount
	m.pathWidth = max(available/2, 12)
	m.table.SetColumns(m.columns())
	m.table.SetRows(m.rows())
}

// Init implements tea.Model.
func (m PlanReviewModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m PlanReviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetHeight(max(msg.Height-planReviewReserved, 5))
		m.resize(msg.Width)

	case tea.KeyMsg:
		if m.confirm {
			switch msg.String() {
			case "y", "Y":
				m.result = PlanReviewResult{Action: ReviewActionApply}
				m.quitting = true
				return m, tea.Quit
			case "n", "N", "esc":
				m.confirm = false
			}
			return m, nil
		}

		if m.filtering {
			switch msg.String() {
			case "enter":
				m.filtering = false
			case "esc":
				m.filter = ""
				m.filtering = false
				m.applyFilter()
			case "backspace":
				if len(m.filter) > 0 {
					m.filter = m.filter[:len(m.filter)-1]
					m.applyFilter()
				}
			default:
				if len(msg.String()) == 1 {
					m.filter += msg.String()
					m.applyFilter()
				}
			}
			return m, nil
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Abort):
			m.result = PlanReviewResult{Action: ReviewActionAbort}
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Apply):
			m.confirm = true
			return m, nil

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil

		case key.Matches(msg, m.keys.Filter):
			m.filtering = true
			return m, nil

		case key.Matches(msg, m.keys.ClearFl):
			m.filter = ""
			m.kind = -1
			m.applyFilter()
			return m, nil

		case key.Matches(msg, m.keys.Kind):
			m.kind++
			if m.kind >= len(plan.Kinds) {
				m.kind = -1
			}
			m.applyFilter()
			return m, nil
		}
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *PlanReviewModel) applyFilter() {
	lower := strings.ToLower(m.filter)
	var filtered []plan.Action
	for _, a := range m.actions {
		if m.kind >= 0 && a.Kind != plan.Kinds[m.kind] {
			continue
		}
		if lower != "" &&
			!strings.Contains(strings.ToLower(a.Source), lower) &&
			!strings.Contains(strings.ToLower(a.Dest), lower) {
			continue
		}
		filtered = append(filtered, a)
	}
	m.filtered = filtered
	m.table.SetRows(m.rows())
	m.table.SetCursor(0)
}

func (m PlanReviewModel) selected() (plan.Action, bool) {
	cursor := m.table.Cursor()
	if cursor >= 0 && cursor < len(m.filtered) {
		return m.filtered[cursor], true
	}
	return plan.Action{}, false
}

// View implements tea.Model.
func (m PlanReviewModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(planReviewStyles.Title.Render("Review sync plan"))
	b.WriteString("\n")
	b.WriteString(planReviewStyles.Status.Render(m.summary()))
	b.WriteString("\n")
	if len(m.plan.Collisions) > 0 {
		b.WriteString(planReviewStyles.Warning.Render(
			fmt.Sprintf("%d source(s) skipped because their destination name is taken", len(m.plan.Collisions))))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.filter != "" || m.filtering || m.kind >= 0 {
		label := "Filter: "
		if m.kind >= 0 {
			label = fmt.Sprintf("Filter [%s]: ", plan.Kinds[m.kind])
		}
		val := planReviewStyles.FilterInput.Render(m.filter)
		if m.filtering {
			val += "█"
		}
		b.WriteString(planReviewStyles.Filter.Render(label) + val + "\n\n")
	}

	b.WriteString(m.table.View())
	b.WriteString("\n")

	if a, ok := m.selected(); ok {
		b.WriteString(m.renderDetail(a))
		b.WriteString("\n")
	}

	if m.confirm {
		msg := fmt.Sprintf("Apply %d change(s) to the destination? (y/n)", len(m.actions))
		b.WriteString(planReviewStyles.Confirm.Render(msg))
		return b.String()
	}

	status := fmt.Sprintf("%d of %d change(s) shown", len(m.filtered), len(m.actions))
	b.WriteString(planReviewStyles.Status.Render(status))
	b.WriteString("\n")

	if m.showHelp {
		b.WriteString("\n")
		b.WriteString(m.renderFullHelp())
	} else {
		b.WriteString(m.renderShortHelp())
	}
	return b.String()
}

func (m PlanReviewModel) summary() string {
	parts := make([]string, 0, len(plan.Kinds))
	for _, k := range plan.Kinds {
		if n := m.counts[k]; n > 0 && k != plan.KindRetain {
			parts = append(parts, fmt.Sprintf("%s %d", k, n))
		}
	}
	if n := len(m.plan.Retain); n > 0 {
		parts = append(parts, fmt.Sprintf("unchanged %d", n))
	}
	return strings.Join(parts, " • ")
}

func (m PlanReviewModel) renderDetail(a plan.Action) string {
	width := m.width
	if width <= 0 {
		width = planReviewKindWidth + 2*m.pathWidth + planReviewPadding*planReviewColumnCount
	}
	contentWidth := max(width-4, 10)

	lines := []string{}
	if a.Source != "" {
		lines = append(lines, formatDetail("Source:      ", a.Source, contentWidth))
	}
	lines = append(lines, formatDetail("Destination: ", a.Dest, contentWidth))
	if a.Transform {
		lines = append(lines, "Transcoded")
	}
	return planReviewStyles.Detail.Width(width - 2).Render(strings.Join(lines, "\n"))
}

func (m PlanReviewModel) renderShortHelp() string {
	keys := []string{
		"↑/↓ navigate",
		"tab kind",
		"/ filter",
		"enter apply",
		"x abort",
		"? help",
	}
	return planReviewStyles.Help.Render(strings.Join(keys, " • "))
}

func (m PlanReviewModel) renderFullHelp() string {
	help := `Navigation:
  ↑/k      Move up
  ↓/j      Move down

Filter:
  tab      Cycle through action kinds
  /        Filter by path
  Esc      Clear filters

Actions:
  Enter/a  Apply the plan (asks for confirmation)
  x        Abort without changes

General:
  ?        Toggle full help
  q        Quit without changes`
	return planReviewStyles.Help.Render(help)
}

// Result returns the result of the user interaction.
func (m PlanReviewModel) Result() PlanReviewResult {
	return m.result
}

// RunPlanReview shows p and returns the user's decision.
func RunPlanReview(p *plan.Plan) (PlanReviewResult, error) {
	if p.Empty() {
		return PlanReviewResult{Action: ReviewActionApply}, nil
	}

	finalModel, err := tea.NewProgram(NewPlanReviewModel(p), tea.WithAltScreen()).Run()
	if err != nil {
		return PlanReviewResult{}, err
	}
	if m, ok := finalModel.(PlanReviewModel); ok {
		return m.Result(), nil
	}
	return PlanReviewResult{}, nil
}

// ConfirmPlan adapts RunPlanReview to the sync engine's confirmation hook.
func ConfirmPlan(ctx context.Context, p *plan.Plan) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	res, err := RunPlanReview(p)
	if err != nil {
		return false, err
	}
	return res.Approved(), nil
}
