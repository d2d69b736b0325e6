package view

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/farmabudget/internal/ledger"
)

const reloadHistory = 20

type budgetState int

const (
	budgetStateView budgetState = iota
	budgetStateReload
)

type reloadForm struct {
	Amount string
	Notes  string
}

type BudgetModel struct {
	CommonModel
	svc *ledger.Service

	state   budgetState
	budget  *ledger.BudgetView
	reloads table.Model
	form    *huh.Form
	input   *reloadForm

	loading bool
	err     error
	status  string
}

func NewBudgetModel(svc *ledger.Service) BudgetModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Fecha", Width: 17},
			{Title: "Monto", Width: 16},
			{Title: "Anterior", Width: 16},
			{Title: "Nuevo", Width: 16},
			{Title: "Notas", Width: 30},
		}),
		table.WithHeight(10),
	)

	return BudgetModel{svc: svc, reloads: t, loading: true}
}

func (m BudgetModel) Title() string { return "Presupuesto" }

func (m BudgetModel) ShortHelp() string {
	if m.state == budgetStateReload {
		return "Esc: cancelar"
	}

	return "Esc: back | a: recargar | r: refresh"
}

func (m BudgetModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m BudgetModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadBudgetMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}

		m.err = nil
		m.budget = msg.budget
		m.refreshReloads(msg.reloads)

		return m, nil

	case reloadedMsg:
		if msg.err != nil {
			m.status = errorStyle(fmt.Sprintf("Error: %v", msg.err))
		} else {
			m.status = fmt.Sprintf("Presupuesto recargado: %s → %s",
				FormatMoney(msg.result.PreviousTotal), FormatMoney(msg.result.NewTotal))
		}

		return m, m.loadCmd()
	}

	if m.state == budgetStateReload {
		return m.updateReload(msg)
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			return m, m.loadCmd()
		case "a":
			m.input = &reloadForm{}
			m.form = buildReloadForm(m.input)
			m.state = budgetStateReload

			return m, m.form.Init()
		}
	}

	return m, nil
}

func buildReloadForm(in *reloadForm) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("amount").
				Title("Monto a recargar").
				Value(&in.Amount).
				Validate(validateReloadAmount),

			huh.NewInput().
				Key("notes").
				Title("Notas (opcional)").
				Value(&in.Notes),
		),
	).WithWidth(45).WithShowHelp(false)
}

func validateReloadAmount(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || !d.IsPositive() {
		return errors.New("el monto debe ser un número mayor que cero")
	}

	return nil
}

func (m BudgetModel) updateReload(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = budgetStateView
		m.form = nil

		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	m.state = budgetStateView
	m.form = nil

	return m, m.reloadCmd(*m.input)
}

func (m BudgetModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Cargando presupuesto...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(errorStyle(fmt.Sprintf("Error: %v", m.err)))
	}

	summary := fmt.Sprintf(
		"Presupuesto: %s\nGastado:     %s\nDisponible:  %s\n\nPendientes: %d | Procesados: %d",
		FormatMoney(m.budget.Amount),
		FormatMoney(m.budget.TotalSpent),
		activeStyle(FormatMoney(m.budget.Available)),
		m.budget.PendingCount,
		m.budget.ProcessedCount,
	)

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(summary),
		"Recargas recientes",
		lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240")).
			Render(m.reloads.View()),
	)

	if m.state == budgetStateReload && m.form != nil {
		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel("Recargar presupuesto\n\n"+m.form.View()))
	}

	if m.status != "" {
		content = m.status + "\n\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func (m *BudgetModel) refreshReloads(reloads []*ledger.Reload) {
	rows := make([]table.Row, 0, len(reloads))
	for _, r := range reloads {
		rows = append(rows, table.Row{
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			FormatMoney(r.Amount),
			FormatMoney(r.PreviousTotal),
			FormatMoney(r.NewTotal),
			r.Notes,
		})
	}

	m.reloads.SetRows(rows)
}

// Messages

type loadBudgetMsg struct {
	budget  *ledger.BudgetView
	reloads []*ledger.Reload
	err     error
}

type reloadedMsg struct {
	result *ledger.ReloadResult
	err    error
}

func (m BudgetModel) loadCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		budget, err := m.svc.FetchBudget(ctx)
		if err != nil {
			return loadBudgetMsg{err: err}
		}

		reloads, err := m.svc.ListReloads(ctx, reloadHistory)

		return loadBudgetMsg{budget: budget, reloads: reloads, err: err}
	}
}

func (m BudgetModel) reloadCmd(in reloadForm) tea.Cmd {
	return func() tea.Msg {
		amount, err := decimal.NewFromString(strings.TrimSpace(in.Amount))
		if err != nil || !amount.IsPositive() {
			return reloadedMsg{err: errors.New("monto inválido")}
		}

		ctx, cancel := DbCtx()
		defer cancel()

		res, err := m.svc.ReloadBudget(ctx, ledger.ReloadParams{Amount: amount, Notes: in.Notes})

		return reloadedMsg{result: res, err: err}
	}
}
