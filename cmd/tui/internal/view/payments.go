package view

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/farmabudget/internal/catalog"
	"github.com/MrJamesThe3rd/farmabudget/internal/ledger"
)

type paymentsState int

const (
	paymentsStateBrowse paymentsState = iota
	paymentsStateDetail
	paymentsStateConfirmDelete
)

var pageSizes = []int{10, 20, 50}

type PaymentsModel struct {
	CommonModel
	svc *ledger.Service

	state    paymentsState
	table    table.Model
	payments []*ledger.Payment
	page     ledger.Pagination
	totals   ledger.Totals
	form     *huh.Form

	// Filter cycling
	statusIdx   int
	productIdx  int
	monthIdx    int
	pageSizeIdx int
	months      []string

	// cursors[i] is the cursor that loads page i; page 0 has none.
	cursors []string

	loading bool
	err     error
	status  string

	// confirmDelete is shared with the form, which outlives model copies.
	confirmDelete *bool
}

func NewPaymentsModel(svc *ledger.Service) PaymentsModel {
	columns := []table.Column{
		{Title: "Fecha", Width: 12},
		{Title: "Farmacia", Width: 24},
		{Title: "Producto", Width: 24},
		{Title: "Cant.", Width: 6},
		{Title: "Total", Width: 16},
		{Title: "Estado", Width: 11},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return PaymentsModel{
		svc:     svc,
		table:   t,
		months:  append([]string{""}, RecentMonths(time.Now(), 12)...),
		cursors: []string{""},
		loading: true,
	}
}

func (m PaymentsModel) Title() string { return "Pagos" }

func (m PaymentsModel) ShortHelp() string {
	switch m.state {
	case paymentsStateDetail:
		return "Esc: volver"
	case paymentsStateConfirmDelete:
		return "Confirmar eliminación | Esc: cancelar"
	}

	return "Esc: back | n/b: page | s: status | p: product | m: month | z: page size | t: toggle | x: delete | enter: detail"
}

func (m PaymentsModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m PaymentsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadPaymentsMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}

		m.err = nil
		m.payments = msg.page.Payments
		m.page = msg.page.Pagination
		m.totals = msg.page.Totals
		m.refreshTable()

		return m, nil

	case paymentActionMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
		} else {
			m.status = msg.text
		}

		m.state = paymentsStateBrowse
		m.form = nil
		m.table.Focus()

		// A delete can empty the current page; start over from the first one.
		if msg.reset {
			m.cursors = []string{""}
		}

		return m, m.loadCmd()

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 12)
		return m, nil
	}

	switch m.state {
	case paymentsStateDetail:
		if keyMsg, ok := msg.(tea.KeyMsg); ok && (keyMsg.Type == tea.KeyEsc || keyMsg.Type == tea.KeyEnter) {
			m.state = paymentsStateBrowse
			m.table.Focus()
		}

		return m, nil
	case paymentsStateConfirmDelete:
		return m.updateConfirm(msg)
	}

	return m.updateBrowse(msg)
}

func (m PaymentsModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			return m, m.loadCmd()
		case "n":
			if !m.page.HasNext || m.page.LastCursor == "" {
				return m, nil
			}

			m.cursors = append(m.cursors, m.page.LastCursor)
			m.loading = true

			return m, m.loadCmd()
		case "b":
			if len(m.cursors) <= 1 {
				return m, nil
			}

			m.cursors = m.cursors[:len(m.cursors)-1]
			m.loading = true

			return m, m.loadCmd()
		case "s":
			m.statusIdx = (m.statusIdx + 1) % (len(ledger.Statuses) + 1)
			return m.resetPaging()
		case "p":
			m.productIdx = (m.productIdx + 1) % (len(catalog.All()) + 1)
			return m.resetPaging()
		case "m":
			m.monthIdx = (m.monthIdx + 1) % len(m.months)
			return m.resetPaging()
		case "z":
			m.pageSizeIdx = (m.pageSizeIdx + 1) % len(pageSizes)
			return m.resetPaging()
		case "t":
			if p := m.selected(); p != nil {
				return m, m.toggleCmd(p.ID)
			}

			return m, nil
		case "x":
			return m.enterConfirm()
		case "enter":
			if m.selected() != nil {
				m.state = paymentsStateDetail
				m.table.Blur()
			}

			return m, nil
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m PaymentsModel) resetPaging() (tea.Model, tea.Cmd) {
	m.cursors = []string{""}
	m.loading = true

	return m, m.loadCmd()
}

func (m PaymentsModel) enterConfirm() (tea.Model, tea.Cmd) {
	p := m.selected()
	if p == nil {
		return m, nil
	}

	m.confirmDelete = new(false)
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Key("confirm").
				Title(fmt.Sprintf("¿Eliminar el pago de %s por %s?", p.Pharmacy, FormatMoney(p.TotalAmount))).
				Affirmative("Sí").
				Negative("No").
				Value(m.confirmDelete),
		),
	).WithWidth(50).WithShowHelp(false)

	m.state = paymentsStateConfirmDelete
	m.table.Blur()

	return m, m.form.Init()
}

func (m PaymentsModel) updateConfirm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = paymentsStateBrowse
		m.form = nil
		m.table.Focus()

		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	p := m.selected()
	m.state = paymentsStateBrowse
	m.form = nil
	m.table.Focus()

	if !*m.confirmDelete || p == nil {
		return m, nil
	}

	return m, m.deleteCmd(p.ID)
}

func (m PaymentsModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Cargando pagos...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(errorStyle(fmt.Sprintf("Error: %v", m.err)))
	}

	filter := m.filter()

	header := fmt.Sprintf(
		"Filtros: [s] Estado: %s | [p] Producto: %s | [m] Mes: %s | [z] Por página: %s",
		activeStyle(statusLabel(filter.Status)),
		activeStyle(productLabel(filter.Product)),
		activeStyle(MonthLabel(filter.Month)),
		activeStyle(fmt.Sprint(pageSizes[m.pageSizeIdx])),
	)

	totals := fmt.Sprintf(
		"Total gastado: %s | Pendientes: %d | Procesados: %d",
		FormatMoney(m.totals.TotalSpent), m.totals.PendingCount, m.totals.ProcessedCount,
	)

	more := ""
	if m.page.HasNext {
		more = " | [n] siguiente"
	}

	if len(m.cursors) > 1 {
		more += " | [b] anterior"
	}

	paging := fmt.Sprintf("Página %d | %d resultados%s", len(m.cursors), m.page.Total, more)

	tableView := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Render(m.table.View())

	content := lipgloss.JoinVertical(lipgloss.Left,
		header,
		lipgloss.NewStyle().PaddingBottom(1).Render(totals),
		tableView,
		lipgloss.NewStyle().Faint(true).Render(paging),
	)

	switch m.state {
	case paymentsStateDetail:
		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel(m.detail()))
	case paymentsStateConfirmDelete:
		if m.form != nil {
			content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel(m.form.View()))
		}
	}

	if m.status != "" {
		content = lipgloss.NewStyle().Faint(true).Render(m.status) + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func panel(s string) string {
	return lipgloss.NewStyle().
		Padding(1, 2).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("63")).
		Width(52).
		Render(s)
}

func (m PaymentsModel) detail() string {
	p := m.selected()
	if p == nil {
		return ""
	}

	var b strings.Builder

	fmt.Fprintf(&b, "Detalle del pago\n\n")
	fmt.Fprintf(&b, "Farmacia:        %s\n", p.Pharmacy)
	fmt.Fprintf(&b, "Producto:        %s\n", p.Product.Name())
	fmt.Fprintf(&b, "Cantidad:        %d\n", p.Quantity)
	fmt.Fprintf(&b, "Precio unitario: %s\n", FormatMoney(p.UnitPrice))
	fmt.Fprintf(&b, "Total:           %s\n", FormatMoney(p.TotalAmount))
	fmt.Fprintf(&b, "Fecha:           %s\n", FormatDate(p.Date))
	fmt.Fprintf(&b, "Estado:          %s\n", p.Status)

	if p.Notes != "" {
		fmt.Fprintf(&b, "Notas:           %s\n", p.Notes)
	}

	fmt.Fprintf(&b, "Registrado:      %s\n", p.CreatedAt.Local().Format(time.DateTime))

	if p.UpdatedAt != nil {
		fmt.Fprintf(&b, "Actualizado:     %s\n", p.UpdatedAt.Local().Format(time.DateTime))
	}

	return b.String()
}

func (m PaymentsModel) selected() *ledger.Payment {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.payments) {
		return nil
	}

	return m.payments[idx]
}

func (m PaymentsModel) filter() ledger.Filter {
	var f ledger.Filter

	if m.statusIdx > 0 {
		f.Status = ledger.Statuses[m.statusIdx-1]
	}

	if m.productIdx > 0 {
		f.Product = catalog.All()[m.productIdx-1].Key
	}

	f.Month = m.months[m.monthIdx]

	return f
}

func statusLabel(s ledger.Status) string {
	if s == "" {
		return "Todos"
	}

	return string(s)
}

func productLabel(p catalog.Product) string {
	if p == "" {
		return "Todos"
	}

	return p.Name()
}

func (m *PaymentsModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.payments))
	for _, p := range m.payments {
		rows = append(rows, table.Row{
			FormatDate(p.Date),
			p.Pharmacy,
			p.Product.Name(),
			fmt.Sprint(p.Quantity),
			FormatMoney(p.TotalAmount),
			string(p.Status),
		})
	}

	m.table.SetRows(rows)

	if m.table.Cursor() >= len(rows) {
		m.table.SetCursor(max(len(rows)-1, 0))
	}
}

// Messages

type loadPaymentsMsg struct {
	page *ledger.PaymentPage
	err  error
}

type paymentActionMsg struct {
	text  string
	reset bool
	err   error
}

func (m PaymentsModel) loadCmd() tea.Cmd {
	params := ledger.FetchParams{
		PageSize: pageSizes[m.pageSizeIdx],
		Cursor:   m.cursors[len(m.cursors)-1],
		Filter:   m.filter(),
	}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		page, err := m.svc.Fetch(ctx, params)

		return loadPaymentsMsg{page: page, err: err}
	}
}

func (m PaymentsModel) toggleCmd(id uuid.UUID) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		status, err := m.svc.ToggleStatus(ctx, id)
		if err != nil {
			return paymentActionMsg{err: err}
		}

		return paymentActionMsg{text: "Estado actualizado a " + string(status)}
	}
}

func (m PaymentsModel) deleteCmd(id uuid.UUID) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		if err := m.svc.Delete(ctx, id); err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return paymentActionMsg{text: "El pago ya no existe", reset: true}
			}

			return paymentActionMsg{err: err}
		}

		return paymentActionMsg{text: "Pago eliminado", reset: true}
	}
}
