package main

import (
	"context"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/farmabudget/cmd/tui/internal/view"
	"github.com/MrJamesThe3rd/farmabudget/internal/backend"
	"github.com/MrJamesThe3rd/farmabudget/internal/config"
	"github.com/MrJamesThe3rd/farmabudget/internal/ledger"
)

type model struct {
	svc *ledger.Service

	currentView View

	paymentsView view.PaymentsModel
	createView   view.CreateModel
	budgetView   view.BudgetModel
}

type View int

const (
	ViewMenu     View = 0
	ViewPayments View = 1
	ViewCreate   View = 2
	ViewBudget   View = 3
)

func initialModel(svc *ledger.Service) model {
	return model{
		svc:          svc,
		currentView:  ViewMenu,
		paymentsView: view.NewPaymentsModel(svc),
		createView:   view.NewCreateModel(svc),
		budgetView:   view.NewBudgetModel(svc),
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.currentView == ViewMenu {
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case "1":
				m.currentView = ViewPayments
				m.paymentsView = view.NewPaymentsModel(m.svc)

				return m, m.paymentsView.Init()
			case "2":
				m.currentView = ViewCreate
				m.createView = view.NewCreateModel(m.svc)

				return m, m.createView.Init()
			case "3":
				m.currentView = ViewBudget
				m.budgetView = view.NewBudgetModel(m.svc)

				return m, m.budgetView.Init()
			}
		}

		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case view.BackMsg:
		m.currentView = ViewMenu
		return m, nil
	}

	switch m.currentView {
	case ViewPayments:
		var newModel tea.Model
		newModel, cmd = m.paymentsView.Update(msg)
		m.paymentsView = newModel.(view.PaymentsModel)
	case ViewCreate:
		var newModel tea.Model
		newModel, cmd = m.createView.Update(msg)
		m.createView = newModel.(view.CreateModel)
	case ViewBudget:
		var newModel tea.Model
		newModel, cmd = m.budgetView.Update(msg)
		m.budgetView = newModel.(view.BudgetModel)
	}

	return m, cmd
}

func (m model) View() string {
	switch m.currentView {
	case ViewMenu:
		return lipgloss.NewStyle().Padding(2).Render(
			"FarmaBudget\n\n" +
				"1. Pagos\n" +
				"2. Nuevo pago\n" +
				"3. Presupuesto\n\n" +
				"q. Salir",
		)
	case ViewPayments:
		return m.paymentsView.View()
	case ViewCreate:
		return m.createView.View()
	case ViewBudget:
		return m.budgetView.View()
	}

	return "Unknown View"
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	be, err := backend.Open(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to open backend", "backend", cfg.DB.Backend, "error", err)
		os.Exit(1)
	}
	defer be.Close()

	p := tea.NewProgram(initialModel(be.Service))
	if _, err := p.Run(); err != nil {
		slog.Error("failed to run TUI", "error", err)
		os.Exit(1)
	}
}
