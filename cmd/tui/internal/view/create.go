package view

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/farmabudget/internal/catalog"
	"github.com/MrJamesThe3rd/farmabudget/internal/ledger"
)

type CreateModel struct {
	CommonModel
	svc *ledger.Service

	form       *huh.Form
	input      *ledger.PaymentInput
	result     string
	err        error
	submitting bool
	done       bool
}

func NewCreateModel(svc *ledger.Service) CreateModel {
	m := CreateModel{
		svc: svc,
		input: &ledger.PaymentInput{
			Product:  string(catalog.Descongel),
			Quantity: "1",
			Date:     time.Now().Format(time.DateOnly),
			Status:   string(ledger.StatusPending),
		},
	}
	m.form = m.buildForm()

	return m
}

func (m CreateModel) Title() string { return "Nuevo pago" }

func (m CreateModel) ShortHelp() string {
	if m.done {
		return "Enter: otro pago | Esc: volver"
	}

	return "Esc: back | Enter: next"
}

func (m CreateModel) Init() tea.Cmd {
	return m.form.Init()
}

func (m *CreateModel) buildForm() *huh.Form {
	products := make([]huh.Option[string], 0, len(catalog.All()))
	for _, e := range catalog.All() {
		products = append(products, huh.NewOption(e.Icon+" "+e.Name, string(e.Key)))
	}

	statuses := make([]huh.Option[string], 0, len(ledger.Statuses))
	for _, s := range ledger.Statuses {
		statuses = append(statuses, huh.NewOption(string(s), string(s)))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("pharmacy").
				Title("Farmacia").
				Value(&m.input.Pharmacy).
				Validate(required("la farmacia")),

			huh.NewSelect[string]().
				Key("product").
				Title("Producto").
				Options(products...).
				Value(&m.input.Product),

			huh.NewInput().
				Key("quantity").
				Title("Cantidad").
				Value(&m.input.Quantity).
				Validate(func(s string) error {
					n, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil || n <= 0 {
						return errors.New("la cantidad debe ser un entero positivo")
					}

					return nil
				}),

			huh.NewInput().
				Key("unit_price").
				Title("Precio unitario").
				Value(&m.input.UnitPrice).
				Validate(func(s string) error {
					d, err := decimal.NewFromString(strings.TrimSpace(s))
					if err != nil || d.IsNegative() {
						return errors.New("el precio debe ser un número no negativo")
					}

					return nil
				}),
		),
		huh.NewGroup(
			huh.NewInput().
				Key("date").
				Title("Fecha (AAAA-MM-DD)").
				Value(&m.input.Date).
				Validate(func(s string) error {
					if _, err := time.Parse(time.DateOnly, strings.TrimSpace(s)); err != nil {
						return errors.New("usa el formato AAAA-MM-DD")
					}

					return nil
				}),

			huh.NewSelect[string]().
				Key("status").
				Title("Estado").
				Options(statuses...).
				Value(&m.input.Status),

			huh.NewText().
				Key("notes").
				Title("Notas (opcional)").
				Value(&m.input.Notes),
		),
	).WithWidth(50).WithShowHelp(false)
}

func required(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s es obligatoria", what)
		}

		return nil
	}
}

func (m CreateModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case createdMsg:
		m.done = true
		m.err = msg.err

		if msg.err == nil {
			m.result = fmt.Sprintf("Pago registrado: %s por %s", msg.payment.Pharmacy, FormatMoney(msg.payment.TotalAmount))
		}

		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyEsc {
			return m, Back
		}

		if m.done {
			if msg.Type == tea.KeyEnter {
				next := NewCreateModel(m.svc)
				return next, next.Init()
			}

			return m, nil
		}
	}

	if m.done {
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted || m.submitting {
		return m, cmd
	}

	m.submitting = true

	return m, m.createCmd()
}

func (m CreateModel) View() string {
	if !m.done {
		return lipgloss.NewStyle().Padding(1).Render("Nuevo pago\n\n" + m.form.View())
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(errorStyle(describeError(m.err)))
	}

	return lipgloss.NewStyle().Padding(2).Render(m.result)
}

// describeError turns ledger errors into operator-facing text.
func describeError(err error) string {
	var (
		ibe *ledger.InsufficientBudgetError
		ve  *ledger.ValidationError
	)

	switch {
	case errors.As(err, &ibe):
		return fmt.Sprintf("Presupuesto insuficiente: disponible %s, solicitado %s",
			FormatMoney(ibe.Available), FormatMoney(ibe.Requested))
	case errors.As(err, &ve):
		return fmt.Sprintf("Dato inválido (%s): %s", ve.Field, ve.Reason)
	case errors.Is(err, ledger.ErrConflict):
		return "Otro usuario modificó los datos al mismo tiempo, inténtalo de nuevo"
	}

	return fmt.Sprintf("Error: %v", err)
}

type createdMsg struct {
	payment *ledger.Payment
	err     error
}

func (m CreateModel) createCmd() tea.Cmd {
	input := *m.input

	return func() tea.Msg {
		params, err := input.Params()
		if err != nil {
			return createdMsg{err: err}
		}

		ctx, cancel := DbCtx()
		defer cancel()

		p, err := m.svc.Create(ctx, params)

		return createdMsg{payment: p, err: err}
	}
}
