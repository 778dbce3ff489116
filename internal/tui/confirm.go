// Package tui renders the confirmation prompt for staged finance actions.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jask/navi/internal/tools"
)

// Decision is the user's answer to a confirmation prompt.
type Decision int

const (
	Undecided Decision = iota
	Confirmed
	Cancelled
)

func (d Decision) String() string {
	switch d {
	case Confirmed:
		return "confirmed"
	case Cancelled:
		return "cancelled"
	}
	return "undecided"
}

// ConfirmModel asks the user to approve one pending action.
type ConfirmModel struct {
	action   tools.PendingToolAction
	decision Decision
	width    int
}

func NewConfirmModel(action tools.PendingToolAction) ConfirmModel {
	return ConfirmModel{action: action}
}

func (m ConfirmModel) Decision() Decision { return m.decision }

func (m ConfirmModel) Init() tea.Cmd { return nil }

func (m ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		switch msg.String() {
		case "y", "Y", "enter":
			m.decision = Confirmed
			return m, tea.Quit
		case "n", "N", "esc", "q", "ctrl+c":
			m.decision = Cancelled
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m ConfirmModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(confirmTitle(m.action.ToolName)))
	b.WriteString("\n")
	b.WriteString(bodyStyle.Render(m.action.Description))
	if a := m.action.Resolved.Allocation; a != nil {
		b.WriteString("\n")
		b.WriteString(hintStyle.Render(fmt.Sprintf("wallet: %s (%s)", a.Name, a.Category)))
	}
	if m.decision == Undecided {
		b.WriteString("\n\n")
		b.WriteString(yesStyle.Render("[y]") + " Confirm  " + noStyle.Render("[n]") + " Cancel")
	} else {
		b.WriteString("\n\n")
		b.WriteString(warnStyle.Render(m.decision.String()))
	}
	style := dialogStyle
	if m.width > 4 {
		style = style.MaxWidth(m.width)
	}
	return style.Render(b.String()) + "\n"
}

func confirmTitle(name tools.Name) string {
	switch name {
	case tools.LogExpenseTool:
		return "Log expense?"
	case tools.AddBillTool:
		return "Add bill?"
	case tools.AddDebtTool:
		return "Add debt?"
	case tools.PayBillTool:
		return "Pay bill?"
	case tools.PayDebtTool:
		return "Pay debt?"
	}
	return "Confirm action?"
}

// Prompt runs the confirmation dialog on in/out and returns the decision.
// Ending ctx counts as a cancel.
func Prompt(ctx context.Context, action tools.PendingToolAction, in io.Reader, out io.Writer) (Decision, error) {
	p := tea.NewProgram(NewConfirmModel(action),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	final, err := p.Run()
	if err != nil {
		if ctx.Err() != nil {
			return Cancelled, nil
		}
		return Undecided, fmt.Errorf("confirm prompt: %w", err)
	}
	m, ok := final.(ConfirmModel)
	if !ok || m.decision == Undecided {
		return Cancelled, nil
	}
	return m.decision, nil
}
