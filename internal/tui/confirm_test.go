package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/jask/navi/internal/finance"
	"github.com/jask/navi/internal/tools"
)

func pendingExpense() tools.PendingToolAction {
	return tools.PendingToolAction{
		ToolName:    tools.LogExpenseTool,
		ToolCallID:  "c1",
		Description: `Log $42.50 expense "groceries" from Living Wallet (balance $3,150.00, $3,107.50 after)`,
		Resolved: tools.Resolved{
			Allocation: &finance.Allocation{ID: "a1", Name: "Living Wallet", Category: finance.CategoryLiving},
		},
	}
}

func press(m tea.Model, key tea.KeyMsg) (ConfirmModel, tea.Cmd) {
	next, cmd := m.Update(key)
	return next.(ConfirmModel), cmd
}

func TestConfirmKeys(t *testing.T) {
	t.Parallel()
	cases := []struct {
		key  tea.KeyMsg
		want Decision
	}{
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")}, Confirmed},
		{tea.KeyMsg{Type: tea.KeyEnter}, Confirmed},
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")}, Cancelled},
		{tea.KeyMsg{Type: tea.KeyEsc}, Cancelled},
		{tea.KeyMsg{Type: tea.KeyCtrlC}, Cancelled},
	}
	for _, tc := range cases {
		m, cmd := press(NewConfirmModel(pendingExpense()), tc.key)
		require.Equal(t, tc.want, m.Decision(), tc.key.String())
		require.NotNil(t, cmd)
		require.Equal(t, tea.QuitMsg{}, cmd())
	}
}

func TestConfirmIgnoresOtherKeys(t *testing.T) {
	t.Parallel()
	m, cmd := press(NewConfirmModel(pendingExpense()), tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	require.Equal(t, Undecided, m.Decision())
	require.Nil(t, cmd)
}

func TestConfirmViewShowsAction(t *testing.T) {
	t.Parallel()
	m, _ := NewConfirmModel(pendingExpense()).Update(tea.WindowSizeMsg{Width: 120, Height: 20})
	view := m.View()
	require.Contains(t, view, "Log expense?")
	require.Contains(t, view, "groceries")
	require.Contains(t, view, "wallet: Living Wallet (living)")
	require.Contains(t, view, "Confirm")
}
