package ui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/printgate/internal/client"
)

// LoadFunc fetches the printer list shown by the picker.
type LoadFunc func() ([]client.Printer, error)

type printersLoadedMsg struct {
	printers []client.Printer
	err      error
}

// RefreshMsg asks the picker to reload its printer list.
type RefreshMsg struct{}

type pickerKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Select  key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

func (k pickerKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Refresh, k.Quit}
}

func (k pickerKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// printerItem wraps a Printer for use with bubbles/list
type printerItem struct {
	printer client.Printer
}

func (p printerItem) FilterValue() string {
	return p.printer.Name + " " + p.printer.Address
}

func (p printerItem) Title() string { return p.printer.Name }

func (p printerItem) Description() string {
	parts := []string{p.printer.Type, printerAddress(p.printer)}
	if p.printer.State != "" {
		parts = append(parts, p.printer.State)
	}
	return strings.Join(parts, " • ")
}

// printerDelegate renders one printer per two-line entry
type printerDelegate struct{}

func (d printerDelegate) Height() int                               { return 2 }
func (d printerDelegate) Spacing() int                              { return 1 }
func (d printerDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d printerDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	pi, ok := item.(printerItem)
	if !ok {
		return
	}

	name := "  " + pi.printer.Name
	if index == m.Index() {
		name = lipgloss.NewStyle().Foreground(PrimaryColor).Bold(true).Render("→ " + pi.printer.Name)
	}

	typeStyle := LocalTypeStyle
	if pi.printer.IsNetwork() {
		typeStyle = NetworkTypeStyle
	}
	details := "    " + typeStyle.Render(pi.printer.Type) + "  " +
		StepPendingStyle.Render(printerAddress(pi.printer))
	if pi.printer.State != "" {
		details += "  " + StateStyle(pi.printer.State).Render(pi.printer.State)
	}

	fmt.Fprint(w, name+"\n"+details)
}

// PickerModel is a Bubble Tea model that lets the user choose a printer.
type PickerModel struct {
	List    list.Model
	Spinner spinner.Model
	Help    help.Model
	Keys    pickerKeyMap

	Loading   bool
	Selected  *client.Printer
	Cancelled bool
	Err       error

	load          LoadFunc
	refreshQueued bool
}

// NewPickerModel creates a picker that fills itself by calling load.
func NewPickerModel(title string, load LoadFunc) PickerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(PrimaryColor)

	width, height := GetTerminalSize()
	l := list.New([]list.Item{}, printerDelegate{}, width, height-6)
	l.Title = title
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = lipgloss.NewStyle().Foreground(TextColor).Background(PrimaryColor).Bold(true).Padding(0, 1)

	return PickerModel{
		List:    l,
		Spinner: s,
		Help:    help.New(),
		Keys: pickerKeyMap{
			Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "move up")),
			Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "move down")),
			Select:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
			Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
			Quit:    key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
		},
		Loading: true,
		load:    load,
	}
}

func (m PickerModel) loadCmd() tea.Cmd {
	load := m.load
	return func() tea.Msg {
		printers, err := load()
		return printersLoadedMsg{printers: printers, err: err}
	}
}

// Init implements tea.Model
func (m PickerModel) Init() tea.Cmd {
	return tea.Batch(m.loadCmd(), m.Spinner.Tick)
}

// Update implements tea.Model
func (m PickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.List.FilterState() == list.Filtering {
			break
		}
		switch {
		case key.Matches(msg, m.Keys.Quit):
			m.Cancelled = true
			return m, tea.Quit
		case key.Matches(msg, m.Keys.Select):
			if item, ok := m.List.SelectedItem().(printerItem); ok {
				p := item.printer
				m.Selected = &p
				return m, tea.Quit
			}
			return m, nil
		case key.Matches(msg, m.Keys.Refresh):
			return m.refresh()
		}

	case tea.WindowSizeMsg:
		m.List.SetSize(msg.Width, msg.Height-4)

	case RefreshMsg:
		return m.refresh()

	case printersLoadedMsg:
		m.Loading = false
		m.Err = msg.err
		if msg.err == nil {
			m.setPrinters(msg.printers)
		}
		if m.refreshQueued {
			m.refreshQueued = false
			return m.refresh()
		}
		return m, nil

	case spinner.TickMsg:
		if !m.Loading {
			return m, nil
		}
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	m.List, cmd = m.List.Update(msg)
	return m, cmd
}

// refresh reloads the list, coalescing requests that arrive while loading.
func (m PickerModel) refresh() (tea.Model, tea.Cmd) {
	if m.Loading {
		m.refreshQueued = true
		return m, nil
	}
	m.Loading = true
	return m, tea.Batch(m.loadCmd(), m.Spinner.Tick)
}

// setPrinters replaces the items and keeps the cursor on the same printer.
func (m *PickerModel) setPrinters(printers []client.Printer) {
	current := ""
	if item, ok := m.List.SelectedItem().(printerItem); ok {
		current = item.printer.Name
	}

	items := make([]list.Item, len(printers))
	cursor := 0
	for i, p := range printers {
		items[i] = printerItem{printer: p}
		if p.Name == current {
			cursor = i
		}
	}
	m.List.SetItems(items)
	m.List.Select(cursor)
}

// View implements tea.Model
func (m PickerModel) View() string {
	var b strings.Builder

	switch {
	case m.Err != nil:
		b.WriteString(ErrorTitleStyle.Render("  "+FailureMarker+" "+client.GetShortErrorMessage(m.Err)) + "\n\n")
	case m.Loading && len(m.List.Items()) == 0:
		b.WriteString("  " + m.Spinner.View() + " Loading printers...\n\n")
	case len(m.List.Items()) == 0:
		b.WriteString(StepPendingStyle.Render("  No printers found. Press r to refresh.") + "\n\n")
	}

	if len(m.List.Items()) > 0 {
		b.WriteString(m.List.View())
		b.WriteString("\n")
	}
	b.WriteString("  " + m.Help.View(m.Keys))
	return b.String()
}

// RunPicker shows the picker on the terminal and returns the chosen
// printer, or nil if the user quit. While it runs, every gateway event
// triggers a reload so newly discovered printers appear.
func RunPicker(ctx context.Context, c *client.Client) (*client.Printer, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := NewPickerModel("Choose a printer", func() ([]client.Printer, error) {
		return c.Printers(ctx)
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		_ = c.WatchEvents(ctx, func(client.Event) error {
			p.Send(RefreshMsg{})
			return nil
		})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	result := final.(PickerModel)
	if result.Cancelled {
		return nil, nil
	}
	return result.Selected, result.Err
}
