package browse

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// AllSites is returned by RunSitePicker when every site was chosen at once.
const AllSites = "*"

var (
	pickerTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Padding(1, 0, 0, 2)

	pickerHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Underline(true).
				Padding(1, 0, 0, 4)

	pickerRowStyle = lipgloss.NewStyle().
			Padding(0, 0, 0, 4)

	pickerEmptyRowStyle = pickerRowStyle.
				Foreground(lipgloss.Color("240"))

	pickerCursorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("24")).
				Bold(true).
				Padding(0, 0, 0, 2)

	pickerHintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Padding(1, 0, 0, 2)
)

// SiteChoice is one row of the site picker.
type SiteChoice struct {
	Name        string
	Kind        string
	Postings    int
	Matched     int       // postings passing the config filters
	Fresh       int       // postings first seen in the last 24h
	LastScraped time.Time // zero if never scraped
}

type pickerModel struct {
	sites  []SiteChoice
	cursor int
	chosen string
	done   bool
	now    func() time.Time
}

func newPickerModel(sites []SiteChoice) pickerModel {
	m := pickerModel{sites: sites, now: time.Now}
	m.cursor = m.step(-1, 1)
	if m.cursor < 0 {
		m.cursor = 0
	}
	return m
}

// step returns the next site after from in direction dir that has postings,
// or -1 if there is none.
func (m pickerModel) step(from, dir int) int {
	for i := from + dir; i >= 0 && i < len(m.sites); i += dir {
		if m.sites[i].Postings > 0 {
			return i
		}
	}
	return -1
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch s := key.String(); s {
	case "q", "ctrl+c", "esc":
		m.done = true
		return m, tea.Quit
	case "up", "k":
		if i := m.step(m.cursor, -1); i >= 0 {
			m.cursor = i
		}
	case "down", "j":
		if i := m.step(m.cursor, 1); i >= 0 {
			m.cursor = i
		}
	case "a":
		if m.total() > 0 {
			m.chosen, m.done = AllSites, true
			return m, tea.Quit
		}
	case "enter":
		if m.cursor < len(m.sites) && m.sites[m.cursor].Postings > 0 {
			m.chosen, m.done = m.sites[m.cursor].Name, true
			return m, tea.Quit
		}
	default:
		// 1-9 pick a row directly.
		if len(s) == 1 && s[0] >= '1' && s[0] <= '9' {
			if i := int(s[0] - '1'); i < len(m.sites) && m.sites[i].Postings > 0 {
				m.cursor = i
				m.chosen, m.done = m.sites[i].Name, true
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

func (m pickerModel) total() int {
	n := 0
	for _, c := range m.sites {
		n += c.Postings
	}
	return n
}

func (m pickerModel) View() string {
	var b strings.Builder
	b.WriteString(pickerTitleStyle.Render(fmt.Sprintf("Browse postings: %d stored across %d sites", m.total(), len(m.sites))))
	b.WriteString("\n")
	b.WriteString(pickerHeaderStyle.Render(fmt.Sprintf("%-3s %-16s %-10s %8s %8s %7s  %s",
		"#", "site", "kind", "postings", "matched", "new 24h", "last scraped")))
	b.WriteString("\n")

	for i, c := range m.sites {
		row := fmt.Sprintf("%-3d %-16s %-10s %8d %8d %7d  %s",
			i+1, c.Name, c.Kind, c.Postings, c.Matched, c.Fresh, ago(m.now(), c.LastScraped))
		switch {
		case i == m.cursor && c.Postings > 0:
			b.WriteString(pickerCursorStyle.Render("▸ " + row))
		case c.Postings == 0:
			b.WriteString(pickerEmptyRowStyle.Render(row))
		default:
			b.WriteString(pickerRowStyle.Render(row))
		}
		b.WriteString("\n")
	}

	b.WriteString(pickerHintStyle.Render("↑/↓ move  enter open  1-9 jump  a all sites  q quit"))
	return b.String()
}

func ago(now, t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// RunSitePicker shows the site table and returns the chosen site name,
// AllSites, or "" if the user quit.
func RunSitePicker(sites []SiteChoice) (string, error) {
	result, err := tea.NewProgram(newPickerModel(sites)).Run()
	if err != nil {
		return "", err
	}
	return result.(pickerModel).chosen, nil
}
