// Package progress renders a live view of a running scrape in the terminal.
package progress

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/autoapply/internal/scraper"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

var (
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	titleStyle   = lipgloss.NewStyle().Bold(true)
	statsStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// PollFunc returns the current state of the watched job.
type PollFunc func() (scraper.ScrapeJob, error)

type pollMsg struct {
	job scraper.ScrapeJob
	err error
}

type spinnerTickMsg struct{}

type watchModel struct {
	poll      PollFunc
	interval  time.Duration
	bar       progress.Model
	frame     int
	job       scraper.ScrapeJob
	err       error
	done      bool
	cancelled bool
}

func newWatchModel(poll PollFunc, interval time.Duration) watchModel {
	return watchModel{
		poll:     poll,
		interval: interval,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.tick())
}

func (m watchModel) fetch() tea.Cmd {
	poll := m.poll
	return func() tea.Msg {
		job, err := poll()
		return pollMsg{job: job, err: err}
	}
}

func (m watchModel) tick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(time.Time) tea.Msg {
		return spinnerTickMsg{}
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case pollMsg:
		m.job = msg.job
		m.err = msg.err
		if msg.err != nil || msg.job.Status.Finished() {
			m.done = true
			return m, tea.Quit
		}
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg {
			job, err := m.poll()
			return pollMsg{job: job, err: err}
		})
	case spinnerTickMsg:
		if m.done {
			return m, nil
		}
		m.frame = (m.frame + 1) % len(spinnerFrames)
		return m, m.tick()
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.done = true
			m.cancelled = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m watchModel) View() string {
	if m.done {
		return ""
	}
	j := m.job

	var b strings.Builder
	title := fmt.Sprintf("Scraping %d site(s)", len(j.Sites))
	if j.Query != "" {
		title += fmt.Sprintf(" for %q", j.Query)
	}
	b.WriteString(spinnerStyle.Render(spinnerFrames[m.frame]) + " " + titleStyle.Render(title) + "\n")
	b.WriteString(m.bar.ViewAs(j.Progress()/100) + "\n")
	b.WriteString(statsStyle.Render(fmt.Sprintf("pages %d/%d · found %d", j.PagesDone, j.PagesTotal, j.Found)) + "\n")

	sites := make([]string, 0, len(j.SiteErrors))
	for site := range j.SiteErrors {
		sites = append(sites, site)
	}
	sort.Strings(sites)
	for _, site := range sites {
		b.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s: %s", site, j.SiteErrors[site])) + "\n")
	}
	b.WriteString(statsStyle.Render("q to stop watching") + "\n")
	return b.String()
}

// Watch polls the job every interval and renders its progress inline until
// it finishes or the user quits. detached reports that the user quit first.
func Watch(poll PollFunc, interval time.Duration) (job scraper.ScrapeJob, detached bool, err error) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	result, err := tea.NewProgram(newWatchModel(poll, interval)).Run()
	if err != nil {
		return scraper.ScrapeJob{}, false, err
	}
	final := result.(watchModel)
	return final.job, final.cancelled, final.err
}
