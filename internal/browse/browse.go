// Package browse is the interactive split-pane view of stored postings.
package browse

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/autoapply/internal/ai"
	"github.com/amishk599/autoapply/internal/model"
)

// Lines per posting in the list view (title + subtitle + blank separator).
const itemHeight = 3

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

var (
	activeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("39")) // bright blue

	inactiveBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240")) // dim gray

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	activeHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("39"))

	inactiveHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	titleStyle = lipgloss.NewStyle().
			Bold(true)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	selectedTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("24"))

	selectedSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Background(lipgloss.Color("24"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(16)

	detailValueStyle = lipgloss.NewStyle()

	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				MarginBottom(1)

	dividerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	bodyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// AnalysisFunc returns the job-description analysis of a posting. Lookup
// functions return nil, nil when there is none yet.
type AnalysisFunc func(ctx context.Context, postingID string) (*ai.JDAnalysis, error)

// Options wires the detail view to the AI layer. Both fields may be nil.
type Options struct {
	// Lookup loads a stored analysis when a posting is opened.
	Lookup AnalysisFunc
	// Analyze runs the analysis on demand ('s' in the detail view).
	Analyze AnalysisFunc
}

type analysisMsg struct {
	postingID string
	analysis  *ai.JDAnalysis
	err       error
}

type browseModel struct {
	all           []model.JobPosting
	matched       []model.JobPosting
	leftViewport  viewport.Model
	rightViewport viewport.Model
	activePane    int // 0=left, 1=right
	leftCursor    int
	rightCursor   int
	width         int
	height        int
	ready         bool

	view            viewState
	detail          model.JobPosting
	detailViewport  viewport.Model
	showDescription bool

	opts       Options
	analyses   map[string]*ai.JDAnalysis
	analyzing  bool
	analyzeErr string

	wantQuit bool
}

func newModel(all, matched []model.JobPosting, opts Options) browseModel {
	return browseModel{
		all:      all,
		matched:  matched,
		opts:     opts,
		analyses: make(map[string]*ai.JDAnalysis),
	}
}

func (m browseModel) Init() tea.Cmd {
	return nil
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		if m.view == viewDetail {
			m.detailViewport.Width = m.width - 4
			m.detailViewport.Height = m.height - 4
			m.detailViewport.SetContent(m.renderDetail())
		}
		return m, nil

	case analysisMsg:
		m.analyzing = false
		switch {
		case msg.err != nil:
			m.analyzeErr = fmt.Sprintf("analysis failed: %v", msg.err)
		case msg.analysis != nil:
			m.analyzeErr = ""
			m.analyses[msg.postingID] = msg.analysis
		}
		if m.view == viewDetail {
			m.detailViewport.SetContent(m.renderDetail())
		}
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetailView(msg)
		}
		return m.updateListView(msg)
	}

	return m, nil
}

func (m browseModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "b":
		m.wantQuit = false
		return m, tea.Quit
	case "tab", "left", "right":
		m.activePane = 1 - m.activePane
		m.recalcContent()
		return m, nil
	case "up", "k":
		m.moveCursor(-1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "down", "j":
		m.moveCursor(1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "enter":
		return m.openDetailView()
	}

	// Forward other keys (pgup/pgdn/home/end) to the active viewport.
	var cmd tea.Cmd
	if m.activePane == 0 {
		m.leftViewport, cmd = m.leftViewport.Update(msg)
	} else {
		m.rightViewport, cmd = m.rightViewport.Update(msg)
	}
	return m, cmd
}

func (m browseModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	case "o":
		openURL(m.detail.URL)
		return m, nil
	case "r":
		if m.detail.Description != "" {
			m.showDescription = !m.showDescription
			m.detailViewport.SetContent(m.renderDetail())
			m.detailViewport.SetYOffset(0)
		}
		return m, nil
	case "s":
		if m.opts.Analyze != nil && !m.analyzing && m.analyses[m.detail.ID] == nil {
			m.analyzing = true
			m.analyzeErr = ""
			m.detailViewport.SetContent(m.renderDetail())
			return m, analysisCmd(m.opts.Analyze, m.detail.ID)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.detailViewport, cmd = m.detailViewport.Update(msg)
	return m, cmd
}

func analysisCmd(fn AnalysisFunc, postingID string) tea.Cmd {
	return func() tea.Msg {
		a, err := fn(context.Background(), postingID)
		return analysisMsg{postingID: postingID, analysis: a, err: err}
	}
}

func (m *browseModel) moveCursor(delta int) {
	if m.activePane == 0 {
		m.leftCursor = clamp(m.leftCursor+delta, 0, max(len(m.all)-1, 0))
	} else {
		m.rightCursor = clamp(m.rightCursor+delta, 0, max(len(m.matched)-1, 0))
	}
}

func (m *browseModel) ensureCursorVisible() {
	var vp *viewport.Model
	var cursor int
	if m.activePane == 0 {
		vp = &m.leftViewport
		cursor = m.leftCursor
	} else {
		vp = &m.rightViewport
		cursor = m.rightCursor
	}

	top := cursor * itemHeight
	bottom := top + itemHeight - 1

	if top < vp.YOffset {
		vp.SetYOffset(top)
	} else if bottom >= vp.YOffset+vp.Height {
		vp.SetYOffset(bottom - vp.Height + 1)
	}
}

func (m browseModel) openDetailView() (tea.Model, tea.Cmd) {
	postings := m.activePostings()
	if len(postings) == 0 {
		return m, nil
	}

	p := postings[m.activeCursor()]
	m.view = viewDetail
	m.detail = p
	m.analyzeErr = ""
	m.showDescription = false
	m.detailViewport = viewport.New(m.width-4, m.height-4)
	m.detailViewport.SetContent(m.renderDetail())

	if m.opts.Lookup != nil && m.analyses[p.ID] == nil {
		return m, analysisCmd(m.opts.Lookup, p.ID)
	}
	return m, nil
}

func (m *browseModel) recalcLayout() {
	// 2 border chars per pane + 1 gap between panes.
	paneWidth := max((m.width-5)/2, 20)

	// Header (1 line) + border top/bottom (2) + status bar (1) = 4 lines overhead.
	paneHeight := max(m.height-4, 5)

	if !m.ready {
		m.leftViewport = viewport.New(paneWidth, paneHeight)
		m.rightViewport = viewport.New(paneWidth, paneHeight)
		m.ready = true
	} else {
		m.leftViewport.Width = paneWidth
		m.leftViewport.Height = paneHeight
		m.rightViewport.Width = paneWidth
		m.rightViewport.Height = paneHeight
	}

	m.recalcContent()
}

func (m *browseModel) recalcContent() {
	m.leftViewport.SetContent(renderPostings(m.all, m.leftCursor, m.activePane == 0))
	m.rightViewport.SetContent(renderPostings(m.matched, m.rightCursor, m.activePane == 1))
}

func (m browseModel) activePostings() []model.JobPosting {
	if m.activePane == 0 {
		return m.all
	}
	return m.matched
}

func (m browseModel) activeCursor() int {
	if m.activePane == 0 {
		return m.leftCursor
	}
	return m.rightCursor
}

func (m browseModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.view == viewDetail {
		return m.viewDetail()
	}
	return m.viewList()
}

func (m browseModel) viewList() string {
	paneWidth := m.leftViewport.Width

	leftHeader := fmt.Sprintf(" All Postings (%d)", len(m.all))
	rightHeader := fmt.Sprintf(" Matched (%d)", len(m.matched))

	var leftHeaderRendered, rightHeaderRendered string
	var leftBorder, rightBorder lipgloss.Style

	if m.activePane == 0 {
		leftHeaderRendered = activeHeaderStyle.Render(leftHeader)
		rightHeaderRendered = inactiveHeaderStyle.Render(rightHeader)
		leftBorder = activeBorderStyle.Width(paneWidth)
		rightBorder = inactiveBorderStyle.Width(paneWidth)
	} else {
		leftHeaderRendered = inactiveHeaderStyle.Render(leftHeader)
		rightHeaderRendered = activeHeaderStyle.Render(rightHeader)
		leftBorder = inactiveBorderStyle.Width(paneWidth)
		rightBorder = activeBorderStyle.Width(paneWidth)
	}

	leftPane := leftBorder.Render(m.leftViewport.View())
	rightPane := rightBorder.Render(m.rightViewport.View())

	headerRow := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(paneWidth+2).Render(leftHeaderRendered),
		" ",
		lipgloss.NewStyle().Width(paneWidth+2).Render(rightHeaderRendered),
	)
	panes := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, " ", rightPane)

	statusText := fmt.Sprintf(" %d total | %d matched | %d filtered out    ←/→/Tab switch  ↑/↓ cursor  Enter detail  Esc back  q quit",
		len(m.all), len(m.matched), len(m.all)-len(m.matched))
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return headerRow + "\n" + panes + "\n" + statusBar
}

func (m browseModel) viewDetail() string {
	title := detailTitleStyle.Render("Posting")
	if m.analyzing {
		title += "  (analyzing...)"
	}

	border := activeBorderStyle.Width(m.width - 2)
	content := border.Render(m.detailViewport.View())

	keys := []string{"o open URL"}
	if m.detail.Description != "" {
		keys = append(keys, "r desc")
	}
	if m.opts.Analyze != nil && m.analyses[m.detail.ID] == nil && !m.analyzing {
		keys = append(keys, "s analyze")
	}
	keys = append(keys, "esc/backspace back", "↑/↓ scroll", "q quit")
	statusBar := statusBarStyle.Width(m.width).Render(" " + strings.Join(keys, "  "))

	return title + "\n" + content + "\n" + statusBar
}

func (m browseModel) renderDetail() string {
	p := m.detail
	var b strings.Builder

	addField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(detailValueStyle.Render(value))
		b.WriteByte('\n')
	}

	addField("Title", p.Title)
	addField("Company", p.Company)
	addField("Location", p.Location)
	addField("Status", string(p.Status))
	addField("Site", p.Site)
	addField("Posting ID", p.ID)

	b.WriteByte('\n')
	if p.PostedAt != nil {
		addField("Posted At", p.PostedAt.Local().Format("2006-01-02 15:04 MST"))
	}
	addField("First Scraped", p.FirstScrapedAt.Local().Format("2006-01-02 15:04 MST"))
	addField("Last Scraped", p.LastScrapedAt.Local().Format("2006-01-02 15:04 MST"))

	b.WriteByte('\n')
	addField("URL", p.URL)

	wrapWidth := max(m.width-8, 20)
	divider := func(label string) string {
		fill := strings.Repeat("─", max(wrapWidth-len(label), 3))
		return dividerStyle.Render(label + fill)
	}

	if m.analyzeErr != "" {
		b.WriteByte('\n')
		b.WriteString(errorStyle.Render("⚠ "+m.analyzeErr) + "\n")
	}

	if a := m.analyses[p.ID]; a != nil {
		b.WriteByte('\n')
		b.WriteString(divider("── Analysis ") + "\n\n")
		addField("Seniority", a.Seniority)
		addField("Job Type", a.JobType)
		if a.ExperienceYears > 0 {
			addField("Experience", fmt.Sprintf("%d+ years", a.ExperienceYears))
		}
		addField("Required", strings.Join(a.RequiredSkills, ", "))
		addField("Preferred", strings.Join(a.PreferredSkills, ", "))
		addField("Keywords", strings.Join(a.ATSKeywords, ", "))
		b.WriteByte('\n')
		for _, r := range a.Responsibilities {
			if r != "" {
				b.WriteString(detailValueStyle.Render("  • "+r) + "\n")
			}
		}
		for _, f := range a.RedFlags {
			if f != "" {
				b.WriteString(errorStyle.Render("  ! "+f) + "\n")
			}
		}
	} else if m.analyzing {
		b.WriteByte('\n')
		b.WriteString(hintStyle.Render("  analyzing job description...") + "\n")
	} else if m.opts.Analyze != nil && m.analyzeErr == "" && p.Description != "" {
		b.WriteByte('\n')
		b.WriteString(hintStyle.Render("  press s to analyze the job description") + "\n")
	}

	if p.Description != "" {
		b.WriteByte('\n')
		if m.showDescription {
			b.WriteString(divider("── Job Description ") + "\n\n")
			b.WriteString(bodyStyle.Render(wordWrap(p.Description, wrapWidth)) + "\n")
		} else {
			b.WriteString(hintStyle.Render("  press r to read job description") + "\n")
		}
	}

	return b.String()
}

func renderPostings(postings []model.JobPosting, cursor int, isActive bool) string {
	if len(postings) == 0 {
		return "  (no postings)"
	}

	var b strings.Builder
	for i, p := range postings {
		isSelected := isActive && i == cursor

		titleSt := titleStyle
		subtitleSt := subtitleStyle
		prefix := "  "
		if isSelected {
			titleSt = selectedTitleStyle
			subtitleSt = selectedSubtitleStyle
			prefix = "> "
		}

		b.WriteString(prefix)
		b.WriteString(titleSt.Render(p.Title))
		b.WriteByte('\n')

		posted := "n/a"
		if p.PostedAt != nil {
			posted = p.PostedAt.Format("2006-01-02")
		}
		b.WriteString(prefix)
		b.WriteString(subtitleSt.Render(fmt.Sprintf("%s · %s · %s · %s", p.Company, p.Location, posted, p.Status)))
		b.WriteByte('\n')

		if i < len(postings)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func wordWrap(text string, width int) string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			if len(line)+1+len(w) <= width {
				line += " " + w
			} else {
				out = append(out, line)
				line = w
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// Run launches the split-pane browser. all is every posting of the view,
// matched the subset passing the configured filters.
// Returns wantQuit=true if the user pressed q/ctrl+c, false if they pressed esc to return to the picker.
func Run(all, matched []model.JobPosting, opts Options) (bool, error) {
	p := tea.NewProgram(newModel(all, matched, opts), tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return false, err
	}
	final := result.(browseModel)
	return final.wantQuit, nil
}
