// Package render draws boards for the terminal.
package render

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lizmareco/tablero/internal/board/models"
)

// Palette
var (
	Border      = lipgloss.Color("#2a3850")
	Muted       = lipgloss.Color("#7a869a")
	Destructive = lipgloss.Color("#e53935")
	Warning     = lipgloss.Color("#FFC107")
	Accent      = lipgloss.Color("#8BC34A")
)

// Styles groups the styles used by the renderer.
type Styles struct {
	Title      lipgloss.Style
	Column     lipgloss.Style
	ColumnWIP  lipgloss.Style
	Header     lipgloss.Style
	HeaderWIP  lipgloss.Style
	Card       lipgloss.Style
	CardClosed lipgloss.Style
	Overdue    lipgloss.Style
	Label      lipgloss.Style
	Meta       lipgloss.Style
	Stale      lipgloss.Style
}

// DefaultStyles returns the standard board styles.
func DefaultStyles() Styles {
	column := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Border).
		Padding(0, 1).
		MarginRight(1)
	header := lipgloss.NewStyle().Bold(true)
	return Styles{
		Title:      lipgloss.NewStyle().Bold(true).Foreground(Accent).MarginBottom(1),
		Column:     column,
		ColumnWIP:  column.BorderForeground(Destructive),
		Header:     header,
		HeaderWIP:  header.Foreground(Destructive),
		Card:       lipgloss.NewStyle(),
		CardClosed: lipgloss.NewStyle().Strikethrough(true).Foreground(Muted),
		Overdue:    lipgloss.NewStyle().Bold(true).Foreground(Destructive),
		Label:      lipgloss.NewStyle().Foreground(Warning),
		Meta:       lipgloss.NewStyle().Foreground(Muted),
		Stale:      lipgloss.NewStyle().Bold(true).Foreground(Warning),
	}
}

// Options controls board rendering.
type Options struct {
	Title string
	// Now decides which cards are overdue.
	Now time.Time
	// ColumnWidth is the inner width of each list column.
	ColumnWidth int
	// TaskCounts, if set, returns closed and total tasks for a card.
	TaskCounts func(cardID int64) (closed, total int)
	// Stale adds a warning that the board may be out of date.
	Stale  bool
	Styles *Styles
}

// Board renders lists side by side. Lists at their WIP limit get a
// highlighted border.
func Board(lists []*models.List, opts Options) string {
	st := DefaultStyles()
	if opts.Styles != nil {
		st = *opts.Styles
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if opts.ColumnWidth <= 0 {
		opts.ColumnWidth = 28
	}

	columns := make([]string, 0, len(lists))
	for _, l := range lists {
		columns = append(columns, renderList(l, opts, st))
	}

	var sb strings.Builder
	if opts.Title != "" {
		sb.WriteString(st.Title.Render(opts.Title))
		sb.WriteString("\n")
	}
	if opts.Stale {
		sb.WriteString(st.Stale.Render("! board may be out of date, run refresh"))
		sb.WriteString("\n")
	}
	if len(columns) == 0 {
		sb.WriteString(st.Meta.Render("(no lists)"))
		return sb.String()
	}
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, columns...))
	return sb.String()
}

func renderList(l *models.List, opts Options, st Styles) string {
	column, header := st.Column, st.Header
	if l.AtWIPLimit() {
		column, header = st.ColumnWIP, st.HeaderWIP
	}

	count := strconv.Itoa(len(l.Cards))
	if l.MaxWIP > 0 {
		count += "/" + strconv.Itoa(l.MaxWIP)
	}
	lines := []string{header.Render(fmt.Sprintf("%s (%s)", l.Name, count))}
	if l.AtWIPLimit() {
		lines = append(lines, header.Render("WIP limit reached"))
	}
	lines = append(lines, st.Meta.Render(fmt.Sprintf("list %d", l.ID)))
	for _, c := range l.Cards {
		lines = append(lines, "", renderCard(c, opts, st))
	}
	return column.Width(opts.ColumnWidth).Render(strings.Join(lines, "\n"))
}

func renderCard(c *models.Card, opts Options, st Styles) string {
	title := fmt.Sprintf("%d. #%d %s", c.Position, c.ID, c.Title)
	if c.IsClosed() {
		title = st.CardClosed.Render(title)
	} else {
		title = st.Card.Render(title)
	}
	lines := []string{title}

	var meta []string
	if c.Label != "" {
		meta = append(meta, st.Label.Render("["+c.Label+"]"))
	}
	if c.AssignedUserName != "" {
		meta = append(meta, st.Meta.Render("@"+c.AssignedUserName))
	}
	if opts.TaskCounts != nil {
		if closed, total := opts.TaskCounts(c.ID); total > 0 {
			meta = append(meta, st.Meta.Render(fmt.Sprintf("%d/%d tasks", closed, total)))
		}
	}
	if len(meta) > 0 {
		lines = append(lines, strings.Join(meta, " "))
	}
	if c.DueDate != nil {
		due := "due " + c.DueDate.Format("2006-01-02")
		if c.IsOverdue(opts.Now) {
			lines = append(lines, st.Overdue.Render(due+" OVERDUE"))
		} else {
			lines = append(lines, st.Meta.Render(due))
		}
	}
	return strings.Join(lines, "\n")
}

// Stats renders dashboard entries as one bar per list.
func Stats(entries []*models.StatEntry, width int) string {
	if width <= 0 {
		width = 30
	}
	maxValue, nameWidth := 0, 0
	for _, e := range entries {
		if e.Value > maxValue {
			maxValue = e.Value
		}
		if w := lipgloss.Width(e.Name); w > nameWidth {
			nameWidth = w
		}
	}

	var sb strings.Builder
	for _, e := range entries {
		bar := 0
		if maxValue > 0 {
			bar = e.Value * width / maxValue
		}
		if e.Value > 0 && bar == 0 {
			bar = 1
		}
		style := lipgloss.NewStyle()
		if e.Color != "" {
			style = style.Foreground(lipgloss.Color(e.Color))
		}
		name := e.Name + strings.Repeat(" ", nameWidth-lipgloss.Width(e.Name))
		fmt.Fprintf(&sb, "%s %s %d\n", name, style.Render(strings.Repeat("█", bar)), e.Value)
	}
	return sb.String()
}
