package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/correre-org/devsync/api/device"
	"github.com/correre-org/devsync/api/dispatch"
	"github.com/correre-org/devsync/api/errorkinds"
	"github.com/correre-org/devsync/session"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	cursorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	helpStyle   = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	statusStyles = map[device.Status]lipgloss.Style{
		device.StatusConnecting:     lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		device.StatusAuthenticating: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		device.StatusConnected:      lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		device.StatusAuthFailed:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		device.StatusDisconnected:   lipgloss.NewStyle().Faint(true),
	}
)

// browser is the bubbletea model of the interactive activity list.
// Queue callbacks reach it through dispatch.Handle in Update, so every
// field is only touched on the program goroutine.
type browser struct {
	app *app
	dc  dispatch.Context

	status   device.StatusEvent
	files    []device.File
	cursor   int
	busy     bool
	progress float64
	message  string
	err      error
	now      func() time.Time
}

func (a *app) ui(ctx context.Context) error {
	m := &browser{app: a, now: time.Now}

	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	pr := dispatch.NewProgram(p)
	defer pr.Close()
	m.dc = pr

	unsubscribe := a.queue.Subscribe(pr, session.Listener{
		Status: m.onStatus,
		Progress: func(ev device.ProgressEvent) {
			m.progress = ev.Fraction
		},
	})
	defer unsubscribe()

	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	return nil
}

func (m *browser) Init() tea.Cmd {
	m.refresh()
	return nil
}

func (m *browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if dispatch.Handle(msg) {
		return m, nil
	}

	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "q", "esc", "ctrl+c":
		m.app.queue.Shutdown()
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.files)-1 {
			m.cursor++
		}

	case "r":
		m.refresh()

	case "enter", "d":
		m.download()

	case "x":
		m.remove()
	}

	return m, nil
}

func (m *browser) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.title()))
	b.WriteString("  ")
	b.WriteString(statusStyle(m.status.Status).Render(m.status.Status.String()))
	b.WriteString("\n\n")

	switch {
	case len(m.files) == 0 && m.busy:
		b.WriteString("Reading the device directory...\n")

	case len(m.files) == 0:
		b.WriteString("No activities on the device.\n")

	default:
		now := m.now()
		for i, f := range m.files {
			line := formatFile(f, now)
			if i == m.cursor {
				b.WriteString(cursorStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	if m.busy && m.progress > 0 {
		b.WriteString(formatProgress(m.progress))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()))
		b.WriteString("\n")
	} else if m.message != "" {
		b.WriteString(m.message)
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("j/k move  enter download  x delete  r refresh  q quit"))
	b.WriteString("\n")

	return b.String()
}

func (m *browser) title() string {
	if m.status.Identity.Name == "" {
		return m.app.cfg.ProductName
	}

	return fmt.Sprintf("%s (%s)", m.status.Identity.Name, m.status.Identity.Serial)
}

func (m *browser) onStatus(ev device.StatusEvent) {
	if ev.Identity.Serial == 0 {
		ev.Identity = m.status.Identity
	}
	m.status = ev

	if ev.Status == device.StatusDisconnected && ev.Err != nil {
		m.busy = false
		m.err = ev.Err
	}
}

func (m *browser) selected() (device.File, bool) {
	if m.cursor < 0 || m.cursor >= len(m.files) {
		return device.File{}, false
	}

	return m.files[m.cursor], true
}

func (m *browser) start() {
	m.busy = true
	m.progress = 0
	m.message = ""
	m.err = nil
}

// fail shows err unless the session was stopped on purpose.
func (m *browser) fail(err error) {
	m.busy = false
	if errorkinds.IsCancelled(err) {
		return
	}

	m.err = err
}

func (m *browser) refresh() {
	m.start()

	_, err := m.app.queue.ListFiles(m.dc, func(fs device.FileSet, err error) {
		m.busy = false
		if err != nil {
			m.fail(err)
			return
		}

		m.files = fs.Activities()
		if m.cursor >= len(m.files) {
			m.cursor = max(len(m.files)-1, 0)
		}
	})
	if err != nil {
		m.fail(err)
	}
}

func (m *browser) download() {
	file, ok := m.selected()
	if !ok {
		return
	}
	m.start()

	_, err := m.app.queue.DownloadFile(m.dc, file.Index, nil, func(data []byte, err error) {
		m.busy = false
		if err != nil {
			m.fail(err)
			return
		}

		path := file.Path(device.ProfilePath(m.app.cfg.ProfileDir, m.status.Identity.Serial))
		if err := writeDownload(path, data); err != nil {
			m.fail(err)
			return
		}

		m.app.logger.Info("Saved activity", zap.String("path", path))
		m.message = "Saved " + path
	})
	if err != nil {
		m.fail(err)
	}
}

func (m *browser) remove() {
	file, ok := m.selected()
	if !ok {
		return
	}
	m.start()

	_, err := m.app.queue.DeleteFile(m.dc, file.Index, func(deleted bool, err error) {
		m.busy = false
		if err != nil {
			m.fail(err)
			return
		}

		if !deleted {
			m.message = fmt.Sprintf("The device kept %s", file.Filename())
			return
		}

		m.refresh()
		m.message = "Deleted " + file.Filename()
	})
	if err != nil {
		m.fail(err)
	}
}

func statusStyle(s device.Status) lipgloss.Style {
	if style, ok := statusStyles[s]; ok {
		return style
	}

	return lipgloss.NewStyle()
}
