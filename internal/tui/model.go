package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	log "github.com/sirupsen/logrus"

	"whiteboard/internal/board"
)

var (
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Background(lipgloss.Color("236"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Background(lipgloss.Color("236"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
)

type Options struct {
	Logger *log.Logger
	// Copy and Paste default to the system clipboard.
	Copy  func(string) error
	Paste func() (string, error)
	// Open defaults to os.Open and is used for image uploads.
	Open func(path string) (io.ReadCloser, error)
	Now  func() time.Time
	// Load opens the board for Start and for retries after a failed load.
	Load func(ctx context.Context) (*board.Canvas, error)
}

// Model is the bubbletea model for one board.
type Model struct {
	ctx    context.Context
	canvas *board.Canvas
	log    *log.Logger
	copy   func(string) error
	paste  func() (string, error)
	open   func(string) (io.ReadCloser, error)
	now    func() time.Time
	load   func(context.Context) (*board.Canvas, error)

	// loadErr is set while no board could be loaded; only retry and quit
	// work in that state.
	loadErr error

	width  int
	height int
	mode   Mode
	help   bool
	input  textinput.Model

	editID     string
	editHTML   string
	origTitle  string
	editTitle  string
	editSecret string

	lastPress    time.Time
	lastCol      int
	lastRow      int
	message      string
	errorMessage string
}

func New(ctx context.Context, canvas *board.Canvas, opts Options) Model {
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.Copy == nil {
		opts.Copy = copyToClipboard
	}
	if opts.Paste == nil {
		opts.Paste = readClipboard
	}
	if opts.Open == nil {
		opts.Open = func(p string) (io.ReadCloser, error) { return os.Open(p) }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ti := textinput.New()
	ti.CharLimit = 4096
	return Model{
		ctx:    ctx,
		canvas: canvas,
		log:    opts.Logger,
		copy:   opts.Copy,
		paste:  opts.Paste,
		open:   opts.Open,
		now:    opts.Now,
		load:   opts.Load,
		input:  ti,
		mode:   ModeNormal,
	}
}

// Start loads the board through opts.Load. A failed load yields a model
// showing the error, from which the user can retry or quit.
func Start(ctx context.Context, opts Options) Model {
	canvas, err := opts.Load(ctx)
	m := New(ctx, canvas, opts)
	if err != nil {
		m.loadFailed(err)
	}
	return m
}

// Run starts the full-screen program and blocks until the user quits. The
// loaded canvas, if any, is closed on the way out.
func Run(ctx context.Context, opts Options) error {
	p := tea.NewProgram(
		Start(ctx, opts),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	final, err := p.Run()
	if m, ok := final.(Model); ok && m.canvas != nil {
		m.canvas.Close()
	}
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Mode() Mode { return m.mode }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.canvas == nil {
		return m.updateLoadError(msg)
	}
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.fitViewport()
		return m, nil

	case tea.MouseMsg:
		if m.mode != ModeNormal || m.help {
			return m, nil
		}
		return m.handleMouse(msg), nil

	case tea.KeyMsg:
		if m.help {
			switch msg.String() {
			case "esc", "q", "?":
				m.help = false
			}
			return m, nil
		}
		if m.mode != ModeNormal {
			return m.handleInput(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) fitViewport() {
	v := m.canvas.Viewport()
	v.Size = board.Point{X: float64(m.width) * cellW, Y: float64(m.canvasRows()) * cellH}
	m.canvas.SetViewport(v)
}

func (m *Model) loadFailed(err error) {
	m.canvas = nil
	m.loadErr = err
	m.log.WithField("op", "load").Errorf("load failed, err: %v", err)
}

func (m Model) updateLoadError(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			if m.load == nil {
				return m, nil
			}
			canvas, err := m.load(m.ctx)
			if err != nil {
				m.loadFailed(err)
				return m, nil
			}
			m.canvas = canvas
			m.loadErr = nil
			m.fitViewport()
			m.message = "loaded " + canvas.BoardID()
		}
	}
	return m, nil
}

func (m Model) canvasRows() int {
	if m.height < 2 {
		return 1
	}
	return m.height - 1
}

func (m Model) handleMouse(msg tea.MouseMsg) Model {
	p := cellCenter(msg.X, msg.Y)
	switch {
	case msg.Button == tea.MouseButtonWheelUp:
		m.canvas.ZoomAt(p, zoomStep)
	case msg.Button == tea.MouseButtonWheelDown:
		m.canvas.ZoomAt(p, 1/zoomStep)
	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
		m.clearMessages()
		double := m.isDoubleClick(msg.X, msg.Y)
		m.canvas.PointerDown(p)
		if double {
			if _, ok, err := m.canvas.DoubleClick(m.ctx, p); err != nil {
				m.fail("create", err)
			} else if ok {
				m.message = "created text item"
			}
		}
	case msg.Action == tea.MouseActionMotion:
		m.canvas.Window().PointerMove(p)
	case msg.Action == tea.MouseActionRelease:
		m.canvas.Window().PointerUp(p)
	}
	return m
}

// isDoubleClick records a press and reports whether it completes a double
// click on the same cell.
func (m *Model) isDoubleClick(col, row int) bool {
	now := m.now()
	double := !m.lastPress.IsZero() && col == m.lastCol && row == m.lastRow &&
		now.Sub(m.lastPress) <= doubleClickWindow
	if double {
		m.lastPress = time.Time{}
	} else {
		m.lastPress = now
	}
	m.lastCol, m.lastRow = col, row
	return double
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.clearMessages()
	key := msg.String()
	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "?":
		m.help = true
	case "s":
		m.canvas.SetTool(board.ToolSelect)
	case "t":
		m.canvas.SetTool(board.ToolText)
		m.added(m.canvas.OnAddText(m.ctx))
	case "g":
		m.canvas.SetTool(board.ToolGrid)
		m.added(m.canvas.OnAddGridBox(m.ctx))
	case "i":
		m.canvas.SetTool(board.ToolImage)
		return m, m.prompt(ModeImagePath, "image: ", "")
	case "P":
		return m, m.prompt(ModeExportPath, "export (.png or .txt): ", defaultExportName)
	case "p":
		m.pasteText()
	case "u":
		if !m.canvas.OnUndo() {
			m.message = "nothing to undo"
		}
	case "U":
		if !m.canvas.OnRedo() {
			m.message = "nothing to redo"
		}
	case "d":
		if m.canvas.ActiveID() == "" {
			m.message = "nothing selected"
		} else if err := m.canvas.DeleteActive(); err != nil {
			m.fail("delete", err)
		}
	case "e":
		return m, m.startEdit()
	case "v":
		m.toggleSecret()
	case "y":
		m.copyActive()
	case "+", "=":
		m.canvas.ZoomAt(m.screenCenter(), zoomStep)
	case "-":
		m.canvas.ZoomAt(m.screenCenter(), 1/zoomStep)
	case "left", "right", "up", "down", "shift+left", "shift+right", "shift+up", "shift+down":
		m.handlePan(key)
	case "r":
		if err := m.canvas.Reconcile(m.ctx); err != nil {
			m.fail("reconcile", err)
		} else {
			m.message = "reloaded from store"
		}
	default:
		m.canvas.Window().KeyDown(key)
	}
	return m, nil
}

func (m *Model) handlePan(key string) {
	speed := float64(panCells)
	if strings.HasPrefix(key, "shift+") {
		speed *= 2
	}
	switch strings.TrimPrefix(key, "shift+") {
	case "left":
		m.canvas.PanBy(speed*cellW, 0)
	case "right":
		m.canvas.PanBy(-speed*cellW, 0)
	case "up":
		m.canvas.PanBy(0, speed*cellH)
	case "down":
		m.canvas.PanBy(0, -speed*cellH)
	}
}

func (m Model) screenCenter() board.Point {
	v := m.canvas.Viewport()
	return board.Point{X: v.Origin.X + v.Size.X/2, Y: v.Origin.Y + v.Size.Y/2}
}

func (m *Model) added(it board.Item, err error) {
	if err != nil {
		m.fail("create", err)
		return
	}
	m.message = fmt.Sprintf("created %s item", it.Kind())
}

func (m *Model) pasteText() {
	text, err := m.paste()
	if err != nil {
		m.fail("paste", err)
		return
	}
	if strings.TrimSpace(text) == "" {
		m.message = "clipboard is empty"
		return
	}
	m.added(m.canvas.Create(m.ctx, m.canvas.Viewport().Center(), board.KindText, board.Overrides{HTML: toHTML(text)}))
}

func (m *Model) toggleSecret() {
	it, ok := m.canvas.Active()
	if !ok {
		m.message = "nothing selected"
		return
	}
	shown, err := m.canvas.ToggleSecret(it.ID)
	if err != nil {
		m.fail("toggle secret", err)
		return
	}
	if shown {
		m.message = "secret shown"
	} else {
		m.message = "secret hidden"
	}
}

func (m *Model) copyActive() {
	it, ok := m.canvas.Active()
	if !ok {
		m.message = "nothing selected"
		return
	}
	if err := m.copy(copyText(it)); err != nil {
		m.fail("copy", err)
		return
	}
	m.message = "copied"
}

func (m *Model) prompt(mode Mode, label, value string) tea.Cmd {
	m.mode = mode
	m.input.Prompt = label
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m.input.Focus()
}

func (m *Model) startEdit() tea.Cmd {
	it, ok := m.canvas.Active()
	if !ok {
		m.message = "nothing selected"
		return nil
	}
	m.editID = it.ID
	switch b := it.Body.(type) {
	case board.Text:
		m.editHTML = b.HTML
		return m.prompt(ModeEditText, "text: ", plainText(b.HTML))
	case board.Grid:
		m.origTitle, m.editTitle, m.editSecret = b.Title, b.Title, b.Secret
		return m.prompt(ModeEditTitle, "title: ", b.Title)
	default:
		m.editID = ""
		m.message = "images have no editable text"
		return nil
	}
}

func (m Model) handleInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.cancelInput()
		return m, nil
	case "enter":
		return m, m.submitInput()
	}
	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != before {
		m.liveEdit()
	}
	return m, cmd
}

// liveEdit writes keystroke-rate edits through the debounced path.
func (m *Model) liveEdit() {
	var err error
	switch m.mode {
	case ModeEditText:
		err = m.canvas.SetHTMLDebounced(m.editID, toHTML(m.input.Value()))
	case ModeEditTitle:
		err = m.canvas.SetGridFieldsDebounced(m.editID, m.input.Value(), m.editSecret)
	case ModeEditSecret:
		err = m.canvas.SetGridFieldsDebounced(m.editID, m.editTitle, m.input.Value())
	}
	if err != nil {
		m.fail("edit", err)
	}
}

func (m *Model) submitInput() tea.Cmd {
	value := m.input.Value()
	switch m.mode {
	case ModeEditText:
		if err := m.canvas.SetHTML(m.editID, toHTML(value)); err != nil {
			m.fail("edit", err)
		}
	case ModeEditTitle:
		m.editTitle = value
		if it, ok := m.canvas.Item(m.editID); ok {
			if g, ok := it.Body.(board.Grid); ok {
				return m.prompt(ModeEditSecret, "secret: ", g.Secret)
			}
		}
	case ModeEditSecret:
		if err := m.canvas.SetGridFields(m.editID, m.editTitle, value); err != nil {
			m.fail("edit", err)
		}
	case ModeImagePath:
		m.uploadImage(strings.TrimSpace(value))
	case ModeExportPath:
		m.export(strings.TrimSpace(value))
	}
	m.endInput()
	return nil
}

func (m *Model) cancelInput() {
	var err error
	switch m.mode {
	case ModeEditText:
		err = m.canvas.SetHTML(m.editID, m.editHTML)
	case ModeEditTitle, ModeEditSecret:
		err = m.canvas.SetGridFields(m.editID, m.origTitle, m.editSecret)
	}
	if err != nil {
		m.fail("revert edit", err)
	}
	m.endInput()
}

func (m *Model) endInput() {
	m.mode = ModeNormal
	m.editID = ""
	m.input.Blur()
	m.input.SetValue("")
}

func (m *Model) uploadImage(path string) {
	if path == "" {
		return
	}
	f, err := m.open(path)
	if err != nil {
		m.fail("open image", err)
		return
	}
	defer f.Close()
	if _, err := m.canvas.OnUploadImage(m.ctx, filepath.Base(path), f); err != nil {
		m.fail("upload", err)
		return
	}
	m.message = "image added"
}

// export picks the format from the extension: .txt gets the terminal
// rendering, anything else a PNG.
func (m *Model) export(path string) {
	if path == "" {
		path = defaultExportName
	}
	write := ExportPNG
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		write = ExportText
	}
	if err := write(m.canvas.Items(), path); err != nil {
		m.fail("export", err)
		return
	}
	m.message = "exported " + path
}

func (m *Model) fail(op string, err error) {
	m.log.WithFields(log.Fields{"board": m.canvas.BoardID(), "op": op}).Errorf("%s failed, err: %v", op, err)
	m.errorMessage = fmt.Sprintf("%s: %v", op, err)
}

func (m *Model) clearMessages() {
	m.message = ""
	m.errorMessage = ""
}

func (m Model) View() string {
	width := m.width
	if width < 1 {
		width = 1
	}
	if m.canvas == nil {
		return m.loadErrorView(width)
	}
	if m.help {
		return m.helpView()
	}
	lines := Render(m.canvas.Items(), m.canvas.Viewport(), width, m.canvasRows(), m.canvas.ActiveID())

	var b strings.Builder
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n")
	if m.mode != ModeNormal {
		b.WriteString(promptStyle.Render(ansi.Truncate(m.input.View(), width, "")))
		return b.String()
	}
	status := ansi.Truncate(m.statusLine(), width, "…")
	if m.errorMessage != "" {
		b.WriteString(errorStyle.Width(width).Render(status))
	} else {
		b.WriteString(statusStyle.Width(width).Render(status))
	}
	return b.String()
}

func (m Model) loadErrorView(width int) string {
	lines := make([]string, m.canvasRows())
	lines[0] = ansi.Truncate("Could not load the board: "+m.loadErr.Error(), width, "…")
	var b strings.Builder
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n")
	b.WriteString(errorStyle.Width(width).Render(ansi.Truncate("LOAD FAILED | r to retry | q to quit", width, "…")))
	return b.String()
}

func (m Model) statusLine() string {
	v := m.canvas.Viewport()
	status := fmt.Sprintf("Mode: %s | Tool: %s | Zoom: %d%% | Items: %d",
		m.mode, m.canvas.Tool(), int(v.Zoom*100+0.5), len(m.canvas.Items()))
	if it, ok := m.canvas.Active(); ok {
		status += fmt.Sprintf(" | Selected: %s %s", it.Kind(), shortID(it.ID))
	}
	if g := m.canvas.Gesture(); g != nil && !g.Done() {
		status += " | " + strings.ToUpper(g.Kind().String())
	}
	if n := len(m.canvas.Drifted()); n > 0 {
		status += fmt.Sprintf(" | %d unsaved (r to reload)", n)
	}
	switch {
	case m.errorMessage != "":
		status += " | ERROR: " + m.errorMessage
	case m.message != "":
		status += " | " + m.message
	default:
		status += " | ? for help | q to quit"
	}
	return status
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var helpLines = []string{
	"Whiteboard Help",
	"===============",
	"",
	"Mouse:",
	"------",
	"  click            Select the topmost item under the pointer",
	"  drag item        Move it",
	"  drag o grip      Resize the selected grid card or image",
	"  drag empty       Pan the board (select tool)",
	"  double-click     Create a text item (text/grid/image tool)",
	"  wheel            Zoom around the pointer",
	"",
	"Items:",
	"------",
	"  t                Add a text item at the centre",
	"  g                Add a grid card at the centre",
	"  i                Upload an image from a file path",
	"  p                Add a text item from the clipboard",
	"  s                Select tool",
	"  e                Edit the selected item",
	"  v                Show/hide a grid card's secret",
	"  y                Copy the selected item's text, secret or URL",
	"  d / Delete       Delete the selected item",
	"  Esc              Deselect",
	"",
	"Board:",
	"------",
	"  u / Ctrl+Z       Undo",
	"  U / Ctrl+Y       Redo",
	"  +/-              Zoom",
	"  arrows           Pan (Shift for 2x)",
	"  P                Export PNG or TXT",
	"  r                Reload from the store",
	"  q                Quit",
	"",
	"Press ?, q or Esc to close.",
}

func (m Model) helpView() string {
	return strings.Join(helpLines, "\n")
}
