package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/roomboard/internal/hotels"
	"github.com/MarcoPoloResearchLab/roomboard/internal/view"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

const (
	prompt         = "roomboard> "
	roomColumn     = 8
	typeColumn     = 12
	errorColor     = "#D7263D"
	warningColor   = "#F4A261"
	infoColor      = "#2A9D8F"
	roomForeground = "#1F1F1F"
)

const helpText = `commands:
  hotels                     list hotels in display order
  select <hotel>             pick the active hotel
  rooms                      show rooms of the active hotel
  search <text>              filter rooms by number, occupant or tag
  type <type|All>            filter rooms by type
  types                      list room types of the active hotel
  sort                       toggle ascending/descending room order
  find <term>                search every hotel
  open <n>                   jump to result n of the last find
  assign <room> <name>       add an occupant
  unassign <room> <name>     remove every occupant with that name
  tag <room> <tag>           add a tag
  untag <room> <tag>         remove a tag
  add <room> [type]          add a room
  delete <room>              delete a room
  order <hotel>, <hotel>...  persist the hotel display order
  status                     show the feed status
  reload                     resubscribe after a feed error
  quit                       leave the shell`

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	mutedStyle    = lipgloss.NewStyle().Faint(true)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(infoColor))
	levelStyles   = map[view.Level]lipgloss.Style{
		view.LevelInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color(infoColor)),
		view.LevelWarning: lipgloss.NewStyle().Foreground(lipgloss.Color(warningColor)),
		view.LevelError:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(errorColor)),
	}
)

type Config struct {
	In     io.Reader
	Out    io.Writer
	Logger *zap.Logger
}

// Shell is a line-oriented front end for a view.Controller. It also serves
// as the controller's Notifier.
type Shell struct {
	in     io.Reader
	logger *zap.Logger

	mu      sync.Mutex
	out     io.Writer
	results []hotels.Result
}

func NewShell(cfg Config) *Shell {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	out := cfg.Out
	if out == nil {
		out = io.Discard
	}
	return &Shell{in: cfg.In, out: out, logger: logger}
}

// Notify prints a notification; it is safe to call from the feed goroutine.
func (shell *Shell) Notify(notification view.Notification) {
	style, ok := levelStyles[notification.Level]
	if !ok {
		style = levelStyles[view.LevelInfo]
	}
	shell.println(style.Render(fmt.Sprintf("[%s] %s", notification.Level, notification.Message)))
}

// Run reads commands until quit, end of input or ctx cancellation.
func (shell *Shell) Run(ctx context.Context, controller *view.Controller) error {
	if shell.in == nil {
		return fmt.Errorf("console: input is required")
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(shell.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-runCtx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	shell.print(prompt)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(line)
			if line != "" && shell.execute(ctx, controller, line) {
				return nil
			}
			shell.print(prompt)
		}
	}
}

func (shell *Shell) execute(ctx context.Context, controller *view.Controller, line string) bool {
	command, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	shell.logger.Debug("shell command", zap.String("command", command))

	switch strings.ToLower(command) {
	case "quit", "exit":
		return true
	case "help":
		shell.println(helpText)
	case "status":
		shell.renderStatus(controller)
	case "reload":
		controller.Reload(ctx)
		shell.println(mutedStyle.Render("resubscribed"))
	case "hotels":
		shell.renderHotels(controller)
	case "select":
		if rest == "" {
			shell.usage("select <hotel>")
			return false
		}
		controller.SelectHotel(rest)
		shell.renderRooms(controller)
	case "rooms":
		shell.renderRooms(controller)
	case "search":
		controller.SetSearchText(rest)
		shell.renderRooms(controller)
	case "type":
		controller.SetTypeFilter(rest)
		shell.renderRooms(controller)
	case "types":
		shell.println(strings.Join(controller.RoomTypes(), ", "))
	case "sort":
		order := controller.ToggleSortOrder()
		shell.println(mutedStyle.Render("sort: " + string(order)))
		shell.renderRooms(controller)
	case "find":
		controller.SetGlobalSearch(rest)
		shell.renderResults(controller.GlobalSearch())
	case "open":
		shell.openResult(controller, rest)
	case "assign", "unassign", "tag", "untag":
		room, argument, ok := splitRoomArgument(rest)
		if !ok {
			shell.usage(command + " <room> <value>")
			return false
		}
		shell.roomCommand(ctx, controller, strings.ToLower(command), room, argument)
	case "add":
		room, roomType, _ := strings.Cut(rest, " ")
		controller.OpenAddRoomForm()
		controller.SetAddRoomForm(room, strings.TrimSpace(roomType))
		_ = controller.SubmitAddRoom(ctx)
	case "delete":
		if rest == "" {
			shell.usage("delete <room>")
			return false
		}
		_ = controller.DeleteRoom(ctx, rest)
	case "order":
		names := splitList(rest)
		if len(names) == 0 {
			shell.usage("order <hotel>, <hotel>...")
			return false
		}
		_ = controller.ReorderHotels(ctx, names)
	default:
		shell.println(levelStyles[view.LevelWarning].Render(fmt.Sprintf("unknown command %q, try help", command)))
	}
	return false
}

func (shell *Shell) roomCommand(ctx context.Context, controller *view.Controller, command, room, argument string) {
	switch command {
	case "assign":
		_ = controller.Assign(ctx, room, argument)
	case "unassign":
		_ = controller.Unassign(ctx, room, argument)
	case "tag":
		_ = controller.AddTag(ctx, room, argument)
	case "untag":
		_ = controller.RemoveTag(ctx, room, argument)
	}
}

func (shell *Shell) openResult(controller *view.Controller, rest string) {
	shell.mu.Lock()
	results := shell.results
	shell.mu.Unlock()

	index, err := strconv.Atoi(rest)
	if err != nil || index < 1 || index > len(results) {
		shell.usage("open <n> after find")
		return
	}
	controller.OpenResult(results[index-1])
	shell.renderRooms(controller)
}

func (shell *Shell) renderStatus(controller *view.Controller) {
	status, failure := controller.Status()
	line := "feed: " + string(status)
	if failure != nil {
		line += " (" + failure.Error() + ")"
	}
	shell.println(line)
}

func (shell *Shell) renderHotels(controller *view.Controller) {
	selected := controller.Selected()
	list := controller.Hotels()
	if len(list) == 0 {
		shell.println(mutedStyle.Render("no hotels"))
		return
	}
	var builder strings.Builder
	for _, hotel := range list {
		line := fmt.Sprintf("  %s (%d rooms)", hotel.Name, len(hotel.Rooms))
		if hotel.Name == selected {
			line = selectedStyle.Render("* " + strings.TrimPrefix(line, "  "))
		}
		builder.WriteString(line + "\n")
	}
	shell.print(builder.String())
}

func (shell *Shell) renderRooms(controller *view.Controller) {
	hotel, ok := controller.SelectedHotel()
	if !ok {
		shell.println(mutedStyle.Render("no hotel"))
		return
	}
	rooms := controller.VisibleRooms()

	var builder strings.Builder
	header := fmt.Sprintf("%s - %d of %d rooms, type %s, sort %s", hotel.Name, len(rooms), len(hotel.Rooms), controller.TypeFilter(), controller.SortOrder())
	if text := controller.SearchText(); text != "" {
		header += fmt.Sprintf(", search %q", text)
	}
	builder.WriteString(titleStyle.Render(header) + "\n")
	for _, room := range rooms {
		builder.WriteString(renderRoom(room) + "\n")
	}
	shell.print(builder.String())
}

func renderRoom(room hotels.Room) string {
	names := make([]string, 0, len(room.Occupants))
	for _, occupant := range room.Occupants {
		names = append(names, occupant.Name)
	}
	roomType := room.TypeName()
	if roomType == "" {
		roomType = "-"
	}
	line := fmt.Sprintf("%-*s %-*s %s", roomColumn, room.RoomNumber, typeColumn, roomType, strings.Join(names, ", "))
	if len(room.Tags) > 0 {
		line += " [" + strings.Join(room.Tags, ", ") + "]"
	}
	if room.OverCapacity() {
		line += " !over capacity"
	}
	style := lipgloss.NewStyle().
		Background(lipgloss.Color(hotels.RoomColorHex(room))).
		Foreground(lipgloss.Color(roomForeground))
	return style.Render(line)
}

func (shell *Shell) renderResults(results []hotels.Result) {
	shell.mu.Lock()
	shell.results = results
	shell.mu.Unlock()

	if len(results) == 0 {
		shell.println(mutedStyle.Render("no matches"))
		return
	}
	var builder strings.Builder
	for index, result := range results {
		var line string
		switch result.Kind {
		case hotels.ResultHotel:
			line = fmt.Sprintf("hotel    %s (%d rooms)", result.HotelName, result.RoomCount)
		case hotels.ResultRoom:
			line = fmt.Sprintf("room     %s / %s (%s)", result.HotelName, result.Room.RoomNumber, result.Match)
		case hotels.ResultOccupant:
			line = fmt.Sprintf("occupant %s in %s / %s", result.Occupant.Name, result.HotelName, result.Room.RoomNumber)
		}
		builder.WriteString(fmt.Sprintf("%3d. %s\n", index+1, line))
	}
	shell.print(builder.String())
}

func (shell *Shell) usage(text string) {
	shell.println(levelStyles[view.LevelWarning].Render("usage: " + text))
}

func (shell *Shell) print(text string) {
	shell.mu.Lock()
	defer shell.mu.Unlock()
	_, _ = io.WriteString(shell.out, text)
}

func (shell *Shell) println(text string) {
	shell.print(text + "\n")
}

func splitRoomArgument(rest string) (string, string, bool) {
	room, argument, found := strings.Cut(rest, " ")
	argument = strings.TrimSpace(argument)
	if !found || room == "" || argument == "" {
		return "", "", false
	}
	return room, argument, true
}

func splitList(rest string) []string {
	names := []string{}
	for _, part := range strings.Split(rest, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}
