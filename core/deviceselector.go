package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

const (
	PAGESIZE = 25
)

var (
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dirStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	pageStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

// Selector turns a scan result into one upload target.
type Selector interface {
	SelectDevice(registry *DeviceRegistry) (*DeviceRecord, error)
	SelectPort(device *DeviceRecord) (int, error)
}

type DeviceSelector struct {
	selected string
	registry *DeviceRegistry
	filter   string
	page     int
}

func NewDeviceSelector() *DeviceSelector {
	return &DeviceSelector{}
}

// SelectDevice asks for one device out of registry. Choosing to scan again
// yields ErrNewScanRequired.
func (d *DeviceSelector) SelectDevice(registry *DeviceRegistry) (*DeviceRecord, error) {
	d.registry = registry
	d.filter = ""
	d.page = 0

	if err := d.RunRecur(); err != nil {
		return nil, err
	}

	device, ok := d.registry.Get(d.selected)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, d.selected)
	}
	return device, nil
}

func (d *DeviceSelector) filteredDevices() []*DeviceRecord {
	devices := d.registry.Records()
	if d.filter == "" {
		return devices
	}

	filtered := make([]*DeviceRecord, 0, len(devices))
	filterLower := strings.ToLower(d.filter)
	for _, device := range devices {
		if strings.Contains(strings.ToLower(device.Name), filterLower) ||
			strings.Contains(device.Address, filterLower) ||
			strings.Contains(strings.ToLower(device.Board()), filterLower) {
			filtered = append(filtered, device)
		}
	}
	return filtered
}

func formatDeviceOption(device *DeviceRecord) string {
	name := device.Name
	if len(name) > 20 {
		name = name[:17] + "..."
	}

	board := device.Board()
	if len(board) > 25 {
		board = board[:22] + "..."
	}

	text := fmt.Sprintf("%-20s %-16s %s", name, device.Address, board)
	if device.AuthRequired() {
		text += warningStyle.Render(" (password)")
	}
	return text
}

func (d *DeviceSelector) RunRecur() error {
	devices := d.filteredDevices()

	totalItems := len(devices)
	totalPages := (totalItems + PAGESIZE - 1) / PAGESIZE
	if totalPages == 0 {
		totalPages = 1
	}

	if d.page < 0 {
		d.page = 0
	}

	var options []huh.Option[string]

	filterText := "Filter devices"
	if d.filter != "" {
		filterText = fmt.Sprintf("Filter: '%s'", d.filter)
	}
	options = append(options, huh.NewOption(filterText, "filter"))

	if totalPages > 1 {
		pageInfo := fmt.Sprintf("Page %d of %d (%d devices)", d.page+1, totalPages, totalItems)
		options = append(options, huh.NewOption(pageStyle.Render(pageInfo), "page_info"))

		if d.page > 0 {
			options = append(options, huh.NewOption("<-", "prev_page"))
		}
		if d.page < totalPages-1 {
			options = append(options, huh.NewOption("->", "next_page"))
		}
	}

	start := d.page * PAGESIZE
	end := min(start+PAGESIZE, len(devices))

	for i := start; i < end; i++ {
		device := devices[i]
		options = append(options, huh.NewOption(formatDeviceOption(device), device.Name))
	}

	options = append(options,
		huh.NewOption("Scan again", "rescan"),
		huh.NewOption("Cancel", "cancel"),
	)

	title := fmt.Sprintf("Choose a device (%d found):", d.registry.Len())
	if d.filter != "" {
		title += fmt.Sprintf(" [Filter: %s]", d.filter)
	}

	form := huh.NewSelect[string]().
		Title(title).
		Options(options...).
		Value(&d.selected).
		Height(20)

	err := form.Run()
	if err != nil {
		return err
	}

	switch d.selected {
	case "cancel":
		return ErrCanceled
	case "rescan":
		return ErrNewScanRequired
	case "filter":
		return d.Filter()
	case "prev_page":
		d.page--
		return d.RunRecur()
	case "next_page":
		d.page++
		return d.RunRecur()
	case "page_info":
		return d.RunRecur()
	default:
		return nil
	}
}

func (d *DeviceSelector) Filter() error {
	var newFilter string

	form := huh.NewInput().
		Title("Filter devices (by name, address or board):").
		Value(&newFilter).
		Placeholder(d.filter)

	err := form.Run()
	if err != nil {
		return d.RunRecur()
	}

	d.filter = strings.TrimSpace(newFilter)
	d.page = 0
	return d.RunRecur()
}

// SelectPort asks for the OTA port, prefilled with the board default.
func (d *DeviceSelector) SelectPort(device *DeviceRecord) (int, error) {
	value := ""
	if port := DefaultPort(device.Metadata); port != 0 {
		value = strconv.Itoa(port)
	}

	form := huh.NewInput().
		Title(fmt.Sprintf("OTA port for %s:", device.Name)).
		Value(&value).
		Validate(func(s string) error {
			_, err := ParsePort(s)
			return err
		})

	if err := form.Run(); err != nil {
		return 0, err
	}

	return ParsePort(value)
}

func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || port < 1 || port > 65535 {
		return 0, ErrInvalidPort
	}
	return port, nil
}

// DefaultPort guesses the OTA port from the advertised board, 0 when the
// board is unknown.
func DefaultPort(metadata map[string]string) int {
	board := strings.ToLower(metadata["board"])
	switch {
	case strings.Contains(board, "nodemcuv2"), strings.Contains(board, "esp8266"):
		return 8266
	case strings.Contains(board, "esp32"):
		return 3232
	default:
		return 0
	}
}
