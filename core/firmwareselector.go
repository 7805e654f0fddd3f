package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/huh"
)

const FirmwareExt = ".bin"

// FirmwareSelector browses dir for one firmware image. Only directories and
// .bin files are listed unless ShowAll is set.
type FirmwareSelector struct {
	selected string
	dir      string
	filter   string
	page     int
	ShowAll  bool
	Selected string
}

func NewFirmwareSelector(dir string) *FirmwareSelector {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return &FirmwareSelector{dir: abs}
}

func (f *FirmwareSelector) filteredEntries() ([]os.DirEntry, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}

	filtered := make([]os.DirEntry, 0, len(entries))
	filterLower := strings.ToLower(f.filter)
	for _, entry := range entries {
		name := strings.ToLower(entry.Name())
		if !entry.IsDir() && !f.ShowAll && filepath.Ext(name) != FirmwareExt {
			continue
		}
		if f.filter != "" && !strings.Contains(name, filterLower) {
			continue
		}
		filtered = append(filtered, entry)
	}

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].IsDir() != filtered[j].IsDir() {
			return filtered[i].IsDir()
		}
		return strings.ToLower(filtered[i].Name()) < strings.ToLower(filtered[j].Name())
	})

	return filtered, nil
}

// Select runs the browser and returns the chosen image path.
func (f *FirmwareSelector) Select() (string, error) {
	f.Selected = ""
	if err := f.RunRecur(); err != nil {
		return "", err
	}
	return f.Selected, nil
}

func (f *FirmwareSelector) RunRecur() error {
	entries, err := f.filteredEntries()
	if err != nil {
		return err
	}

	totalItems := len(entries)
	totalPages := (totalItems + PAGESIZE - 1) / PAGESIZE
	if totalPages == 0 {
		totalPages = 1
	}

	if f.page < 0 {
		f.page = 0
	}

	var options []huh.Option[string]

	if f.dir != "/" {
		options = append(options, huh.NewOption("../", filepath.Dir(f.dir)))
	}

	filterText := "Filter files"
	if f.filter != "" {
		filterText = fmt.Sprintf("Filter: '%s'", f.filter)
	}
	options = append(options, huh.NewOption(filterText, "filter"))

	if totalPages > 1 {
		pageInfo := fmt.Sprintf("Page %d of %d (%d items)", f.page+1, totalPages, totalItems)
		options = append(options, huh.NewOption(pageStyle.Render(pageInfo), "page_info"))

		if f.page > 0 {
			options = append(options, huh.NewOption("<-", "prev_page"))
		}
		if f.page < totalPages-1 {
			options = append(options, huh.NewOption("->", "next_page"))
		}
	}

	start := f.page * PAGESIZE
	end := min(start+PAGESIZE, len(entries))

	for i := start; i < end; i++ {
		entry := entries[i]
		path := filepath.Join(f.dir, entry.Name())
		name := entry.Name()

		if entry.IsDir() {
			name = dirStyle.Render(name + "/")
		} else if filepath.Ext(strings.ToLower(name)) == FirmwareExt {
			name = selectedStyle.Render(name)
		}

		options = append(options, huh.NewOption(name, path))
	}

	options = append(options, huh.NewOption("Cancel", "cancel"))

	title := fmt.Sprintf("Choose a firmware image in %s:", f.dir)
	if f.filter != "" {
		title += fmt.Sprintf(" [Filter: %s]", f.filter)
	}

	form := huh.NewSelect[string]().
		Title(title).
		Options(options...).
		Value(&f.selected).
		Height(20)

	err = form.Run()
	if err != nil {
		return err
	}

	switch f.selected {
	case "cancel":
		return ErrCanceled
	case "filter":
		if err := f.Filter(); err != nil {
			return err
		}
		return f.RunRecur()
	case "prev_page":
		f.page--
		return f.RunRecur()
	case "next_page":
		f.page++
		return f.RunRecur()
	case "page_info":
		return f.RunRecur()
	default:
		return f.Selection()
	}
}

func (f *FirmwareSelector) Filter() error {
	var newFilter string

	form := huh.NewInput().
		Title("Filter:").
		Value(&newFilter).
		Placeholder(f.filter)

	err := form.Run()
	if err != nil {
		return err
	}

	f.filter = strings.TrimSpace(newFilter)
	f.page = 0
	return nil
}

// Selection descends into directories and stops on the first file.
func (f *FirmwareSelector) Selection() error {
	stat, err := os.Stat(f.selected)
	if err != nil {
		return f.RunRecur()
	}

	if stat.IsDir() {
		f.dir = f.selected
		f.page = 0
		f.filter = ""
		return f.RunRecur()
	}

	f.Selected = f.selected
	return nil
}
