package led

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const sysfsLEDPath = "/sys/class/leds"

// sysfs implements Controller through the kernel LED class. Blinking is
// delegated to the heartbeat trigger.
type sysfs struct {
	root string
	leds map[string]string // name -> sysfs directory
}

func newSysfs(root string, leds map[string]string) *sysfs {
	if root == "" {
		root = sysfsLEDPath
	}
	return &sysfs{root: root, leds: leds}
}

func (s *sysfs) Set(name string, enabled bool, pattern string) error {
	dir, ok := s.leds[name]
	if !ok {
		return fmt.Errorf("LED %q not supported on this board", name)
	}

	ledPath := filepath.Join(s.root, dir)
	if _, err := os.Stat(ledPath); os.IsNotExist(err) {
		return fmt.Errorf("LED %q not found at %s", name, ledPath)
	}

	if pattern != "" {
		trigger := pattern
		switch pattern {
		case PatternSolid:
			trigger = "none"
		case PatternBlink:
			trigger = "heartbeat"
		}
		if err := os.WriteFile(filepath.Join(ledPath, "trigger"), []byte(trigger), 0644); err != nil {
			return fmt.Errorf("failed to set LED trigger: %w", err)
		}
		if pattern == PatternBlink {
			return nil
		}
	}

	brightness := "0"
	if enabled {
		brightness = "1"
	}
	if err := os.WriteFile(filepath.Join(ledPath, "brightness"), []byte(brightness), 0644); err != nil {
		return fmt.Errorf("failed to set LED brightness: %w", err)
	}
	return nil
}

func (s *sysfs) Available() []string {
	names := make([]string, 0, len(s.leds))
	for name := range s.leds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *sysfs) Patterns() []string {
	return []string{PatternSolid, PatternBlink}
}
