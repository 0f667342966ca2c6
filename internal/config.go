package internal

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}

// List splits a comma separated setting, dropping blanks.
func List(str string) []string {
	return lo.FilterMap(strings.Split(str, ","), func(item string, _ int) (string, bool) {
		item = strings.TrimSpace(item)
		return item, item != ""
	})
}
