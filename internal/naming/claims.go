package naming

import (
	"strconv"
	"strings"
	"sync"

	ioutils "github.com/wintopic/iDanmu-Speed/internal/io"
)

// Claims tracks which task owns each output stem within one run, so two
// tasks that render the same name do not overwrite each other's file.
//
// Stems compare case-insensitively. The first task to claim a stem keeps it;
// later tasks get "<stem>_<index>", or "<stem>_<index>_<n>" when that name
// is itself owned by another task.
type Claims struct {
	mu     sync.Mutex
	owners map[string]int
}

// NewClaims returns an empty claim table.
func NewClaims() *Claims {
	return &Claims{owners: make(map[string]int)}
}

// Claim reserves stem for the task at index and returns the stem to use.
func (c *Claims) Claim(stem string, index int) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := strings.ToLower(stem)
	owner, taken := c.owners[key]
	if !taken || owner == index {
		c.owners[key] = index
		return stem
	}

	base := "_" + strconv.Itoa(index)
	for n := 1; ; n++ {
		suffix := base
		if n > 1 {
			suffix += "_" + strconv.Itoa(n)
		}
		alt := withSuffix(stem, suffix)
		key := strings.ToLower(alt)
		if owner, taken := c.owners[key]; !taken || owner == index {
			c.owners[key] = index
			return alt
		}
	}
}

// withSuffix appends suffix to stem, trimming stem so the result stays
// within the file name limit.
func withSuffix(stem, suffix string) string {
	runes := []rune(stem)
	if limit := ioutils.MaxFileNameLength - len([]rune(suffix)); len(runes) > limit {
		runes = runes[:max(limit, 0)]
	}
	return ioutils.SanitizeFileName(string(runes) + suffix)
}
