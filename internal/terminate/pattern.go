package terminate

import (
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// matchingPIDs lists pids of running processes whose full command line
// contains pattern, via pgrep -f. Our own pid is excluded so a pattern that
// overlaps the supervisor's command line cannot make it kill itself. If pgrep
// is missing or fails the sweep returns nothing; pattern cleanup is
// best-effort.
func matchingPIDs(pattern string) []int {
	out, err := exec.Command("pgrep", "-f", pattern).Output()
	if err != nil {
		// pgrep exits 1 on no match; anything else means the capability is
		// unavailable. Either way there is nothing to sweep.
		return nil
	}
	self := os.Getpid()
	var pids []int
	for _, tok := range strings.Fields(string(out)) {
		pid, err := strconv.Atoi(tok)
		if err != nil || pid <= 0 || pid == self {
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}
