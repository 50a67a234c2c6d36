// Package ssh provides the remote command execution tool. Commands run in
// a persistent interactive shell so state (cwd, environment, su sessions)
// survives between calls. Completion is detected by watching the output
// stream for shell prompts, with pagers answered and password prompts
// autofilled along the way.
package ssh

import (
	"regexp"
	"strings"
)

// promptPatterns detect a shell prompt at the end of output, ordered from
// most specific to most general.
var promptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)\([^)]+\) [^\s@]+@[^\s:]+:[^\s]+[#$]\s*$`), // (env) user@host:path$
	regexp.MustCompile(`(?m)[^\s@]+@[^\s:]+:[^\s]+[#$]\s*$`),           // user@host:path$
	regexp.MustCompile(`(?m)\[[^\]]+\][#$]\s*$`),                       // [user@host dir]$
	regexp.MustCompile(`(?m)^[#$>]\s*$`),                               // bare $ / # / >
}

// passwordPatterns match password prompts. A trailing password prompt must
// never count as command completion.
var passwordPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)password.*for.*:\s*$`),
	regexp.MustCompile(`(?i)\[sudo\].*password.*:\s*$`),
	regexp.MustCompile(`(?i)password:\s*$`),
	regexp.MustCompile(`(?i)passphrase.*:\s*$`),
}

// pagerPatterns match pager prompts (less, more, systemctl status output).
var pagerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`--More--`),
	regexp.MustCompile(`\(more\)`),
	regexp.MustCompile(`Press q to quit`),
	regexp.MustCompile(`Press RETURN to continue`),
	regexp.MustCompile(`lines \d+-\d+`),
}

// endPagerPattern is the (END) marker less prints at the end of content.
var endPagerPattern = regexp.MustCompile(`\(END\)\s*$`)

// interactivePatterns match prompts that need a human decision. The tool
// returns the pending prompt to the model instead of answering it.
var interactivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[Y/n\]\s*$`),
	regexp.MustCompile(`\[y/N\]\s*$`),
	regexp.MustCompile(`\(y/n\)\??\s*$`),
	regexp.MustCompile(`\(y/\[n\]\)\??\s*$`),
	regexp.MustCompile(`\(yes/no\)\??\s*$`),
	regexp.MustCompile(`Do you want to continue\?`),
	regexp.MustCompile(`Do you wish to continue\?`),
	regexp.MustCompile(`Do you accept the license terms\?`),
	regexp.MustCompile(`please answer (yes|no)`),
	regexp.MustCompile(`Proceed \(\[y\]/n\)\?`),
	regexp.MustCompile(`(?i)press any key to continue`),
	regexp.MustCompile(`Press \[?ENTER\]?( to continue)?`),
	regexp.MustCompile(`(?i)please select an option`),
}

// lockPatterns match apt/dpkg lock contention messages. Repeats abort the
// command so the agent can report the conflict instead of hanging.
var lockPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Waiting for cache lock:`),
	regexp.MustCompile(`Could not get lock /var/lib/dpkg/lock`),
	regexp.MustCompile(`Could not get lock /var/lib/apt/lists/lock`),
}

// progressPatterns match download/progress output. While progress keeps
// arriving the command timeout is relaxed.
var progressPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\|\s*\d+%`),
	regexp.MustCompile(`\d+%\s*\|`),
	regexp.MustCompile(`\d+%\s*\[`),
	regexp.MustCompile(`\[#+[>\s]*\]`),
	regexp.MustCompile(`(?i)downloading.*\d+%`),
	regexp.MustCompile(`(?i)progress.*\d+%`),
	regexp.MustCompile(`(?i)installing.*\d+%`),
	regexp.MustCompile(`\d+\.\d+ [MKG]B`),
	// Docker layer operations
	regexp.MustCompile(`[a-f0-9]{6,}: (Downloading|Pulling|Waiting|Verifying|Extracting|Download complete|Pull complete)`),
	regexp.MustCompile(`Pulling from `),
	// Git clone/checkout progress
	regexp.MustCompile(`(remote:\s+)?(Counting|Compressing|Receiving) objects:`),
	regexp.MustCompile(`Resolving deltas:`),
	regexp.MustCompile(`Unpacking objects:`),
	regexp.MustCompile(`Checking out files:`),
}

// aptDoneMarkers signal apt-get update completion.
var aptDoneMarkers = []string{
	"Reading package lists... Done",
	"Building dependency tree... Done",
	"Reading state information... Done",
}

// aptBusyMarkers indicate a download is still running even though a prompt
// pattern matched somewhere in the buffer.
var aptBusyMarkers = []string{"%]", "MB/s", "Get:", "Fetched", "Waiting for headers"}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\a]*\a|\x1b[=>]`)

// stripANSI removes terminal escape sequences from output.
func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// matchesAny reports whether any pattern matches s.
func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// findPrompt returns the start index of the trailing shell prompt in s, or
// -1 when no prompt is present or the trailing line is a password prompt.
func findPrompt(s string) int {
	if isPasswordPrompt(s) {
		return -1
	}
	for _, p := range promptPatterns {
		locs := p.FindAllStringIndex(s, -1)
		if len(locs) == 0 {
			continue
		}
		// Only a prompt at the very end of the buffer counts.
		loc := locs[len(locs)-1]
		if strings.TrimSpace(s[loc[1]:]) == "" {
			return loc[0]
		}
	}
	return -1
}

// isPasswordPrompt reports whether the output currently ends with a
// password prompt.
func isPasswordPrompt(s string) bool {
	return matchesAny(passwordPatterns, lastLine(s))
}

// isInteractivePrompt reports whether the output tail is waiting for a
// human decision.
func isInteractivePrompt(s string) bool {
	return matchesAny(interactivePatterns, tailLines(s, 5))
}

// isPagerPrompt reports whether the output currently ends on a pager
// waiting for a keypress. Only the last line counts: a --More-- higher up
// the buffer has already been answered. (END) is handled separately
// because it gets q, not space.
func isPagerPrompt(s string) bool {
	return matchesAny(pagerPatterns, lastLine(s))
}

// isEndPager reports whether less has reached the end of content.
func isEndPager(s string) bool {
	return endPagerPattern.MatchString(strings.TrimRight(s, " "))
}

// hasProgress reports whether the chunk looks like download/progress
// output.
func hasProgress(chunk string) bool {
	return matchesAny(progressPatterns, chunk)
}

// hasLockWait reports whether the chunk contains an apt/dpkg lock message.
func hasLockWait(chunk string) bool {
	return matchesAny(lockPatterns, chunk)
}

// aptUpdateDone reports whether the tail of the output carries all the
// apt-get update completion markers with no download activity after them.
func aptUpdateDone(s string) bool {
	tail := tailLines(s, 20)
	for _, m := range aptDoneMarkers {
		if !strings.Contains(tail, m) {
			return false
		}
	}
	for _, m := range aptBusyMarkers {
		if strings.Contains(tail, m) {
			return false
		}
	}
	return true
}

// aptStillDownloading reports whether recent output shows an apt download
// in flight.
func aptStillDownloading(s string) bool {
	tail := tailLines(s, 10)
	for _, m := range aptBusyMarkers {
		if strings.Contains(tail, m) {
			return true
		}
	}
	return false
}

// lastLine returns the final non-empty line of s.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\r\n "), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimRight(lines[len(lines)-1], "\r")
}

// tailLines returns the last n lines of s joined with newlines.
func tailLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// limitLines keeps only the last max lines of text.
func limitLines(text string, max int) string {
	if text == "" || max <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) <= max {
		return text
	}
	return strings.Join(lines[len(lines)-max:], "\n")
}

// Command classification, used to pick timeouts and handling mode.

var downloadKeywords = []string{
	"apt", "apt-get", "yum", "dnf", "pip", "conda", "npm",
	"wget", "curl", "install", "update", "upgrade", "git", "clone",
}

func isSudoCommand(command string) bool {
	return strings.Contains(command, "sudo ")
}

func isDownloadCommand(command string) bool {
	lower := strings.ToLower(command)
	for _, kw := range downloadKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func isAptCommand(command string) bool {
	return strings.Contains(command, "apt-get") || strings.Contains(command, "apt ")
}

func isAptUpdateCommand(command string) bool {
	return strings.Contains(command, "apt-get update") || strings.Contains(command, "apt update")
}

// isFollowCommand matches commands that stream forever; they get a short
// sample window and a Ctrl-C instead of prompt detection.
func isFollowCommand(command string) bool {
	return strings.Contains(command, "docker logs -f") ||
		strings.Contains(command, "docker logs --follow") ||
		strings.Contains(command, "tail -f")
}
