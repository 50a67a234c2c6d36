package ssh

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindPrompt(t *testing.T) {
	tests := []struct {
		name   string
		output string
		found  bool
	}{
		{"user prompt", "ls\nfile1 file2\nuser@host:~$ ", true},
		{"root prompt", "done\nroot@web01:/etc# ", true},
		{"env prompt", "(venv) deploy@app:~/srv$ ", true},
		{"bracket prompt", "output\n[admin@db01 ~]$ ", true},
		{"bare prompt line", "output\n$ ", true},
		{"no prompt", "still running...\n", false},
		{"prompt mid-output", "user@host:~$ ls\nrunning", false},
		{"password prompt is not completion", "[sudo] password for deploy: ", false},
		{"plain password prompt", "Password: ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := findPrompt(tt.output)
			if tt.found {
				assert.GreaterOrEqual(t, idx, 0)
			} else {
				assert.Equal(t, -1, idx)
			}
		})
	}
}

func TestFindPromptStripsTrailingPromptOnly(t *testing.T) {
	out := "user@host:~$ cat notes\nline one\nuser@host:~$ "
	idx := findPrompt(out)
	assert.Greater(t, idx, 0)
	assert.Equal(t, "user@host:~$ cat notes\nline one\n", out[:idx])
}

func TestIsPasswordPrompt(t *testing.T) {
	assert.True(t, isPasswordPrompt("[sudo] password for deploy: "))
	assert.True(t, isPasswordPrompt("deploy@10.0.0.5's password: "))
	assert.True(t, isPasswordPrompt("Password: "))
	assert.False(t, isPasswordPrompt("password changed successfully\nuser@host:~$ "))
}

func TestIsInteractivePrompt(t *testing.T) {
	assert.True(t, isInteractivePrompt("After this operation, 5 MB used.\nDo you want to continue? [Y/n] "))
	assert.True(t, isInteractivePrompt("Proceed ([y]/n)? "))
	assert.True(t, isInteractivePrompt("Are you sure? (yes/no) "))
	assert.True(t, isInteractivePrompt("Press [ENTER] to continue or Ctrl-c to cancel"))
	assert.False(t, isInteractivePrompt("yes, the service is running\nuser@host:~$ "))
}

func TestIsPagerPrompt(t *testing.T) {
	assert.True(t, isPagerPrompt("some output\n--More--"))
	assert.True(t, isPagerPrompt("line\nlines 1-24"))
	assert.False(t, isPagerPrompt("regular output\n"))

	assert.True(t, isEndPager("last line of file\n(END)"))
	assert.False(t, isEndPager("(END) appeared earlier\nmore output"))
}

func TestHasProgress(t *testing.T) {
	assert.True(t, hasProgress("download.tar |  45%"))
	assert.True(t, hasProgress("57% [=====>        ]"))
	assert.True(t, hasProgress("a9a9ebe7ac34: Downloading"))
	assert.True(t, hasProgress("remote: Counting objects: 100%"))
	assert.True(t, hasProgress("Fetched 171.5 MB in 4s"))
	assert.False(t, hasProgress("service restarted"))
}

func TestHasLockWait(t *testing.T) {
	assert.True(t, hasLockWait("Waiting for cache lock: Could not get lock /var/lib/dpkg/lock-frontend"))
	assert.True(t, hasLockWait("E: Could not get lock /var/lib/apt/lists/lock"))
	assert.False(t, hasLockWait("Reading package lists... Done"))
}

func TestAptUpdateDone(t *testing.T) {
	done := strings.Join([]string{
		"Hit:1 http://archive.ubuntu.com/ubuntu noble InRelease",
		"Reading package lists... Done",
		"Building dependency tree... Done",
		"Reading state information... Done",
	}, "\n")
	assert.True(t, aptUpdateDone(done))

	// Still fetching: Done markers present but downloads in flight.
	busy := done + "\nGet:2 http://archive.ubuntu.com/ubuntu noble-updates InRelease"
	assert.False(t, aptUpdateDone(busy))

	assert.False(t, aptUpdateDone("Reading package lists... Done"))
}

func TestAptStillDownloading(t *testing.T) {
	assert.True(t, aptStillDownloading("Get:5 http://archive.ubuntu.com/ubuntu noble/main amd64 nginx"))
	assert.True(t, aptStillDownloading("12.3 MB/s eta 0s"))
	assert.False(t, aptStillDownloading("Setting up nginx (1.24.0) ...\nuser@host:~$ "))
}

func TestStripANSI(t *testing.T) {
	colored := "\x1b[31merror\x1b[0m: failed\x1b[K"
	assert.Equal(t, "error: failed", stripANSI(colored))
	assert.Equal(t, "plain", stripANSI("plain"))
}

func TestLimitLines(t *testing.T) {
	text := strings.Join([]string{"a", "b", "c", "d", "e"}, "\n")
	assert.Equal(t, "d\ne", limitLines(text, 2))
	assert.Equal(t, text, limitLines(text, 10))
	assert.Equal(t, "", limitLines("", 5))
}

func TestCommandClassification(t *testing.T) {
	assert.True(t, isSudoCommand("sudo systemctl restart nginx"))
	assert.False(t, isSudoCommand("systemctl status nginx"))

	assert.True(t, isDownloadCommand("apt-get install -y htop"))
	assert.True(t, isDownloadCommand("git clone https://example.com/repo.git"))
	assert.True(t, isDownloadCommand("pip install requests"))
	assert.False(t, isDownloadCommand("df -h"))

	assert.True(t, isAptUpdateCommand("sudo apt-get update"))
	assert.True(t, isAptUpdateCommand("apt update"))
	assert.False(t, isAptUpdateCommand("apt-get install vim"))

	assert.True(t, isFollowCommand("docker logs -f ragflow-server"))
	assert.True(t, isFollowCommand("docker logs --follow web"))
	assert.True(t, isFollowCommand("tail -f /var/log/syslog"))
	assert.False(t, isFollowCommand("docker logs web"))
}
