package ssh

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	gossh "golang.org/x/crypto/ssh"

	"aquaagent/internal/config"
	"aquaagent/internal/logging"
)

// Session is a persistent interactive shell on the remote host. State
// (working directory, environment, nested shells entered via pre_execute)
// survives between commands, which also means the model can answer a
// pending y/n prompt by sending the answer as its next command.
type Session struct {
	cfg config.SSHConfig

	mu       sync.Mutex
	client   *gossh.Client
	shell    *gossh.Session
	stdin    io.Writer
	out      chan string
	attached bool
}

const (
	readBufferSize = 32 * 1024
	pollInterval   = 200 * time.Millisecond
	bannerWait     = 1 * time.Second
	followWindow   = 1500 * time.Millisecond
	nudgeAfter     = 15 * time.Second
	progressGrace  = 3 * time.Minute
)

// NewSession creates a session for the configured host. No connection is
// made until the first command runs.
func NewSession(cfg config.SSHConfig) *Session {
	return &Session{cfg: cfg}
}

// connectTimeout returns the dial timeout.
func (s *Session) connectTimeout() time.Duration {
	if d, err := time.ParseDuration(s.cfg.ConnectTimeout); err == nil && d > 0 {
		return d
	}
	return 10 * time.Second
}

// commandTimeout returns the completion timeout for a command. Package
// installs and other downloads get double the base timeout; progress
// output extends it further at runtime.
func (s *Session) commandTimeout(command string) time.Duration {
	base := 30 * time.Second
	if d, err := time.ParseDuration(s.cfg.CommandTimeout); err == nil && d > 0 {
		base = d
	}
	if isSudoCommand(command) || isDownloadCommand(command) || isAptCommand(command) {
		return 2 * base
	}
	return base
}

// maxOutputLines returns the output tail limit.
func (s *Session) maxOutputLines() int {
	if s.cfg.MaxOutputLines > 0 {
		return s.cfg.MaxOutputLines
	}
	return 200
}

// Connect dials the host and starts the interactive shell.
func (s *Session) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked()
}

func (s *Session) connectLocked() error {
	if s.attached {
		return nil
	}

	auth, err := s.authMethods()
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	clientCfg := &gossh.ClientConfig{
		User: s.cfg.User,
		Auth: auth,
		// Mirrors ssh -o StrictHostKeyChecking=no; the target host comes
		// from the operator's own config.
		HostKeyCallback: gossh.InsecureIgnoreHostKey(),
		Timeout:         s.connectTimeout(),
	}

	client, err := gossh.Dial("tcp", addr, clientCfg)
	if err != nil {
		logging.Get(logging.CategorySSH).Error("Connection to %s failed: %v", addr, err)
		return fmt.Errorf("ssh connect to %s failed: %w", addr, err)
	}

	shell, err := client.NewSession()
	if err != nil {
		client.Close()
		return fmt.Errorf("failed to open session: %w", err)
	}

	modes := gossh.TerminalModes{
		gossh.ECHO:          1,
		gossh.TTY_OP_ISPEED: 14400,
		gossh.TTY_OP_OSPEED: 14400,
	}
	if err := shell.RequestPty("xterm", 40, 120, modes); err != nil {
		shell.Close()
		client.Close()
		return fmt.Errorf("failed to request pty: %w", err)
	}

	stdin, err := shell.StdinPipe()
	if err != nil {
		shell.Close()
		client.Close()
		return fmt.Errorf("failed to open stdin: %w", err)
	}
	stdout, err := shell.StdoutPipe()
	if err != nil {
		shell.Close()
		client.Close()
		return fmt.Errorf("failed to open stdout: %w", err)
	}

	if err := shell.Shell(); err != nil {
		shell.Close()
		client.Close()
		return fmt.Errorf("failed to start shell: %w", err)
	}

	s.client = client
	s.shell = shell
	s.attachLocked(stdin, stdout)

	logging.SSH("Connected to %s as %s", addr, s.cfg.User)

	s.mu.Unlock()
	banner := s.collect(bannerWait)
	s.mu.Lock()
	if banner != "" {
		logging.SSHDebug("Shell banner: %q", tailLines(stripANSI(banner), 3))
	}

	return nil
}

// attachLocked wires the session to a stdin writer and stdout reader and
// starts the reader goroutine. Split out so tests can attach pipes.
func (s *Session) attachLocked(stdin io.Writer, stdout io.Reader) {
	out := make(chan string, 64)
	s.stdin = stdin
	s.out = out
	s.attached = true

	go func() {
		defer close(out)
		buf := make([]byte, readBufferSize)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				out <- string(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()
}

// authMethods builds the auth chain: key file first when configured, then
// password, with keyboard-interactive answering the password too.
func (s *Session) authMethods() ([]gossh.AuthMethod, error) {
	var methods []gossh.AuthMethod

	if s.cfg.KeyFile != "" {
		keyData, err := os.ReadFile(s.cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}
		signer, err := gossh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse key file: %w", err)
		}
		methods = append(methods, gossh.PublicKeys(signer))
	}

	if s.cfg.Password != "" {
		password := s.cfg.Password
		methods = append(methods, gossh.Password(password))
		methods = append(methods, gossh.KeyboardInteractive(
			func(name, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = password
				}
				return answers, nil
			}))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("ssh requires a password or key_file")
	}
	return methods, nil
}

// Close tears down the shell and the connection.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	var err error
	if s.shell != nil {
		s.shell.Close()
		s.shell = nil
	}
	if s.client != nil {
		err = s.client.Close()
		s.client = nil
	}
	s.attached = false
	s.stdin = nil
	return err
}

// Reset tears the session down and builds a fresh one, re-running the
// configured pre_execute commands. Used when the remote shell is stuck.
func (s *Session) Reset(ctx context.Context) error {
	logging.SSH("Resetting session to %s", s.cfg.Host)
	s.Close()
	if err := s.Connect(); err != nil {
		return err
	}
	return s.PreExecute(ctx)
}

// PreExecute runs the configured setup commands, e.g. entering a docker
// container that hosts the managed system.
func (s *Session) PreExecute(ctx context.Context) error {
	for _, command := range s.cfg.PreExecute {
		logging.SSH("pre_execute: %s", command)
		out, err := s.Run(ctx, command)
		if err != nil {
			return fmt.Errorf("pre_execute %q failed: %w", command, err)
		}
		logging.SSHDebug("pre_execute output: %s", tailLines(out, 5))
	}
	return nil
}

// Run executes a command in the interactive shell and waits for it to
// complete, returning the ANSI-stripped, tail-limited output.
func (s *Session) Run(ctx context.Context, command string) (string, error) {
	s.mu.Lock()
	if !s.attached {
		if err := s.connectLocked(); err != nil {
			s.mu.Unlock()
			return "", err
		}
		preExec := len(s.cfg.PreExecute) > 0
		s.mu.Unlock()
		if preExec {
			if err := s.PreExecute(ctx); err != nil {
				return "", err
			}
		}
	} else {
		s.mu.Unlock()
	}

	timer := logging.StartTimer(logging.CategorySSH, "Run")
	defer timer.Stop()

	s.drain()

	logging.SSH("Executing: %s", command)

	if isFollowCommand(command) {
		return s.runFollow(command)
	}
	return s.runInteractive(ctx, command)
}

// runFollow samples a streaming command for a short window, then sends
// Ctrl-C so the shell comes back.
func (s *Session) runFollow(command string) (string, error) {
	if err := s.send(command + "\n"); err != nil {
		return "", err
	}

	output := s.collect(followWindow)
	s.send("\x03")
	output += s.collect(500 * time.Millisecond)

	return s.finish(output), nil
}

func (s *Session) runInteractive(ctx context.Context, command string) (string, error) {
	if err := s.send(command + "\n"); err != nil {
		return "", err
	}

	timeout := s.commandTimeout(command)
	// Internal buffer is kept larger than the returned tail so prompt
	// detection sees enough context.
	keep := s.maxOutputLines() * 2

	var output string
	passwordSent := false
	progressMode := false
	lockRepeats := 0
	start := time.Now()
	lastChange := start
	lastProgress := start
	lastNudge := start

	tick := time.NewTicker(pollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.finish(output), ctx.Err()

		case part, ok := <-s.out:
			if !ok {
				s.Close()
				return s.finish(output), fmt.Errorf("connection closed")
			}
			output = limitLines(output+part, keep)
			lastChange = time.Now()

			if hasLockWait(part) {
				lockRepeats++
				logging.SSHDebug("Lock contention message (%d)", lockRepeats)
				if lockRepeats >= 3 {
					return s.finish(output + "\n[repeated package lock contention, operator attention needed]"), nil
				}
			}

			if hasProgress(part) {
				if !progressMode {
					logging.SSHDebug("Progress output detected, relaxing timeout")
				}
				progressMode = true
				lastProgress = time.Now()
			}

			clean := stripANSI(output)

			if isEndPager(clean) {
				if isInteractivePrompt(clean) {
					return s.finish(output), nil
				}
				logging.SSHDebug("Pager end reached, sending q")
				s.send("q")
				continue
			}
			if isPagerPrompt(clean) {
				logging.SSHDebug("Pager prompt, sending space")
				s.send(" ")
				continue
			}

			if isInteractivePrompt(clean) {
				// Return the pending prompt; the model can answer with
				// its next command.
				logging.SSH("Interactive prompt detected, returning to caller")
				return s.finish(output), nil
			}

			if isPasswordPrompt(clean) {
				if s.cfg.Password != "" && !passwordSent {
					logging.SSH("Password prompt detected, sending password")
					s.send(s.cfg.Password + "\n")
					passwordSent = true
				}
				// A password prompt never completes a command.
				continue
			}

			if idx := findPrompt(clean); idx >= 0 {
				if isAptCommand(command) && aptStillDownloading(clean) {
					logging.SSHDebug("Prompt matched but apt download in flight, waiting")
					continue
				}
				return s.finish(clean[:idx]), nil
			}

		case <-tick.C:
			now := time.Now()
			quiet := now.Sub(lastChange)
			clean := stripANSI(output)

			// apt-get update often ends without a clean prompt match;
			// the Done markers plus a quiet period are good enough.
			if isAptUpdateCommand(command) && quiet > 2*time.Second && aptUpdateDone(clean) {
				return s.finish(clean), nil
			}

			if now.Sub(start) > timeout {
				if progressMode && now.Sub(lastProgress) < progressGrace {
					continue
				}
				logging.SSH("Command timed out after %v: %s", now.Sub(start).Round(time.Second), command)
				return s.finish(output + "\n[command timed out]"), nil
			}

			if quiet > nudgeAfter && !progressMode && now.Sub(lastNudge) > nudgeAfter {
				logging.SSHDebug("No output for %v, sending newline nudge", quiet.Round(time.Second))
				s.send("\n")
				lastNudge = now
			}
		}
	}
}

// send writes raw bytes to the shell's stdin.
func (s *Session) send(data string) error {
	s.mu.Lock()
	stdin := s.stdin
	s.mu.Unlock()
	if stdin == nil {
		return fmt.Errorf("session not connected")
	}
	_, err := io.WriteString(stdin, data)
	if err != nil {
		logging.Get(logging.CategorySSH).Error("Write failed: %v", err)
	}
	return err
}

// drain empties any buffered output left over from a previous command.
func (s *Session) drain() {
	for {
		select {
		case part, ok := <-s.out:
			if !ok {
				return
			}
			logging.SSHDebug("Drained stale output: %d bytes", len(part))
		default:
			return
		}
	}
}

// collect reads whatever arrives within the window.
func (s *Session) collect(window time.Duration) string {
	var sb strings.Builder
	deadline := time.After(window)
	for {
		select {
		case part, ok := <-s.out:
			if !ok {
				return sb.String()
			}
			sb.WriteString(part)
		case <-deadline:
			return sb.String()
		}
	}
}

// finish normalizes command output: ANSI stripped, newlines normalized
// (progress bars redraw lines with bare \r), tail limited, trimmed.
func (s *Session) finish(output string) string {
	clean := stripANSI(output)
	clean = strings.ReplaceAll(clean, "\r\n", "\n")
	clean = strings.ReplaceAll(clean, "\r", "\n")
	clean = limitLines(clean, s.maxOutputLines())
	return strings.TrimSpace(clean)
}
