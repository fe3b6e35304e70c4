package tunnel

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"

	ncerr "netchain/internal/errors"
)

// defaultKeyNames are tried, in order, from ~/.ssh when no method is
// configured.
var defaultKeyNames = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// authSource is one configured way of proving identity to the gateway.
type authSource struct {
	name  string
	build func() (ssh.AuthMethod, error)
}

// BuildAuthMethods returns the gateway auth methods in the order the
// client offers them: key file, agent, then password and
// keyboard-interactive (both answered from the same prompt).  With none
// configured it falls back to the agent and the usual key files.
func BuildAuthMethods(cfg *SSHConfig) ([]ssh.AuthMethod, error) {
	sources := configuredSources(cfg)
	if len(sources) == 0 {
		if methods := discoverAuth(); len(methods) > 0 {
			return methods, nil
		}
		return nil, fmt.Errorf("%w: no usable key or agent found; "+
			"use --ssh-key, --ssh-password or --ssh-agent", ncerr.ErrAuthFailed)
	}

	methods := make([]ssh.AuthMethod, 0, len(sources)+1)
	for _, src := range sources {
		m, err := src.build()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src.name, err)
		}
		methods = append(methods, m)
	}
	return methods, nil
}

func configuredSources(cfg *SSHConfig) []authSource {
	var out []authSource
	if cfg.KeyPath != "" {
		out = append(out, authSource{"key " + cfg.KeyPath, func() (ssh.AuthMethod, error) {
			return keyFileAuth(cfg.KeyPath)
		}})
	}
	if cfg.UseAgent {
		out = append(out, authSource{"ssh-agent", agentAuth})
	}
	if cfg.PromptPass {
		out = append(out, authSource{"password", func() (ssh.AuthMethod, error) {
			pass, err := promptSecret(fmt.Sprintf("%s@%s's password: ", cfg.User, cfg.Host))
			if err != nil {
				return nil, err
			}
			return ssh.Password(string(pass)), nil
		}})
		out = append(out, authSource{"keyboard-interactive", func() (ssh.AuthMethod, error) {
			return ssh.KeyboardInteractive(answerChallenge), nil
		}})
	}
	return out
}

// answerChallenge prompts once per question.  Echoed questions are
// answered the same way as hidden ones.
func answerChallenge(_, instruction string, questions []string, _ []bool) ([]string, error) {
	if instruction != "" {
		fmt.Fprintln(os.Stderr, instruction)
	}
	answers := make([]string, len(questions))
	for i, q := range questions {
		a, err := promptSecret(q)
		if err != nil {
			return nil, err
		}
		answers[i] = string(a)
	}
	return answers, nil
}

func keyFileAuth(path string) (ssh.AuthMethod, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(pem)
	var missing *ssh.PassphraseMissingError
	if ncerr.As(err, &missing) {
		pass, perr := promptSecret(fmt.Sprintf("Passphrase for %s: ", path))
		if perr != nil {
			return nil, fmt.Errorf("passphrase: %w", perr)
		}
		signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, pass)
	}
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return ssh.PublicKeys(signer), nil
}

func agentAuth() (ssh.AuthMethod, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, ncerr.New("SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, err
	}
	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers), nil
}

// promptSecret reads a line from the terminal without echo.  Tests
// replace it.
var promptSecret = func(label string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, ncerr.New("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, label)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	return secret, err
}

// discoverAuth collects the agent and any readable unencrypted default
// key.  Failures are skipped silently.
func discoverAuth() []ssh.AuthMethod {
	var out []ssh.AuthMethod
	if m, err := agentAuth(); err == nil {
		out = append(out, m)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return out
	}
	var signers []ssh.Signer
	for _, name := range defaultKeyNames {
		pem, err := os.ReadFile(filepath.Join(home, ".ssh", name))
		if err != nil {
			continue
		}
		if s, err := ssh.ParsePrivateKey(pem); err == nil {
			signers = append(signers, s)
		}
	}
	if len(signers) > 0 {
		out = append(out, ssh.PublicKeys(signers...))
	}
	return out
}

// hostKeyCallback verifies gateway keys against known_hosts when strict
// checking is on.  A key that differs from a recorded one is reported
// as ErrHostKeyMismatch.
func hostKeyCallback(cfg *SSHConfig) (ssh.HostKeyCallback, error) {
	if !cfg.StrictHostKey {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // opted out with --strict-hostkey=false
	}

	path := cfg.KnownHosts
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	check, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("known_hosts %s: %w", path, err)
	}

	return func(host string, remote net.Addr, key ssh.PublicKey) error {
		err := check(host, remote, key)
		var ke *knownhosts.KeyError
		if !ncerr.As(err, &ke) {
			return err
		}
		if len(ke.Want) == 0 {
			return fmt.Errorf("%s is not in %s (%s %s)", host, path,
				key.Type(), ssh.FingerprintSHA256(key))
		}
		lines := make([]string, len(ke.Want))
		for i, w := range ke.Want {
			lines[i] = fmt.Sprintf("%s:%d", w.Filename, w.Line)
		}
		return fmt.Errorf("%w for %s: got %s, recorded at %s", ncerr.ErrHostKeyMismatch,
			host, ssh.FingerprintSHA256(key), strings.Join(lines, ", "))
	}, nil
}
