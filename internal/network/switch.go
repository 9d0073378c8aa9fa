package network

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Access ports on the lab switch all live on the same line card.
const interfacePrefix = "Twe1/0/"

const dialTimeout = 10 * time.Second

// Manager configures the access switch for provisioned batches: one VLAN per
// batch, all mapped server ports assigned to it. Configuration is
// deterministic, so re-running a batch reuses the same VLAN ID.
type Manager struct {
	cfg *Config
}

func NewManager(cfg *Config) *Manager {
	return &Manager{cfg: cfg}
}

// Configure creates the batch VLAN and assigns the ports of every mapped
// resource to it. Resources without a port mapping are skipped with a
// warning; when nothing maps, the whole call is a no-op.
func (m *Manager) Configure(ctx context.Context, username string, resources []string) error {
	logger := log.FromContext(ctx).WithName("network")

	if len(resources) == 0 {
		logger.Info("no resources to configure, skipping switch configuration")
		return nil
	}

	ports := m.mappedPorts(ctx, resources)
	if len(ports) == 0 {
		logger.Info("no port mappings found for any resource, skipping switch configuration")
		return nil
	}

	vlanID := deriveVLANID(m.cfg.VLAN.BaseID, username, resources)
	vlanName := fmt.Sprintf("%s_%s_%d", m.cfg.VLAN.NamePrefix, username, time.Now().Unix())
	vlanDescription := fmt.Sprintf("%s - User: %s, Resources: %d", m.cfg.VLAN.DescriptionPrefix, username, len(ports))

	script := configScript(vlanID, vlanName, vlanDescription, ports)
	output, err := m.runScript(ctx, script)
	if err != nil {
		return fmt.Errorf("configure switch %s: %w", m.cfg.Switch.Host, err)
	}

	logger.Info("configured switch for batch", "vlan", vlanID, "vlanName", vlanName, "ports", ports)
	logger.V(1).Info("switch output", "output", output)
	return nil
}

func (m *Manager) mappedPorts(ctx context.Context, resources []string) []int {
	logger := log.FromContext(ctx).WithName("network")

	ports := make([]int, 0, len(resources))
	for _, name := range resources {
		port, ok := m.cfg.ServerPortMapping[name]
		if !ok {
			logger.Info("no port mapping for resource, skipping", "resource", name)
			continue
		}
		ports = append(ports, port)
	}
	return ports
}

// runScript executes the command script over a single interactive SSH shell,
// the way a network engineer would paste it.
func (m *Manager) runScript(ctx context.Context, commands []string) (string, error) {
	addr := net.JoinHostPort(m.cfg.Switch.Host, strconv.Itoa(m.cfg.Switch.Port))
	clientCfg := &ssh.ClientConfig{
		User: m.cfg.Switch.Username,
		Auth: []ssh.AuthMethod{ssh.Password(m.cfg.Switch.Password)},
		// Switch management LAN; host keys are not pinned.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	}

	conn, err := ssh.Dial("tcp", addr, clientCfg)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	session, err := conn.NewSession()
	if err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	// Cisco shells refuse configuration input without a PTY.
	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("vt100", 80, 200, modes); err != nil {
		return "", fmt.Errorf("request pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		return "", fmt.Errorf("open stdin: %w", err)
	}

	var output bytes.Buffer
	session.Stdout = &output
	session.Stderr = &output

	if err := session.Shell(); err != nil {
		return "", fmt.Errorf("start shell: %w", err)
	}

	for _, cmd := range commands {
		fmt.Fprintln(stdin, cmd)
	}
	fmt.Fprintln(stdin, "exit")
	stdin.Close()

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		conn.Close()
		return output.String(), ctx.Err()
	case err := <-done:
		if err != nil {
			return output.String(), fmt.Errorf("shell session: %w", err)
		}
		return output.String(), nil
	}
}

// deriveVLANID hashes the username with the sorted resource names into the
// 900-wide band above the base ID. Sorting makes the ID independent of event
// order, so retries land on the same VLAN.
func deriveVLANID(baseID int, username string, resources []string) int {
	sorted := append([]string(nil), resources...)
	sort.Strings(sorted)

	sum := md5.Sum([]byte(username + ":" + strings.Join(sorted, ":")))
	offset := int(binary.BigEndian.Uint16(sum[:2])) % 900

	id := baseID + offset
	if id > 4094 {
		id = (id % 4094) + 1
	}
	return id
}

// configScript assembles the full command sequence: VLAN definition, port
// assignment, then persisting the running config.
func configScript(vlanID int, name, description string, ports []int) []string {
	commands := []string{
		"configure terminal",
		fmt.Sprintf("vlan %d", vlanID),
		"name " + name,
		"description " + description,
		"exit",
		interfaceCommand(ports),
		"switchport mode access",
		fmt.Sprintf("switchport access vlan %d", vlanID),
		"no shutdown",
		"exit",
		"end",
		"write memory",
	}
	return commands
}

// interfaceCommand selects a single interface or an interface range with
// consecutive ports collapsed, e.g. "interface range Twe1/0/3-5,Twe1/0/7".
func interfaceCommand(ports []int) string {
	if len(ports) == 1 {
		return fmt.Sprintf("interface %s%d", interfacePrefix, ports[0])
	}
	return "interface range " + strings.Join(portRangeSegments(ports), ",")
}

func portRangeSegments(ports []int) []string {
	sorted := append([]int(nil), ports...)
	sort.Ints(sorted)

	var segments []string
	start, end := sorted[0], sorted[0]

	flush := func() {
		if start == end {
			segments = append(segments, fmt.Sprintf("%s%d", interfacePrefix, start))
		} else {
			segments = append(segments, fmt.Sprintf("%s%d-%d", interfacePrefix, start, end))
		}
	}

	for _, port := range sorted[1:] {
		if port == end+1 {
			end = port
			continue
		}
		flush()
		start, end = port, port
	}
	flush()

	return segments
}
