package introspection

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rsbus/rsbus/protocol"
)

// machineIDFiles are the locations a stable host identifier is read
// from, in order of preference.
var machineIDFiles = []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}

// hostID returns a stable identifier for this machine. When no
// machine-id file is readable the hostname serves as a weaker fallback.
func hostID() string {
	for _, path := range machineIDFiles {
		if id := readFirstLine(path); id != "" {
			return id
		}
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

func readFirstLine(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(string(raw), "\n")
	return strings.TrimSpace(line)
}

func hostInfo() *protocol.HostInfo {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &protocol.HostInfo{
		ID:              hostID(),
		Hostname:        hostname,
		MachineType:     runtime.GOARCH,
		SoftwareType:    runtime.GOOS,
		SoftwareVersion: readFirstLine("/proc/sys/kernel/osrelease"),
	}
}

// processFallbackStart approximates the process start when /proc is not
// available; it is the time this package was initialized.
var processFallbackStart = time.Now()

func processInfo() *protocol.ProcessInfo {
	info := &protocol.ProcessInfo{
		ID:          strconv.Itoa(os.Getpid()),
		ProgramName: filepath.Base(os.Args[0]),
		StartTime:   uint64(processFallbackStart.UnixMicro()),
	}
	if len(os.Args) > 1 {
		info.CommandlineArguments = append(info.CommandlineArguments, os.Args[1:]...)
	}

	stat, err := os.ReadFile("/proc/self/stat")
	if err != nil {
		return info
	}
	ticks, ok := startTicksFromStat(string(stat))
	if !ok {
		return info
	}
	btime, ok := btimeFromProcStat(readProcStat())
	if !ok {
		return info
	}
	// starttime is in clock ticks since boot; the kernel tick rate is
	// 100 Hz on the platforms this runs on.
	const hz = 100
	startMicros := btime*1_000_000 + ticks*1_000_000/hz
	info.StartTime = uint64(startMicros)
	return info
}

func readProcStat() string {
	raw, err := os.ReadFile("/proc/stat")
	if err != nil {
		return ""
	}
	return string(raw)
}

// startTicksFromStat extracts field 22 (starttime) from a
// /proc/<pid>/stat line. The comm field may contain spaces and is
// skipped via its closing parenthesis.
func startTicksFromStat(stat string) (int64, bool) {
	end := strings.LastIndexByte(stat, ')')
	if end < 0 || end+2 > len(stat) {
		return 0, false
	}
	fields := strings.Fields(stat[end+2:])
	// Field 22 overall; the first two (pid, comm) are gone already.
	const index = 22 - 3
	if len(fields) <= index {
		return 0, false
	}
	ticks, err := strconv.ParseInt(fields[index], 10, 64)
	if err != nil {
		return 0, false
	}
	return ticks, true
}

// btimeFromProcStat extracts the boot time (seconds since the epoch)
// from /proc/stat content.
func btimeFromProcStat(content string) (int64, bool) {
	for _, line := range strings.Split(content, "\n") {
		if rest, ok := strings.CutPrefix(line, "btime "); ok {
			v, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
			if err != nil {
				return 0, false
			}
			return v, true
		}
	}
	return 0, false
}
