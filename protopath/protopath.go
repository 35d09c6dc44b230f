// Package protopath locates the rsb.protocol schema definition files.
//
// Tools that generate bindings or validate wire traffic need the .proto
// files the protocol is defined by. Given the root of a protocol
// checkout, Resolve returns the full path of every schema file. A build
// cache file in the root overrides the static list, so build trees with
// a pregenerated layout can record their own.
package protopath

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SchemaFiles are the schema definition files of the protocol, relative
// to the protocol root, in the order build systems consume them.
var SchemaFiles = []string{
	"rsb/protocol/EventId.proto",
	"rsb/protocol/EventMetaData.proto",
	"rsb/protocol/UserInfo.proto",
	"rsb/protocol/UserTime.proto",
	"rsb/protocol/Cause.proto",
	"rsb/protocol/Notification.proto",
	"rsb/protocol/FragmentedNotification.proto",
	"rsb/protocol/collections/ScopeAndEvents.proto",
	"rsb/protocol/collections/EventsByScopeMap.proto",
	"rsb/protocol/operatingsystem/Host.proto",
	"rsb/protocol/operatingsystem/Process.proto",
	"rsb/protocol/introspection/Hello.proto",
	"rsb/protocol/introspection/Bye.proto",
	"rsb/protocol/introspection/Query.proto",
}

// CacheFile is the per-tree override consulted by Resolve: one schema
// path per line, relative to the root; blank lines and # comments are
// skipped.
const CacheFile = "protopath.cache"

// Paths is the resolved schema location set.
type Paths struct {
	// Root is the protocol root directory.
	Root string
	// Files are the schema files, joined with Root.
	Files []string
}

// Resolve returns the schema paths under root. When root contains a
// CacheFile its content replaces the static list.
func Resolve(root string) (Paths, error) {
	names := SchemaFiles
	cache := filepath.Join(root, CacheFile)
	if _, err := os.Stat(cache); err == nil {
		cached, err := readCache(cache)
		if err != nil {
			return Paths{}, err
		}
		names = cached
	}

	out := Paths{Root: root, Files: make([]string, 0, len(names))}
	for _, name := range names {
		if filepath.IsAbs(name) {
			out.Files = append(out.Files, filepath.Clean(name))
			continue
		}
		out.Files = append(out.Files, filepath.Join(root, name))
	}
	return out, nil
}

func readCache(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("protopath: read cache %q: %w", path, err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("protopath: read cache %q: %w", path, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("protopath: cache %q lists no schema files", path)
	}
	return names, nil
}
