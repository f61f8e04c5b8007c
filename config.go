// Copyright 2018 The gg Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package git

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"vcskit.dev/pkg/git/githash"
)

// Config is a collection of configuration settings read from a repository's
// ".git/config" file. Internally it keeps every setting as a flattened,
// NUL-separated "key\x00value\x00" run in the same shape `git config -z
// --list` would have produced, so the query methods below need no
// modification from the subprocess-backed original they are taken from;
// only the producer (parseConfigFile, below) changed.
type Config struct {
	data []byte
}

// ReadConfigFile reads and parses the ".git/config" file at path. A missing
// file is treated as an empty configuration, matching a freshly initialized
// repository that has not set anything beyond its defaults.
func ReadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := parseConfigFile(data)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return cfg, nil
}

// parseConfigFile parses the INI-like Git config-file syntax: "[section]"
// and "[section \"sub\"]" headers, "key = value" or bare "key" lines
// (meaning boolean true), "#" and ";" line comments, and double-quoted
// values with "\\", "\"", "\\n", and "\\t" escapes.
func parseConfigFile(data []byte) (*Config, error) {
	var buf bytes.Buffer
	section, sub := "", ""
	for _, rawLine := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(stripComment(rawLine))
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") {
			s, sb, err := parseSectionHeader(line)
			if err != nil {
				return nil, err
			}
			section, sub = s, sb
			continue
		}
		key, value, hasValue := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		full := section
		if sub != "" {
			full += "." + sub
		}
		full += "." + key
		toLowerString := strings.ToLower(full)
		buf.WriteString(toLowerString)
		buf.WriteByte(0)
		if hasValue {
			buf.WriteString(unquoteConfigValue(strings.TrimSpace(value)))
		} else {
			buf.WriteString("true")
		}
		buf.WriteByte(0)
	}
	return &Config{data: buf.Bytes()}, nil
}

func stripComment(line string) string {
	inQuotes := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inQuotes = !inQuotes
		case '#', ';':
			if !inQuotes {
				return line[:i]
			}
		}
	}
	return line
}

func parseSectionHeader(line string) (section, sub string, err error) {
	if !strings.HasSuffix(line, "]") {
		return "", "", fmt.Errorf("config: malformed section header %q", line)
	}
	body := strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
	body = strings.TrimSpace(body)
	name, quoted, hasQuoted := strings.Cut(body, "\"")
	section = strings.ToLower(strings.TrimSpace(name))
	if hasQuoted {
		sub = strings.TrimSuffix(quoted, "\"")
	}
	return section, sub, nil
}

func unquoteConfigValue(v string) string {
	if len(v) < 2 || v[0] != '"' || v[len(v)-1] != '"' {
		return v
	}
	inner := v[1 : len(v)-1]
	var out strings.Builder
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) {
			i++
			switch inner[i] {
			case 'n':
				out.WriteByte('\n')
			case 't':
				out.WriteByte('\t')
			default:
				out.WriteByte(inner[i])
			}
			continue
		}
		out.WriteByte(inner[i])
	}
	return out.String()
}

// CommentChar returns the value of the "core.commentChar" setting.
func (cfg *Config) CommentChar() string {
	if v := cfg.Value("core.commentchar"); v != "" {
		return v
	}
	return "#"
}

// Value returns the string value of the configuration setting with the
// given name (e.g. "user.name").
func (cfg *Config) Value(name string) string {
	v, _ := cfg.findLast(name)
	return string(v)
}

// Bool returns the boolean configuration setting with the given name.
func (cfg *Config) Bool(name string) (bool, error) {
	v, ok := cfg.findLast(name)
	if !ok {
		return false, fmt.Errorf("config %s: not found", name)
	}
	if v == nil {
		return true, nil
	}
	b, ok := parseBool(v)
	if !ok {
		return false, fmt.Errorf("config %s: cannot parse %q as a bool", name, v)
	}
	return b, nil
}

// Remote stores the configuration for a remote repository, as read from its
// "remote.<name>.*" settings.
type Remote struct {
	Name     string
	FetchURL string
	Fetch    []FetchRefspec
	PushURL  string
}

// String returns the remote's name.
func (r *Remote) String() string {
	return r.Name
}

// MapFetch maps a remote fetch ref into a local ref. If there is no
// mapping, then MapFetch returns an empty Ref.
func (r *Remote) MapFetch(remote githash.Ref) githash.Ref {
	for _, spec := range r.Fetch {
		if local := spec.Map(remote); local != "" {
			return local
		}
	}
	return ""
}

// ListRemotes returns the names of all remotes specified in the
// configuration.
func (cfg *Config) ListRemotes() map[string]*Remote {
	remotes := make(map[string]*Remote)
	remotePrefix := []byte("remote.")

	for off := 0; off < len(cfg.data); {
		k, v, end := splitConfigEntry(cfg.data[off:])
		if end == -1 {
			break
		}
		off += end
		if !bytes.HasPrefix(k, remotePrefix) {
			continue
		}
		i := bytes.LastIndexByte(k[len(remotePrefix):], '.')
		if i == -1 {
			continue
		}
		i += len(remotePrefix)

		name := string(k[len(remotePrefix):i])
		remote := remotes[name]
		if remote == nil {
			remote = &Remote{Name: name}
			remotes[name] = remote
		}

		switch string(k[i+1:]) {
		case "url":
			remote.FetchURL = string(v)
		case "pushurl":
			remote.PushURL = string(v)
		case "fetch":
			remote.Fetch = append(remote.Fetch, FetchRefspec(v))
		}
	}
	for _, remote := range remotes {
		if remote.PushURL == "" {
			remote.PushURL = remote.FetchURL
		}
	}
	return remotes
}

// AddRemote appends (or overwrites) a remote's settings and persists the
// result to path, which must name a repository's ".git/config" file.
func (cfg *Config) AddRemote(path string, remote Remote) error {
	cfg.setValue("remote."+strings.ToLower(remote.Name)+".url", remote.FetchURL)
	if remote.PushURL != "" && remote.PushURL != remote.FetchURL {
		cfg.setValue("remote."+strings.ToLower(remote.Name)+".pushurl", remote.PushURL)
	}
	for _, spec := range remote.Fetch {
		cfg.setValue("remote."+strings.ToLower(remote.Name)+".fetch", string(spec))
	}
	return writeConfigFile(path, cfg)
}

// RemoveRemote deletes every "remote.<name>.*" setting and persists the
// result to path.
func (cfg *Config) RemoveRemote(path string, name string) error {
	prefix := []byte("remote." + strings.ToLower(name) + ".")
	var kept bytes.Buffer
	for off := 0; off < len(cfg.data); {
		k, v, end := splitConfigEntry(cfg.data[off:])
		if end == -1 {
			break
		}
		off += end
		if bytes.HasPrefix(k, prefix) {
			continue
		}
		kept.Write(k)
		kept.WriteByte(0)
		kept.Write(v)
		kept.WriteByte(0)
	}
	cfg.data = kept.Bytes()
	return writeConfigFile(path, cfg)
}

func (cfg *Config) setValue(name, value string) {
	name = strings.ToLower(name)
	var out bytes.Buffer
	out.Write(cfg.data)
	out.WriteString(name)
	out.WriteByte(0)
	out.WriteString(value)
	out.WriteByte(0)
	cfg.data = out.Bytes()
}

// writeConfigFile serializes cfg back into Git's INI config syntax and
// writes it to path via the same atomic temp-then-rename pattern the
// transform package's stores use.
func writeConfigFile(path string, cfg *Config) error {
	sections := make(map[string][][2]string)
	var order []string
	for off := 0; off < len(cfg.data); {
		k, v, end := splitConfigEntry(cfg.data[off:])
		if end == -1 {
			break
		}
		off += end
		full := string(k)
		i := strings.LastIndexByte(full, '.')
		if i == -1 {
			continue
		}
		section, key := full[:i], full[i+1:]
		if _, ok := sections[section]; !ok {
			order = append(order, section)
		}
		sections[section] = append(sections[section], [2]string{key, string(v)})
	}

	var buf strings.Builder
	for _, section := range order {
		top, sub, hasSub := strings.Cut(section, ".")
		if hasSub {
			fmt.Fprintf(&buf, "[%s \"%s\"]\n", top, sub)
		} else {
			fmt.Fprintf(&buf, "[%s]\n", top)
		}
		for _, kv := range sections[section] {
			fmt.Fprintf(&buf, "\t%s = %s\n", kv[0], kv[1])
		}
	}
	return writeFile(path, buf.String())
}

func (cfg *Config) findLast(name string) (value []byte, found bool) {
	norm := []byte(strings.ToLower(name))
	for off := 0; off < len(cfg.data); {
		k, v, end := splitConfigEntry(cfg.data[off:])
		if end == -1 {
			break
		}
		if bytes.Equal(k, norm) {
			value = v
			found = true
		}
		off += end
	}
	return
}

// splitConfigEntry parses the next NUL-terminated "key\x00value\x00" pair.
func splitConfigEntry(b []byte) (k, v []byte, end int) {
	kEnd := bytes.IndexByte(b, 0)
	if kEnd == -1 {
		return nil, nil, -1
	}
	vEnd := bytes.IndexByte(b[kEnd+1:], 0)
	if vEnd == -1 {
		return nil, nil, -1
	}
	vEnd += kEnd + 1
	return b[:kEnd], b[kEnd+1 : vEnd], vEnd + 1
}

func parseBool(v []byte) (_ bool, ok bool) {
	if len(v) == 0 {
		return false, true
	}
	switch strings.ToLower(string(v)) {
	case "true", "yes", "on", "1":
		return true, true
	case "false", "no", "off", "0":
		return false, true
	default:
		return false, false
	}
}

// A FetchRefspec specifies a mapping from remote refs to local refs, as
// found in a "remote.<name>.fetch" setting.
type FetchRefspec string

// String returns the refspec as a string.
func (spec FetchRefspec) String() string {
	return string(spec)
}

// Parse parses the refspec into its parts.
func (spec FetchRefspec) Parse() (src, dst RefPattern, plus bool) {
	s := string(spec)
	plus = strings.HasPrefix(s, "+")
	if plus {
		s = s[1:]
	}
	if i := strings.IndexByte(s, ':'); i != -1 {
		return RefPattern(s[:i]), RefPattern(s[i+1:]), plus
	}
	if strings.HasPrefix(s, "tag ") {
		name := s[len("tag "):]
		return RefPattern("refs/tags/" + name), RefPattern("refs/tags/" + name), plus
	}
	return RefPattern(s), "", plus
}

// Map maps a remote ref into a local ref. If there is no mapping, Map
// returns an empty Ref.
func (spec FetchRefspec) Map(remote githash.Ref) githash.Ref {
	srcPattern, dstPattern, _ := spec.Parse()
	suffix, ok := srcPattern.Match(remote)
	if !ok {
		return ""
	}
	if prefix, ok := dstPattern.Prefix(); ok {
		return githash.Ref(prefix + suffix)
	}
	return githash.Ref(dstPattern)
}

// A RefPattern is one side of a refspec: either a literal suffix match
// (e.g. "main" matches "refs/heads/main") or, if its last component is "*",
// a prefix match.
type RefPattern string

// String returns the pattern string.
func (pat RefPattern) String() string {
	return string(pat)
}

// Prefix returns the prefix before the wildcard if it's a wildcard
// pattern. Otherwise it returns "", false.
func (pat RefPattern) Prefix() (_ string, ok bool) {
	const wildcard = "/*"
	if strings.HasSuffix(string(pat), wildcard) && len(pat) > len(wildcard) {
		return string(pat[:len(pat)-len("*")]), true
	}
	return "", false
}

// Match reports whether ref matches the pattern. If the pattern is a prefix
// match, suffix is the string matched by the wildcard.
func (pat RefPattern) Match(ref githash.Ref) (suffix string, ok bool) {
	if prefix, ok := pat.Prefix(); ok {
		if !strings.HasPrefix(string(ref), prefix) {
			return "", false
		}
		return string(ref[len(prefix):]), true
	}
	return "", string(ref) == string(pat) || strings.HasSuffix(string(ref), "/"+string(pat))
}
