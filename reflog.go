// Copyright 2023 The gg Authors
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
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"vcskit.dev/pkg/git/githash"
	"vcskit.dev/pkg/git/object"
)

// ReflogEntry is one line of a ref's reflog: a record of what the ref used
// to point to, what it points to now, who changed it, and why.
type ReflogEntry struct {
	Old, New githash.SHA1
	Who      object.User
	When     time.Time
	Message  string
}

// Reflog appends to and reads the per-ref history files under
// "<repo>/.git/logs/", in the "old new <ident> <ts> <tz>\t<message>" format
// section 6 of the repository layout describes.
type Reflog struct {
	gitDir string
}

func newReflog(gitDir string) *Reflog {
	return &Reflog{gitDir: gitDir}
}

func (rl *Reflog) path(ref githash.Ref) string {
	if ref == githash.Head {
		return filepath.Join(rl.gitDir, "logs", "HEAD")
	}
	return filepath.Join(rl.gitDir, "logs", filepath.FromSlash(ref.String()))
}

// Append records one reflog entry for ref, creating the file and any
// missing parent directories if needed.
func (rl *Reflog) Append(ref githash.Ref, old, newID githash.SHA1, who object.User, when time.Time, message string) error {
	path := rl.path(ref)
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return fmt.Errorf("reflog %s: %w", ref, err)
	}
	message = strings.ReplaceAll(message, "\n", " ")
	_, offset := when.Zone()
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	tz := fmt.Sprintf("%s%02d%02d", sign, offset/3600, (offset%3600)/60)
	line := fmt.Sprintf("%s %s %s %d %s\t%s\n", old, newID, who, when.Unix(), tz, message)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("reflog %s: %w", ref, err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("reflog %s: %w", ref, err)
	}
	return nil
}

// Read returns every recorded entry for ref, oldest first. A ref with no
// reflog yet returns an empty slice, not an error.
func (rl *Reflog) Read(ref githash.Ref) ([]ReflogEntry, error) {
	f, err := os.Open(rl.path(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reflog %s: %w", ref, err)
	}
	defer f.Close()

	var entries []ReflogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		ent, err := parseReflogLine(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("reflog %s: %w", ref, err)
		}
		entries = append(entries, ent)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reflog %s: %w", ref, err)
	}
	return entries, nil
}

func parseReflogLine(line string) (ReflogEntry, error) {
	header, message, ok := strings.Cut(line, "\t")
	if !ok {
		return ReflogEntry{}, fmt.Errorf("malformed reflog line %q", line)
	}
	fields := strings.Fields(header)
	if len(fields) < 5 {
		return ReflogEntry{}, fmt.Errorf("malformed reflog line %q", line)
	}
	old, err := githash.ParseSHA1(fields[0])
	if err != nil {
		return ReflogEntry{}, err
	}
	newID, err := githash.ParseSHA1(fields[1])
	if err != nil {
		return ReflogEntry{}, err
	}
	// fields[2:len-2] is "name <email>" (the name may itself contain
	// spaces); the last two fields are the Unix timestamp and zone offset.
	ts, err := strconv.ParseInt(fields[len(fields)-2], 10, 64)
	if err != nil {
		return ReflogEntry{}, fmt.Errorf("parse timestamp: %w", err)
	}
	who := strings.Join(fields[2:len(fields)-2], " ")
	return ReflogEntry{
		Old:     old,
		New:     newID,
		Who:     object.User(who),
		When:    time.Unix(ts, 0),
		Message: message,
	}, nil
}
