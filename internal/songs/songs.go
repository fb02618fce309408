// Package songs holds the playlist and the song reference type used as the
// cache key throughout kashi.
package songs

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnknownArtist is used when a playlist line names no artist.
const UnknownArtist = "Unknown"

const separator = " - "

// Ref identifies a song. QueryKey is the canonical "title - artist" string
// and the only key used for caching; two refs with the same QueryKey are
// the same song.
type Ref struct {
	Title    string `json:"title" yaml:"title"`
	Artist   string `json:"artist" yaml:"artist"`
	QueryKey string `json:"query_key" yaml:"-"`
}

func (r Ref) String() string { return r.QueryKey }

// Parse builds a Ref from a playlist line. The title is everything before
// the first " - " and the artist is the remainder. A line without a
// separator gets the artist "Unknown". The query key is the trimmed line.
// ok is false for blank lines.
func Parse(line string) (ref Ref, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Ref{}, false
	}
	parts := strings.Split(line, separator)
	if len(parts) >= 2 {
		title := strings.TrimSpace(parts[0])
		if title == "" {
			return Ref{}, false
		}
		return Ref{
			Title:    title,
			Artist:   strings.TrimSpace(strings.Join(parts[1:], separator)),
			QueryKey: line,
		}, true
	}
	return Ref{Title: line, Artist: UnknownArtist, QueryKey: line}, true
}

// NewRef builds a Ref for a custom title/artist pair. An empty artist
// behaves like a playlist line without one.
func NewRef(title, artist string) (Ref, error) {
	title = strings.TrimSpace(title)
	artist = strings.TrimSpace(artist)
	if title == "" {
		return Ref{}, errors.New("songs: title must not be empty")
	}
	if artist == "" {
		return Ref{Title: title, Artist: UnknownArtist, QueryKey: title}, nil
	}
	return Ref{Title: title, Artist: artist, QueryKey: title + separator + artist}, nil
}

// FromQuery resolves a query key against list, falling back to parsing it
// as a playlist line when it is not listed.
func FromQuery(list []Ref, key string) (Ref, bool) {
	if ref, ok := Find(list, key); ok {
		return ref, true
	}
	return Parse(key)
}

// Find returns the entry of list whose QueryKey equals key after trimming.
func Find(list []Ref, key string) (Ref, bool) {
	key = strings.TrimSpace(key)
	for _, r := range list {
		if r.QueryKey == key {
			return r, true
		}
	}
	return Ref{}, false
}

//go:embed playlist.yaml
var defaultPlaylist []byte

// Default returns the embedded playlist.
func Default() []Ref {
	refs, err := decode(defaultPlaylist)
	if err != nil {
		panic("songs: embedded playlist is invalid: " + err.Error())
	}
	return refs
}

// LoadFile reads a playlist YAML file with a top-level "songs" list whose
// items are either "title - artist" strings or {title, artist} mappings.
func LoadFile(path string) ([]Ref, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading playlist: %w", err)
	}
	refs, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("parsing playlist %s: %w", path, err)
	}
	return refs, nil
}

// Load returns the playlist at path, or the embedded one when path is empty.
func Load(path string) ([]Ref, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

type playlistFile struct {
	Songs []entry `yaml:"songs"`
}

// entry accepts either a scalar line or a mapping.
type entry struct {
	ref Ref
	ok  bool
}

func (e *entry) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		e.ref, e.ok = Parse(value.Value)
		return nil
	case yaml.MappingNode:
		var m struct {
			Title  string `yaml:"title"`
			Artist string `yaml:"artist"`
		}
		if err := value.Decode(&m); err != nil {
			return err
		}
		ref, err := NewRef(m.Title, m.Artist)
		if err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		e.ref, e.ok = ref, true
		return nil
	default:
		return fmt.Errorf("line %d: playlist entry must be a string or a mapping", value.Line)
	}
}

func decode(data []byte) ([]Ref, error) {
	var f playlistFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	refs := make([]Ref, 0, len(f.Songs))
	seen := make(map[string]bool, len(f.Songs))
	for _, e := range f.Songs {
		if !e.ok || seen[e.ref.QueryKey] {
			continue
		}
		seen[e.ref.QueryKey] = true
		refs = append(refs, e.ref)
	}
	return refs, nil
}
