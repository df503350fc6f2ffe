package pipeline

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Skryldev/ivr-studio/domain/model"
	"github.com/Skryldev/ivr-studio/domain/ports"
	pkgerrors "github.com/Skryldev/ivr-studio/pkg/errors"
)

var audioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".ogg":  true,
	".m4a":  true,
	".flac": true,
}

// IsAudioFile reports whether name looks like a render the grouper should consider
func IsAudioFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return audioExtensions[strings.ToLower(filepath.Ext(name))]
}

// Grouper builds output units from a job's staging directory
type Grouper struct {
	storage ports.StorageProvider
	prefix  string
}

// NewGrouper creates a grouper; secondary renders are named prefix+<primary base>
func NewGrouper(storage ports.StorageProvider, secondaryPrefix string) *Grouper {
	return &Grouper{storage: storage, prefix: secondaryPrefix}
}

// Scan reads dir once and groups its renders. An unreadable directory is an IOError.
func (g *Grouper) Scan(ctx context.Context, dir string, background *model.AudioAsset) ([]*model.OutputUnit, error) {
	entries, err := g.storage.ReadDir(ctx, dir)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return GroupUnits(paths, g.prefix, background)
}

type pair struct {
	primary   string
	secondary string
}

// GroupUnits partitions render paths into output units.
//
// A file whose base name starts with prefix (case-insensitive) is the secondary
// of the primary named by the rest. A secondary without a primary stands alone
// under its own full name. Units are sorted by name so the result does not depend
// on input order.
func GroupUnits(paths []string, prefix string, background *model.AudioAsset) ([]*model.OutputUnit, error) {
	pairs := make(map[string]*pair)
	get := func(key string) *pair {
		p, ok := pairs[key]
		if !ok {
			p = &pair{}
			pairs[key] = p
		}
		return p
	}

	for _, path := range paths {
		name := filepath.Base(path)
		if !IsAudioFile(name) {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))

		if key, ok := secondaryKey(stem, prefix); ok {
			p := get(key)
			if p.secondary != "" {
				return nil, pkgerrors.NewValidationError("secondary", name, "duplicate secondary render for "+key)
			}
			p.secondary = path
			continue
		}

		p := get(stem)
		if p.primary != "" {
			return nil, pkgerrors.NewValidationError("primary", name, "duplicate primary render for "+stem)
		}
		p.primary = path
	}

	units := make([]*model.OutputUnit, 0, len(pairs))
	for key, p := range pairs {
		unit := &model.OutputUnit{Background: background}
		switch {
		case p.primary != "":
			unit.Name = key
			unit.Renders = append(unit.Renders, model.NewAsset(p.primary, model.RoleRender))
			if p.secondary != "" {
				unit.Renders = append(unit.Renders, model.NewAsset(p.secondary, model.RoleRender))
			}
		default:
			base := filepath.Base(p.secondary)
			unit.Name = strings.TrimSuffix(base, filepath.Ext(base))
			unit.Renders = append(unit.Renders, model.NewAsset(p.secondary, model.RoleRender))
		}
		units = append(units, unit)
	}

	sort.Slice(units, func(i, j int) bool { return units[i].Name < units[j].Name })

	for i := 1; i < len(units); i++ {
		if units[i].Name == units[i-1].Name {
			return nil, pkgerrors.NewValidationError("unit", units[i].Name, "two renders map to the same output name")
		}
	}
	return units, nil
}

func secondaryKey(stem, prefix string) (string, bool) {
	if prefix == "" || len(stem) <= len(prefix) {
		return "", false
	}
	if !strings.EqualFold(stem[:len(prefix)], prefix) {
		return "", false
	}
	return stem[len(prefix):], true
}
