// Package directory resolves channel names to their masterserver entries.
package directory

import (
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/CuBnIcK/warfacebot/pkg/model"
)

// Directory is the channel lookup consulted when a channel is joined.
// Implementations include the SQLite-backed SQL store and the in-memory
// Memory store used by tests and ephemeral clients.
type Directory interface {
	// Lookup returns the entry for resource, or nil when it is unknown.
	Lookup(resource string) (*model.Channel, error)
	List() ([]model.Channel, error)
	Upsert(ch *model.Channel) error
	Delete(resource string) error
	Close() error
}

// ChannelsFile is the YAML layout of a server list.
type ChannelsFile struct {
	Channels []model.Channel `yaml:"channels"`
}

// ImportYAML parses a server list and stores every entry in dir. Invalid
// entries are logged and skipped; the count of stored entries is returned.
func ImportYAML(data []byte, dir Directory) (int, error) {
	var f ChannelsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("directory: parse channels: %w", err)
	}

	stored := 0
	for i := range f.Channels {
		ch := f.Channels[i]
		if err := dir.Upsert(&ch); err != nil {
			slog.Error("skipping channel from server list", "resource", ch.Resource, "err", err)
			continue
		}
		stored++
	}

	slog.Info("imported channels", "count", stored)
	return stored, nil
}

// ExportYAML serializes every entry of dir as a server list.
func ExportYAML(dir Directory) ([]byte, error) {
	channels, err := dir.List()
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(&ChannelsFile{Channels: channels})
}
